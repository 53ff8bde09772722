package notifications

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"
)

var ErrProviderDown = errors.New("provider down (simulated)")

// LogNotifier stands in for a mail provider and writes the message to the log.
type LogNotifier struct {
	log   *slog.Logger
	sleep time.Duration
	fail  bool
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}

	n := &LogNotifier{log: log}

	// Optional: simulate slow provider
	if ms, err := strconv.Atoi(os.Getenv("NOTIFIER_SLEEP_MS")); err == nil && ms > 0 {
		n.sleep = time.Duration(ms) * time.Millisecond
	}

	// Optional: simulate provider outage
	n.fail = os.Getenv("NOTIFIER_FAIL") == "1"

	return n
}

func (n *LogNotifier) SendWelcome(ctx context.Context, in SendWelcomeInput) error {
	if n.sleep > 0 {
		select {
		case <-time.After(n.sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if n.fail {
		return ErrProviderDown
	}

	n.log.InfoContext(ctx, "notification.welcome",
		"user_id", in.UserID,
		"email", in.Email,
		"name", in.Name,
		"course", in.Course,
		"source", in.Source,
	)
	return nil
}
