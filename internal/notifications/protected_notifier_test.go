package notifications

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type scriptedNotifier struct {
	errs  []error
	calls int
}

func (s *scriptedNotifier) SendWelcome(ctx context.Context, _ SendWelcomeInput) error {
	s.calls++
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("expected a deadline on the send context")
	}
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func TestProtectedNotifier_OpensAfterThreshold(t *testing.T) {
	boom := errors.New("smtp 421")
	inner := &scriptedNotifier{errs: []error{boom, boom, boom}}

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{FailureThreshold: 3, Cooldown: 10 * time.Second})
	n.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if err := n.SendWelcome(context.Background(), SendWelcomeInput{}); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected inner error, got %v", i, err)
		}
	}

	if n.State() != StateOpen {
		t.Fatalf("expected open circuit, got %s", n.State())
	}

	if err := n.SendWelcome(context.Background(), SendWelcomeInput{}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("open circuit must not call inner, calls=%d", inner.calls)
	}

	// cooldown elapsed: one trial call closes the circuit on success
	now = now.Add(10 * time.Second)

	if err := n.SendWelcome(context.Background(), SendWelcomeInput{}); err != nil {
		t.Fatalf("expected half-open trial to succeed, got %v", err)
	}
	if n.State() != StateClosed {
		t.Fatalf("expected closed circuit, got %s", n.State())
	}
}

func TestProtectedNotifier_HalfOpenFailureReopens(t *testing.T) {
	boom := errors.New("timeout")
	inner := &scriptedNotifier{errs: []error{boom, boom}}

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{FailureThreshold: 1, Cooldown: time.Second})
	n.now = func() time.Time { return now }

	_ = n.SendWelcome(context.Background(), SendWelcomeInput{})
	if n.State() != StateOpen {
		t.Fatalf("expected open circuit, got %s", n.State())
	}

	now = now.Add(time.Second)
	if err := n.SendWelcome(context.Background(), SendWelcomeInput{}); !errors.Is(err, boom) {
		t.Fatalf("expected trial failure, got %v", err)
	}
	if n.State() != StateOpen {
		t.Fatalf("expected circuit to reopen, got %s", n.State())
	}

	if err := n.SendWelcome(context.Background(), SendWelcomeInput{}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen right after reopening, got %v", err)
	}
}

func TestLogNotifier_WritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))
	n.fail = false
	n.sleep = 0

	err := n.SendWelcome(context.Background(), SendWelcomeInput{UserID: "u1", Email: "a@example.com", Source: "signup"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"msg":"notification.welcome"`, `"user_id":"u1"`, `"source":"signup"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line missing %s: %s", want, out)
		}
	}
}

func TestLogNotifier_SimulatedOutage(t *testing.T) {
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	n.fail = true

	if err := n.SendWelcome(context.Background(), SendWelcomeInput{}); !errors.Is(err, ErrProviderDown) {
		t.Fatalf("expected ErrProviderDown, got %v", err)
	}
}
