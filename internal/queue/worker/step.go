package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/studentportal/internal/jobs"
	"github.com/geocoder89/studentportal/internal/notifications"
)

const (
	resultDone  = "done"
	resultRetry = "retry"
	resultDead  = "dead"
)

// ProcessOne takes at most one job off the queue and runs it. It reports
// whether a job was handled; job failures are recorded on the queue, not
// returned.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	j, err := w.queue.Dequeue(ctx, w.cfg.PollInterval)
	if err != nil {
		if errors.Is(err, jobs.ErrNoJob) {
			return false, nil
		}
		if jobs.IsPermanent(err) {
			// the queue has already dead-lettered the raw message
			w.log.Warn("dropped malformed job", "err", err)
			w.prom.ObserveJob("unknown", resultDead, 0)
			return true, nil
		}
		return false, err
	}

	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	start := w.now()
	err = w.execute(ctx, j)
	elapsed := w.now().Sub(start)

	if err != nil {
		result := w.handleFailure(ctx, j, err)
		w.prom.ObserveJob(string(j.Type), result, elapsed)
		return true, nil
	}

	w.prom.ObserveJob(string(j.Type), resultDone, elapsed)
	w.log.Info("job done", "job_id", j.ID, "job_type", j.Type, "attempts", j.Attempts+1)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, j jobs.Job) error {
	decoded, err := jobs.DecodePayload(j)
	if err != nil {
		return err
	}
	if err := jobs.ValidatePayload(j.Type, decoded); err != nil {
		return err
	}

	switch p := decoded.(type) {
	case jobs.SendWelcomePayload:
		return w.notifier.SendWelcome(ctx, notifications.SendWelcomeInput{
			UserID: p.UserID,
			Email:  p.Email,
			Name:   p.Name,
			Course: p.Course,
			Source: p.Source,
		})
	default:
		return fmt.Errorf("%w: %s", jobs.ErrInvalidJobType, j.Type)
	}
}

// handleFailure reschedules j with backoff or moves it to the dead list.
func (w *Worker) handleFailure(ctx context.Context, j jobs.Job, cause error) string {
	j.Attempts++
	j.LastError = cause.Error()

	// the job must be written back even while shutting down
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if jobs.IsPermanent(cause) || j.Exhausted() {
		if err := w.queue.DeadLetter(wctx, j); err != nil {
			w.log.Error("dead-letter failed", "job_id", j.ID, "err", err, "cause", cause)
		}
		w.log.Warn("job dead", "job_id", j.ID, "job_type", j.Type, "attempts", j.Attempts, "err", cause)
		return resultDead
	}

	at := w.now().Add(w.backoff(j.Attempts - 1))
	if err := w.queue.Retry(wctx, j, at); err != nil {
		w.log.Error("retry schedule failed", "job_id", j.ID, "err", err, "cause", cause)
	}
	w.log.Warn("job failed, retry scheduled", "job_id", j.ID, "job_type", j.Type, "attempts", j.Attempts, "run_at", at, "err", cause)
	return resultRetry
}
