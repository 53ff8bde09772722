package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/studentportal/internal/jobs"
	"github.com/geocoder89/studentportal/internal/notifications"
	"github.com/geocoder89/studentportal/internal/observability"
)

type Queue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (jobs.Job, error)
	Retry(ctx context.Context, j jobs.Job, at time.Time) error
	DeadLetter(ctx context.Context, j jobs.Job) error
	PromoteDue(ctx context.Context, batch int) (int, error)
	Ping(ctx context.Context) error
}

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	PromoteBatch int
}

type Worker struct {
	cfg      Config
	queue    Queue
	notifier notifications.Notifier
	prom     *observability.Prom
	log      *slog.Logger

	now     func() time.Time
	backoff func(attempt int) time.Duration

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, queue Queue, notifier notifications.Notifier, prom *observability.Prom, log *slog.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.PromoteBatch <= 0 {
		cfg.PromoteBatch = 100
	}
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		cfg:      cfg,
		queue:    queue,
		notifier: notifier,
		prom:     prom,
		log:      log,
		now:      time.Now,
		backoff:  ExponentialBackoff,
	}
}

// Run blocks until ctx is cancelled. In-flight jobs finish before it returns.
func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.promoteLoop(ctx)
	}()

	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, slot)
		}(i)
	}

	w.log.Info("worker started", "concurrency", w.cfg.Concurrency, "poll_interval", w.cfg.PollInterval)

	<-ctx.Done()
	w.log.Info("worker received shutdown signal")
	w.setReady(false)

	wg.Wait()
	return nil
}

func (w *Worker) loop(ctx context.Context, slot int) {
	for {
		if ctx.Err() != nil {
			return
		}

		_, err := w.ProcessOne(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		w.log.Error("dequeue failed", "slot", slot, "err", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.queue.PromoteDue(ctx, w.cfg.PromoteBatch)
			if err != nil {
				if ctx.Err() == nil {
					w.log.Error("promote due jobs failed", "err", err)
				}
				continue
			}
			if n > 0 {
				w.log.Debug("promoted due jobs", "count", n)
			}
		}
	}
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) Ready() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}
