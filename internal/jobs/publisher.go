package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/geocoder89/studentportal/internal/domain/user"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, j Job) error
}

// Publisher turns domain events into queued jobs for the worker.
type Publisher struct {
	queue Enqueuer
}

func NewPublisher(queue Enqueuer) *Publisher {
	return &Publisher{queue: queue}
}

func (p *Publisher) PublishWelcome(ctx context.Context, u user.Identity, source string) error {
	payload := SendWelcomePayload{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Source: source,
	}
	if u.Course != nil {
		payload.Course = *u.Course
	}

	if err := ValidatePayload(JobSendWelcome, payload); err != nil {
		return err
	}

	b, err := EncodePayload(JobSendWelcome, payload)
	if err != nil {
		return err
	}

	j, err := NewJob(JobSendWelcome, b, time.Time{})
	if err != nil {
		return err
	}

	if err := p.queue.Enqueue(ctx, j); err != nil {
		return fmt.Errorf("enqueue %s: %w", j.Type, err)
	}
	return nil
}
