package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const DefaultMaxTries = 5

// a Job is the unit of asynchronous work that travels through the queue.

type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	MaxTries  int             `json:"maxTries"`
	RunAt     time.Time       `json:"runAt"`
	LastError string          `json:"lastError,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

//  creation of a new pending job with defaults.

func NewJob(t JobType, payloadJSON []byte, runAt time.Time) (Job, error) {
	if !t.IsValid() {
		return Job{}, ErrInvalidJobType
	}
	if len(payloadJSON) == 0 {
		return Job{}, ErrInvalidJobPayload
	}

	now := time.Now().UTC()

	if runAt.IsZero() {
		runAt = now
	}

	j := Job{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payloadJSON,
		Attempts:  0,
		MaxTries:  DefaultMaxTries,
		RunAt:     runAt.UTC(),
		CreatedAt: now,
	}

	return j, nil
}

// Exhausted reports whether the job has used all of its attempts.
func (j Job) Exhausted() bool {
	return j.MaxTries > 0 && j.Attempts >= j.MaxTries
}
