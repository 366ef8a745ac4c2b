// Package notify delivers user notifications through an at-least-once queue.
// Producers enqueue and return; a Worker reserves, sends, and acknowledges.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job kinds.
const (
	KindRegistration = "registration_email"
)

// Job is a unit of work on the queue.
type Job struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	To         string    `json:"to"`
	Username   string    `json:"username"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	// raw is the payload as reserved, used to remove it from the in-flight list.
	raw string
}

// NewJob creates a job with a fresh id.
func NewJob(kind, to, username string) Job {
	return Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		To:         to,
		Username:   username,
		EnqueuedAt: time.Now().UTC(),
	}
}

func encodeJob(job Job) (string, error) {
	b, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encoding job: %w", err)
	}
	return string(b), nil
}

func decodeJob(raw string) (*Job, error) {
	job := &Job{}
	if err := json.Unmarshal([]byte(raw), job); err != nil {
		return nil, fmt.Errorf("decoding job: %w", err)
	}
	job.raw = raw
	return job, nil
}
