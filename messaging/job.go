package messaging

import (
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opd-ai/courier/interfaces"
)

// JobState represents the progress of a send job.
type JobState uint8

const (
	// JobPending means the job has not been attempted yet.
	JobPending JobState = iota
	// JobSending means a send attempt is in flight.
	JobSending
	// JobSent means the network acknowledged the message.
	JobSent
	// JobFailed means the send failed after retries.
	JobFailed
	// JobSkipped means the job was never attempted.
	JobSkipped
)

// String returns the lowercase state name used in reports.
func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobSending:
		return "sending"
	case JobSent:
		return "sent"
	case JobFailed:
		return "failed"
	case JobSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText renders the state as its name.
func (s JobState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Job is a single outbound send.
type Job struct {
	ID      string
	BatchID string
	Index   int
	Target  string
	Payload interfaces.Payload
	Options interfaces.SendOptions

	mu      sync.Mutex
	attempt int
	state   JobState
}

// NewJob creates a pending job for target.
func NewJob(target string, payload interfaces.Payload, opts interfaces.SendOptions) *Job {
	return &Job{
		ID:      uuid.NewString(),
		Target:  target,
		Payload: payload,
		Options: opts,
		state:   JobPending,
	}
}

// BeginAttempt marks the job as sending and returns the 1-based attempt number.
func (j *Job) BeginAttempt() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempt++
	j.state = JobSending
	return j.attempt
}

// Attempts returns how many send attempts were made.
func (j *Job) Attempts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempt
}

// SetState updates the job state.
func (j *Job) SetState(s JobState) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

// State returns the job state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Receipt is the successful outcome of a send.
type Receipt struct {
	MessageID string              `json:"messageId"`
	Address   string              `json:"address"`
	Timestamp time.Time           `json:"timestamp"`
	Ack       interfaces.AckLevel `json:"ack"`
	Attempts  int                 `json:"attempts"`
}

// Batch is an ordered set of jobs sharing one payload.
type Batch struct {
	ID   string
	jobs []*Job
}

// NewBatch creates one job per target, preserving input order. Duplicate
// targets are kept; each occurrence is a separate job.
func NewBatch(targets []string, payload interfaces.Payload, opts interfaces.SendOptions) *Batch {
	b := &Batch{
		ID:   uuid.NewString(),
		jobs: make([]*Job, 0, len(targets)),
	}
	for i, target := range targets {
		job := NewJob(target, payload, opts)
		job.BatchID = b.ID
		job.Index = i
		b.jobs = append(b.jobs, job)
	}
	return b
}

// Len returns the number of jobs in the batch.
func (b *Batch) Len() int {
	return len(b.jobs)
}

// Jobs yields jobs one at a time in input order. Breaking out of the loop
// leaves the remaining jobs pending.
func (b *Batch) Jobs() iter.Seq2[int, *Job] {
	return func(yield func(int, *Job) bool) {
		for i, job := range b.jobs {
			if !yield(i, job) {
				return
			}
		}
	}
}

// Pending returns the jobs that were never attempted.
func (b *Batch) Pending() []*Job {
	var pending []*Job
	for _, job := range b.jobs {
		if job.State() == JobPending {
			pending = append(pending, job)
		}
	}
	return pending
}
