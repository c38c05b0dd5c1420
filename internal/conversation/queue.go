package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobQueue transports qualification jobs between the API and workers.
type JobQueue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, limit int, wait time.Duration) ([]Delivery, error)
	// Ack removes a delivery for good.
	Ack(ctx context.Context, receipt string) error
	// Release makes a delivery visible again after delay.
	Release(ctx context.Context, receipt string, delay time.Duration) error
}

// Delivery is one received job body. Receives counts how often the queue has
// handed it out, including this time.
type Delivery struct {
	ID       string
	Body     string
	Receipt  string
	Receives int
}

const (
	jobKindQualify = "bant.qualify.v1"
	jobVersion     = 1
)

// QualificationJob asks for an LLM BANT extraction over a conversation.
type QualificationJob struct {
	JobID          string `json:"jobId"`
	OrgID          string `json:"orgId"`
	ConversationID string `json:"conversationId"`
	AgentID        string `json:"agentId,omitempty"`
}

// jobEnvelope is the queue wire format.
type jobEnvelope struct {
	Version  int              `json:"v"`
	Kind     string           `json:"kind"`
	Tracked  bool             `json:"tracked"`
	QueuedAt time.Time        `json:"queuedAt"`
	Job      QualificationJob `json:"job"`
}

func marshalJob(job QualificationJob, tracked bool) (string, error) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	data, err := json.Marshal(jobEnvelope{
		Version:  jobVersion,
		Kind:     jobKindQualify,
		Tracked:  tracked,
		QueuedAt: time.Now().UTC(),
		Job:      job,
	})
	if err != nil {
		return "", fmt.Errorf("conversation: encode job %s: %w", job.JobID, err)
	}
	return string(data), nil
}

func unmarshalJob(body string) (jobEnvelope, error) {
	var env jobEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return jobEnvelope{}, fmt.Errorf("%w: job body: %v", ErrInvalidRequest, err)
	}
	switch {
	case env.Version != jobVersion:
		return jobEnvelope{}, fmt.Errorf("%w: job version %d", ErrInvalidRequest, env.Version)
	case env.Kind != jobKindQualify:
		return jobEnvelope{}, fmt.Errorf("%w: job kind %q", ErrInvalidRequest, env.Kind)
	case env.Job.JobID == "" || env.Job.ConversationID == "":
		return jobEnvelope{}, fmt.Errorf("%w: job missing ids", ErrInvalidRequest)
	}
	return env, nil
}
