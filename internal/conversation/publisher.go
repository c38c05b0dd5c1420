package conversation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wolfman30/agentdesk/pkg/logging"
)

// Publisher enqueues qualification jobs for asynchronous processing.
type Publisher struct {
	queue  JobQueue
	jobs   JobRecorder
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher. A nil jobs recorder disables
// status tracking.
func NewPublisher(queue JobQueue, jobs JobRecorder, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, jobs: jobs, logger: logger}
}

// EnqueueQualification records a pending job and publishes it. It returns the
// job ID.
func (p *Publisher) EnqueueQualification(ctx context.Context, job QualificationJob) (string, error) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	tracked := p.jobs != nil
	body, err := marshalJob(job, tracked)
	if err != nil {
		return "", err
	}

	if tracked {
		record := &JobRecord{
			JobID:          job.JobID,
			OrgID:          job.OrgID,
			ConversationID: job.ConversationID,
			AgentID:        job.AgentID,
		}
		if err := p.jobs.PutPending(ctx, record); err != nil {
			return "", err
		}
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}
	p.logger.Debug("qualification job enqueued", "job_id", job.JobID, "conversation_id", job.ConversationID)
	return job.JobID, nil
}
