package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/agentdesk/pkg/logging"
)

// QualificationRunner executes one extraction job.
type QualificationRunner interface {
	RunQualification(ctx context.Context, job QualificationJob) (*QualificationResult, error)
}

// JobProcessor decodes a queue body, runs it and records the outcome. The
// worker pool and the Lambda handler share it.
type JobProcessor struct {
	runner QualificationRunner
	jobs   JobUpdater
	logger *logging.Logger
}

func NewJobProcessor(runner QualificationRunner, jobs JobUpdater, logger *logging.Logger) *JobProcessor {
	if runner == nil {
		panic("conversation: runner cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &JobProcessor{runner: runner, jobs: jobs, logger: logger}
}

// Process handles one message body. Malformed bodies return ErrInvalidRequest
// so callers can drop them instead of retrying.
func (p *JobProcessor) Process(ctx context.Context, body string) error {
	env, err := unmarshalJob(body)
	if err != nil {
		return err
	}
	job := env.Job
	logger := p.logger.With("job_id", job.JobID, "conversation_id", job.ConversationID)
	logger.Info("processing qualification job", "queued_for", time.Since(env.QueuedAt).Round(time.Millisecond).String())

	result, err := p.runner.RunQualification(ctx, job)
	if env.Tracked && p.jobs != nil {
		var storeErr error
		if err != nil {
			storeErr = p.jobs.MarkFailed(ctx, job.JobID, err.Error())
		} else {
			storeErr = p.jobs.MarkCompleted(ctx, job.JobID, result)
		}
		if storeErr != nil {
			logger.Error("failed to update job status", "error", storeErr)
		}
	}
	if err != nil {
		logger.Error("qualification job failed", "error", err)
		return err
	}
	return nil
}

// Worker consumes qualification jobs from the queue.
type Worker struct {
	processor *JobProcessor
	queue     JobQueue
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	maxReceives      int
	retryBase        time.Duration
}

const (
	defaultWorkerCount  = 2
	defaultWaitSeconds  = 2
	defaultBatchSize    = 5
	defaultMaxReceives  = 5
	defaultRetryBase    = 10 * time.Second
	maxRetryDelay       = 15 * time.Minute
	maxWaitSeconds      = 20
	maxReceiveBatchSize = 10
	settleTimeout       = 5 * time.Second
	maxReceiveBackoff   = 5 * time.Second
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithMaxReceives drops a job once it has been received this many times.
func WithMaxReceives(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n > 0 {
			cfg.maxReceives = n
		}
	}
}

// WithRetryBase sets the first redelivery delay. It doubles per receive.
func WithRetryBase(d time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if d > 0 {
			cfg.retryBase = d
		}
	}
}

func NewWorker(processor *JobProcessor, queue JobQueue, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		maxReceives:      defaultMaxReceives,
		retryBase:        defaultRetryBase,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{processor: processor, queue: queue, logger: logger, cfg: cfg}
}

// Start launches the consumer goroutines. They stop when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all consumers have stopped.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("qualification worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("qualification worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, time.Duration(w.cfg.receiveWaitSecs)*time.Second)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive qualification jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxReceiveBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, d := range messages {
			w.handle(ctx, d)
		}
	}
}

// handle acks the delivery unless processing failed for a reason a retry
// could fix. Retryable failures come back with exponential delay until
// maxReceives is reached.
func (w *Worker) handle(ctx context.Context, d Delivery) {
	err := w.processor.Process(ctx, d.Body)
	if !Retryable(err) {
		if err != nil {
			w.logger.Warn("dropping qualification job", "error", err, "msg_id", d.ID)
		}
		w.settle(d, 0, false)
		return
	}
	if d.Receives >= w.cfg.maxReceives {
		w.logger.Error("qualification job exhausted retries", "error", err, "msg_id", d.ID, "receives", d.Receives)
		w.settle(d, 0, false)
		return
	}
	delay := w.retryDelay(d.Receives)
	w.logger.Warn("retrying qualification job", "error", err, "msg_id", d.ID, "receives", d.Receives, "delay", delay.String())
	w.settle(d, delay, true)
}

func (w *Worker) retryDelay(receives int) time.Duration {
	delay := w.cfg.retryBase
	for i := 1; i < receives && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

// Retryable reports whether a Process error may succeed on redelivery.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrInvalidRequest) && !errors.Is(err, ErrNotFound)
}

// settle runs on a fresh context so a shutdown does not strand the receipt.
func (w *Worker) settle(d Delivery, delay time.Duration, release bool) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	var err error
	if release {
		err = w.queue.Release(ctx, d.Receipt, delay)
	} else {
		err = w.queue.Ack(ctx, d.Receipt)
	}
	if err != nil {
		w.logger.Error("failed to settle qualification job", "error", err, "msg_id", d.ID, "release", release)
	}
}
