package handoff

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wolfman30/agentdesk/pkg/logging"
)

const (
	DefaultSweepSchedule = "@every 1m"
	DefaultSLA           = 5 * time.Minute
)

// Escalator escalates handoffs that waited longer than sla.
type Escalator interface {
	EscalateOverdue(ctx context.Context, sla time.Duration) (int, error)
}

// Sweeper periodically escalates overdue handoff requests.
type Sweeper struct {
	escalator Escalator
	sla       time.Duration
	timeout   time.Duration
	cron      *cron.Cron
	logger    *logging.Logger
}

func NewSweeper(escalator Escalator, schedule string, sla time.Duration, logger *logging.Logger) (*Sweeper, error) {
	if escalator == nil {
		return nil, fmt.Errorf("handoff: sweeper requires an escalator")
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if sla <= 0 {
		sla = DefaultSLA
	}
	if logger == nil {
		logger = logging.Default()
	}
	cl := cronLogger{logger: logger}
	s := &Sweeper{
		escalator: escalator,
		sla:       sla,
		timeout:   30 * time.Second,
		logger:    logger,
		cron:      cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("handoff: invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("handoff sweeper started", "sla", s.sla.String())
}

// Stop halts the schedule and waits for a running sweep, bounded by ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("handoff sweeper stop timed out")
	}
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.RunOnce(ctx)
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	n, err := s.escalator.EscalateOverdue(ctx, s.sla)
	if err != nil {
		s.logger.Error("handoff sweep failed", "error", err, "escalated", n)
		return n
	}
	if n > 0 {
		s.logger.Info("handoff sweep escalated requests", "escalated", n)
	}
	return n
}

// cronLogger adapts the service logger to cron's logging interface.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
