package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockwatch/internal/config"
	"github.com/mamadbah2/stockwatch/internal/service/monitor"
)

// Poller runs one inventory poll.
type Poller interface {
	Poll(ctx context.Context) error
}

// Scheduler drives the periodic inventory poll and auxiliary cron jobs such
// as the sheet mirror and the stock digest.
type Scheduler struct {
	cron         *cron.Cron
	poller       Poller
	interval     time.Duration
	pollTimeout  time.Duration
	stopDeadline time.Duration
	logger       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(cfg config.Config, poller Poller, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	cl := cronLogger{logger: logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	pollTimeout := cfg.Inventory.Timeout
	if cfg.Inventory.PollInterval > pollTimeout {
		pollTimeout = cfg.Inventory.PollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:         c,
		poller:       poller,
		interval:     cfg.Inventory.PollInterval,
		pollTimeout:  pollTimeout,
		stopDeadline: 10 * time.Second,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// AddJob registers an auxiliary job on a standard cron spec. Call it before
// Start.
func (s *Scheduler) AddJob(name, spec string, job cron.Job) error {
	if _, err := s.cron.AddJob(spec, job); err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.logger.Info("job scheduled", zap.String("job", name), zap.String("schedule", spec))
	return nil
}

// Start registers the poll job, polls once right away and starts the cron
// loop.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler", zap.Duration("poll_interval", s.interval))

	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(s.poll))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.poll()
	}()

	s.cron.Start()
}

// Stop stops the scheduler, cancels an in-flight poll and waits for running
// jobs to return.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	s.cancel()

	select {
	case <-s.cron.Stop().Done():
	case <-time.After(s.stopDeadline):
		s.logger.Warn("scheduled jobs did not finish before the stop deadline")
	}
	s.wg.Wait()
}

func (s *Scheduler) poll() {
	if s.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.pollTimeout)
	defer cancel()

	err := s.poller.Poll(ctx)
	switch {
	case err == nil:
	case errors.Is(err, monitor.ErrPollInFlight):
		s.logger.Debug("previous poll still running, skipping tick")
	case errors.Is(err, context.Canceled):
		s.logger.Debug("poll cancelled")
	default:
		// The monitor already logged the failure; the next tick retries.
		s.logger.Debug("poll failed", zap.Error(err))
	}
}

type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
