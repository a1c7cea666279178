package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner executes one delivery run.
type Runner interface {
	Run(ctx context.Context) Outcome
}

// Scheduler triggers a Runner once a day at a fixed time of day. At most
// one run is in flight; a trigger that fires while a run is still going is
// skipped.
type Scheduler struct {
	cron     *cron.Cron
	runner   Runner
	logger   *slog.Logger
	sendTime string
	entryID  cron.EntryID
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewScheduler creates a Scheduler that fires at sendTime ("HH:MM") in loc.
// Runs receive a context derived from ctx.
func NewScheduler(ctx context.Context, runner Runner, sendTime string, loc *time.Location, logger *slog.Logger) (*Scheduler, error) {
	spec, err := DailySpec(sendTime)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}

	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithParser(cronParser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	cctx, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		cron:     c,
		runner:   runner,
		logger:   logger,
		sendTime: sendTime,
		ctx:      cctx,
		cancel:   cancel,
	}

	id, err := c.AddFunc(spec, s.trigger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to schedule delivery job: %w", err)
	}
	s.entryID = id
	return s, nil
}

// trigger is the cron callback
func (s *Scheduler) trigger() {
	if s.ctx.Err() != nil {
		return
	}
	s.logger.Info("scheduled delivery triggered", "send_time", s.sendTime)
	s.runner.Run(s.ctx)
}

// Start begins the scheduling loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "send_time", s.sendTime, "next_run", s.Next())
}

// Next returns the time of the next trigger. It is zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Stop stops triggering new runs and waits for an in-flight run to finish.
// If ctx expires first, the in-flight run's context is canceled and Stop
// still waits for it to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done.Done()
		s.logger.Warn("scheduler stopped after aborting in-flight run")
		return ctx.Err()
	}
}
