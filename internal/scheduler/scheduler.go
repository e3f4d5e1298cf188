package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// TableInitializer prepares storage before the first cycle.
type TableInitializer interface {
	EnsureTable(ctx context.Context) error
}

// Cycler runs one poll cycle and reports how many observations it processed.
type Cycler interface {
	RunCycle(ctx context.Context) int
}

// Scheduler drives poll cycles. By default it runs a cycle and then sleeps for
// the interval, forever. With a cron expression, cycles run on that schedule
// instead and never overlap.
type Scheduler struct {
	tables   TableInitializer
	service  Cycler
	interval time.Duration
	schedule string
	log      *zap.SugaredLogger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a new Scheduler. An empty schedule selects the fixed-interval loop.
func New(tables TableInitializer, service Cycler, interval time.Duration, schedule string, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		tables:   tables,
		service:  service,
		interval: interval,
		schedule: schedule,
		log:      log,
		sleep:    sleepContext,
	}
}

// Run ensures the table exists and then polls until ctx is cancelled.
// Only a table creation failure or an invalid schedule is returned as an error.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.tables.EnsureTable(ctx); err != nil {
		return fmt.Errorf("initializing table: %w", err)
	}

	if s.schedule != "" {
		return s.runCron(ctx)
	}

	for {
		n := s.service.RunCycle(ctx)
		s.log.Debugf("Poll cycle processed %d observations, next in %s", n, s.interval)

		if err := s.sleep(ctx, s.interval); err != nil {
			return nil
		}
	}
}

func (s *Scheduler) runCron(ctx context.Context) error {
	sched := gocron.NewScheduler(time.UTC)
	sched.SingletonModeAll()

	_, err := sched.Cron(s.schedule).Do(func() {
		n := s.service.RunCycle(ctx)
		s.log.Debugf("Poll cycle processed %d observations", n)
	})
	if err != nil {
		return fmt.Errorf("scheduling %q: %w", s.schedule, err)
	}

	s.log.Infof("Polling on schedule %q", s.schedule)
	sched.StartAsync()
	defer sched.Stop()

	<-ctx.Done()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
