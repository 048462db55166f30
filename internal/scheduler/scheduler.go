package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"CoinOracle/internal/prediction"
)

// DefaultSpec runs a sweep every five minutes.
const DefaultSpec = "@every 5m"

// Sweeper runs one evaluation sweep.
type Sweeper interface {
	RunEvaluationSweep(ctx context.Context) (*prediction.SweepReport, error)
}

// Reporter receives the report of every sweep that evaluated something.
type Reporter interface {
	ReportSweep(ctx context.Context, r *prediction.SweepReport)
}

// Options tunes the scheduler.
type Options struct {
	Spec         string        // cron spec; seconds field allowed
	WarmUp       time.Duration // delay of the first sweep after Start; negative disables it
	SweepTimeout time.Duration // upper bound of one sweep
}

// Scheduler drives evaluation sweeps on a cron schedule plus one warm-up run.
type Scheduler struct {
	Cron     *cron.Cron
	Sweeper  Sweeper
	Reporter Reporter // optional

	opts   Options
	job    cron.Job
	mu     sync.Mutex
	warmUp *time.Timer
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// NewScheduler creates a Scheduler. Warm-up, periodic and manual sweeps share one
// job: a panic is recovered and a run that lands while a sweep runs is dropped.
func NewScheduler(sw Sweeper, rep Reporter, opts Options) *Scheduler {
	if opts.Spec == "" {
		opts.Spec = DefaultSpec
	}
	if opts.SweepTimeout <= 0 {
		opts.SweepTimeout = 4 * time.Minute
	}
	logger := log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger}
	s := &Scheduler{
		Cron:     cron.New(cron.WithSeconds(), cron.WithLogger(cl)),
		Sweeper:  sw,
		Reporter: rep,
		opts:     opts,
		log:      logger,
	}
	s.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(s.sweep))
	return s
}

// Register adds the sweep job under the configured spec.
func (s *Scheduler) Register() error {
	if _, err := s.Cron.AddJob(s.opts.Spec, s.job); err != nil {
		return fmt.Errorf("register sweep %q: %w", s.opts.Spec, err)
	}
	return nil
}

// Start starts the cron scheduler and arms the warm-up sweep.
func (s *Scheduler) Start() {
	s.Cron.Start()
	if s.opts.WarmUp >= 0 {
		s.mu.Lock()
		s.wg.Add(1)
		s.warmUp = time.AfterFunc(s.opts.WarmUp, func() {
			defer s.wg.Done()
			s.job.Run()
		})
		s.mu.Unlock()
	}
	s.log.Info().Str("spec", s.opts.Spec).Dur("warm_up", s.opts.WarmUp).Msg("scheduler started")
}

// Stop halts new sweeps and waits for the one in flight to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.warmUp != nil && s.warmUp.Stop() {
		s.wg.Done()
	}
	s.mu.Unlock()
	<-s.Cron.Stop().Done()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

// RunNow runs a sweep immediately unless one is already running.
func (s *Scheduler) RunNow() {
	s.job.Run()
}

func (s *Scheduler) sweep() {
	// Not derived from any caller context: Stop lets a running sweep finish.
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SweepTimeout)
	defer cancel()

	report, err := s.Sweeper.RunEvaluationSweep(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("evaluation sweep failed")
		return
	}
	if s.Reporter != nil && report.Evaluated > 0 {
		s.Reporter.ReportSweep(ctx, report)
	}
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
