// Package scheduler triggers refresh runs on a cron schedule.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Job is a unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

// JobFunc adapts a function to Job.
func JobFunc(name string, fn func(ctx context.Context) error) Job {
	return funcJob{name: name, fn: fn}
}

// Scheduler runs jobs on cron schedules. A job still running when its next
// tick fires is skipped rather than overlapped.
type Scheduler struct {
	cron       *cron.Cron
	runTimeout time.Duration

	// ctx is cancelled by Stop so in-flight jobs wind down.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler evaluating schedules in loc. runTimeout bounds each
// job execution; zero means no bound.
func New(loc *time.Location, runTimeout time.Duration) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	logger := cronLogger{log: zap.L().Named("scheduler")}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		runTimeout: runTimeout,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// AddJob registers job with a standard five-field cron spec or a descriptor
// such as "@every 30m".
func (s *Scheduler) AddJob(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.RunNow(s.ctx, job); err != nil {
			zap.L().Error("scheduler: job failed", zap.String("job", job.Name()), zap.Error(err))
		}
	})
	if err != nil {
		return eris.Wrapf(err, "scheduler: parse schedule %q", spec)
	}
	zap.L().Info("scheduler: job registered",
		zap.String("job", job.Name()),
		zap.String("schedule", spec),
		zap.Time("next", s.Next()),
	)
	return nil
}

// RunNow executes job immediately under the configured run timeout.
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}
	start := time.Now()
	zap.L().Debug("scheduler: running job", zap.String("job", job.Name()))
	err := job.Run(ctx)
	zap.L().Info("scheduler: job finished",
		zap.String("job", job.Name()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("ok", err == nil),
	)
	return err
}

// Next returns the earliest upcoming tick, or the zero time when nothing is
// scheduled.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		n := e.Next
		if n.IsZero() && e.Schedule != nil {
			n = e.Schedule.Next(time.Now())
		}
		if next.IsZero() || n.Before(next) {
			next = n
		}
	}
	return next
}

// Start begins dispatching ticks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	zap.L().Info("scheduler: started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	zap.L().Info("scheduler: stopped")
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}

// cronLogger routes cron's internal logging through zap.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
