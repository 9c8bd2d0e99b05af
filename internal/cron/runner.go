package cronrunner

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

// Job is a scheduled task. Enabled is consulted on every tick so a feature
// switch can pause a job without restarting the process.
type Job struct {
	Name    string
	Spec    string
	Enabled func(ctx context.Context) bool
	Run     func(ctx context.Context) error
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{s: logger.Sugar()}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		job(r.baseCtx)
	})
}

// Register schedules job. A tick is skipped while the previous run of the
// same job is still going.
func (r *Runner) Register(job Job) (cron.EntryID, error) {
	return r.Add(job.Spec, func(ctx context.Context) {
		if job.Enabled != nil && !job.Enabled(ctx) {
			r.logger.Debug("cron job disabled", zap.String("job", job.Name))
			return
		}
		start := time.Now()
		if err := job.Run(ctx); err != nil {
			r.logger.Warn("cron job failed", zap.String("job", job.Name), zap.Error(err))
			return
		}
		r.logger.Info("cron job ok", zap.String("job", job.Name), zap.Duration("took", time.Since(start)))
	})
}

// Trigger runs a registered entry synchronously through the job chain.
func (r *Runner) Trigger(id cron.EntryID) bool {
	entry := r.cron.Entry(id)
	if !entry.Valid() {
		return false
	}
	entry.WrappedJob.Run()
	return true
}

func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("entries", len(r.cron.Entries())))
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
