// Package pipeline runs the sync, metric and screening stages one at a time
// and tracks the progress of the active run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"putscreener/internal/logger"
	"putscreener/internal/metrics"
	"putscreener/internal/pricesync"
	"putscreener/internal/progress"
	"putscreener/internal/screener"
)

var ErrBusy = errors.New("a run is already in progress")

type Operation string

const (
	OpPriceSync  Operation = "price_sync"
	OpMetricCalc Operation = "metric_calc"
	OpScreening  Operation = "screening"
	OpPipeline   Operation = "pipeline"
)

func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpPriceSync, OpMetricCalc, OpScreening, OpPipeline:
		return op, nil
	default:
		return "", fmt.Errorf("unknown operation %q", s)
	}
}

type PriceSyncer interface {
	SyncAll(ctx context.Context, obs progress.Observer, forceFull bool) (pricesync.BatchStats, error)
}

type MetricComputer interface {
	ComputeAll(ctx context.Context, asOf *time.Time, obs progress.Observer) (metrics.BatchStats, error)
}

type Screener interface {
	ScreenAll(ctx context.Context, date *time.Time, obs progress.Observer) (screener.BatchStats, error)
}

// Options parameterize one run. Date is the metric as-of date and the
// screening date; nil means today.
type Options struct {
	ForceFull bool
	Date      *time.Time
}

// Report collects the stats of every stage a run executed.
type Report struct {
	RunID     string                `json:"run_id"`
	Operation Operation             `json:"operation"`
	Sync      *pricesync.BatchStats `json:"sync,omitempty"`
	Metrics   *metrics.BatchStats   `json:"metrics,omitempty"`
	Screen    *screener.BatchStats  `json:"screen,omitempty"`
}

type Coordinator struct {
	Sync     PriceSyncer
	Metrics  MetricComputer
	Screener Screener
	Logger   *zap.Logger
	// Now is the clock; nil means time.Now.
	Now func() time.Time

	busy  atomic.Bool
	mu    sync.Mutex
	state state
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *Coordinator) logger() *zap.Logger {
	return logger.OrNop(c.Logger)
}

// Begin claims the busy flag for op. The returned Run must be ended.
func (c *Coordinator) Begin(op Operation) (*Run, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	now := c.now()
	run := &Run{c: c, id: uuid.NewString(), op: op}
	c.mu.Lock()
	c.state = state{
		active:    true,
		operation: op,
		runID:     run.id,
		status:    "starting",
		startedAt: now,
		updatedAt: now,
	}
	c.mu.Unlock()
	return run, nil
}

// Busy reports whether a run is active.
func (c *Coordinator) Busy() bool {
	return c.busy.Load()
}

// Execute runs op synchronously under the busy flag.
func (c *Coordinator) Execute(ctx context.Context, op Operation, opts Options) (Report, error) {
	run, err := c.Begin(op)
	if err != nil {
		return Report{}, err
	}
	report, err := c.execute(ctx, run, opts)
	run.End(err)
	return report, err
}

// Start runs op in the background and returns its run id once the busy
// flag is held. ctx should outlive the caller's request.
func (c *Coordinator) Start(ctx context.Context, op Operation, opts Options) (string, error) {
	run, err := c.Begin(op)
	if err != nil {
		return "", err
	}
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				c.logger().Error("run panicked", zap.String("run_id", run.id), zap.Any("panic", r))
			}
			run.End(err)
		}()
		_, err = c.execute(ctx, run, opts)
	}()
	return run.id, nil
}

func (c *Coordinator) RunSync(ctx context.Context, forceFull bool) (Report, error) {
	return c.Execute(ctx, OpPriceSync, Options{ForceFull: forceFull})
}

func (c *Coordinator) RunMetrics(ctx context.Context, asOf *time.Time) (Report, error) {
	return c.Execute(ctx, OpMetricCalc, Options{Date: asOf})
}

func (c *Coordinator) RunScreen(ctx context.Context, date *time.Time) (Report, error) {
	return c.Execute(ctx, OpScreening, Options{Date: date})
}

// RunAll runs sync, metrics and screening in order and stops at the first
// stage that returns an error.
func (c *Coordinator) RunAll(ctx context.Context, opts Options) (Report, error) {
	return c.Execute(ctx, OpPipeline, opts)
}

func (c *Coordinator) execute(ctx context.Context, run *Run, opts Options) (Report, error) {
	log := c.logger().With(zap.String("run_id", run.id), zap.String("operation", string(run.op)))
	report := Report{RunID: run.id, Operation: run.op}
	stages := []Operation{run.op}
	if run.op == OpPipeline {
		stages = []Operation{OpPriceSync, OpMetricCalc, OpScreening}
	}
	for _, stage := range stages {
		run.stage(stage)
		start := time.Now()
		var err error
		switch stage {
		case OpPriceSync:
			if c.Sync == nil {
				return report, errors.New("price sync not configured")
			}
			var stats pricesync.BatchStats
			stats, err = c.Sync.SyncAll(ctx, run, opts.ForceFull)
			report.Sync = &stats
		case OpMetricCalc:
			if c.Metrics == nil {
				return report, errors.New("metrics not configured")
			}
			var stats metrics.BatchStats
			stats, err = c.Metrics.ComputeAll(ctx, opts.Date, run)
			report.Metrics = &stats
		case OpScreening:
			if c.Screener == nil {
				return report, errors.New("screener not configured")
			}
			var stats screener.BatchStats
			stats, err = c.Screener.ScreenAll(ctx, opts.Date, run)
			report.Screen = &stats
		}
		if err != nil {
			log.Error("stage failed", zap.String("stage", string(stage)), zap.Error(err))
			return report, fmt.Errorf("%s: %w", stage, err)
		}
		log.Info("stage finished", zap.String("stage", string(stage)), zap.Duration("took", time.Since(start)))
	}
	return report, nil
}
