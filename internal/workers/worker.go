package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yieldvault/rebalancer/internal/logger"
	"github.com/yieldvault/rebalancer/internal/metrics"
)

var ErrStopTimeout = errors.New("worker did not stop in time")

// Job is one unit of periodic background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// PeriodicWorker runs a Job immediately and then on every tick until stopped.
type PeriodicWorker struct {
	job      Job
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	runs   int
}

func NewPeriodicWorker(job Job, interval time.Duration) *PeriodicWorker {
	return &PeriodicWorker{
		job:      job,
		interval: interval,
		logger:   logger.GetForComponent("worker").With().Str("worker", job.Name()).Logger(),
	}
}

func (w *PeriodicWorker) Name() string {
	return w.job.Name()
}

// Start launches the loop. Calling Start on a running worker is a no-op.
func (w *PeriodicWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)
}

func (w *PeriodicWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	w.logger.Info().Dur("interval", w.interval).Msg("Starting worker loop")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Worker loop stopped due to context cancellation")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *PeriodicWorker) runOnce(ctx context.Context) {
	w.mu.Lock()
	w.runs++
	run := w.runs
	w.mu.Unlock()

	started := time.Now()
	err := w.job.Run(ctx)
	switch {
	case err == nil:
		metrics.WorkerRuns.WithLabelValues(w.job.Name(), "ok").Inc()
		w.logger.Debug().Int("run", run).Dur("duration", time.Since(started)).Msg("Worker run completed")
	case ctx.Err() != nil:
		// Cancelled mid-run during shutdown.
		metrics.WorkerRuns.WithLabelValues(w.job.Name(), "cancelled").Inc()
	default:
		metrics.WorkerRuns.WithLabelValues(w.job.Name(), "error").Inc()
		w.logger.Error().Err(err).Int("run", run).Msg("Worker run failed")
	}
}

// Runs reports how many iterations have started.
func (w *PeriodicWorker) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

// Stop cancels the loop and waits up to timeout for the current run to end.
func (w *PeriodicWorker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w: %s", ErrStopTimeout, w.job.Name())
	}
}

// Group starts and stops a set of workers together.
type Group struct {
	workers []*PeriodicWorker
}

func (g *Group) Add(w ...*PeriodicWorker) {
	g.workers = append(g.workers, w...)
}

func (g *Group) Len() int {
	return len(g.workers)
}

func (g *Group) Start(ctx context.Context) {
	for _, w := range g.workers {
		w.Start(ctx)
	}
}

// Stop stops every worker in parallel, sharing one timeout.
func (g *Group) Stop(timeout time.Duration) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, w := range g.workers {
		wg.Add(1)
		go func(w *PeriodicWorker) {
			defer wg.Done()
			if err := w.Stop(timeout); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return errors.Join(errs...)
}
