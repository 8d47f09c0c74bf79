// Package scheduler polls durable timers and fires the ones that are due.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

// Config holds configuration for the timer worker.
type Config struct {
	// WorkerInterval is how often due timers are polled.
	WorkerInterval time.Duration
	// BatchSize must match the timer service's batch size; a full batch
	// triggers another pass in the same tick.
	BatchSize int
	// MaxPasses bounds the passes run per tick.
	MaxPasses int
}

// DefaultConfig returns default configuration values.
func DefaultConfig() Config {
	return Config{
		WorkerInterval: 30 * time.Second,
		BatchSize:      100,
		MaxPasses:      10,
	}
}

// Worker drives TimerService.ProcessDue on a ticker. Timers live in the
// store, so a restart loses nothing: the first tick picks up whatever
// became due while the process was down.
type Worker struct {
	timers ports.TimerService
	clock  ports.Clock
	c      Config
	logger *slog.Logger

	mu   sync.Mutex
	stop context.CancelFunc
	done chan struct{}
}

// New creates a new timer worker.
func New(c Config, timers ports.TimerService, clock ports.Clock, logger *slog.Logger) *Worker {
	d := DefaultConfig()
	if c.WorkerInterval <= 0 {
		c.WorkerInterval = d.WorkerInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxPasses <= 0 {
		c.MaxPasses = d.MaxPasses
	}
	return &Worker{
		timers: timers,
		clock:  clock,
		c:      c,
		logger: logger.With("component", "timer_worker"),
	}
}

// Start starts the worker. It runs one tick immediately.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stop != nil {
		return fmt.Errorf("timer worker already started")
	}

	ctx, w.stop = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.worker(ctx, w.done)

	w.logger.Info("timer worker started", "interval", w.c.WorkerInterval, "batch_size", w.c.BatchSize)
	return nil
}

// Stop stops the worker and waits for an in-flight tick to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop, w.done = nil, nil
	w.mu.Unlock()

	if stop == nil {
		return fmt.Errorf("timer worker already stopped or not started")
	}
	stop()
	<-done
	w.logger.Info("timer worker stopped")
	return nil
}

func (w *Worker) worker(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.c.WorkerInterval)
	defer ticker.Stop()

	w.Tick(ctx)
	for {
		select {
		case <-ticker.C:
			w.Tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Tick processes due timers until a pass comes back short, makes no
// progress or MaxPasses is reached.
func (w *Worker) Tick(ctx context.Context) ports.TimerReport {
	var total ports.TimerReport

	for pass := 0; pass < w.c.MaxPasses; pass++ {
		if ctx.Err() != nil {
			break
		}

		report, err := w.timers.ProcessDue(ctx, w.clock.Now())
		total.Expired += report.Expired
		total.Closed += report.Closed
		total.Ignored += report.Ignored
		total.Failed += report.Failed

		if err != nil {
			if ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "can't process due timers", "error", err)
			}
			break
		}
		if report.Total() < w.c.BatchSize || report.Settled() == 0 {
			break
		}
	}

	if total.Total() > 0 {
		w.logger.InfoContext(ctx, "timers processed",
			"expired", total.Expired,
			"closed", total.Closed,
			"ignored", total.Ignored,
			"failed", total.Failed,
		)
	}
	return total
}
