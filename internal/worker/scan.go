// Package worker runs the periodic scan loop.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/blockstats-server/internal/domain"
)

// ScanRunner triggers one full scan.
type ScanRunner interface {
	RunScan(ctx context.Context) (int, error)
}

// ScanWorker periodically rebuilds the snapshot from the record source.
type ScanWorker struct {
	runner   ScanRunner
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewScanWorker creates a new scan worker
func NewScanWorker(runner ScanRunner, interval time.Duration, logger *slog.Logger) *ScanWorker {
	return &ScanWorker{
		runner:   runner,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background scan process
func (w *ScanWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("scan worker started", "interval", w.interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background scan process
func (w *ScanWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("scan worker stopped")
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *ScanWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run is the main worker loop. A failing cycle never kills the loop;
// the next interval gets a fresh attempt.
func (w *ScanWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// runOnce executes a single scan cycle, isolating any failure or panic.
func (w *ScanWorker) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("scan cycle panicked", "panic", r)
		}
	}()

	updated, err := w.runner.RunScan(ctx)
	switch {
	case errors.Is(err, domain.ErrScanInProgress):
		w.logger.Debug("scan already in progress, skipping cycle")
	case err != nil:
		w.logger.Error("scan cycle failed", "error", err)
	default:
		w.logger.Debug("scan cycle completed", "updated", updated)
	}
}
