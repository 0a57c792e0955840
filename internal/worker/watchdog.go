package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storflow/internal/models"
)

// OperationLister is the slice of the operation store the watchdog needs
type OperationLister interface {
	List(ctx context.Context) ([]*models.StorageOperation, error)
}

// Watchdog flags operations stuck in a non-terminal state past a threshold.
// It never mutates records; each operation is owned by its pipeline task.
// Its output is the operational signal for manual reconciliation.
type Watchdog struct {
	store     OperationLister
	interval  time.Duration
	threshold time.Duration
	logger    *zap.Logger
}

// NewWatchdog creates a stuck-operation watchdog
func NewWatchdog(store OperationLister, interval, threshold time.Duration, logger *zap.Logger) *Watchdog {
	if interval <= 0 {
		interval = DefaultWatchdogInterval
	}
	if threshold <= 0 {
		threshold = DefaultStuckThreshold
	}
	return &Watchdog{
		store:     store,
		interval:  interval,
		threshold: threshold,
		logger:    logger.Named("watchdog"),
	}
}

// Run starts the watchdog polling loop
func (w *Watchdog) Run(ctx context.Context) {
	w.logger.Info("Watchdog started",
		zap.Duration("interval", w.interval),
		zap.Duration("stuck_threshold", w.threshold))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Watchdog stopping")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll executes one scan over the operation records
func (w *Watchdog) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, PollTimeout)
	defer cancel()

	ops, err := w.store.List(pollCtx)
	if err != nil {
		w.logger.Warn("Failed to list operations", zap.Error(err))
		return
	}

	now := time.Now()
	for _, op := range ops {
		if op.Status.IsTerminal() {
			continue
		}
		if age := now.Sub(op.UpdatedAt); age > w.threshold {
			w.logger.Warn("Operation appears stuck",
				zap.String("operation_id", op.ID),
				zap.String("status", string(op.Status)),
				zap.String("current_step", op.CurrentStep),
				zap.Duration("age", age))
		}
	}
}
