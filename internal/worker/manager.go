package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Constants for worker configuration
const (
	DefaultRefreshInterval  = 30 * time.Second
	DefaultWatchdogInterval = 1 * time.Minute
	DefaultStuckThreshold   = 45 * time.Minute
	PollTimeout             = 30 * time.Second
)

// Manager runs the service's background workers: the price cache refresher
// and the stuck-operation watchdog.
type Manager struct {
	refresher *Refresher
	watchdog  *Watchdog
	logger    *zap.Logger

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a worker manager
func NewManager(refresher *Refresher, watchdog *Watchdog, logger *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		refresher: refresher,
		watchdog:  watchdog,
		logger:    logger.Named("worker"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts all worker goroutines
func (m *Manager) Start() {
	m.logger.Info("Starting worker manager")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.refresher.Run(m.ctx)
	}()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.watchdog.Run(m.ctx)
	}()

	m.logger.Info("Worker manager started")
}

// Shutdown gracefully stops all workers
func (m *Manager) Shutdown(timeout time.Duration) error {
	m.logger.Info("Shutting down worker manager")

	// Signal workers to stop
	m.cancel()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Workers stopped gracefully")
	case <-time.After(timeout):
		m.logger.Warn("Worker shutdown timed out")
	}

	m.logger.Info("Worker manager shutdown complete")
	return nil
}
