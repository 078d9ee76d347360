package controller

import (
	"context"
	"log/slog"
	"sync"
)

// Controller reconciles a single resource key. Returning an error
// requeues the key.
type Controller interface {
	Reconcile(ctx context.Context, key string) error
}

// Manager runs registered controllers against their work queues.
type Manager struct {
	controllers map[string]Controller
	queues      map[string]*WorkQueue
	mu          sync.RWMutex
	logger      *slog.Logger

	stopOnce sync.Once
	stopped  chan struct{} // closed when all workers have stopped
}

// NewManager creates an empty controller manager.
func NewManager() *Manager {
	return &Manager{
		controllers: make(map[string]Controller),
		queues:      make(map[string]*WorkQueue),
		logger:      slog.Default(),
		stopped:     make(chan struct{}),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger *slog.Logger) {
	m.logger = logger
}

// Register adds a controller for a resource type.
func (m *Manager) Register(resourceType string, ctrl Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.controllers[resourceType] = ctrl
	m.queues[resourceType] = NewWorkQueue()
}

// Enqueue adds a key to the work queue for a resource type.
func (m *Manager) Enqueue(resourceType, key string) {
	m.mu.RLock()
	queue, exists := m.queues[resourceType]
	m.mu.RUnlock()

	if !exists {
		m.logger.Warn("enqueue for unknown resource type",
			"resourceType", resourceType,
			"key", key)
		return
	}

	queue.Add(key)
}

// Start begins processing all registered controllers. It blocks until
// the context is cancelled and every worker has drained.
func (m *Manager) Start(ctx context.Context, workersPerController int) {
	m.mu.RLock()
	resourceTypes := make([]string, 0, len(m.controllers))
	for rt := range m.controllers {
		resourceTypes = append(resourceTypes, rt)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup

	for _, rt := range resourceTypes {
		for i := 0; i < workersPerController; i++ {
			wg.Add(1)
			go func(resourceType string, workerID int) {
				defer wg.Done()
				m.runWorker(ctx, resourceType, workerID)
			}(rt, i)
		}
	}

	<-ctx.Done()

	m.mu.RLock()
	for _, queue := range m.queues {
		queue.ShutDown()
	}
	m.mu.RUnlock()

	wg.Wait()

	m.stopOnce.Do(func() {
		close(m.stopped)
	})
}

// Stop shuts down the queues and waits for all workers to finish.
// Call during graceful shutdown before closing the store.
func (m *Manager) Stop() {
	m.mu.RLock()
	for _, queue := range m.queues {
		queue.ShutDown()
	}
	m.mu.RUnlock()

	<-m.stopped
}

// runWorker processes keys from the queue for a resource type.
func (m *Manager) runWorker(ctx context.Context, resourceType string, workerID int) {
	m.mu.RLock()
	queue := m.queues[resourceType]
	ctrl := m.controllers[resourceType]
	m.mu.RUnlock()

	m.logger.Debug("worker started",
		"resourceType", resourceType,
		"workerID", workerID)

	for {
		key, shutdown := queue.Get()
		if shutdown {
			m.logger.Debug("worker shutting down",
				"resourceType", resourceType,
				"workerID", workerID)
			return
		}

		m.processKey(ctx, resourceType, ctrl, queue, key)
	}
}

// processKey reconciles a single key.
func (m *Manager) processKey(ctx context.Context, resourceType string, ctrl Controller, queue *WorkQueue, key string) {
	defer queue.Done(key)

	m.logger.Debug("reconciling",
		"resourceType", resourceType,
		"key", key)

	if err := ctrl.Reconcile(ctx, key); err != nil {
		m.logger.Error("reconcile failed, requeuing",
			"resourceType", resourceType,
			"key", key,
			"error", err)
		queue.Requeue(key)
		return
	}

	m.logger.Debug("reconcile complete",
		"resourceType", resourceType,
		"key", key)
}

// GetQueue returns the work queue for a resource type.
func (m *Manager) GetQueue(resourceType string) *WorkQueue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queues[resourceType]
}
