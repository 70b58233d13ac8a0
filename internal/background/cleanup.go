package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CleanupTask is one periodic maintenance routine. Run returns the number of rows removed.
type CleanupTask struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// CleanupManager runs every cleanup task on a fixed interval
type CleanupManager struct {
	tasks    []CleanupTask
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewCleanupManager(tasks []CleanupTask, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		tasks:    tasks,
		logger:   logger,
		interval: interval,
		timeout:  30 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start blocks, running the tasks immediately and then on every tick until
// Stop is called or ctx is done
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce runs every task once. A failing task does not stop the others.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	for _, task := range cm.tasks {
		cm.run(ctx, task)
	}
}

func (cm *CleanupManager) run(ctx context.Context, task CleanupTask) {
	taskCtx, cancel := context.WithTimeout(ctx, cm.timeout)
	defer cancel()

	rowsDeleted, err := task.Run(taskCtx)
	if err != nil {
		cm.logger.Error("cleanup task failed",
			slog.String("task", task.Name),
			slog.Any("error", err),
		)
		return
	}

	if rowsDeleted > 0 {
		cm.logger.Info("cleanup task completed",
			slog.String("task", task.Name),
			slog.Int64("rows_deleted", rowsDeleted),
		)
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
