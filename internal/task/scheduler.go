package task

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RunnerFunc is a periodic maintenance step.
type RunnerFunc func(context.Context) error

// Scheduler runs a named RunnerFunc on a fixed interval until stopped.
type Scheduler struct {
	name         string
	interval     time.Duration
	runner       RunnerFunc
	logger       *zap.Logger
	trigger      chan struct{}
	controlMutex sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}
}

func NewScheduler(name string, interval time.Duration, runner RunnerFunc, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		runner:   runner,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

func (scheduler *Scheduler) Start(ctx context.Context) {
	if scheduler == nil || scheduler.runner == nil {
		return
	}
	scheduler.controlMutex.Lock()
	defer scheduler.controlMutex.Unlock()
	if scheduler.cancel != nil {
		return
	}
	runtimeCtx, cancel := context.WithCancel(ctx)
	scheduler.cancel = cancel
	scheduler.done = make(chan struct{})

	go scheduler.loop(runtimeCtx, scheduler.done)
}

// Trigger requests an immediate run without waiting for the next tick.
func (scheduler *Scheduler) Trigger() {
	if scheduler == nil {
		return
	}
	select {
	case scheduler.trigger <- struct{}{}:
	default:
	}
}

func (scheduler *Scheduler) Stop() {
	if scheduler == nil {
		return
	}
	scheduler.controlMutex.Lock()
	cancel, done := scheduler.cancel, scheduler.done
	scheduler.cancel, scheduler.done = nil, nil
	scheduler.controlMutex.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (scheduler *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(scheduler.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-scheduler.trigger:
		case <-ticker.C:
		}
		scheduler.run(ctx)
	}
}

func (scheduler *Scheduler) run(ctx context.Context) {
	if scheduler.runner == nil {
		return
	}
	if err := scheduler.runner(ctx); err != nil {
		scheduler.logger.Warn("scheduled_task_failed", zap.String("task", scheduler.name), zap.Error(err))
	}
}
