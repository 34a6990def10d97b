package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultDispatcherWorkers   = 2
	defaultDispatcherQueueSize = 64
	defaultJobTimeout          = 15 * time.Second

	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)

// Job is a best-effort side effect, such as a push notification or a follow-up email.
type Job struct {
	Name string
	Run  func(context.Context) error
}

// Submitter accepts best-effort jobs without blocking the caller.
type Submitter interface {
	Submit(job Job) bool
}

// OutcomeRecorder observes how each job ended.
type OutcomeRecorder func(jobName string, outcome string)

type DispatcherConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// Dispatcher runs jobs on a fixed pool of workers fed by a bounded queue.
// Job failures are logged and recorded, never returned to the submitter.
type Dispatcher struct {
	config       DispatcherConfig
	logger       *zap.Logger
	record       OutcomeRecorder
	jobs         chan Job
	controlMutex sync.Mutex
	cancel       context.CancelFunc
	workers      sync.WaitGroup
	running      bool
}

func NewDispatcher(config DispatcherConfig, logger *zap.Logger, record OutcomeRecorder) *Dispatcher {
	if config.Workers <= 0 {
		config.Workers = defaultDispatcherWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaultDispatcherQueueSize
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaultJobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if record == nil {
		record = func(string, string) {}
	}
	return &Dispatcher{
		config: config,
		logger: logger,
		record: record,
		jobs:   make(chan Job, config.QueueSize),
	}
}

func (dispatcher *Dispatcher) Start(ctx context.Context) {
	if dispatcher == nil {
		return
	}
	dispatcher.controlMutex.Lock()
	defer dispatcher.controlMutex.Unlock()
	if dispatcher.running {
		return
	}
	runtimeCtx, cancel := context.WithCancel(ctx)
	dispatcher.cancel = cancel
	dispatcher.running = true
	for workerIndex := 0; workerIndex < dispatcher.config.Workers; workerIndex++ {
		dispatcher.workers.Add(1)
		go dispatcher.work(runtimeCtx)
	}
}

// Submit enqueues job and reports whether it was accepted. A full queue drops the job.
func (dispatcher *Dispatcher) Submit(job Job) bool {
	if dispatcher == nil || job.Run == nil {
		return false
	}
	select {
	case dispatcher.jobs <- job:
		return true
	default:
		dispatcher.logger.Warn("background_job_dropped", zap.String("job", job.Name))
		dispatcher.record(job.Name, OutcomeDropped)
		return false
	}
}

// Stop cancels the workers after they finish the jobs already queued.
func (dispatcher *Dispatcher) Stop() {
	if dispatcher == nil {
		return
	}
	dispatcher.controlMutex.Lock()
	cancel := dispatcher.cancel
	dispatcher.cancel = nil
	dispatcher.running = false
	dispatcher.controlMutex.Unlock()
	if cancel != nil {
		cancel()
	}
	dispatcher.workers.Wait()
}

func (dispatcher *Dispatcher) work(ctx context.Context) {
	defer dispatcher.workers.Done()
	for {
		select {
		case <-ctx.Done():
			dispatcher.drain(ctx)
			return
		case job := <-dispatcher.jobs:
			dispatcher.run(ctx, job)
		}
	}
}

func (dispatcher *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case job := <-dispatcher.jobs:
			dispatcher.run(ctx, job)
		default:
			return
		}
	}
}

func (dispatcher *Dispatcher) run(ctx context.Context, job Job) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatcher.config.JobTimeout)
	defer cancel()

	runErr := runRecovered(jobCtx, job)
	if runErr != nil {
		dispatcher.logger.Warn("background_job_failed", zap.String("job", job.Name), zap.Error(runErr))
		dispatcher.record(job.Name, OutcomeFailed)
		return
	}
	dispatcher.record(job.Name, OutcomeSucceeded)
}

var errJobPanicked = errors.New("job_panicked")

func runRecovered(ctx context.Context, job Job) (runErr error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			runErr = errJobPanicked
		}
	}()
	return job.Run(ctx)
}
