package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type outcomeLog struct {
	mutex    sync.Mutex
	outcomes map[string][]string
}

func newOutcomeLog() *outcomeLog {
	return &outcomeLog{outcomes: map[string][]string{}}
}

func (log *outcomeLog) record(jobName string, outcome string) {
	log.mutex.Lock()
	defer log.mutex.Unlock()
	log.outcomes[jobName] = append(log.outcomes[jobName], outcome)
}

func (log *outcomeLog) get(jobName string) []string {
	log.mutex.Lock()
	defer log.mutex.Unlock()
	return append([]string(nil), log.outcomes[jobName]...)
}

func TestNewDispatcherAppliesDefaults(testingT *testing.T) {
	dispatcher := NewDispatcher(DispatcherConfig{}, nil, nil)
	require.Equal(testingT, defaultDispatcherWorkers, dispatcher.config.Workers)
	require.Equal(testingT, defaultDispatcherQueueSize, cap(dispatcher.jobs))
	require.Equal(testingT, defaultJobTimeout, dispatcher.config.JobTimeout)
}

func TestDispatcherRunsJobsAndRecordsOutcomes(testingT *testing.T) {
	outcomes := newOutcomeLog()
	dispatcher := NewDispatcher(DispatcherConfig{Workers: 2, QueueSize: 4}, nil, outcomes.record)
	dispatcher.Start(context.Background())
	testingT.Cleanup(dispatcher.Stop)

	var ran int64
	require.True(testingT, dispatcher.Submit(Job{Name: "ok", Run: func(context.Context) error {
		atomic.AddInt64(&ran, 1)
		return nil
	}}))
	require.True(testingT, dispatcher.Submit(Job{Name: "fails", Run: func(context.Context) error {
		return errors.New("provider down")
	}}))
	require.True(testingT, dispatcher.Submit(Job{Name: "panics", Run: func(context.Context) error {
		panic("unexpected")
	}}))

	require.Eventually(testingT, func() bool {
		return len(outcomes.get("ok")) == 1 && len(outcomes.get("fails")) == 1 && len(outcomes.get("panics")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(testingT, int64(1), atomic.LoadInt64(&ran))
	require.Equal(testingT, []string{OutcomeSucceeded}, outcomes.get("ok"))
	require.Equal(testingT, []string{OutcomeFailed}, outcomes.get("fails"))
	require.Equal(testingT, []string{OutcomeFailed}, outcomes.get("panics"))
}

func TestDispatcherSubmitNeverBlocksWhenQueueIsFull(testingT *testing.T) {
	outcomes := newOutcomeLog()
	dispatcher := NewDispatcher(DispatcherConfig{Workers: 1, QueueSize: 1}, nil, outcomes.record)

	noop := func(context.Context) error { return nil }
	require.True(testingT, dispatcher.Submit(Job{Name: "first", Run: noop}))

	submitted := make(chan bool, 1)
	go func() {
		submitted <- dispatcher.Submit(Job{Name: "second", Run: noop})
	}()
	select {
	case accepted := <-submitted:
		require.False(testingT, accepted)
	case <-time.After(time.Second):
		testingT.Fatal("submit blocked on a full queue")
	}
	require.Equal(testingT, []string{OutcomeDropped}, outcomes.get("second"))
}

func TestDispatcherStopDrainsQueuedJobs(testingT *testing.T) {
	dispatcher := NewDispatcher(DispatcherConfig{Workers: 1, QueueSize: 8}, nil, nil)

	var ran int64
	for jobIndex := 0; jobIndex < 5; jobIndex++ {
		require.True(testingT, dispatcher.Submit(Job{Name: "queued", Run: func(context.Context) error {
			atomic.AddInt64(&ran, 1)
			return nil
		}}))
	}
	dispatcher.Start(context.Background())
	dispatcher.Stop()

	require.Equal(testingT, int64(5), atomic.LoadInt64(&ran))
}

func TestDispatcherJobsReceiveTimeout(testingT *testing.T) {
	dispatcher := NewDispatcher(DispatcherConfig{Workers: 1, QueueSize: 1, JobTimeout: 10 * time.Millisecond}, nil, nil)
	dispatcher.Start(context.Background())
	testingT.Cleanup(dispatcher.Stop)

	deadlineSeen := make(chan error, 1)
	require.True(testingT, dispatcher.Submit(Job{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		deadlineSeen <- ctx.Err()
		return ctx.Err()
	}}))

	select {
	case err := <-deadlineSeen:
		require.ErrorIs(testingT, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		testingT.Fatal("job context never expired")
	}
}

func TestDispatcherRejectsEmptyJobsAndNilReceiver(testingT *testing.T) {
	dispatcher := NewDispatcher(DispatcherConfig{}, nil, nil)
	require.False(testingT, dispatcher.Submit(Job{Name: "empty"}))

	var missing *Dispatcher
	require.False(testingT, missing.Submit(Job{Name: "x", Run: func(context.Context) error { return nil }}))
	missing.Start(context.Background())
	missing.Stop()
}
