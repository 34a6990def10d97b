package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testSchedulerInterval = 10 * time.Millisecond
	testSchedulerTimeout  = 2 * time.Second
)

func TestNewSchedulerDefaultsInterval(testingT *testing.T) {
	scheduler := NewScheduler("prune", 0, func(context.Context) error { return nil }, nil)
	require.Equal(testingT, time.Minute, scheduler.interval)
	require.NotNil(testingT, scheduler.logger)
}

func TestSchedulerRunsOnTrigger(testingT *testing.T) {
	var runCount int64
	runner := func(context.Context) error {
		atomic.AddInt64(&runCount, 1)
		return nil
	}
	scheduler := NewScheduler("prune", time.Hour, runner, nil)
	runtimeContext, cancel := context.WithCancel(context.Background())
	testingT.Cleanup(cancel)

	scheduler.Start(runtimeContext)
	scheduler.Trigger()

	require.Eventually(testingT, func() bool {
		return atomic.LoadInt64(&runCount) > 0
	}, testSchedulerTimeout, testSchedulerInterval)

	scheduler.Stop()
	require.Nil(testingT, scheduler.cancel)
}

func TestSchedulerRunsOnInterval(testingT *testing.T) {
	var runCount int64
	scheduler := NewScheduler("prune", testSchedulerInterval, func(context.Context) error {
		atomic.AddInt64(&runCount, 1)
		return errors.New("boom")
	}, nil)

	scheduler.Start(context.Background())
	testingT.Cleanup(scheduler.Stop)

	require.Eventually(testingT, func() bool {
		return atomic.LoadInt64(&runCount) >= 2
	}, testSchedulerTimeout, testSchedulerInterval)
}

func TestSchedulerHandlesNilReceiver(testingT *testing.T) {
	var scheduler *Scheduler
	scheduler.Start(context.Background())
	scheduler.Trigger()
	scheduler.Stop()
}

func TestSchedulerSkipsStartWhenRunnerMissing(testingT *testing.T) {
	scheduler := NewScheduler("prune", testSchedulerInterval, nil, nil)
	scheduler.Start(context.Background())
	require.Nil(testingT, scheduler.cancel)
}

func TestSchedulerStartIsIdempotent(testingT *testing.T) {
	scheduler := NewScheduler("prune", testSchedulerInterval, func(context.Context) error { return nil }, nil)
	scheduler.Start(context.Background())
	doneAfterStart := scheduler.done
	require.NotNil(testingT, scheduler.cancel)
	scheduler.Start(context.Background())
	require.Equal(testingT, doneAfterStart, scheduler.done)
	scheduler.Stop()
}
