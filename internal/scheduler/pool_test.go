package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsSubmittedJobs(t *testing.T) {
	pool := NewWorkerPool(2, 2, 4, "test-worker-")

	var executed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(func() {
			defer wg.Done()
			executed.Add(1)
		}))
	}

	wg.Wait()
	pool.Shutdown(true, time.Second)
	assert.Equal(t, int32(4), executed.Load())
}

func TestWorkerPoolRejectsWhenSaturated(t *testing.T) {
	pool := NewWorkerPool(1, 1, 1, "test-worker-")
	defer pool.Shutdown(false, time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	require.NoError(t, pool.Submit(func() {
		close(started)
		<-release
	}))
	<-started

	// queue takes one more
	require.NoError(t, pool.Submit(func() {}))

	// worker busy, queue full, no headroom to grow
	err := pool.Submit(func() {})
	assert.ErrorIs(t, err, ErrPoolSaturated)
}

func TestWorkerPoolGrowsUnderQueuePressure(t *testing.T) {
	pool := NewWorkerPool(1, 2, 1, "test-worker-")
	defer pool.Shutdown(false, time.Second)

	firstStarted := make(chan struct{})
	extraStarted := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	require.NoError(t, pool.Submit(func() {
		close(firstStarted)
		<-release
	}))
	<-firstStarted

	// fills the queue
	require.NoError(t, pool.Submit(func() { <-release }))

	// queue full: an extra worker spawns and runs the job directly
	require.NoError(t, pool.Submit(func() {
		close(extraStarted)
		<-release
	}))

	select {
	case <-extraStarted:
	case <-time.After(time.Second):
		t.Fatal("expected the pool to grow and run the job on an extra worker")
	}

	// both workers busy and the queue still full
	err := pool.Submit(func() {})
	assert.ErrorIs(t, err, ErrPoolSaturated)
}

func TestWorkerPoolRejectsAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(1, 1, 1, "test-worker-")
	pool.Shutdown(true, time.Second)

	err := pool.Submit(func() {})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestWorkerPoolGracefulShutdownDrainsQueue(t *testing.T) {
	pool := NewWorkerPool(1, 1, 4, "test-worker-")

	var executed atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	require.NoError(t, pool.Submit(func() {
		close(started)
		<-release
		executed.Add(1)
	}))
	<-started

	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit(func() { executed.Add(1) }))
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	pool.Shutdown(true, 5*time.Second)
	assert.Equal(t, int32(4), executed.Load())
}
