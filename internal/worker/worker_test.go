package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPanicRecovery 测试 panic 不会终止 worker
func TestPanicRecovery(t *testing.T) {
	pool := NewPool(2, 10)

	var completed atomic.Int32
	for i := 0; i < 2; i++ {
		pool.Submit(func() { panic("intentional panic for testing") })
	}
	for i := 0; i < 3; i++ {
		pool.Submit(func() { completed.Add(1) })
	}

	pool.Stop()

	assert.Equal(t, int32(3), completed.Load())
	stats := pool.GetStats()
	assert.Equal(t, uint64(2), stats.Failed)
	assert.Equal(t, uint64(5), stats.Executed)
}

// TestStopDrainsQueue 停止时执行完队列中剩余任务
func TestStopDrainsQueue(t *testing.T) {
	pool := NewPool(1, 10)

	var started sync.WaitGroup
	started.Add(1)
	var completed atomic.Int32

	pool.Submit(func() {
		started.Done()
		time.Sleep(100 * time.Millisecond)
		completed.Add(1)
	})
	started.Wait()
	for i := 0; i < 4; i++ {
		require.True(t, pool.Submit(func() { completed.Add(1) }))
	}

	begin := time.Now()
	pool.Stop()

	assert.GreaterOrEqual(t, time.Since(begin), 50*time.Millisecond)
	assert.Equal(t, int32(5), completed.Load())
}

// TestQueueFullDropPolicy 队列满时拒绝任务
func TestQueueFullDropPolicy(t *testing.T) {
	pool := NewPool(1, 2)

	blocker := make(chan struct{})
	running := make(chan struct{})
	pool.Submit(func() {
		close(running)
		<-blocker
	})
	<-running

	assert.True(t, pool.Submit(func() {}))
	assert.True(t, pool.Submit(func() {}))
	assert.False(t, pool.Submit(func() {}))
	assert.False(t, pool.SubmitBlocking(func() {}, 20*time.Millisecond))

	close(blocker)
	pool.Stop()

	stats := pool.GetStats()
	assert.Equal(t, uint64(3), stats.Submitted)
	assert.Equal(t, uint64(2), stats.Rejected)
}

// TestConcurrentSubmit 并发提交
func TestConcurrentSubmit(t *testing.T) {
	pool := NewPool(4, 2000)

	var completed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				pool.Submit(func() { completed.Add(1) })
			}
		}()
	}
	wg.Wait()
	pool.Stop()

	assert.Equal(t, int32(1000), completed.Load())
	assert.Equal(t, uint64(1000), pool.GetStats().Submitted)
}

// TestSubmitAfterStop 停止后提交失败，重复停止不 panic
func TestSubmitAfterStop(t *testing.T) {
	pool := NewPool(2, 10)
	pool.Stop()
	pool.Stop()

	assert.False(t, pool.Submit(func() {}))
	assert.False(t, pool.SubmitBlocking(func() {}, time.Millisecond))
}

// TestSubmitNilTask nil 任务被接受但不会执行
func TestSubmitNilTask(t *testing.T) {
	pool := NewPool(2, 10)
	assert.True(t, pool.Submit(nil))
	pool.Stop()

	stats := pool.GetStats()
	assert.Equal(t, uint64(1), stats.Submitted)
	assert.Equal(t, uint64(0), stats.Executed)
}

// TestDefaultPoolConfig 默认配置
func TestDefaultPoolConfig(t *testing.T) {
	pool := NewPool(0, 0)
	defer pool.Stop()

	stats := pool.GetStats()
	assert.Greater(t, stats.WorkerCount, 0)
	assert.Equal(t, 1000, stats.QueueCap)
}

// TestGlobalPool 全局池
func TestGlobalPool(t *testing.T) {
	pool := InitGlobalPool(2, 10)
	require.NotNil(t, pool)
	assert.Same(t, pool, InitGlobalPool(8, 8))
	assert.Same(t, pool, GetGlobalPool())

	var completed atomic.Int32
	assert.True(t, pool.Submit(func() { completed.Add(1) }))

	StopGlobalPool()
	StopGlobalPool()

	assert.Equal(t, int32(1), completed.Load())
	assert.Nil(t, GetGlobalPool())
}
