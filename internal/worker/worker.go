package worker

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anoixa/image-resizer/utils"
	"go.uber.org/zap"
)

// Task 异步任务
type Task func()

// Stats 协程池统计
type Stats struct {
	WorkerCount int    `json:"worker_count"`
	QueueLen    int    `json:"queue_len"`
	QueueCap    int    `json:"queue_cap"`
	Submitted   uint64 `json:"submitted"`
	Rejected    uint64 `json:"rejected"`
	Executed    uint64 `json:"executed"`
	Failed      uint64 `json:"failed"`
}

// Pool 固定大小的协程池，Stop 时会执行完队列中剩余的任务
type Pool struct {
	workers int
	queue   chan Task
	wg      sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	submitted atomic.Uint64
	rejected  atomic.Uint64
	executed  atomic.Uint64
	failed    atomic.Uint64
}

var (
	globalPool *Pool
	globalMu   sync.Mutex
)

// InitGlobalPool 初始化全局协程池，重复调用返回已有实例
func InitGlobalPool(workers, queueSize int) *Pool {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalPool == nil {
		globalPool = NewPool(workers, queueSize)
	}
	return globalPool
}

// GetGlobalPool 获取全局协程池
func GetGlobalPool() *Pool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalPool
}

// StopGlobalPool 停止全局协程池
func StopGlobalPool() {
	globalMu.Lock()
	p := globalPool
	globalPool = nil
	globalMu.Unlock()

	if p != nil {
		p.Stop()
	}
}

// NewPool 创建并启动协程池
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	if queueSize <= 0 {
		queueSize = 1000
	}

	p := &Pool{
		workers: workers,
		queue:   make(chan Task, queueSize),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	utils.LogIfDevf("Worker pool started with %d workers, queue size %d", workers, queueSize)
	return p
}

// Submit 提交任务（非阻塞，队列满或已停止时返回 false）
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return false
	}

	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return true
	default:
		p.rejected.Add(1)
		utils.Logger().Warn("Worker pool queue is full, task dropped")
		return false
	}
}

// SubmitBlocking 队列满时最多等待 timeout
func (p *Pool) SubmitBlocking(task Task, timeout time.Duration) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return true
	case <-timer.C:
		p.rejected.Add(1)
		return false
	}
}

// Stop 停止接收新任务，等待已提交的任务全部执行完毕
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	utils.LogIfDevf("Worker pool stopped")
}

// GetStats 返回统计快照
func (p *Pool) GetStats() Stats {
	return Stats{
		WorkerCount: p.workers,
		QueueLen:    len(p.queue),
		QueueCap:    cap(p.queue),
		Submitted:   p.submitted.Load(),
		Rejected:    p.rejected.Load(),
		Executed:    p.executed.Load(),
		Failed:      p.failed.Load(),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		if task == nil {
			continue
		}
		p.execute(task)
	}
}

// execute 执行任务并捕获 panic
func (p *Pool) execute(task Task) {
	defer func() {
		p.executed.Add(1)
		if r := recover(); r != nil {
			p.failed.Add(1)
			utils.Logger().Error("Panic recovered in worker task", zap.Any("panic", r))
		}
	}()
	task()
}
