package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/internal/worker"
	"github.com/anoixa/image-resizer/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrQueueFull 后台队列已满
var ErrQueueFull = errors.New("ingest queue is full")

// TicketStatus 批次状态
type TicketStatus string

const (
	TicketPending   TicketStatus = "pending"
	TicketRunning   TicketStatus = "running"
	TicketCompleted TicketStatus = "completed"
	TicketFailed    TicketStatus = "failed"
)

// Ticket 一次后台上传批次的进度
type Ticket struct {
	ID         string       `json:"id"`
	SessionKey string       `json:"sessionKey"`
	Status     TicketStatus `json:"status"`
	Total      int          `json:"total"`
	Completed  int          `json:"completed"`
	Sentinels  int          `json:"sentinels"`
	Failed     int          `json:"failed"`
	Errors     []string     `json:"errors,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// Done 批次是否已结束
func (t *Ticket) Done() bool {
	return t.Status == TicketCompleted || t.Status == TicketFailed
}

// Submitter 将上传批次交给协程池异步处理，调用方立即拿到 Ticket
type Submitter struct {
	pipeline *Pipeline
	pool     *worker.Pool
	ttl      time.Duration
	now      func() time.Time

	mu          sync.RWMutex
	tickets     map[string]*Ticket
	onCommitted func(imageKey string, parentDirectoryID *uint)

	stopOnce sync.Once
	stop     chan struct{}
}

// NewSubmitter 创建提交器，ttl 为结束批次的保留时长
func NewSubmitter(pipeline *Pipeline, pool *worker.Pool, ttl time.Duration) *Submitter {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Submitter{
		pipeline: pipeline,
		pool:     pool,
		ttl:      ttl,
		now:      time.Now,
		tickets:  make(map[string]*Ticket),
		stop:     make(chan struct{}),
	}
}

// Submit 提交一批图片，不等待处理完成
func (s *Submitter) Submit(sessionKey string, parentDirectoryID *uint, dtos []models.ImageDTO) (Ticket, error) {
	now := s.now()
	ticket := &Ticket{
		ID:         uuid.NewString(),
		SessionKey: sessionKey,
		Status:     TicketPending,
		Total:      len(dtos),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	s.tickets[ticket.ID] = ticket
	s.mu.Unlock()

	ok := s.pool.Submit(func() {
		s.run(ticket.ID, sessionKey, parentDirectoryID, dtos)
	})
	if !ok {
		s.update(ticket.ID, func(t *Ticket) {
			t.Status = TicketFailed
			t.Failed = t.Total
			t.Errors = append(t.Errors, ErrQueueFull.Error())
		})
		snapshot, _ := s.Get(ticket.ID)
		return snapshot, ErrQueueFull
	}

	snapshot, _ := s.Get(ticket.ID)
	return snapshot, nil
}

// OnCommitted 注册回调，批次中每张成功写入的图片在批次结束前回调一次
func (s *Submitter) OnCommitted(fn func(imageKey string, parentDirectoryID *uint)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommitted = fn
}

func (s *Submitter) run(ticketID, sessionKey string, parentDirectoryID *uint, dtos []models.ImageDTO) {
	s.update(ticketID, func(t *Ticket) { t.Status = TicketRunning })

	outcomes := s.pipeline.IngestBatch(context.Background(), dtos, sessionKey, parentDirectoryID, ticketID)

	// 回调先于状态更新，批次 Done 时调用方看到的已是提交后的状态
	s.mu.RLock()
	onCommitted := s.onCommitted
	s.mu.RUnlock()
	if onCommitted != nil {
		for _, o := range outcomes {
			if o.Error == nil {
				onCommitted(o.ImageKey, parentDirectoryID)
			}
		}
	}

	s.update(ticketID, func(t *Ticket) {
		for _, o := range outcomes {
			switch {
			case o.Error != nil:
				t.Failed++
				t.Errors = append(t.Errors, o.ImageKey+": "+o.Error.Error())
				utils.Logger().Error("background ingest failed",
					zap.String("ticket", ticketID),
					zap.String("session_key", sessionKey),
					zap.String("image_key", utils.SanitizeLogKey(o.ImageKey)),
					zap.Error(o.Error))
			case o.Completed:
				t.Completed++
			default:
				t.Sentinels++
			}
		}
		if t.Failed > 0 {
			t.Status = TicketFailed
		} else {
			t.Status = TicketCompleted
		}
	})
}

func (s *Submitter) update(id string, fn func(t *Ticket)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tickets[id]; ok {
		fn(t)
		t.UpdatedAt = s.now()
	}
}

// Get 返回批次的快照
func (s *Submitter) Get(id string) (Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return Ticket{}, false
	}
	snapshot := *t
	snapshot.Errors = append([]string(nil), t.Errors...)
	return snapshot, true
}

// Prune 清理结束时间超过 ttl 的批次
func (s *Submitter) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := s.now().Add(-s.ttl)
	n := 0
	for id, t := range s.tickets {
		if t.Done() && t.UpdatedAt.Before(deadline) {
			delete(s.tickets, id)
			n++
		}
	}
	return n
}

// StartJanitor 后台定期清理已结束的批次
func (s *Submitter) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	utils.SafeGo(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := s.Prune(); n > 0 {
					utils.LogIfDevf("[Ingest] pruned %d finished tickets", n)
				}
			case <-s.stop:
				return
			}
		}
	})
}

// StopJanitor 停止后台清理
func (s *Submitter) StopJanitor() {
	s.stopOnce.Do(func() { close(s.stop) })
}
