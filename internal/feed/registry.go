// Package feed 维护按会话划分的派生图完成通知
package feed

import (
	"sync"
	"time"

	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/internal/metrics"
	"github.com/anoixa/image-resizer/utils"
)

// Event 一条完成通知
type Event struct {
	Image    models.ImageDTO `json:"image"`
	Size     string          `json:"size"`
	Sentinel bool            `json:"sentinel"`
	TicketID string          `json:"ticketId,omitempty"`
}

type sessionFeed struct {
	ch       chan Event
	lastUsed time.Time
}

// Registry 每个会话一个有界缓冲通道，首次使用时创建
// 缓冲满时丢弃最旧的事件，发布方永不阻塞
type Registry struct {
	mu      sync.Mutex
	feeds   map[string]*sessionFeed
	buffer  int
	idleTTL time.Duration
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRegistry 创建注册表
func NewRegistry(buffer int, idleTTL time.Duration) *Registry {
	if buffer <= 0 {
		buffer = 64
	}
	return &Registry{
		feeds:   make(map[string]*sessionFeed),
		buffer:  buffer,
		idleTTL: idleTTL,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

func (r *Registry) getLocked(sessionKey string) *sessionFeed {
	f, ok := r.feeds[sessionKey]
	if !ok {
		f = &sessionFeed{ch: make(chan Event, r.buffer)}
		r.feeds[sessionKey] = f
	}
	f.lastUsed = r.now()
	return f
}

// Publish 向会话推送一条派生图事件
func (r *Registry) Publish(sessionKey string, ev Event) {
	if sessionKey == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	f := r.getLocked(sessionKey)
	select {
	case f.ch <- ev:
		return
	default:
	}

	// 缓冲已满，丢弃最旧的一条
	select {
	case <-f.ch:
		metrics.FeedDropped.Inc()
	default:
	}
	select {
	case f.ch <- ev:
	default:
		metrics.FeedDropped.Inc()
	}
}

// PublishDerived 推送一张派生图
func (r *Registry) PublishDerived(img *models.DerivedImage, ticketID string) {
	r.Publish(img.SessionKey, Event{
		Image:    img.ToDTO(),
		Size:     img.Size,
		Sentinel: img.IsSentinel(),
		TicketID: ticketID,
	})
}

// Subscribe 返回会话的事件通道，会话关闭时通道被关闭
// 同一会话的多个订阅者共享同一个通道
func (r *Registry) Subscribe(sessionKey string) <-chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(sessionKey).ch
}

// Touch 刷新会话的最近使用时间
func (r *Registry) Touch(sessionKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.feeds[sessionKey]; ok {
		f.lastUsed = r.now()
	}
}

// Close 关闭并移除会话
func (r *Registry) Close(sessionKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.feeds[sessionKey]; ok {
		close(f.ch)
		delete(r.feeds, sessionKey)
	}
}

// Len 当前会话数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.feeds)
}

// Sweep 关闭空闲超过 idleTTL 的会话，返回关闭数量
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	deadline := r.now().Add(-r.idleTTL)
	n := 0
	for key, f := range r.feeds {
		if f.lastUsed.Before(deadline) {
			close(f.ch)
			delete(r.feeds, key)
			n++
		}
	}
	return n
}

// StartJanitor 后台定期清理空闲会话
func (r *Registry) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	utils.SafeGo(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					utils.LogIfDevf("[Feed] swept %d idle sessions", n)
				}
			case <-r.stop:
				return
			}
		}
	})
}

// Shutdown 停止清理并关闭全部会话
func (r *Registry) Shutdown() {
	r.stopOnce.Do(func() { close(r.stop) })

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, f := range r.feeds {
		close(f.ch)
		delete(r.feeds, key)
	}
}
