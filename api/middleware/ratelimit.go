package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/anoixa/image-resizer/api/common"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

func (cl *clientLimiter) touch(now time.Time) {
	cl.mu.Lock()
	cl.lastSeen = now
	cl.mu.Unlock()
}

func (cl *clientLimiter) idleSince(now time.Time) time.Duration {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return now.Sub(cl.lastSeen)
}

type IPRateLimiter struct {
	rps        float64       // 每秒请求数
	burst      int           // 令牌桶的容量
	expireTime time.Duration // 过期时间
	limiterMap *sync.Map
	stopOnce   sync.Once
	stopChan   chan struct{}
}

// NewIPRateLimiter Create new IP-based rate limits
func NewIPRateLimiter(rps float64, burst int, expireTime time.Duration) *IPRateLimiter {
	if expireTime <= 0 {
		expireTime = 10 * time.Minute
	}
	limiter := &IPRateLimiter{
		rps:        rps,
		burst:      burst,
		expireTime: expireTime,
		limiterMap: &sync.Map{},
		stopChan:   make(chan struct{}),
	}

	// 启动后台清理 goroutine
	go limiter.cleanupStaleClients()

	return limiter
}

// Middleware Return a Gin middleware handler
// rps <= 0 时不限流
func (rl *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rps <= 0 {
			c.Next()
			return
		}

		if !rl.Allow(c.ClientIP()) {
			common.RespondErrorAbort(c, http.StatusTooManyRequests, "Too many requests")
			return
		}

		c.Next()
	}
}

// Allow 判断 key 对应的客户端是否还有令牌
func (rl *IPRateLimiter) Allow(key string) bool {
	now := time.Now()
	val, ok := rl.limiterMap.Load(key)
	if !ok {
		val, _ = rl.limiterMap.LoadOrStore(key, &clientLimiter{
			limiter:  rate.NewLimiter(rate.Limit(rl.rps), rl.burst),
			lastSeen: now,
		})
	}

	client := val.(*clientLimiter)
	client.touch(now)
	return client.limiter.Allow()
}

func (rl *IPRateLimiter) StopCleanup() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

func (rl *IPRateLimiter) cleanupStaleClients() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep(time.Now())
		case <-rl.stopChan:
			return
		}
	}
}

// sweep 删除超过 expireTime 未访问的客户端
func (rl *IPRateLimiter) sweep(now time.Time) int {
	removed := 0
	rl.limiterMap.Range(func(key, value interface{}) bool {
		if value.(*clientLimiter).idleSince(now) > rl.expireTime {
			rl.limiterMap.Delete(key)
			removed++
		}
		return true
	})
	return removed
}
