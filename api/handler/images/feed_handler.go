package images

import (
	"io"
	"time"

	"github.com/anoixa/image-resizer/api/middleware"
	"github.com/gin-gonic/gin"
)

// CompleteEvent 推送流结束时发送的事件名
const CompleteEvent = "COMPLETE_REQUEST"

// Feed 以 server-sent events 推送当前会话的派生图完成通知
// GET /images/feed
func (h *Handler) Feed(c *gin.Context) {
	sessionKey := middleware.GetSessionKey(c)
	events := h.feed.Subscribe(sessionKey)
	ctx := c.Request.Context()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				c.SSEvent(CompleteEvent, sessionKey)
				return false
			}
			h.feed.Touch(sessionKey)
			c.SSEvent("image", ev)
			return true
		case <-keepAlive.C:
			h.feed.Touch(sessionKey)
			c.SSEvent("ping", time.Now().Unix())
			return true
		case <-ctx.Done():
			c.SSEvent(CompleteEvent, sessionKey)
			return false
		}
	})
}
