package images

import (
	"net/http"
	"time"

	"github.com/anoixa/image-resizer/api/common"
	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/internal/feed"
	"github.com/anoixa/image-resizer/internal/library"
	"github.com/gin-gonic/gin"
)

// Handler 图片处理器
type Handler struct {
	library   *library.Service
	feed      *feed.Registry
	keepAlive time.Duration
}

// NewHandler 图片处理器
func NewHandler(lib *library.Service, registry *feed.Registry) *Handler {
	return &Handler{
		library:   lib,
		feed:      registry,
		keepAlive: 15 * time.Second,
	}
}

// sizeRequired 解析 size 查询参数，缺失或无效时直接响应 400
func sizeRequired(c *gin.Context) (models.TargetSize, bool) {
	size, ok := models.ParseTargetSize(c.Query("size"))
	if !ok {
		common.RespondError(c, http.StatusBadRequest, "Query parameter 'size' must be one of small, medium, large")
	}
	return size, ok
}
