package images

import (
	"github.com/anoixa/image-resizer/api/common"
	"github.com/anoixa/image-resizer/api/middleware"
	"github.com/anoixa/image-resizer/database/models"
	"github.com/gin-gonic/gin"
)

// ListBySession 按会话列出派生图，sessionKey 缺省为当前会话
// GET /images/resized?size=&sessionKey=
func (h *Handler) ListBySession(c *gin.Context) {
	size, ok := sizeRequired(c)
	if !ok {
		return
	}
	sessionKey := c.Query("sessionKey")
	if sessionKey == "" {
		sessionKey = middleware.GetSessionKey(c)
	}
	list, err := h.library.ListBySession(c.Request.Context(), sessionKey, size)
	respondList(c, list, err)
}

// ListAll 列出全部派生图
// GET /images/resized/all?size=
func (h *Handler) ListAll(c *gin.Context) {
	size, ok := sizeRequired(c)
	if !ok {
		return
	}
	list, err := h.library.ListAll(c.Request.Context(), size)
	respondList(c, list, err)
}

// ListByImageKey GET /images/resized/key/:imageKey?size=
func (h *Handler) ListByImageKey(c *gin.Context) {
	size, ok := sizeRequired(c)
	if !ok {
		return
	}
	list, err := h.library.ListByImageKey(c.Request.Context(), c.Param("imageKey"), size)
	respondList(c, list, err)
}

// ListByDirectory GET /images/resized/directory/:directoryKey?size=
func (h *Handler) ListByDirectory(c *gin.Context) {
	size, ok := sizeRequired(c)
	if !ok {
		return
	}
	list, err := h.library.ListByDirectory(c.Request.Context(), c.Param("directoryKey"), size)
	respondList(c, list, err)
}

func respondList(c *gin.Context, list []models.ImageDTO, err error) {
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	common.RespondSuccess(c, list)
}
