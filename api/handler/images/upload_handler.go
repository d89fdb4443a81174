package images

import (
	"net/http"

	"github.com/anoixa/image-resizer/api/common"
	"github.com/anoixa/image-resizer/api/middleware"
	"github.com/anoixa/image-resizer/database/models"
	"github.com/gin-gonic/gin"
)

// UploadImages 接收一批图片并交给后台处理，立即返回批次信息
// POST /images/upload?directoryKey=
func (h *Handler) UploadImages(c *gin.Context) {
	var dtos []models.ImageDTO
	if err := c.ShouldBindJSON(&dtos); err != nil {
		common.RespondError(c, http.StatusBadRequest, "Invalid request body. A JSON array of images is required.")
		return
	}

	sessionKey := middleware.GetSessionKey(c)
	ticket, err := h.library.IngestImage(c.Request.Context(), sessionKey, c.Query("directoryKey"), dtos)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	common.RespondAccepted(c, "Upload accepted", gin.H{
		"session_key": sessionKey,
		"ticket":      ticket,
	})
}

// GetTicket 查询上传批次状态
// GET /images/uploads/:ticket
func (h *Handler) GetTicket(c *gin.Context) {
	ticket, ok := h.library.Ticket(c.Param("ticket"))
	if !ok {
		common.RespondError(c, http.StatusNotFound, "Upload ticket not found or expired")
		return
	}
	common.RespondSuccess(c, ticket)
}
