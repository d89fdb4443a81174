package images

import (
	"net/http"

	"github.com/anoixa/image-resizer/api/common"
	"github.com/gin-gonic/gin"
)

// GetOriginal 读取原图
// GET /images/original/:imageKey
func (h *Handler) GetOriginal(c *gin.Context) {
	original, err := h.library.GetOriginal(c.Request.Context(), c.Param("imageKey"))
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	if original == nil {
		common.RespondError(c, http.StatusNotFound, "Image not found")
		return
	}
	common.RespondSuccess(c, original)
}
