package images

import (
	"github.com/anoixa/image-resizer/api/common"
	"github.com/anoixa/image-resizer/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DeleteImage 删除 imageKey 下的原图与派生图，键不存在时 deleted_count 为 0
// DELETE /images/:imageKey
func (h *Handler) DeleteImage(c *gin.Context) {
	imageKey := c.Param("imageKey")
	deleted, err := h.library.DeleteImage(c.Request.Context(), imageKey)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	utils.LogIfDev("image deleted",
		zap.String("image_key", utils.SanitizeLogKey(imageKey)),
		zap.Int("count", deleted))
	common.RespondSuccessMessage(c, "Delete request processed successfully.", gin.H{"deleted_count": deleted})
}
