package directories

import (
	"net/http"

	"github.com/anoixa/image-resizer/api/common"
	"github.com/anoixa/image-resizer/api/middleware"
	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/internal/library"
	"github.com/gin-gonic/gin"
)

// Handler 目录处理器
type Handler struct {
	library *library.Service
}

// NewHandler 目录处理器
func NewHandler(lib *library.Service) *Handler {
	return &Handler{library: lib}
}

// GetRoot GET /directories/root
func (h *Handler) GetRoot(c *gin.Context) {
	root, err := h.library.GetRootDirectory(c.Request.Context())
	respondDirectory(c, root, err)
}

// GetDirectory 读取目录，?tree=true 时返回整棵子树（不含图片载荷）
// GET /directories/:key
func (h *Handler) GetDirectory(c *gin.Context) {
	key := c.Param("key")
	if c.Query("tree") == "true" {
		tree, err := h.library.DirectoryTree(c.Request.Context(), key)
		respondDirectory(c, tree, err)
		return
	}
	dir, err := h.library.GetDirectory(c.Request.Context(), key)
	respondDirectory(c, dir, err)
}

// GetParent GET /directories/:key/parent
func (h *Handler) GetParent(c *gin.Context) {
	parent, err := h.library.GetDirectoryParent(c.Request.Context(), c.Param("key"))
	respondDirectory(c, parent, err)
}

// ListChildren GET /directories/:key/children
func (h *Handler) ListChildren(c *gin.Context) {
	children, err := h.library.ListChildDirectories(c.Request.Context(), c.Param("key"))
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	common.RespondSuccess(c, children)
}

// Create 在 parentKey 下创建整棵目录树
// POST /directories?parentKey=
func (h *Handler) Create(c *gin.Context) {
	dto, ok := bindDirectory(c)
	if !ok {
		return
	}
	dir, err := h.library.IngestDirectory(c.Request.Context(), dto, middleware.GetSessionKey(c), c.Query("parentKey"))
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	common.Respond(c, http.StatusCreated, "success", "", dir)
}

// Upsert 新建或整体替换目录
// PUT /directories?parentKey=
func (h *Handler) Upsert(c *gin.Context) {
	dto, ok := bindDirectory(c)
	if !ok {
		return
	}
	dir, err := h.library.CreateOrUpdateDirectory(c.Request.Context(), dto, middleware.GetSessionKey(c), c.Query("parentKey"))
	respondDirectory(c, dir, err)
}

// Delete 删除目录及其子树，目录不存在时返回 deleted=false
// DELETE /directories/:key
func (h *Handler) Delete(c *gin.Context) {
	deleted, err := h.library.DeleteDirectory(c.Request.Context(), c.Param("key"))
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	common.RespondSuccessMessage(c, "Delete request processed successfully.", gin.H{"deleted": deleted})
}

func bindDirectory(c *gin.Context) (models.DirectoryDTO, bool) {
	var dto models.DirectoryDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		common.RespondError(c, http.StatusBadRequest, "Invalid request body. A directory object is required.")
		return dto, false
	}
	return dto, true
}

func respondDirectory(c *gin.Context, dir *models.DirectoryDTO, err error) {
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	if dir == nil {
		common.RespondError(c, http.StatusNotFound, "Directory not found")
		return
	}
	common.RespondSuccess(c, dir)
}
