package maintenance

import (
	"github.com/anoixa/image-resizer/api/common"
	"github.com/anoixa/image-resizer/database"
	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/database/repo/images"
	"github.com/anoixa/image-resizer/internal/backfill"
	"github.com/anoixa/image-resizer/internal/feed"
	"github.com/anoixa/image-resizer/internal/worker"
	"github.com/gin-gonic/gin"
)

// Handler 运维接口
type Handler struct {
	reconciler *backfill.Reconciler
	pool       *worker.Pool
	feed       *feed.Registry
	originals  *images.OriginalRepository
	derived    *images.DerivedRepository
	targets    []models.TargetSize
}

// NewHandler 运维接口处理器
func NewHandler(db database.Provider, reconciler *backfill.Reconciler, pool *worker.Pool, registry *feed.Registry, targets []models.TargetSize) *Handler {
	return &Handler{
		reconciler: reconciler,
		pool:       pool,
		feed:       registry,
		originals:  images.NewOriginalRepository(db),
		derived:    images.NewDerivedRepository(db),
		targets:    targets,
	}
}

// Backfill 同步执行一次补齐并返回各尺寸的结果
// POST /maintenance/backfill
func (h *Handler) Backfill(c *gin.Context) {
	reports, err := h.reconciler.Run(c.Request.Context())
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}
	common.RespondSuccess(c, reports)
}

// Stats 汇总派生图数量、缺口、协程池与推送会话状态
// GET /maintenance/stats
func (h *Handler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	derived, err := h.derived.CountBySize(ctx)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	missing := make(map[string]int64, len(h.targets))
	for _, size := range h.targets {
		n, err := h.originals.CountMissingDerived(ctx, size)
		if err != nil {
			common.RespondServiceError(c, err)
			return
		}
		missing[size.Name] = n
	}

	stats := gin.H{
		"derived":       derived,
		"missing":       missing,
		"last_backfill": h.reconciler.LastReports(),
		"feed_sessions": h.feed.Len(),
	}
	if h.pool != nil {
		stats["worker_pool"] = h.pool.GetStats()
	}
	common.RespondSuccess(c, stats)
}
