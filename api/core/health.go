package core

import (
	"context"
	"net/http"
	"time"

	"github.com/anoixa/image-resizer/cache"
	"github.com/anoixa/image-resizer/config"
	"github.com/anoixa/image-resizer/database"
	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

const healthProbeKey = "health:probe"

// HealthHandler 健康检查处理器
type HealthHandler struct {
	db    database.Provider
	cache *cache.Factory
}

// NewHealthHandler 健康检查处理器
func NewHealthHandler(db database.Provider, cacheFactory *cache.Factory) *HealthHandler {
	return &HealthHandler{db: db, cache: cacheFactory}
}

// Handle GET /health
func (h *HealthHandler) Handle(c *gin.Context) {
	checks := gin.H{
		"database": checkDatabaseHealth(h.db),
		"cache":    checkCacheHealth(c.Request.Context(), h.cache),
	}

	httpStatus := http.StatusOK
	for _, result := range checks {
		if result != "ok" {
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":  http.StatusText(httpStatus),
		"uptime":  time.Since(startTime).Round(time.Second).String(),
		"version": config.Version,
		"checks":  checks,
	})
}

func checkDatabaseHealth(provider database.Provider) string {
	if provider == nil {
		return "not initialized"
	}
	if err := provider.Ping(); err != nil {
		return "unavailable: " + err.Error()
	}
	return "ok"
}

func checkCacheHealth(ctx context.Context, cacheFactory *cache.Factory) string {
	if cacheFactory == nil || cacheFactory.GetProvider() == nil {
		return "not initialized"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := cacheFactory.GetProvider().Exists(ctx, healthProbeKey); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}
