package core

import (
	"time"

	"github.com/anoixa/image-resizer/api/common"
	"github.com/anoixa/image-resizer/api/handler/directories"
	"github.com/anoixa/image-resizer/api/handler/images"
	"github.com/anoixa/image-resizer/api/handler/maintenance"
	"github.com/anoixa/image-resizer/api/middleware"
	"github.com/anoixa/image-resizer/cache"
	"github.com/anoixa/image-resizer/config"
	"github.com/anoixa/image-resizer/database"
	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/internal/backfill"
	"github.com/anoixa/image-resizer/internal/feed"
	"github.com/anoixa/image-resizer/internal/library"
	"github.com/anoixa/image-resizer/internal/metrics"
	"github.com/anoixa/image-resizer/internal/worker"
	"github.com/gin-gonic/gin"
)

// RouterDependencies 路由注册依赖
type RouterDependencies struct {
	DB         database.Provider
	Library    *library.Service
	Feed       *feed.Registry
	Reconciler *backfill.Reconciler
	Pool       *worker.Pool
	Cache      *cache.Factory
	Targets    []models.TargetSize
	Config     *config.Config
}

// rateLimiters 路由使用的限流器
type rateLimiters struct {
	api    *middleware.IPRateLimiter
	upload *middleware.IPRateLimiter
}

func (rl *rateLimiters) stop() {
	rl.api.StopCleanup()
	rl.upload.StopCleanup()
}

// RegisterRoutes 注册所有路由，返回的函数用于停止限流器的后台清理
func RegisterRoutes(router *gin.Engine, deps *RouterDependencies) func() {
	cfg := deps.Config
	limiters := &rateLimiters{
		api:    middleware.NewIPRateLimiter(cfg.RateLimitApiRPS, cfg.RateLimitApiBurst, cfg.RateLimitExpireTime),
		upload: middleware.NewIPRateLimiter(cfg.RateLimitUploadRPS, cfg.RateLimitUploadBurst, cfg.RateLimitExpireTime),
	}

	// 基础路由
	registerBasicRoutes(router, deps)

	// 图片与目录
	registerAPIRoutes(router, deps, limiters)

	return limiters.stop
}

// registerBasicRoutes 注册基础路由
func registerBasicRoutes(router *gin.Engine, deps *RouterDependencies) {
	healthHandler := NewHealthHandler(deps.DB, deps.Cache)
	router.GET("/health", healthHandler.Handle)

	router.GET("/version", func(context *gin.Context) {
		common.RespondSuccess(context, config.GetVersionInfo())
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
}

// registerAPIRoutes 注册业务路由
func registerAPIRoutes(router *gin.Engine, deps *RouterDependencies, limiters *rateLimiters) {
	imageHandler := images.NewHandler(deps.Library, deps.Feed)
	directoryHandler := directories.NewHandler(deps.Library)
	maintenanceHandler := maintenance.NewHandler(deps.DB, deps.Reconciler, deps.Pool, deps.Feed, deps.Targets)

	noStore := func(context *gin.Context) {
		context.Header("Cache-Control", "no-store")
		context.Next()
	}

	// 上传单独限流，并发过高时短暂排队
	uploadLimiter := middleware.NewConcurrencyLimiter(int64(deps.Config.GetWorkerCount() * 4))

	imagesGroup := router.Group("/images")
	imagesGroup.Use(noStore, middleware.Session())
	{
		imagesGroup.POST("/upload", limiters.upload.Middleware(), uploadLimiter.MiddlewareWithBlock(5*time.Second), imageHandler.UploadImages) // POST /images/upload
		imagesGroup.GET("/feed", imageHandler.Feed)                                                                                            // GET /images/feed (SSE)

		read := imagesGroup.Group("")
		read.Use(limiters.api.Middleware())
		{
			read.GET("/uploads/:ticket", imageHandler.GetTicket)                       // GET /images/uploads/{ticket}
			read.GET("/resized", imageHandler.ListBySession)                           // GET /images/resized?size=&sessionKey=
			read.GET("/resized/all", imageHandler.ListAll)                             // GET /images/resized/all?size=
			read.GET("/resized/key/:imageKey", imageHandler.ListByImageKey)            // GET /images/resized/key/{imageKey}?size=
			read.GET("/resized/directory/:directoryKey", imageHandler.ListByDirectory) // GET /images/resized/directory/{directoryKey}?size=
			read.GET("/original/:imageKey", imageHandler.GetOriginal)                  // GET /images/original/{imageKey}
			read.DELETE("/:imageKey", imageHandler.DeleteImage)                        // DELETE /images/{imageKey}
		}
	}

	directoriesGroup := router.Group("/directories")
	directoriesGroup.Use(noStore, middleware.Session(), limiters.api.Middleware())
	{
		directoriesGroup.GET("/root", directoryHandler.GetRoot)               // GET /directories/root
		directoriesGroup.GET("/:key", directoryHandler.GetDirectory)          // GET /directories/{key}
		directoriesGroup.GET("/:key/parent", directoryHandler.GetParent)      // GET /directories/{key}/parent
		directoriesGroup.GET("/:key/children", directoryHandler.ListChildren) // GET /directories/{key}/children
		directoriesGroup.POST("", directoryHandler.Create)                    // POST /directories?parentKey=
		directoriesGroup.PUT("", directoryHandler.Upsert)                     // PUT /directories?parentKey=
		directoriesGroup.DELETE("/:key", directoryHandler.Delete)             // DELETE /directories/{key}
	}

	maintenanceGroup := router.Group("/maintenance")
	maintenanceGroup.Use(noStore)
	{
		maintenanceGroup.POST("/backfill", maintenanceHandler.Backfill) // POST /maintenance/backfill
		maintenanceGroup.GET("/stats", maintenanceHandler.Stats)        // GET /maintenance/stats
	}
}
