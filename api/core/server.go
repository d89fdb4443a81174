package core

import (
	"net/http"
	"slices"
	"time"

	"github.com/anoixa/image-resizer/api/middleware"
	"github.com/anoixa/image-resizer/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// 请求体上限，覆盖一批 base64 图片
const requestBodyLimit = 256 << 20

// setupRouter 启动gin
func setupRouter(deps *RouterDependencies) (*gin.Engine, func()) {
	cfg := deps.Config
	router := gin.New()

	// 仅在开发版本时启用 gin 日志
	if config.IsDevelopment() {
		router.Use(gin.Logger())
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg)))

	_ = router.SetTrustedProxies(nil)

	router.Use(middleware.MaxBytesReader(requestBodyLimit))

	// 基础监控指标
	router.Use(middleware.Metrics())

	cleanup := RegisterRoutes(router, deps)
	return router, cleanup
}

func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type", middleware.SessionHeader},
		ExposeHeaders: []string{middleware.SessionHeader},
		MaxAge:        12 * time.Hour,
	}
	origins := cfg.GetCorsOrigins()
	if len(origins) == 0 || slices.Contains(origins, "*") {
		corsCfg.AllowAllOrigins = true
		return corsCfg
	}
	corsCfg.AllowOrigins = origins
	corsCfg.AllowCredentials = true
	return corsCfg
}

// StartServer 创建 http.Server
func StartServer(deps *RouterDependencies) (*http.Server, func()) {
	cfg := deps.Config
	router, clean := setupRouter(deps)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	return srv, clean
}
