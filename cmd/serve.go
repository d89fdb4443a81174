package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anoixa/image-resizer/api/core"
	"github.com/anoixa/image-resizer/config"
	"github.com/anoixa/image-resizer/internal/app"
	"github.com/anoixa/image-resizer/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start API server",
	Run: func(cmd *cobra.Command, args []string) {
		RunServer()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func RunServer() {
	cfg := config.Get()
	log := utils.Logger()

	container := app.NewContainer(cfg)
	if err := container.Init(); err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}

	// 推送清理、批次清理与启动补齐都在后台运行，不阻塞监听
	container.StartBackground()

	deps := &core.RouterDependencies{
		DB:         container.GetDatabaseProvider(),
		Library:    container.GetLibrary(),
		Feed:       container.GetFeed(),
		Reconciler: container.GetReconciler(),
		Pool:       container.GetPool(),
		Cache:      container.GetCacheFactory(),
		Targets:    container.GetTargets(),
		Config:     cfg,
	}

	// 启动gin
	server, cleanup := core.StartServer(deps)
	go func() {
		log.Info("Server started", zap.String("addr", cfg.Addr()), zap.String("version", config.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// 处理退出signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 先关闭推送，SSE 连接收到结束事件后 Shutdown 才能返回
	container.GetFeed().Shutdown()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if cleanup != nil {
		cleanup()
	}

	if err := container.Close(); err != nil {
		log.Error("Error closing container", zap.Error(err))
	}

	log.Info("Server exited successfully")
}
