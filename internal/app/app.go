package app

import (
	"context"
	"fmt"

	"github.com/anoixa/image-resizer/cache"
	"github.com/anoixa/image-resizer/config"
	"github.com/anoixa/image-resizer/database"
	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/internal/backfill"
	"github.com/anoixa/image-resizer/internal/directory"
	"github.com/anoixa/image-resizer/internal/feed"
	"github.com/anoixa/image-resizer/internal/ingest"
	"github.com/anoixa/image-resizer/internal/library"
	"github.com/anoixa/image-resizer/internal/resizer"
	"github.com/anoixa/image-resizer/internal/worker"
	"github.com/anoixa/image-resizer/utils"
	"go.uber.org/zap"
)

// Container 依赖注入容器 - 管理所有服务的生命周期
type Container struct {
	config          *config.Config
	targets         []models.TargetSize
	databaseFactory *database.Factory
	cacheFactory    *cache.Factory

	resizer    *resizer.Resizer
	feed       *feed.Registry
	pool       *worker.Pool
	pipeline   *ingest.Pipeline
	submitter  *ingest.Submitter
	directory  *directory.Service
	library    *library.Service
	reconciler *backfill.Reconciler
}

// NewContainer 创建新的依赖注入容器
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config: cfg,
	}
}

// Init 初始化数据库与全部服务
func (c *Container) Init() error {
	if err := c.InitDatabase(); err != nil {
		return err
	}
	return c.InitServices()
}

// InitDatabase 打开数据库、迁移表结构并确保根目录存在
func (c *Container) InitDatabase() error {
	utils.LogIfDev("Initializing DI container...")

	factory, err := database.NewFactory(c.config)
	if err != nil {
		return fmt.Errorf("failed to initialize database factory: %w", err)
	}
	c.databaseFactory = factory

	if err := factory.AutoMigrate(); err != nil {
		return err
	}

	root, err := directory.NewService(factory.GetProvider(), nil).EnsureRoot(context.Background())
	if err != nil {
		return fmt.Errorf("failed to ensure root directory: %w", err)
	}
	utils.LogIfDev("Root directory ready", zap.Uint("id", root.ID))
	return nil
}

// InitServices 组装缓存、编解码、上传管线、目录与补齐服务
func (c *Container) InitServices() error {
	if c.databaseFactory == nil {
		return fmt.Errorf("database not initialized")
	}

	targets, err := c.config.GetTargetSizes()
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		targets = models.AllTargetSizes()
	}
	c.targets = targets

	cacheFactory, err := cache.NewFactory(c.config)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	c.cacheFactory = cacheFactory

	db := c.databaseFactory.GetProvider()
	c.resizer = resizer.New(c.config.GetCodecConcurrency())
	c.feed = feed.NewRegistry(c.config.FeedBufferSize, c.config.FeedIdleTTL)
	c.pool = worker.InitGlobalPool(c.config.GetWorkerCount(), c.config.WorkerQueueSize)
	c.pipeline = ingest.NewPipeline(db, c.resizer, targets, c.feed)
	c.submitter = ingest.NewSubmitter(c.pipeline, c.pool, c.config.FeedIdleTTL)
	c.directory = directory.NewService(db, c.pipeline)
	c.library = library.NewService(db, c.submitter, c.directory, cacheFactory)
	c.reconciler = backfill.NewReconciler(db, c.resizer, targets, c.config.BackfillPageSize)

	utils.Logger().Info("Services initialized",
		zap.Int("workers", c.config.GetWorkerCount()),
		zap.Int("codec_concurrency", c.config.GetCodecConcurrency()),
		zap.Strings("targets", targetNames(targets)))
	return nil
}

// StartBackground 启动推送会话清理、批次清理与（按配置）启动补齐
func (c *Container) StartBackground() {
	c.feed.StartJanitor(c.config.FeedIdleTTL / 2)
	c.submitter.StartJanitor(c.config.FeedIdleTTL)
	if c.config.BackfillOnStartup {
		c.reconciler.Start(c.config.BackfillInterval)
	}
}

// GetConfig 获取配置
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetTargets 获取生效的目标尺寸
func (c *Container) GetTargets() []models.TargetSize {
	return c.targets
}

// GetDatabaseFactory 获取数据库工厂
func (c *Container) GetDatabaseFactory() *database.Factory {
	return c.databaseFactory
}

// GetDatabaseProvider 获取数据库提供者
func (c *Container) GetDatabaseProvider() database.Provider {
	if c.databaseFactory == nil {
		return nil
	}
	return c.databaseFactory.GetProvider()
}

// GetCacheFactory 获取缓存工厂
func (c *Container) GetCacheFactory() *cache.Factory {
	return c.cacheFactory
}

// GetFeed 获取会话推送注册表
func (c *Container) GetFeed() *feed.Registry {
	return c.feed
}

// GetPool 获取后台协程池
func (c *Container) GetPool() *worker.Pool {
	return c.pool
}

// GetLibrary 获取图片库服务
func (c *Container) GetLibrary() *library.Service {
	return c.library
}

// GetReconciler 获取补齐器
func (c *Container) GetReconciler() *backfill.Reconciler {
	return c.reconciler
}

// Close 按依赖倒序关闭所有服务
func (c *Container) Close() error {
	utils.LogIfDev("Closing DI container...")

	if c.reconciler != nil {
		c.reconciler.Stop()
	}
	if c.pool != nil {
		// 先执行完队列中的上传批次，再关闭推送
		worker.StopGlobalPool()
	}
	if c.submitter != nil {
		c.submitter.StopJanitor()
	}
	if c.feed != nil {
		c.feed.Shutdown()
	}
	if c.cacheFactory != nil {
		if err := c.cacheFactory.Close(); err != nil {
			utils.LogIfDevf("Error closing cache: %v", err)
		}
	}
	if c.databaseFactory != nil {
		if err := c.databaseFactory.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}

	utils.LogIfDev("DI container closed")
	return nil
}

func targetNames(targets []models.TargetSize) []string {
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.Name)
	}
	return names
}
