// Package ingest 负责原图入库以及同步生成派生图
package ingest

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/anoixa/image-resizer/database"
	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/database/repo/directories"
	"github.com/anoixa/image-resizer/database/repo/images"
	"github.com/anoixa/image-resizer/internal/codec"
	"github.com/anoixa/image-resizer/internal/metrics"
	"github.com/anoixa/image-resizer/internal/resizer"
	"github.com/anoixa/image-resizer/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Publisher 接收已持久化的派生图
type Publisher interface {
	PublishDerived(img *models.DerivedImage, ticketID string)
}

// Outcome 单张图片的入库结果
type Outcome struct {
	ImageKey  string `json:"imageKey"`
	Completed bool   `json:"completed"`
	Error     error  `json:"-"`
}

// Pipeline 上传流水线
type Pipeline struct {
	db          database.Provider
	originals   *images.OriginalRepository
	derived     *images.DerivedRepository
	directories *directories.Repository
	resizer     *resizer.Resizer
	targets     []models.TargetSize
	publisher   Publisher
	batchLimit  int
}

// NewPipeline 创建上传流水线，publisher 可以为 nil
func NewPipeline(db database.Provider, r *resizer.Resizer, targets []models.TargetSize, publisher Publisher) *Pipeline {
	if len(targets) == 0 {
		targets = models.AllTargetSizes()
	}
	return &Pipeline{
		db:          db,
		originals:   images.NewOriginalRepository(db),
		derived:     images.NewDerivedRepository(db),
		directories: directories.NewRepository(db),
		resizer:     r,
		targets:     targets,
		publisher:   publisher,
		batchLimit:  runtime.GOMAXPROCS(0),
	}
}

// Targets 返回配置的目标尺寸
func (p *Pipeline) Targets() []models.TargetSize {
	return p.targets
}

// WithTx 返回绑定到事务 tx 的流水线
// 事务内产生的通知先缓存，调用返回的 flush 后才真正发布，回滚时丢弃即可
func (p *Pipeline) WithTx(tx *gorm.DB) (*Pipeline, func()) {
	buf := &bufferedPublisher{target: p.publisher}
	txdb := database.WithTx(p.db, tx)
	return &Pipeline{
		db:          txdb,
		originals:   p.originals.WithTx(tx),
		derived:     p.derived.WithTx(tx),
		directories: p.directories.WithTx(tx),
		resizer:     p.resizer,
		targets:     p.targets,
		publisher:   buf,
		batchLimit:  1,
	}, buf.flush
}

// Ingest 保存原图并为每个目标尺寸生成派生图
// 原图无法解码时保存占位原图及每个尺寸的占位派生图并返回 false；
// 存储失败时返回错误
func (p *Pipeline) Ingest(ctx context.Context, dto models.ImageDTO, sessionKey string, parentDirectoryID *uint) (bool, error) {
	return p.ingest(ctx, dto, sessionKey, parentDirectoryID, "")
}

// IngestBatch 并发入库多张图片，单张失败不影响其他图片
func (p *Pipeline) IngestBatch(ctx context.Context, dtos []models.ImageDTO, sessionKey string, parentDirectoryID *uint, ticketID string) []Outcome {
	outcomes := make([]Outcome, len(dtos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.batchLimit, 1))
	for i, dto := range dtos {
		g.Go(func() error {
			completed, err := p.ingest(gctx, dto, sessionKey, parentDirectoryID, ticketID)
			outcomes[i] = Outcome{ImageKey: dto.ImageKey, Completed: completed, Error: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (p *Pipeline) ingest(ctx context.Context, dto models.ImageDTO, sessionKey string, parentDirectoryID *uint, ticketID string) (bool, error) {
	original := &models.OriginalImage{
		Name:              dto.Name,
		ImageKey:          dto.ImageKey,
		SessionKey:        sessionKey,
		ParentDirectoryID: parentDirectoryID,
	}

	decoded, err := p.resizer.Decode(ctx, dto.Base64)
	if err != nil {
		if !errors.Is(err, codec.ErrDecode) {
			metrics.OriginalsIngested.WithLabelValues(metrics.ResultError).Inc()
			return false, err
		}
		utils.Logger().Warn("original could not be decoded, storing sentinel",
			zap.String("image_key", utils.SanitizeLogKey(dto.ImageKey)),
			zap.Error(err))

		original.Payload = models.SentinelPayload
		derived := resizer.Sentinels(resizer.SourceOf(original), p.targets)
		if err := p.persist(ctx, original, derived, ticketID); err != nil {
			return false, err
		}
		metrics.OriginalsIngested.WithLabelValues(metrics.ResultSentinel).Inc()
		return false, nil
	}

	original.Payload = dto.Base64
	original.Width = decoded.Width()
	original.Height = decoded.Height()

	derived, err := p.resizer.ResizeDecoded(ctx, resizer.SourceOf(original), decoded, p.targets)
	if err != nil {
		metrics.OriginalsIngested.WithLabelValues(metrics.ResultError).Inc()
		return false, err
	}
	if err := p.persist(ctx, original, derived, ticketID); err != nil {
		return false, err
	}
	metrics.OriginalsIngested.WithLabelValues(metrics.ResultOK).Inc()
	return true, nil
}

// persist 依次写入原图、派生图并递增父目录计数
func (p *Pipeline) persist(ctx context.Context, original *models.OriginalImage, derived []models.DerivedImage, ticketID string) error {
	err := p.db.TransactionWithContext(ctx, func(tx *gorm.DB) error {
		if err := p.originals.WithTx(tx).Save(ctx, original); err != nil {
			return err
		}
		derivedRepo := p.derived.WithTx(tx)
		for i := range derived {
			derived[i].OriginalImageID = original.ID
			if _, err := derivedRepo.Save(ctx, &derived[i]); err != nil {
				return err
			}
		}
		if original.ParentDirectoryID != nil {
			return p.directories.WithTx(tx).AdjustImageCount(ctx, *original.ParentDirectoryID, 1)
		}
		return nil
	})
	if err != nil {
		metrics.OriginalsIngested.WithLabelValues(metrics.ResultError).Inc()
		utils.Logger().Error("failed to persist image",
			zap.String("image_key", utils.SanitizeLogKey(original.ImageKey)),
			zap.String("session_key", original.SessionKey),
			zap.Error(err))
		return err
	}

	if p.publisher != nil {
		for i := range derived {
			p.publisher.PublishDerived(&derived[i], ticketID)
		}
	}
	return nil
}

type pendingEvent struct {
	img      models.DerivedImage
	ticketID string
}

// bufferedPublisher 在事务提交前暂存通知
type bufferedPublisher struct {
	mu      sync.Mutex
	target  Publisher
	pending []pendingEvent
}

func (b *bufferedPublisher) PublishDerived(img *models.DerivedImage, ticketID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, pendingEvent{img: *img, ticketID: ticketID})
}

func (b *bufferedPublisher) flush() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	if b.target == nil {
		return
	}
	for i := range pending {
		b.target.PublishDerived(&pending[i].img, pending[i].ticketID)
	}
}
