// Package resizer 将一张原图按一组目标尺寸生成派生图
package resizer

import (
	"context"
	"time"

	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/internal/codec"
	"github.com/anoixa/image-resizer/internal/metrics"
	"github.com/anoixa/image-resizer/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Source 生成派生图所需的原图信息
type Source struct {
	OriginalID uint
	ImageKey   string
	Name       string
	SessionKey string
	Payload    string
}

// SourceOf 从已保存的原图构造 Source
func SourceOf(o *models.OriginalImage) Source {
	return Source{
		OriginalID: o.ID,
		ImageKey:   o.ImageKey,
		Name:       o.Name,
		SessionKey: o.SessionKey,
		Payload:    o.Payload,
	}
}

// Resizer 缩略图生成器，sem 限制同时进行的编解码数量
type Resizer struct {
	sem *semaphore.Weighted
}

// New 创建生成器，concurrency <= 0 时视为 1
func New(concurrency int) *Resizer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Resizer{sem: semaphore.NewWeighted(int64(concurrency))}
}

// Decode 在并发配额内解码载荷
func (r *Resizer) Decode(ctx context.Context, payload string) (*codec.Decoded, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)
	return codec.Decode(payload)
}

// Resize 解码一次后为每个目标尺寸生成一条派生图，结果顺序与 targets 一致
// 单个尺寸编码失败时以占位记录代替，不影响其他尺寸；解码失败时返回错误
func (r *Resizer) Resize(ctx context.Context, src Source, targets []models.TargetSize) ([]models.DerivedImage, error) {
	decoded, err := r.Decode(ctx, src.Payload)
	if err != nil {
		return nil, err
	}
	return r.ResizeDecoded(ctx, src, decoded, targets)
}

// ResizeDecoded 使用已解码的位图生成派生图
func (r *Resizer) ResizeDecoded(ctx context.Context, src Source, decoded *codec.Decoded, targets []models.TargetSize) ([]models.DerivedImage, error) {
	out := make([]models.DerivedImage, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, size := range targets {
		g.Go(func() error {
			if err := r.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer r.sem.Release(1)

			start := time.Now()
			payload, err := codec.Encode(decoded.Image, decoded.Format, size.Width, size.Height)
			metrics.ObserveResize(size.Name, start)
			if err != nil {
				utils.Logger().Warn("resize failed, storing sentinel",
					zap.String("image_key", utils.SanitizeLogKey(src.ImageKey)),
					zap.String("size", size.Name),
					zap.Error(err))
				metrics.DerivedProduced.WithLabelValues(size.Name, metrics.ResultSentinel).Inc()
				out[i] = Sentinel(src, size)
				return nil
			}

			metrics.DerivedProduced.WithLabelValues(size.Name, metrics.ResultOK).Inc()
			out[i] = models.DerivedImage{
				OriginalImageID: src.OriginalID,
				Size:            size.Name,
				Name:            src.Name,
				ImageKey:        src.ImageKey,
				SessionKey:      src.SessionKey,
				Payload:         payload,
				Width:           size.Width,
				Height:          size.Height,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Sentinel 构造代替 size 的占位派生图
func Sentinel(src Source, size models.TargetSize) models.DerivedImage {
	return models.DerivedImage{
		OriginalImageID: src.OriginalID,
		Size:            size.Name,
		Name:            src.Name,
		ImageKey:        src.ImageKey,
		SessionKey:      src.SessionKey,
		Payload:         models.SentinelPayload,
	}
}

// Sentinels 为每个目标尺寸构造占位派生图
func Sentinels(src Source, targets []models.TargetSize) []models.DerivedImage {
	out := make([]models.DerivedImage, 0, len(targets))
	for _, size := range targets {
		out = append(out, Sentinel(src, size))
	}
	return out
}
