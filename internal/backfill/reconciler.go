// Package backfill 为缺少派生图的原图补齐缺口
package backfill

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/anoixa/image-resizer/database"
	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/database/repo/images"
	"github.com/anoixa/image-resizer/internal/codec"
	"github.com/anoixa/image-resizer/internal/metrics"
	"github.com/anoixa/image-resizer/internal/resizer"
	"github.com/anoixa/image-resizer/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Report 单个尺寸的一次补齐结果
type Report struct {
	Size      string        `json:"size"`
	Pages     int           `json:"pages"`
	Generated int           `json:"generated"`
	Sentinels int           `json:"sentinels"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Reconciler 按尺寸分页扫描缺失的派生图并生成
type Reconciler struct {
	originals *images.OriginalRepository
	derived   *images.DerivedRepository
	resizer   *resizer.Resizer
	targets   []models.TargetSize
	pageSize  int

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	last     []Report
}

// NewReconciler 创建补齐器
func NewReconciler(db database.Provider, r *resizer.Resizer, targets []models.TargetSize, pageSize int) *Reconciler {
	if pageSize <= 0 {
		pageSize = 100
	}
	if len(targets) == 0 {
		targets = models.AllTargetSizes()
	}
	return &Reconciler{
		originals: images.NewOriginalRepository(db),
		derived:   images.NewDerivedRepository(db),
		resizer:   r,
		targets:   targets,
		pageSize:  pageSize,
	}
}

// Run 对每个目标尺寸独立执行一次完整扫描
// 某个尺寸出错不影响其他尺寸，错误合并后返回
func (r *Reconciler) Run(ctx context.Context) ([]Report, error) {
	reports := make([]Report, len(r.targets))
	errs := make([]error, len(r.targets))

	var g errgroup.Group
	for i, size := range r.targets {
		g.Go(func() error {
			reports[i], errs[i] = r.RunSize(ctx, size)
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	r.last = reports
	r.mu.Unlock()

	return reports, errors.Join(errs...)
}

// RunSize 从最小主键开始逐页处理缺少 size 的原图，直到取到空页
// 占位记录视为已存在，因此每次运行后缺口单调减少
func (r *Reconciler) RunSize(ctx context.Context, size models.TargetSize) (Report, error) {
	start := time.Now()
	report := Report{Size: size.Name}

	var cursor uint
	for {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}

		page, err := r.originals.FindMissingDerived(ctx, size, cursor, r.pageSize)
		if err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
		if len(page) == 0 {
			break
		}
		report.Pages++

		for i := range page {
			r.processOne(ctx, &page[i], size, &report)
		}
		cursor = page[len(page)-1].ID
	}

	report.Duration = time.Since(start)
	utils.Logger().Info("backfill finished",
		zap.String("size", size.Name),
		zap.Int("pages", report.Pages),
		zap.Int("generated", report.Generated),
		zap.Int("sentinels", report.Sentinels),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (r *Reconciler) processOne(ctx context.Context, original *models.OriginalImage, size models.TargetSize, report *Report) {
	src := resizer.SourceOf(original)

	var d models.DerivedImage
	if original.IsSentinel() {
		d = resizer.Sentinel(src, size)
	} else {
		out, err := r.resizer.Resize(ctx, src, []models.TargetSize{size})
		switch {
		case err == nil:
			d = out[0]
		case errors.Is(err, codec.ErrDecode):
			d = resizer.Sentinel(src, size)
		default:
			report.Failed++
			metrics.BackfillRows.WithLabelValues(size.Name, metrics.ResultError).Inc()
			utils.Logger().Warn("backfill resize failed", zap.Uint("original_id", original.ID), zap.Error(err))
			return
		}
	}

	created, err := r.derived.Save(ctx, &d)
	if err != nil {
		report.Failed++
		metrics.BackfillRows.WithLabelValues(size.Name, metrics.ResultError).Inc()
		utils.Logger().Warn("backfill persist failed",
			zap.Uint("original_id", original.ID),
			zap.String("size", size.Name),
			zap.Error(err))
		return
	}
	switch {
	case !created:
		// 并发写入者已补上
		report.Skipped++
		metrics.BackfillRows.WithLabelValues(size.Name, metrics.ResultSkipped).Inc()
	case d.IsSentinel():
		report.Sentinels++
		metrics.BackfillRows.WithLabelValues(size.Name, metrics.ResultSentinel).Inc()
	default:
		report.Generated++
		metrics.BackfillRows.WithLabelValues(size.Name, metrics.ResultOK).Inc()
	}
}

// LastReports 返回最近一次运行的结果
func (r *Reconciler) LastReports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.last...)
}

// Start 立即在后台运行一次，interval > 0 时之后定期运行
func (r *Reconciler) Start(interval time.Duration) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopChan = make(chan struct{})
	stop := r.stopChan
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	utils.SafeGo(func() {
		<-stop
		cancel()
	})

	utils.SafeGo(func() {
		r.runLogged(ctx)
		if interval <= 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.runLogged(ctx)
			case <-stop:
				return
			}
		}
	})
}

// Stop 停止后台运行，进行中的扫描在下一页前退出
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	close(r.stopChan)
}

func (r *Reconciler) runLogged(ctx context.Context) {
	if _, err := r.Run(ctx); err != nil && !utils.IsContextCanceled(err) {
		utils.Logger().Error("backfill run failed", zap.Error(err))
	}
}
