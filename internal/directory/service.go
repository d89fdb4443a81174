// Package directory 管理目录树及其冗余计数
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/anoixa/image-resizer/database"
	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/database/repo/directories"
	"github.com/anoixa/image-resizer/database/repo/images"
	"github.com/anoixa/image-resizer/internal/ingest"
	"github.com/anoixa/image-resizer/internal/metrics"
	"github.com/anoixa/image-resizer/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("directory not found")
	ErrProtectedDirectory = errors.New("root directory cannot be deleted")
	ErrInvalidDirectory   = errors.New("invalid directory")
)

// Service 目录树服务
type Service struct {
	db        database.Provider
	repo      *directories.Repository
	originals *images.OriginalRepository
	pipeline  *ingest.Pipeline
	flushes   *[]func()
}

// NewService 创建目录树服务
func NewService(db database.Provider, pipeline *ingest.Pipeline) *Service {
	return &Service{
		db:        db,
		repo:      directories.NewRepository(db),
		originals: images.NewOriginalRepository(db),
		pipeline:  pipeline,
	}
}

// withTx 返回绑定到事务的服务副本，flush 在事务提交后发布缓存的通知
func (s *Service) withTx(tx *gorm.DB) (*Service, func()) {
	txPipeline, flush := s.pipeline.WithTx(tx)
	return &Service{
		db:        database.WithTx(s.db, tx),
		repo:      s.repo.WithTx(tx),
		originals: s.originals.WithTx(tx),
		pipeline:  txPipeline,
	}, flush
}

// inTx 在事务中执行 fn，提交成功后发布通知
func (s *Service) inTx(ctx context.Context, fn func(txs *Service) error) error {
	var flush func()
	err := s.db.TransactionWithContext(ctx, func(tx *gorm.DB) error {
		var txs *Service
		txs, flush = s.withTx(tx)
		return fn(txs)
	})
	if err == nil && flush != nil {
		flush()
	}
	return err
}

// EnsureRoot 确保根目录存在
func (s *Service) EnsureRoot(ctx context.Context) (*models.Directory, error) {
	return s.repo.EnsureRoot(ctx)
}

// GetRoot 返回根目录
func (s *Service) GetRoot(ctx context.Context) (*models.Directory, error) {
	return s.repo.GetByKey(ctx, models.RootDirectoryKey)
}

// Get 按键查询目录，不存在时返回 nil, nil
func (s *Service) Get(ctx context.Context, key string) (*models.Directory, error) {
	return s.repo.GetByKey(ctx, key)
}

// GetByID 按主键查询目录，不存在时返回 nil, nil
func (s *Service) GetByID(ctx context.Context, id uint) (*models.Directory, error) {
	return s.repo.GetByID(ctx, id)
}

// GetParent 返回目录的父目录，根目录或不存在时返回 nil, nil
func (s *Service) GetParent(ctx context.Context, key string) (*models.Directory, error) {
	return s.repo.GetParentByKey(ctx, key)
}

// ListChildren 返回直接子目录，目录不存在时返回 ErrNotFound
func (s *Service) ListChildren(ctx context.Context, key string) ([]models.Directory, error) {
	dir, err := s.repo.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if dir == nil {
		return nil, ErrNotFound
	}
	return s.repo.ListChildren(ctx, dir.ID)
}

// IngestDirectory 在 parentKey 指定的目录下创建整棵子树，parentKey 为空时挂在根目录下
func (s *Service) IngestDirectory(ctx context.Context, dto models.DirectoryDTO, sessionKey, parentKey string) (*models.Directory, error) {
	if err := validate(dto); err != nil {
		return nil, err
	}
	var created *models.Directory
	err := s.inTx(ctx, func(txs *Service) error {
		parent, err := txs.resolveParent(ctx, parentKey)
		if err != nil {
			return err
		}
		created, err = txs.createSubtree(ctx, dto, sessionKey, &parent.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.DirectoryMutations.WithLabelValues("ingest").Inc()
	return s.repo.GetByID(ctx, created.ID)
}

// CreateSubtree 在 parentID 下创建目录节点及其全部子目录和图片
// parentID 为 nil 时创建无父节点的顶层目录
func (s *Service) CreateSubtree(ctx context.Context, dto models.DirectoryDTO, sessionKey string, parentID *uint) (*models.Directory, error) {
	if err := validate(dto); err != nil {
		return nil, err
	}
	var created *models.Directory
	err := s.inTx(ctx, func(txs *Service) error {
		var err error
		created, err = txs.createSubtree(ctx, dto, sessionKey, parentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, created.ID)
}

func (s *Service) createSubtree(ctx context.Context, dto models.DirectoryDTO, sessionKey string, parentID *uint) (*models.Directory, error) {
	dir := &models.Directory{
		Name:              dto.Name,
		DirectoryKey:      dto.DirectoryKey,
		SessionKey:        sessionKey,
		ParentDirectoryID: parentID,
	}
	if err := s.repo.Create(ctx, dir); err != nil {
		return nil, err
	}
	if parentID != nil {
		if err := s.repo.AdjustSubDirectoriesCount(ctx, *parentID, 1); err != nil {
			return nil, err
		}
	}
	if err := s.populate(ctx, dir, dto, sessionKey); err != nil {
		return nil, err
	}
	return dir, nil
}

// populate 在已存在的 dir 下递归创建子目录并入库图片
func (s *Service) populate(ctx context.Context, dir *models.Directory, dto models.DirectoryDTO, sessionKey string) error {
	for _, child := range dto.SubDirectories {
		if _, err := s.createSubtree(ctx, child, sessionKey, &dir.ID); err != nil {
			return err
		}
	}
	for _, img := range dto.Images {
		// 无法解码的图片以占位形式入库，只有存储错误才中断
		if _, err := s.pipeline.Ingest(ctx, img, sessionKey, &dir.ID); err != nil {
			return err
		}
	}
	return nil
}

// Upsert 以 dto 整体替换 key 对应目录的内容
// 目录存在时保留其位置，更新名称并重建子目录与图片；不存在时挂到 parentKey（默认根目录）下新建
// 传入的计数字段被忽略，计数与重建后的内容一致
func (s *Service) Upsert(ctx context.Context, dto models.DirectoryDTO, sessionKey, parentKey string) (*models.Directory, error) {
	if err := validate(dto); err != nil {
		return nil, err
	}
	var id uint
	err := s.inTx(ctx, func(txs *Service) error {
		existing, err := txs.repo.GetByKey(ctx, dto.DirectoryKey)
		if err != nil {
			return err
		}

		if existing == nil {
			parent, err := txs.resolveParent(ctx, parentKey)
			if err != nil {
				return err
			}
			created, err := txs.createSubtree(ctx, dto, sessionKey, &parent.ID)
			if err != nil {
				return err
			}
			id = created.ID
			return nil
		}

		if err := txs.repo.UpdateDetails(ctx, existing.ID, dto.Name, sessionKey); err != nil {
			return err
		}
		if err := txs.clearContents(ctx, existing); err != nil {
			return err
		}
		if err := txs.repo.ResetCounters(ctx, existing.ID); err != nil {
			return err
		}
		id = existing.ID
		return txs.populate(ctx, existing, dto, sessionKey)
	})
	if err != nil {
		return nil, err
	}
	metrics.DirectoryMutations.WithLabelValues("upsert").Inc()
	return s.repo.GetByID(ctx, id)
}

// Delete 删除目录及其整棵子树，并递减父目录的子目录计数
func (s *Service) Delete(ctx context.Context, key string) error {
	err := s.inTx(ctx, func(txs *Service) error {
		dir, err := txs.repo.GetByKey(ctx, key)
		if err != nil {
			return err
		}
		if dir == nil {
			return ErrNotFound
		}
		if dir.IsRoot() {
			return ErrProtectedDirectory
		}
		if dir.ParentDirectoryID != nil {
			if err := txs.repo.AdjustSubDirectoriesCount(ctx, *dir.ParentDirectoryID, -1); err != nil {
				return err
			}
		}
		if err := txs.clearContents(ctx, dir); err != nil {
			return err
		}
		return txs.repo.DeleteByID(ctx, dir.ID)
	})
	if err != nil {
		return err
	}
	metrics.DirectoryMutations.WithLabelValues("delete").Inc()
	utils.LogIfDev("directory deleted", zap.String("key", utils.SanitizeLogKey(key)))
	return nil
}

// clearContents 删除 dir 下的全部子目录与图片，dir 本身保留
func (s *Service) clearContents(ctx context.Context, dir *models.Directory) error {
	children, err := s.repo.ListChildren(ctx, dir.ID)
	if err != nil {
		return err
	}
	for i := range children {
		if err := s.clearContents(ctx, &children[i]); err != nil {
			return err
		}
		if err := s.repo.DeleteByID(ctx, children[i].ID); err != nil {
			return err
		}
	}
	if _, err := s.originals.DeleteByDirectoryID(ctx, dir.ID); err != nil {
		return err
	}
	return nil
}

// DeleteImage 删除原图及其派生图并递减父目录的图片计数
// 同一个键下的全部原图都会被删除，键不存在时不做任何操作
func (s *Service) DeleteImage(ctx context.Context, imageKey string) (int, error) {
	deleted := 0
	err := s.inTx(ctx, func(txs *Service) error {
		list, err := txs.originals.ListByImageKey(ctx, imageKey)
		if err != nil {
			return err
		}
		for _, o := range list {
			if err := txs.originals.DeleteByID(ctx, o.ID); err != nil {
				return err
			}
			if o.ParentDirectoryID != nil {
				if err := txs.repo.AdjustImageCount(ctx, *o.ParentDirectoryID, -1); err != nil {
					return err
				}
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		metrics.DirectoryMutations.WithLabelValues("delete_image").Inc()
	}
	return deleted, nil
}

// Tree 读取以 key 为根的目录树，包含每个目录下原图的信息（不含载荷）
func (s *Service) Tree(ctx context.Context, key string) (*models.DirectoryDTO, error) {
	dir, err := s.repo.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if dir == nil {
		return nil, ErrNotFound
	}
	return s.tree(ctx, dir)
}

func (s *Service) tree(ctx context.Context, dir *models.Directory) (*models.DirectoryDTO, error) {
	dto := dir.ToDTO()

	children, err := s.repo.ListChildren(ctx, dir.ID)
	if err != nil {
		return nil, err
	}
	for i := range children {
		child, err := s.tree(ctx, &children[i])
		if err != nil {
			return nil, err
		}
		dto.SubDirectories = append(dto.SubDirectories, *child)
	}

	originals, err := s.originals.ListByDirectoryID(ctx, dir.ID)
	if err != nil {
		return nil, err
	}
	for _, o := range originals {
		dto.Images = append(dto.Images, models.ImageDTO{
			ImageKey: o.ImageKey,
			Name:     o.Name,
			Width:    o.Width,
			Height:   o.Height,
		})
	}
	return &dto, nil
}

func (s *Service) resolveParent(ctx context.Context, parentKey string) (*models.Directory, error) {
	if parentKey == "" || parentKey == models.RootDirectoryKey {
		return s.repo.EnsureRoot(ctx)
	}
	parent, err := s.repo.GetByKey(ctx, parentKey)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("%w: parent %q", ErrNotFound, parentKey)
	}
	return parent, nil
}

func validate(dto models.DirectoryDTO) error {
	if dto.DirectoryKey == "" {
		return fmt.Errorf("%w: directoryKey is required", ErrInvalidDirectory)
	}
	if dto.DirectoryKey == models.RootDirectoryKey {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidDirectory, models.RootDirectoryKey)
	}
	for i, img := range dto.Images {
		if img.ImageKey == "" {
			return fmt.Errorf("%w: image %d of %q has no imageKey", ErrInvalidDirectory, i, dto.DirectoryKey)
		}
	}
	for _, child := range dto.SubDirectories {
		if err := validate(child); err != nil {
			return err
		}
	}
	return nil
}
