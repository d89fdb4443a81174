package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anoixa/image-resizer/cache"
	"github.com/anoixa/image-resizer/database"
	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/database/repo/images"
	"github.com/anoixa/image-resizer/internal/directory"
	"github.com/anoixa/image-resizer/internal/ingest"
	"github.com/anoixa/image-resizer/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrTemporaryFailure 查询超时，可重试
	ErrTemporaryFailure = errors.New("temporary failure, should be retried")
	// ErrEmptyBatch 上传列表为空
	ErrEmptyBatch = errors.New("no images to ingest")
	// ErrInvalidImage 图片缺少 imageKey
	ErrInvalidImage = errors.New("invalid image")
)

var originalFetchTimeout = 30 * time.Second

// 向上清理缓存时的最大层数，防止异常数据形成环
const maxTreeDepth = 256

// Service 图片库门面，向传输层暴露上传、查询、目录管理操作
type Service struct {
	originals   *images.OriginalRepository
	derived     *images.DerivedRepository
	directories *directory.Service
	submitter   *ingest.Submitter
	cache       *cache.Factory

	group singleflight.Group
}

// NewService 创建图片库服务
func NewService(db database.Provider, submitter *ingest.Submitter, directories *directory.Service, cacheFactory *cache.Factory) *Service {
	if cacheFactory == nil {
		cacheFactory = cache.NewFactoryWithProvider(nil, 0)
	}
	s := &Service{
		originals:   images.NewOriginalRepository(db),
		derived:     images.NewDerivedRepository(db),
		directories: directories,
		submitter:   submitter,
		cache:       cacheFactory,
	}
	// 后台批次提交后再清一次缓存，排队期间被读回的旧原图不会残留
	if submitter != nil {
		submitter.OnCommitted(func(imageKey string, parentDirectoryID *uint) {
			ctx := context.Background()
			s.invalidateOriginal(ctx, imageKey)
			s.invalidateAncestors(ctx, parentDirectoryID)
		})
	}
	return s
}

// IngestImage 提交一批图片到后台处理，directoryKey 为空时图片不归属任何目录
func (s *Service) IngestImage(ctx context.Context, sessionKey, directoryKey string, dtos []models.ImageDTO) (ingest.Ticket, error) {
	if len(dtos) == 0 {
		return ingest.Ticket{}, ErrEmptyBatch
	}
	for i, dto := range dtos {
		if dto.ImageKey == "" {
			return ingest.Ticket{}, fmt.Errorf("%w: item %d has no imageKey", ErrInvalidImage, i)
		}
	}

	var parentID *uint
	if directoryKey != "" {
		dir, err := s.directories.Get(ctx, directoryKey)
		if err != nil {
			return ingest.Ticket{}, err
		}
		if dir == nil {
			return ingest.Ticket{}, fmt.Errorf("%w: %q", directory.ErrNotFound, directoryKey)
		}
		parentID = &dir.ID
	}

	for _, dto := range dtos {
		s.invalidateOriginal(ctx, dto.ImageKey)
	}
	return s.submitter.Submit(sessionKey, parentID, dtos)
}

// Ticket 查询上传批次
func (s *Service) Ticket(id string) (ingest.Ticket, bool) {
	return s.submitter.Get(id)
}

// ListBySession 按会话查询某尺寸的派生图，包含哨兵记录
func (s *Service) ListBySession(ctx context.Context, sessionKey string, size models.TargetSize) ([]models.ImageDTO, error) {
	return s.list(ctx, images.Filter{SessionKey: sessionKey}, size)
}

// ListByDirectory 按目录查询某尺寸的派生图，包含哨兵记录
func (s *Service) ListByDirectory(ctx context.Context, directoryKey string, size models.TargetSize) ([]models.ImageDTO, error) {
	return s.list(ctx, images.Filter{DirectoryKey: directoryKey}, size)
}

// ListByImageKey 按 imageKey 查询某尺寸的派生图，包含哨兵记录
func (s *Service) ListByImageKey(ctx context.Context, imageKey string, size models.TargetSize) ([]models.ImageDTO, error) {
	return s.list(ctx, images.Filter{ImageKey: imageKey}, size)
}

// ListAll 查询某尺寸的全部派生图，包含哨兵记录
func (s *Service) ListAll(ctx context.Context, size models.TargetSize) ([]models.ImageDTO, error) {
	return s.list(ctx, images.Filter{}, size)
}

// list 合并真实尺寸与哨兵两次查询的结果
func (s *Service) list(ctx context.Context, f images.Filter, size models.TargetSize) ([]models.ImageDTO, error) {
	found, err := s.derived.FindReal(ctx, f, size)
	if err != nil {
		return nil, err
	}
	sentinels, err := s.derived.FindSentinels(ctx, f, size)
	if err != nil {
		return nil, err
	}

	result := make([]models.ImageDTO, 0, len(found)+len(sentinels))
	for i := range found {
		result = append(result, found[i].ToDTO())
	}
	for i := range sentinels {
		result = append(result, sentinels[i].ToDTO())
	}
	return result, nil
}

// GetOriginal 按 imageKey 读取原图（带缓存和 singleflight），不存在时返回 nil, nil
func (s *Service) GetOriginal(ctx context.Context, imageKey string) (*models.ImageDTO, error) {
	var dto models.ImageDTO
	cacheKey := cache.OriginalImage.Build(imageKey)
	if err := s.cache.Get(ctx, cacheKey, &dto); err == nil {
		return &dto, nil
	}

	resultChan := s.group.DoChan(imageKey, func() (interface{}, error) {
		original, err := s.originals.GetByImageKey(context.WithoutCancel(ctx), imageKey)
		if err != nil || original == nil {
			return (*models.ImageDTO)(nil), err
		}

		found := &models.ImageDTO{
			ImageKey: original.ImageKey,
			Name:     original.Name,
			Base64:   original.Payload,
			Width:    original.Width,
			Height:   original.Height,
		}
		if err := s.cache.Set(context.Background(), cacheKey, found); err != nil {
			utils.Logger().Warn("failed to cache original image",
				zap.String("image_key", utils.SanitizeLogKey(imageKey)),
				zap.Error(err))
		}
		return found, nil
	})

	select {
	case result := <-resultChan:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*models.ImageDTO), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(originalFetchTimeout):
		s.group.Forget(imageKey)
		return nil, ErrTemporaryFailure
	}
}

// DeleteImage 删除 imageKey 对应的原图与派生图，返回删除的原图数量
func (s *Service) DeleteImage(ctx context.Context, imageKey string) (int, error) {
	existing, err := s.originals.ListByImageKey(ctx, imageKey)
	if err != nil {
		return 0, err
	}

	deleted, err := s.directories.DeleteImage(ctx, imageKey)
	if err != nil {
		return 0, err
	}
	s.invalidateOriginal(ctx, imageKey)
	for i := range existing {
		s.invalidateAncestors(ctx, existing[i].ParentDirectoryID)
	}
	return deleted, nil
}

// IngestDirectory 在 parentKey 下创建整棵目录树
func (s *Service) IngestDirectory(ctx context.Context, dto models.DirectoryDTO, sessionKey, parentKey string) (*models.DirectoryDTO, error) {
	dir, err := s.directories.IngestDirectory(ctx, dto, sessionKey, parentKey)
	if err != nil {
		return nil, err
	}
	s.invalidateTree(ctx, dto)
	s.invalidateAncestors(ctx, &dir.ID)
	out := dir.ToDTO()
	return &out, nil
}

// CreateOrUpdateDirectory 新建或整体替换目录
func (s *Service) CreateOrUpdateDirectory(ctx context.Context, dto models.DirectoryDTO, sessionKey, parentKey string) (*models.DirectoryDTO, error) {
	previous, err := s.directories.Tree(ctx, dto.DirectoryKey)
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		return nil, err
	}

	dir, err := s.directories.Upsert(ctx, dto, sessionKey, parentKey)
	if err != nil {
		return nil, err
	}
	if previous != nil {
		s.invalidateTree(ctx, *previous)
	}
	s.invalidateTree(ctx, dto)
	s.invalidateAncestors(ctx, &dir.ID)
	out := dir.ToDTO()
	return &out, nil
}

// DeleteDirectory 删除目录及其子树，目录不存在时返回 false 且不报错
func (s *Service) DeleteDirectory(ctx context.Context, key string) (bool, error) {
	previous, err := s.directories.Tree(ctx, key)
	if errors.Is(err, directory.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	parent, err := s.directories.GetParent(ctx, key)
	if err != nil {
		return false, err
	}

	if err := s.directories.Delete(ctx, key); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	s.invalidateTree(ctx, *previous)
	if parent != nil {
		s.invalidateAncestors(ctx, &parent.ID)
	}
	return true, nil
}

// GetDirectory 按键查询目录，不存在时返回 nil, nil
func (s *Service) GetDirectory(ctx context.Context, key string) (*models.DirectoryDTO, error) {
	return toDTO(s.directories.Get(ctx, key))
}

// GetDirectoryParent 查询目录的父目录
func (s *Service) GetDirectoryParent(ctx context.Context, key string) (*models.DirectoryDTO, error) {
	return toDTO(s.directories.GetParent(ctx, key))
}

// GetRootDirectory 查询根目录
func (s *Service) GetRootDirectory(ctx context.Context) (*models.DirectoryDTO, error) {
	return toDTO(s.directories.EnsureRoot(ctx))
}

// ListChildDirectories 查询直接子目录
func (s *Service) ListChildDirectories(ctx context.Context, key string) ([]models.DirectoryDTO, error) {
	children, err := s.directories.ListChildren(ctx, key)
	if err != nil {
		return nil, err
	}
	result := make([]models.DirectoryDTO, 0, len(children))
	for i := range children {
		result = append(result, children[i].ToDTO())
	}
	return result, nil
}

// DirectoryTree 查询目录树（不含图片载荷），结果按目录键缓存
func (s *Service) DirectoryTree(ctx context.Context, key string) (*models.DirectoryDTO, error) {
	var dto models.DirectoryDTO
	cacheKey := cache.DirectoryTree.Build(key)
	if err := s.cache.Get(ctx, cacheKey, &dto); err == nil {
		return &dto, nil
	}

	tree, err := s.directories.Tree(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, cacheKey, tree); err != nil {
		utils.Logger().Warn("failed to cache directory tree",
			zap.String("directory_key", utils.SanitizeLogKey(key)),
			zap.Error(err))
	}
	return tree, nil
}

func (s *Service) invalidateOriginal(ctx context.Context, imageKey string) {
	if err := s.cache.Delete(ctx, cache.OriginalImage.Build(imageKey)); err != nil {
		utils.Logger().Warn("failed to invalidate original image cache",
			zap.String("image_key", utils.SanitizeLogKey(imageKey)),
			zap.Error(err))
	}
}

func (s *Service) invalidateDirectory(ctx context.Context, key string) {
	if err := s.cache.Delete(ctx, cache.DirectoryTree.Build(key)); err != nil {
		utils.Logger().Warn("failed to invalidate directory tree cache",
			zap.String("directory_key", utils.SanitizeLogKey(key)),
			zap.Error(err))
	}
}

// invalidateAncestors 目录树包含整棵子树，变更需要清掉从该目录到根的每一级缓存
func (s *Service) invalidateAncestors(ctx context.Context, directoryID *uint) {
	for depth := 0; directoryID != nil && depth < maxTreeDepth; depth++ {
		dir, err := s.directories.GetByID(ctx, *directoryID)
		if err != nil {
			utils.Logger().Warn("failed to resolve directory for cache invalidation",
				zap.Uint("directory_id", *directoryID),
				zap.Error(err))
			return
		}
		if dir == nil {
			return
		}
		s.invalidateDirectory(ctx, dir.DirectoryKey)
		directoryID = dir.ParentDirectoryID
	}
}

func (s *Service) invalidateTree(ctx context.Context, dto models.DirectoryDTO) {
	if dto.DirectoryKey != "" {
		s.invalidateDirectory(ctx, dto.DirectoryKey)
	}
	for _, img := range dto.Images {
		s.invalidateOriginal(ctx, img.ImageKey)
	}
	for _, child := range dto.SubDirectories {
		s.invalidateTree(ctx, child)
	}
}

func toDTO(dir *models.Directory, err error) (*models.DirectoryDTO, error) {
	if err != nil || dir == nil {
		return nil, err
	}
	out := dir.ToDTO()
	return &out, nil
}
