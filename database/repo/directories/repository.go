package directories

import (
	"context"
	"errors"
	"fmt"

	"github.com/anoixa/image-resizer/database"
	"github.com/anoixa/image-resizer/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository 目录仓库 - 封装目录树相关的数据库操作
type Repository struct {
	db database.Provider
}

// NewRepository 创建新的目录仓库
func NewRepository(db database.Provider) *Repository {
	return &Repository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: database.WithTx(r.db, tx)}
}

// Create 创建目录节点，计数字段按零值写入
func (r *Repository) Create(ctx context.Context, dir *models.Directory) error {
	dir.ImageCount = 0
	dir.SubDirectoriesCount = 0
	if err := r.db.WithContext(ctx).Create(dir).Error; err != nil {
		return fmt.Errorf("failed to create directory %q: %w", dir.DirectoryKey, err)
	}
	return nil
}

// EnsureRoot 确保根目录存在并返回它
func (r *Repository) EnsureRoot(ctx context.Context) (*models.Directory, error) {
	root := models.Directory{
		Name:         models.RootDirectoryKey,
		DirectoryKey: models.RootDirectoryKey,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "directory_key"}},
		DoNothing: true,
	}).Create(&root).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return r.GetByKey(ctx, models.RootDirectoryKey)
}

// GetByID 按主键查询，不存在时返回 nil, nil
func (r *Repository) GetByID(ctx context.Context, id uint) (*models.Directory, error) {
	var dir models.Directory
	err := r.db.WithContext(ctx).First(&dir, id).Error
	return optional(&dir, err)
}

// GetByKey 按目录键查询，不存在时返回 nil, nil
func (r *Repository) GetByKey(ctx context.Context, key string) (*models.Directory, error) {
	var dir models.Directory
	err := r.db.WithContext(ctx).Where("directory_key = ?", key).First(&dir).Error
	return optional(&dir, err)
}

// GetParentByKey 查询目录的父目录
func (r *Repository) GetParentByKey(ctx context.Context, key string) (*models.Directory, error) {
	var dir models.Directory
	err := r.db.WithContext(ctx).
		Select("directories.*").
		Joins("JOIN directories AS child ON child.parent_directory_id = directories.id").
		Where("child.directory_key = ?", key).
		First(&dir).Error
	return optional(&dir, err)
}

// ListChildren 按创建顺序返回直接子目录
func (r *Repository) ListChildren(ctx context.Context, parentID uint) ([]models.Directory, error) {
	var list []models.Directory
	err := r.db.WithContext(ctx).
		Where("parent_directory_id = ?", parentID).
		Order("id").
		Find(&list).Error
	return list, err
}

// CountChildren 统计直接子目录数量
func (r *Repository) CountChildren(ctx context.Context, parentID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Directory{}).
		Where("parent_directory_id = ?", parentID).
		Count(&n).Error
	return n, err
}

// UpdateDetails 更新目录名称与会话键
func (r *Repository) UpdateDetails(ctx context.Context, id uint, name, sessionKey string) error {
	return r.db.WithContext(ctx).Model(&models.Directory{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"name":        name,
			"session_key": sessionKey,
		}).Error
}

// ResetCounters 将两个计数清零
func (r *Repository) ResetCounters(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Directory{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"image_count":           0,
			"sub_directories_count": 0,
		}).Error
}

// AdjustImageCount 以相对更新的方式调整图片计数，结果不小于 0
func (r *Repository) AdjustImageCount(ctx context.Context, id uint, delta int) error {
	return r.adjust(ctx, id, "image_count", delta)
}

// AdjustSubDirectoriesCount 以相对更新的方式调整子目录计数，结果不小于 0
func (r *Repository) AdjustSubDirectoriesCount(ctx context.Context, id uint, delta int) error {
	return r.adjust(ctx, id, "sub_directories_count", delta)
}

func (r *Repository) adjust(ctx context.Context, id uint, column string, delta int) error {
	if delta == 0 {
		return nil
	}
	expr := gorm.Expr(fmt.Sprintf("CASE WHEN %[1]s + ? < 0 THEN 0 ELSE %[1]s + ? END", column), delta, delta)
	err := r.db.WithContext(ctx).Model(&models.Directory{}).
		Where("id = ?", id).
		UpdateColumn(column, expr).Error
	if err != nil {
		return fmt.Errorf("failed to adjust %s of directory %d: %w", column, id, err)
	}
	return nil
}

// DeleteByID 删除单个目录节点
func (r *Repository) DeleteByID(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.Directory{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete directory %d: %w", id, err)
	}
	return nil
}

func optional(dir *models.Directory, err error) (*models.Directory, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return dir, nil
}
