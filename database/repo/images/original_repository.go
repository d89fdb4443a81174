package images

import (
	"context"
	"errors"
	"fmt"

	"github.com/anoixa/image-resizer/database"
	"github.com/anoixa/image-resizer/database/models"
	"gorm.io/gorm"
)

// OriginalRepository 原图仓库
type OriginalRepository struct {
	db database.Provider
}

// NewOriginalRepository 创建原图仓库
func NewOriginalRepository(db database.Provider) *OriginalRepository {
	return &OriginalRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *OriginalRepository) WithTx(tx *gorm.DB) *OriginalRepository {
	return &OriginalRepository{db: database.WithTx(r.db, tx)}
}

// Save 保存原图，写入后 image.ID 被回填
func (r *OriginalRepository) Save(ctx context.Context, image *models.OriginalImage) error {
	if err := r.db.WithContext(ctx).Create(image).Error; err != nil {
		return fmt.Errorf("failed to save original image %q: %w", image.ImageKey, err)
	}
	return nil
}

// GetByID 按主键查询，不存在时返回 nil, nil
func (r *OriginalRepository) GetByID(ctx context.Context, id uint) (*models.OriginalImage, error) {
	var image models.OriginalImage
	err := r.db.WithContext(ctx).First(&image, id).Error
	return optional(&image, err)
}

// GetByImageKey 按业务键查询；同一个键被重复上传时返回最新的一条
func (r *OriginalRepository) GetByImageKey(ctx context.Context, imageKey string) (*models.OriginalImage, error) {
	var image models.OriginalImage
	err := r.db.WithContext(ctx).
		Where("image_key = ?", imageKey).
		Order("id DESC").
		First(&image).Error
	return optional(&image, err)
}

// ListByImageKey 返回某个业务键下的全部原图
func (r *OriginalRepository) ListByImageKey(ctx context.Context, imageKey string) ([]models.OriginalImage, error) {
	var list []models.OriginalImage
	err := r.db.WithContext(ctx).Where("image_key = ?", imageKey).Order("id").Find(&list).Error
	return list, err
}

// ListByDirectoryID 返回目录下的原图
func (r *OriginalRepository) ListByDirectoryID(ctx context.Context, directoryID uint) ([]models.OriginalImage, error) {
	var list []models.OriginalImage
	err := r.db.WithContext(ctx).
		Where("parent_directory_id = ?", directoryID).
		Order("id").
		Find(&list).Error
	return list, err
}

// CountByDirectoryID 统计目录下的原图数量
func (r *OriginalRepository) CountByDirectoryID(ctx context.Context, directoryID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.OriginalImage{}).
		Where("parent_directory_id = ?", directoryID).
		Count(&n).Error
	return n, err
}

// DeleteByID 删除原图及其全部派生图
func (r *OriginalRepository) DeleteByID(ctx context.Context, id uint) error {
	return r.db.TransactionWithContext(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("original_image_id = ?", id).Delete(&models.DerivedImage{}).Error; err != nil {
			return fmt.Errorf("failed to delete derived images of %d: %w", id, err)
		}
		if err := tx.Delete(&models.OriginalImage{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete original image %d: %w", id, err)
		}
		return nil
	})
}

// DeleteByDirectoryID 删除目录下的全部原图及派生图，返回删除的原图数量
func (r *OriginalRepository) DeleteByDirectoryID(ctx context.Context, directoryID uint) (int64, error) {
	var affected int64
	err := r.db.TransactionWithContext(ctx, func(tx *gorm.DB) error {
		sub := tx.Model(&models.OriginalImage{}).Select("id").Where("parent_directory_id = ?", directoryID)
		if err := tx.Where("original_image_id IN (?)", sub).Delete(&models.DerivedImage{}).Error; err != nil {
			return fmt.Errorf("failed to delete derived images in directory %d: %w", directoryID, err)
		}
		result := tx.Where("parent_directory_id = ?", directoryID).Delete(&models.OriginalImage{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete original images in directory %d: %w", directoryID, result.Error)
		}
		affected = result.RowsAffected
		return nil
	})
	return affected, err
}

// FindMissingDerived 按主键游标分页查找缺少指定尺寸派生图的原图
// 同尺寸的占位记录视为已存在
func (r *OriginalRepository) FindMissingDerived(ctx context.Context, size models.TargetSize, afterID uint, limit int) ([]models.OriginalImage, error) {
	if limit <= 0 {
		limit = 100
	}
	var list []models.OriginalImage
	err := r.db.WithContext(ctx).
		Where("original_images.id > ?", afterID).
		Where(`NOT EXISTS (
			SELECT 1 FROM derived_images d
			WHERE d.original_image_id = original_images.id
			  AND (d.size = ? OR (d.width = ? AND d.height = ?))
		)`, size.Name, size.Width, size.Height).
		Order("original_images.id").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find originals missing %s: %w", size.Name, err)
	}
	return list, nil
}

// CountMissingDerived 统计缺少指定尺寸派生图的原图数量
func (r *OriginalRepository) CountMissingDerived(ctx context.Context, size models.TargetSize) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.OriginalImage{}).
		Where(`NOT EXISTS (
			SELECT 1 FROM derived_images d
			WHERE d.original_image_id = original_images.id
			  AND (d.size = ? OR (d.width = ? AND d.height = ?))
		)`, size.Name, size.Width, size.Height).
		Count(&n).Error
	return n, err
}

func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
