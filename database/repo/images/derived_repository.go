package images

import (
	"context"
	"fmt"

	"github.com/anoixa/image-resizer/database"
	"github.com/anoixa/image-resizer/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Filter 派生图查询条件，零值字段不参与过滤
type Filter struct {
	SessionKey   string
	ImageKey     string
	DirectoryKey string
}

// DerivedRepository 派生图仓库
type DerivedRepository struct {
	db database.Provider
}

// NewDerivedRepository 创建派生图仓库
func NewDerivedRepository(db database.Provider) *DerivedRepository {
	return &DerivedRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *DerivedRepository) WithTx(tx *gorm.DB) *DerivedRepository {
	return &DerivedRepository{db: database.WithTx(r.db, tx)}
}

// Save 写入派生图，(original_image_id, size) 已存在时忽略
// 返回值表示是否真正插入了新行
func (r *DerivedRepository) Save(ctx context.Context, image *models.DerivedImage) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "original_image_id"}, {Name: "size"}},
		DoNothing: true,
	}).Create(image)
	if result.Error != nil {
		return false, fmt.Errorf("failed to save %s derived image of %d: %w", image.Size, image.OriginalImageID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetByOriginalAndSize 查询某张原图在指定尺寸下的派生图
func (r *DerivedRepository) GetByOriginalAndSize(ctx context.Context, originalID uint, size string) (*models.DerivedImage, error) {
	var image models.DerivedImage
	err := r.db.WithContext(ctx).
		Where("original_image_id = ? AND size = ?", originalID, size).
		First(&image).Error
	return optional(&image, err)
}

// ListByOriginalID 返回原图的全部派生图
func (r *DerivedRepository) ListByOriginalID(ctx context.Context, originalID uint) ([]models.DerivedImage, error) {
	var list []models.DerivedImage
	err := r.db.WithContext(ctx).Where("original_image_id = ?", originalID).Order("id").Find(&list).Error
	return list, err
}

// FindReal 查询宽高与尺寸一致的派生图
func (r *DerivedRepository) FindReal(ctx context.Context, f Filter, size models.TargetSize) ([]models.DerivedImage, error) {
	var list []models.DerivedImage
	err := r.scoped(ctx, f).
		Where("derived_images.width = ? AND derived_images.height = ?", size.Width, size.Height).
		Order("derived_images.id").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query %s derived images: %w", size.Name, err)
	}
	return list, nil
}

// FindSentinels 查询代替指定尺寸写入的占位记录
func (r *DerivedRepository) FindSentinels(ctx context.Context, f Filter, size models.TargetSize) ([]models.DerivedImage, error) {
	var list []models.DerivedImage
	err := r.scoped(ctx, f).
		Where("derived_images.width = 0 AND derived_images.height = 0 AND derived_images.size = ?", size.Name).
		Order("derived_images.id").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query %s sentinel images: %w", size.Name, err)
	}
	return list, nil
}

// CountBySize 统计每个尺寸的派生图数量
func (r *DerivedRepository) CountBySize(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Size  string
		Count int64
	}
	err := r.db.WithContext(ctx).Model(&models.DerivedImage{}).
		Select("size, COUNT(*) AS count").
		Group("size").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Size] = row.Count
	}
	return counts, nil
}

func (r *DerivedRepository) scoped(ctx context.Context, f Filter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.DerivedImage{}).Select("derived_images.*")
	if f.SessionKey != "" {
		q = q.Where("derived_images.session_key = ?", f.SessionKey)
	}
	if f.ImageKey != "" {
		q = q.Where("derived_images.image_key = ?", f.ImageKey)
	}
	if f.DirectoryKey != "" {
		q = q.Joins("JOIN original_images ON original_images.id = derived_images.original_image_id").
			Joins("JOIN directories ON directories.id = original_images.parent_directory_id").
			Where("directories.directory_key = ?", f.DirectoryKey)
	}
	return q
}
