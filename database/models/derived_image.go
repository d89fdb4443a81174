package models

import "time"

// DerivedImage 由原图按某个目标尺寸生成的缩略图
type DerivedImage struct {
	ID              uint           `gorm:"primarykey" json:"id"`
	CreatedAt       time.Time      `json:"created_at"`
	OriginalImageID uint           `gorm:"not null;index:idx_derived_original_size,unique" json:"original_image_id"`
	OriginalImage   *OriginalImage `gorm:"foreignKey:OriginalImageID;constraint:OnDelete:CASCADE" json:"-"`
	Size            string         `gorm:"not null;size:20;index:idx_derived_original_size,unique" json:"size"` // small, medium, large
	Name            string         `gorm:"size:255" json:"name"`
	Payload         string         `gorm:"type:text;not null" json:"-"`
	Width           int            `gorm:"not null;default:0;index:idx_derived_dims" json:"width"`
	Height          int            `gorm:"not null;default:0;index:idx_derived_dims" json:"height"`
	SessionKey      string         `gorm:"size:64;index" json:"session_key"`
	ImageKey        string         `gorm:"size:255;index" json:"image_key"`
}

// TableName 指定表名
func (DerivedImage) TableName() string {
	return "derived_images"
}

// IsSentinel 是否为占位记录
func (d *DerivedImage) IsSentinel() bool {
	return d.Payload == SentinelPayload && d.Width == 0 && d.Height == 0
}

// ToDTO 转换为传输对象
func (d *DerivedImage) ToDTO() ImageDTO {
	return ImageDTO{
		ImageKey: d.ImageKey,
		Name:     d.Name,
		Base64:   d.Payload,
		Width:    d.Width,
		Height:   d.Height,
	}
}
