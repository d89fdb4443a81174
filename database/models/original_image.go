package models

import "time"

// OriginalImage 用户上传的原图
type OriginalImage struct {
	ID                uint       `gorm:"primarykey" json:"id"`
	CreatedAt         time.Time  `json:"created_at"`
	Name              string     `gorm:"size:255" json:"name"`
	Payload           string     `gorm:"type:text;not null" json:"-"`
	Width             int        `gorm:"not null;default:0" json:"width"`
	Height            int        `gorm:"not null;default:0" json:"height"`
	SessionKey        string     `gorm:"size:64;index" json:"session_key"`
	ImageKey          string     `gorm:"size:255;index" json:"image_key"`
	ParentDirectoryID *uint      `gorm:"index" json:"parent_directory_id,omitempty"`
	ParentDirectory   *Directory `gorm:"foreignKey:ParentDirectoryID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName 指定表名
func (OriginalImage) TableName() string {
	return "original_images"
}

// IsSentinel 原图无法解码时以占位形式保存
func (o *OriginalImage) IsSentinel() bool {
	return o.Payload == SentinelPayload && o.Width == 0 && o.Height == 0
}
