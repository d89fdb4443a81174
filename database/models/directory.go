package models

import "time"

// RootDirectoryKey 根目录的固定键
const RootDirectoryKey = "root"

// Directory 目录树节点，计数字段为冗余存储
type Directory struct {
	ID                  uint       `gorm:"primarykey" json:"id"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	Name                string     `gorm:"size:255" json:"name"`
	DirectoryKey        string     `gorm:"not null;size:255;uniqueIndex" json:"directory_key"`
	SessionKey          string     `gorm:"size:64;index" json:"session_key"`
	ParentDirectoryID   *uint      `gorm:"index" json:"parent_directory_id,omitempty"`
	Parent              *Directory `gorm:"foreignKey:ParentDirectoryID;constraint:OnDelete:CASCADE" json:"-"`
	ImageCount          int        `gorm:"not null;default:0" json:"image_count"`
	SubDirectoriesCount int        `gorm:"not null;default:0" json:"sub_directories_count"`
}

// TableName 指定表名
func (Directory) TableName() string {
	return "directories"
}

// IsRoot 是否为根目录
func (d *Directory) IsRoot() bool {
	return d.DirectoryKey == RootDirectoryKey
}

// ToDTO 转换为不含子节点的传输对象
func (d *Directory) ToDTO() DirectoryDTO {
	return DirectoryDTO{
		Name:                d.Name,
		DirectoryKey:        d.DirectoryKey,
		ImageCount:          d.ImageCount,
		SubDirectoriesCount: d.SubDirectoriesCount,
	}
}
