package models

// ImageDTO 上传与查询时使用的图片传输对象
type ImageDTO struct {
	ImageKey string `json:"imageKey"`
	Name     string `json:"name"`
	Base64   string `json:"base64"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// DirectoryDTO 目录树传输对象
// ImageCount 与 SubDirectoriesCount 在写入时会被忽略，由服务端重新计算
type DirectoryDTO struct {
	Name                string         `json:"name"`
	DirectoryKey        string         `json:"directoryKey"`
	ImageCount          int            `json:"imageCount"`
	SubDirectoriesCount int            `json:"subDirectoriesCount"`
	SubDirectories      []DirectoryDTO `json:"subDirectories,omitempty"`
	Images              []ImageDTO     `json:"images,omitempty"`
}
