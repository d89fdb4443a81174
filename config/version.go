package config

var (
	Version    string = "dev"
	CommitHash string = ""
	BuildTime  string = ""
)

// IsProduction 判断是否为生产环境
// 生产环境：Version 为 "release" 且 CommitHash 不为空
func IsProduction() bool {
	return Version == "release" && CommitHash != ""
}

// IsDevelopment 判断是否为开发环境
func IsDevelopment() bool {
	return Version == "dev"
}

// VersionInfo 版本信息
type VersionInfo struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time,omitempty"`
}

// GetVersionInfo 返回当前构建的版本信息
func GetVersionInfo() VersionInfo {
	return VersionInfo{Version: Version, CommitHash: CommitHash, BuildTime: BuildTime}
}
