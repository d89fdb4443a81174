package models

import (
	"fmt"
	"strings"
)

// TargetSize 缩略图目标尺寸预设
type TargetSize struct {
	Name   string
	Width  int
	Height int
}

// 预设尺寸
var (
	SizeSmall  = TargetSize{Name: "small", Width: 50, Height: 50}
	SizeMedium = TargetSize{Name: "medium", Width: 200, Height: 200}
	SizeLarge  = TargetSize{Name: "large", Width: 300, Height: 300}
)

// SentinelPayload 生成失败时写入的占位内容，宽高均为 0
const SentinelPayload = "ERROR"

// AllTargetSizes 返回全部预设
func AllTargetSizes() []TargetSize {
	return []TargetSize{SizeSmall, SizeMedium, SizeLarge}
}

// String 实现 fmt.Stringer
func (s TargetSize) String() string {
	return fmt.Sprintf("%s(%dx%d)", s.Name, s.Width, s.Height)
}

// ParseTargetSize 按名称查找预设，大小写不敏感
func ParseTargetSize(name string) (TargetSize, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range AllTargetSizes() {
		if s.Name == name {
			return s, true
		}
	}
	return TargetSize{}, false
}

// ParseTargetSizes 解析尺寸列表，空列表表示全部预设，重复项只保留一次
func ParseTargetSizes(names []string) ([]TargetSize, error) {
	var sizes []TargetSize
	seen := make(map[string]bool)
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		s, ok := ParseTargetSize(n)
		if !ok {
			return nil, fmt.Errorf("unknown target size %q (expected one of small, medium, large)", n)
		}
		if seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		sizes = append(sizes, s)
	}
	if len(sizes) == 0 {
		return AllTargetSizes(), nil
	}
	return sizes, nil
}
