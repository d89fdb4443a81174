package types

import "errors"

// ErrCacheMiss 缓存未命中错误，各缓存实现共用
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
