package cache

import (
	"context"
	"time"

	"github.com/anoixa/image-resizer/cache/types"
)

// Provider 缓存提供者接口
type Provider interface {
	// Set 设置缓存项
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error

	// Get 获取缓存项，未命中返回 ErrCacheMiss
	Get(ctx context.Context, key string, dest interface{}) error

	// Delete 删除缓存项
	Delete(ctx context.Context, key string) error

	// Exists 检查缓存项是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// Close 关闭缓存连接
	Close() error

	// Name 返回缓存提供者名称
	Name() string
}

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = types.ErrCacheMiss

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return types.IsCacheMiss(err)
}

// nopProvider 关闭缓存时使用，所有读取均未命中
type nopProvider struct{}

func (nopProvider) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (nopProvider) Get(context.Context, string, interface{}) error              { return ErrCacheMiss }
func (nopProvider) Delete(context.Context, string) error                        { return nil }
func (nopProvider) Exists(context.Context, string) (bool, error)                { return false, nil }
func (nopProvider) Close() error                                                { return nil }
func (nopProvider) Name() string                                                { return "none" }
