package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anoixa/image-resizer/cache/memory"
	"github.com/anoixa/image-resizer/cache/redis"
	"github.com/anoixa/image-resizer/config"
	"github.com/anoixa/image-resizer/utils"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

// 支持的缓存类型
const (
	TypeMemory = "memory"
	TypeRedis  = "redis"
	TypeNone   = "none"
)

// Factory 缓存工厂，持有当前生效的缓存提供者
type Factory struct {
	provider Provider
	ttl      time.Duration
}

// NewFactory 根据配置创建缓存工厂
func NewFactory(cfg *config.Config) (*Factory, error) {
	options := map[string]interface{}{}
	if strings.EqualFold(cfg.CacheType, TypeRedis) {
		options["addr"] = cfg.CacheRedisAddr
		options["password"] = cfg.CacheRedisPassword
		options["db"] = cfg.CacheRedisDB
	}

	provider, err := NewProvider(cfg.CacheType, options)
	if err != nil {
		return nil, err
	}

	utils.Logger().Info("cache provider ready",
		zap.String("provider", provider.Name()),
		zap.Duration("ttl", cfg.CacheTTL))

	return &Factory{provider: provider, ttl: cfg.CacheTTL}, nil
}

// NewFactoryWithProvider 使用已有提供者创建工厂，主要用于测试
func NewFactoryWithProvider(provider Provider, ttl time.Duration) *Factory {
	if provider == nil {
		provider = nopProvider{}
	}
	return &Factory{provider: provider, ttl: ttl}
}

// NewProvider 按类型创建缓存提供者，options 通过 mapstructure 解码为具体配置
func NewProvider(cacheType string, options map[string]interface{}) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cacheType)) {
	case "", TypeMemory:
		memConfig := memory.DefaultConfig()
		if err := decodeOptions(options, &memConfig); err != nil {
			return nil, fmt.Errorf("invalid memory cache options: %w", err)
		}
		return memory.NewMemory(memConfig)

	case TypeRedis:
		var redisConfig redis.Config
		if err := decodeOptions(options, &redisConfig); err != nil {
			return nil, fmt.Errorf("invalid redis cache options: %w", err)
		}
		provider, err := redis.NewRedis(context.Background(), redisConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect redis cache: %w", err)
		}
		return provider, nil

	case TypeNone:
		return nopProvider{}, nil

	default:
		return nil, fmt.Errorf("unsupported cache provider type: %s", cacheType)
	}
}

func decodeOptions(options map[string]interface{}, out interface{}) error {
	if len(options) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}

// GetProvider 获取当前缓存提供者
func (f *Factory) GetProvider() Provider {
	return f.provider
}

// TTL 默认过期时间
func (f *Factory) TTL() time.Duration {
	return f.ttl
}

// Close 关闭缓存提供者
func (f *Factory) Close() error {
	return f.provider.Close()
}

// --- 便捷方法 ---

// Set 使用默认过期时间设置缓存项
func (f *Factory) Set(ctx context.Context, key string, value interface{}) error {
	return f.provider.Set(ctx, key, value, f.ttl)
}

// Get 获取缓存项
func (f *Factory) Get(ctx context.Context, key string, dest interface{}) error {
	return f.provider.Get(ctx, key, dest)
}

// Delete 删除缓存项
func (f *Factory) Delete(ctx context.Context, key string) error {
	return f.provider.Delete(ctx, key)
}
