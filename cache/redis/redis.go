package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/anoixa/image-resizer/cache/types"
	"github.com/go-redis/redis/v8"
)

// Config Redis 缓存配置
type Config struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Redis Redis 缓存实现
type Redis struct {
	client *redis.Client
}

// NewRedis 创建 Redis 缓存并测试连接
func NewRedis(ctx context.Context, config Config) (*Redis, error) {
	if config.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 3 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		MaxRetries:   1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Redis{client: client}, nil
}

// NewRedisWithClient 使用已有客户端创建缓存
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Set 设置缓存项
func (r *Redis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, ok := value.([]byte)
	if !ok {
		encoded, err := json.Marshal(value)
		if err != nil {
			return err
		}
		data = encoded
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

// Get 获取缓存项
func (r *Redis) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.ErrCacheMiss
		}
		return err
	}

	if raw, ok := dest.(*[]byte); ok {
		*raw = data
		return nil
	}
	return json.Unmarshal(data, dest)
}

// Delete 删除缓存项
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Exists 检查缓存项是否存在
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close 关闭连接
func (r *Redis) Close() error {
	return r.client.Close()
}

// Name 返回缓存提供者名称
func (r *Redis) Name() string {
	return "redis"
}
