package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/anoixa/image-resizer/cache/types"
	"github.com/dgraph-io/ristretto"
)

// Memory 内存缓存实现
type Memory struct {
	client *ristretto.Cache
}

// Config 内存缓存配置
type Config struct {
	NumCounters int64 `mapstructure:"num_counters"`
	MaxCost     int64 `mapstructure:"max_cost"`
	BufferItems int64 `mapstructure:"buffer_items"`
	Metrics     bool  `mapstructure:"metrics"`
}

// DefaultConfig 默认配置，MaxCost 以字节计
func DefaultConfig() Config {
	return Config{
		NumCounters: 100000,
		MaxCost:     256 << 20,
		BufferItems: 64,
	}
}

// NewMemory 创建新的内存缓存提供者
func NewMemory(config Config) (*Memory, error) {
	def := DefaultConfig()
	if config.NumCounters <= 0 {
		config.NumCounters = def.NumCounters
	}
	if config.MaxCost <= 0 {
		config.MaxCost = def.MaxCost
	}
	if config.BufferItems <= 0 {
		config.BufferItems = def.BufferItems
	}

	client, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: config.NumCounters,
		MaxCost:     config.MaxCost,
		BufferItems: config.BufferItems,
		Metrics:     config.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Memory{client: client}, nil
}

// Set 设置缓存项，值统一序列化为 JSON 以免调用方后续修改影响缓存
func (m *Memory) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, ok := value.([]byte)
	if !ok {
		encoded, err := json.Marshal(value)
		if err != nil {
			return err
		}
		data = encoded
	}

	if m.client.SetWithTTL(key, data, int64(len(data))+int64(len(key)), expiration) {
		// 等待值被实际写入
		m.client.Wait()
	}
	return nil
}

// Get 获取缓存项
func (m *Memory) Get(ctx context.Context, key string, dest interface{}) error {
	value, found := m.client.Get(key)
	if !found {
		return types.ErrCacheMiss
	}

	data, ok := value.([]byte)
	if !ok {
		return types.ErrCacheMiss
	}

	if raw, ok := dest.(*[]byte); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	return json.Unmarshal(data, dest)
}

// Delete 删除缓存项
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.client.Del(key)
	return nil
}

// Exists 检查缓存项是否存在
func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	_, found := m.client.Get(key)
	return found, nil
}

// Close 关闭缓存连接
func (m *Memory) Close() error {
	m.client.Close()
	return nil
}

// Name 返回缓存提供者名称
func (m *Memory) Name() string {
	return "memory"
}
