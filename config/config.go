package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/anoixa/image-resizer/database/models"
	"github.com/spf13/viper"
)

var (
	globalConfig Config
	once         sync.Once
	configFile   = ".env"
)

// Config 扁平化配置结构体
type Config struct {
	// 服务器配置
	ServerHost         string        `mapstructure:"server_host"`
	ServerPort         int           `mapstructure:"server_port"`
	ServerReadTimeout  time.Duration `mapstructure:"server_read_timeout"`
	ServerWriteTimeout time.Duration `mapstructure:"server_write_timeout"`
	ServerIdleTimeout  time.Duration `mapstructure:"server_idle_timeout"`
	CorsAllowOrigins   string        `mapstructure:"cors_allow_origins"`

	// 数据库配置
	DBType            string `mapstructure:"db_type"`
	DBHost            string `mapstructure:"db_host"`
	DBPort            int    `mapstructure:"db_port"`
	DBUsername        string `mapstructure:"db_username"`
	DBPassword        string `mapstructure:"db_password"`
	DBName            string `mapstructure:"db_name"`
	DBFilePath        string `mapstructure:"db_file_path"`
	DBMaxOpenConns    int    `mapstructure:"db_max_open_conns"`
	DBMaxIdleConns    int    `mapstructure:"db_max_idle_conns"`
	DBConnMaxLifetime int    `mapstructure:"db_conn_max_lifetime"`

	// 缓存提供者配置
	CacheType          string        `mapstructure:"cache_type"`
	CacheRedisAddr     string        `mapstructure:"cache_redis_addr"`
	CacheRedisPassword string        `mapstructure:"cache_redis_password"`
	CacheRedisDB       int           `mapstructure:"cache_redis_db"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`

	// 限流配置
	RateLimitApiRPS      float64       `mapstructure:"rate_limit_api_rps"`
	RateLimitApiBurst    int           `mapstructure:"rate_limit_api_burst"`
	RateLimitUploadRPS   float64       `mapstructure:"rate_limit_upload_rps"`
	RateLimitUploadBurst int           `mapstructure:"rate_limit_upload_burst"`
	RateLimitExpireTime  time.Duration `mapstructure:"rate_limit_expire_time"`

	// Worker 配置
	WorkerCount      int `mapstructure:"worker_count"`
	WorkerQueueSize  int `mapstructure:"worker_queue_size"`
	CodecConcurrency int `mapstructure:"codec_concurrency"`

	// 缩略图配置
	TargetSizes       string        `mapstructure:"target_sizes"`
	BackfillOnStartup bool          `mapstructure:"backfill_on_startup"`
	BackfillPageSize  int           `mapstructure:"backfill_page_size"`
	BackfillInterval  time.Duration `mapstructure:"backfill_interval"` // 0 表示只在启动时运行

	// 会话推送配置
	FeedBufferSize int           `mapstructure:"feed_buffer_size"`
	FeedIdleTTL    time.Duration `mapstructure:"feed_idle_ttl"`

	// 日志配置
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// SetConfigFile 指定配置文件路径，需在 InitConfig 之前调用
func SetConfigFile(path string) {
	if path != "" {
		configFile = path
	}
}

// InitConfig Initialize configuration
func InitConfig() {
	once.Do(func() {
		loadConfig()
	})
}

func Get() *Config {
	return &globalConfig
}

// loadConfig Core configuration loading
func loadConfig() {
	setDefaults()

	viper.SetConfigFile(configFile)
	if strings.HasSuffix(configFile, ".env") {
		viper.SetConfigType("env")
	}

	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Info: %s not found, using defaults and environment variables\n", configFile)
	} else {
		fmt.Fprintf(os.Stderr, "Info: Loaded configuration from %s\n", configFile)
	}

	viper.AutomaticEnv()
	for _, key := range viper.AllKeys() {
		viper.BindEnv(key)
	}

	if err := viper.Unmarshal(&globalConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: Unable to unmarshal config, %v\n", err)
		os.Exit(1)
	}

	// WorkerCount: -1 = 使用 CPU 线程数, 0 = 使用默认值 (max(2, CPU核心数)), >0 = 使用指定值
	switch {
	case globalConfig.WorkerCount < 0:
		globalConfig.WorkerCount = runtime.GOMAXPROCS(0)
	case globalConfig.WorkerCount == 0:
		globalConfig.WorkerCount = getCpus()
	}

	if err := globalConfig.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: invalid configuration, %v\n", err)
		os.Exit(1)
	}
}

// setDefaults 设置默认值
func setDefaults() {
	// 服务器配置默认值
	viper.SetDefault("server_host", "127.0.0.1")
	viper.SetDefault("server_port", 8080)
	viper.SetDefault("server_read_timeout", "15s")
	viper.SetDefault("server_write_timeout", "0s") // SSE 推送为长连接
	viper.SetDefault("server_idle_timeout", "120s")
	viper.SetDefault("cors_allow_origins", "*")

	// 数据库配置默认值
	viper.SetDefault("db_type", "sqlite")
	viper.SetDefault("db_host", "localhost")
	viper.SetDefault("db_port", 5432)
	viper.SetDefault("db_username", "postgres")
	viper.SetDefault("db_password", "")
	viper.SetDefault("db_name", "image-resizer")
	viper.SetDefault("db_file_path", "")
	viper.SetDefault("db_max_open_conns", 100)
	viper.SetDefault("db_max_idle_conns", 25)
	viper.SetDefault("db_conn_max_lifetime", 3600)

	// 缓存提供者配置默认值
	viper.SetDefault("cache_type", "memory")
	viper.SetDefault("cache_redis_addr", "localhost:6379")
	viper.SetDefault("cache_redis_password", "")
	viper.SetDefault("cache_redis_db", 0)
	viper.SetDefault("cache_ttl", "10m")

	// 限流配置默认值
	viper.SetDefault("rate_limit_api_rps", 30.0)
	viper.SetDefault("rate_limit_api_burst", 60)
	viper.SetDefault("rate_limit_upload_rps", 5.0)
	viper.SetDefault("rate_limit_upload_burst", 10)
	viper.SetDefault("rate_limit_expire_time", "10m")

	// Worker 配置默认值
	viper.SetDefault("worker_count", 0) // 0 表示使用默认值
	viper.SetDefault("worker_queue_size", 1000)
	viper.SetDefault("codec_concurrency", 0)

	// 缩略图配置默认值
	viper.SetDefault("target_sizes", "small,medium,large")
	viper.SetDefault("backfill_on_startup", true)
	viper.SetDefault("backfill_page_size", 100)
	viper.SetDefault("backfill_interval", "0s")

	viper.SetDefault("feed_buffer_size", 64)
	viper.SetDefault("feed_idle_ttl", "30m")

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "console")
}

// Validate 校验配置
func (c *Config) Validate() error {
	if _, err := c.GetTargetSizes(); err != nil {
		return err
	}
	switch c.DBType {
	case "", "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported database type: %s", c.DBType)
	}
	return nil
}

// Addr 返回监听地址，格式为 "host:port"
func (c *Config) Addr() string {
	host := c.ServerHost
	if host == "" {
		host = "0.0.0.0"
	}
	port := c.ServerPort
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// GetTargetSizes 返回配置的目标尺寸集合
func (c *Config) GetTargetSizes() ([]models.TargetSize, error) {
	return models.ParseTargetSizes(strings.Split(c.TargetSizes, ","))
}

// GetCorsOrigins 返回允许的跨域来源
func (c *Config) GetCorsOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CorsAllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// GetWorkerCount 返回 worker 数量
func (c *Config) GetWorkerCount() int {
	if c.WorkerCount <= 0 {
		return getCpus()
	}
	return c.WorkerCount
}

// GetCodecConcurrency 返回同时进行编解码的上限
func (c *Config) GetCodecConcurrency() int {
	if c.CodecConcurrency <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.CodecConcurrency
}

// getCpus 获取默认线程数量
func getCpus() int {
	n := runtime.GOMAXPROCS(0)
	if n < 2 {
		return 2
	}
	return n
}
