package utils

import (
	"fmt"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/anoixa/image-resizer/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalLogger atomic.Pointer[zap.Logger]

func init() {
	globalLogger.Store(zap.NewNop())
}

// InitLogger 初始化全局日志，format 取 json 或 console
func InitLogger(level, format string) error {
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

// SetLogger 替换全局日志实例
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	globalLogger.Store(l)
}

// Logger 返回全局日志实例，未初始化时为 Nop
func Logger() *zap.Logger {
	return globalLogger.Load()
}

// SyncLogger 刷新缓冲的日志
func SyncLogger() {
	_ = Logger().Sync()
}

// LogIfDev 仅在开发环境输出调试日志
func LogIfDev(msg string, fields ...zap.Field) {
	if config.IsDevelopment() {
		Logger().Debug(msg, fields...)
	}
}

// LogIfDevf 仅在开发环境输出格式化调试日志
func LogIfDevf(format string, args ...interface{}) {
	if config.IsDevelopment() {
		Logger().Sugar().Debugf(format, args...)
	}
}

// SanitizeLogMessage 去除不可打印字符，防止日志注入
func SanitizeLogMessage(msg string) string {
	var sb strings.Builder
	for _, r := range msg {
		if r == 10 || r == 9 {
			sb.WriteRune(r)
		} else if unicode.IsPrint(r) || unicode.IsGraphic(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// SanitizeLogKey 截断并清理客户端传入的键
func SanitizeLogKey(key string) string {
	if len(key) > 64 {
		key = key[:64] + "..."
	}
	return SanitizeLogMessage(key)
}
