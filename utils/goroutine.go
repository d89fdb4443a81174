package utils

import (
	"runtime/debug"

	"go.uber.org/zap"
)

// SafeGo 拦截 panic 的 goroutine
func SafeGo(fn func()) {
	go func() {
		defer func() {
			if err := recover(); err != nil {
				Logger().Error("[SafeGo] panic recovered",
					zap.Any("panic", err),
					zap.ByteString("stack", debug.Stack()))
			}
		}()
		fn()
	}()
}
