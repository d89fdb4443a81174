package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitLogger(t *testing.T) {
	defer SetLogger(nil)

	require.NoError(t, InitLogger("debug", "json"))
	assert.NotNil(t, Logger())
	assert.Error(t, InitLogger("loud", "console"))
}

func TestSafeGoRecoversPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	var wg sync.WaitGroup
	wg.Add(1)
	SafeGo(func() {
		defer wg.Done()
		panic("boom")
	})
	wg.Wait()

	assert.Eventually(t, func() bool { return logs.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestSanitizeLogKey(t *testing.T) {
	assert.Equal(t, "abc", SanitizeLogKey("a\x00bc"))
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'k'
	}
	assert.Len(t, SanitizeLogKey(string(long)), 67)
}
