package config

import (
	"runtime"
	"testing"

	"github.com/anoixa/image-resizer/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddr(t *testing.T) {
	assert.Equal(t, "0.0.0.0:8080", (&Config{}).Addr())
	assert.Equal(t, "127.0.0.1:9000", (&Config{ServerHost: "127.0.0.1", ServerPort: 9000}).Addr())
}

func TestGetTargetSizes(t *testing.T) {
	cfg := &Config{TargetSizes: "small, large"}
	sizes, err := cfg.GetTargetSizes()
	require.NoError(t, err)
	assert.Equal(t, []models.TargetSize{models.SizeSmall, models.SizeLarge}, sizes)

	cfg.TargetSizes = ""
	sizes, err = cfg.GetTargetSizes()
	require.NoError(t, err)
	assert.Len(t, sizes, 3)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, (&Config{DBType: "sqlite", TargetSizes: "medium"}).Validate())
	assert.Error(t, (&Config{DBType: "sqlite", TargetSizes: "gigantic"}).Validate())
	assert.Error(t, (&Config{DBType: "mysql"}).Validate())
}

func TestGetCorsOrigins(t *testing.T) {
	cfg := &Config{CorsAllowOrigins: "http://a.test, ,http://b.test"}
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.GetCorsOrigins())
}

func TestWorkerDefaults(t *testing.T) {
	cfg := &Config{}
	assert.GreaterOrEqual(t, cfg.GetWorkerCount(), 2)
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.GetCodecConcurrency())

	cfg.WorkerCount = 3
	cfg.CodecConcurrency = 1
	assert.Equal(t, 3, cfg.GetWorkerCount())
	assert.Equal(t, 1, cfg.GetCodecConcurrency())
}

func TestVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, IsDevelopment(), Version == "dev")
}
