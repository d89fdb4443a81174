package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anoixa/image-resizer/api/middleware"
	"github.com/anoixa/image-resizer/cache"
	"github.com/anoixa/image-resizer/config"
	"github.com/anoixa/image-resizer/database/dbtest"
	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/internal/backfill"
	"github.com/anoixa/image-resizer/internal/directory"
	"github.com/anoixa/image-resizer/internal/feed"
	"github.com/anoixa/image-resizer/internal/ingest"
	"github.com/anoixa/image-resizer/internal/library"
	"github.com/anoixa/image-resizer/internal/resizer"
	"github.com/anoixa/image-resizer/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status string          `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	p := dbtest.NewProvider(t)
	targets := []models.TargetSize{models.SizeSmall, models.SizeMedium}
	r := resizer.New(2)
	registry := feed.NewRegistry(16, time.Minute)
	pipeline := ingest.NewPipeline(p, r, targets, registry)
	pool := worker.NewPool(2, 16)
	t.Cleanup(pool.Stop)

	provider, err := cache.NewProvider(cache.TypeMemory, nil)
	require.NoError(t, err)
	cacheFactory := cache.NewFactoryWithProvider(provider, time.Minute)
	t.Cleanup(func() { _ = cacheFactory.Close() })

	dirs := directory.NewService(p, pipeline)
	_, err = dirs.EnsureRoot(context.Background())
	require.NoError(t, err)

	deps := &RouterDependencies{
		DB:         p,
		Library:    library.NewService(p, ingest.NewSubmitter(pipeline, pool, time.Minute), dirs, cacheFactory),
		Feed:       registry,
		Reconciler: backfill.NewReconciler(p, r, targets, 10),
		Pool:       pool,
		Cache:      cacheFactory,
		Targets:    targets,
		Config:     &config.Config{WorkerCount: 2},
	}
	router, cleanup := setupRouter(deps)
	t.Cleanup(cleanup)
	return router
}

func do(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.SessionHeader, "test-session")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"ok"`)
	assert.Contains(t, w.Body.String(), `"cache":"ok"`)
}

func TestVersionAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	w, env := do(t, router, http.MethodGet, "/version", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), config.Version)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# HELP")
}

func TestUploadAndListFlow(t *testing.T) {
	router := newTestRouter(t)

	w, env := do(t, router, http.MethodPost, "/images/upload", []models.ImageDTO{
		{ImageKey: "k1", Name: "one", Base64: pngBase64(t, 1, 1)},
		{ImageKey: "k2", Name: "bad", Base64: "not-a-data-url"},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var accepted struct {
		SessionKey string        `json:"session_key"`
		Ticket     ingest.Ticket `json:"ticket"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &accepted))
	assert.Equal(t, "test-session", accepted.SessionKey)

	require.Eventually(t, func() bool {
		_, env := do(t, router, http.MethodGet, "/images/uploads/"+accepted.Ticket.ID, nil)
		var ticket ingest.Ticket
		if json.Unmarshal(env.Data, &ticket) != nil {
			return false
		}
		return ticket.Done()
	}, 5*time.Second, 20*time.Millisecond)

	w, env = do(t, router, http.MethodGet, "/images/resized?size=small", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.ImageDTO
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 2)

	sentinels := 0
	for _, img := range list {
		if img.Base64 == models.SentinelPayload {
			sentinels++
		} else {
			assert.Equal(t, 50, img.Width)
		}
	}
	assert.Equal(t, 1, sentinels)

	w, env = do(t, router, http.MethodGet, "/images/resized/key/k1?size=medium", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, 200, list[0].Width)

	w, env = do(t, router, http.MethodGet, "/images/resized/all?size=medium", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 2)

	w, _ = do(t, router, http.MethodGet, "/images/resized?size=giant", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = do(t, router, http.MethodGet, "/images/original/k1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var original models.ImageDTO
	require.NoError(t, json.Unmarshal(env.Data, &original))
	assert.Equal(t, 1, original.Width)

	w, _ = do(t, router, http.MethodDelete, "/images/k1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, router, http.MethodGet, "/images/original/k1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadValidation(t *testing.T) {
	router := newTestRouter(t)

	w, _ := do(t, router, http.MethodPost, "/images/upload", map[string]string{"not": "an array"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, router, http.MethodPost, "/images/upload", []models.ImageDTO{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, router, http.MethodPost, "/images/upload?directoryKey=missing", []models.ImageDTO{{ImageKey: "a"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, router, http.MethodGet, "/images/uploads/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDirectoryEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w, env := do(t, router, http.MethodGet, "/directories/root", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dir models.DirectoryDTO
	require.NoError(t, json.Unmarshal(env.Data, &dir))
	assert.Equal(t, models.RootDirectoryKey, dir.DirectoryKey)

	w, env = do(t, router, http.MethodPost, "/directories", models.DirectoryDTO{
		Name:           "Trip",
		DirectoryKey:   "trip",
		SubDirectories: []models.DirectoryDTO{{Name: "Day", DirectoryKey: "day"}},
		Images:         []models.ImageDTO{{ImageKey: "t1", Base64: pngBase64(t, 2, 2)}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &dir))
	assert.Equal(t, 1, dir.ImageCount)
	assert.Equal(t, 1, dir.SubDirectoriesCount)

	w, env = do(t, router, http.MethodGet, "/directories/root", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &dir))
	assert.Equal(t, 1, dir.SubDirectoriesCount)

	w, env = do(t, router, http.MethodGet, "/directories/trip/children", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var children []models.DirectoryDTO
	require.NoError(t, json.Unmarshal(env.Data, &children))
	require.Len(t, children, 1)
	assert.Equal(t, "day", children[0].DirectoryKey)

	w, env = do(t, router, http.MethodGet, "/directories/day/parent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &dir))
	assert.Equal(t, "trip", dir.DirectoryKey)

	w, env = do(t, router, http.MethodGet, "/directories/trip?tree=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &dir))
	require.Len(t, dir.Images, 1)
	assert.Empty(t, dir.Images[0].Base64)

	w, env = do(t, router, http.MethodGet, "/images/resized/directory/trip?size=small", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.ImageDTO
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	w, env = do(t, router, http.MethodPut, "/directories", models.DirectoryDTO{Name: "Trip!", DirectoryKey: "trip"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &dir))
	assert.Equal(t, "Trip!", dir.Name)
	assert.Zero(t, dir.ImageCount)

	w, _ = do(t, router, http.MethodGet, "/directories/day", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, router, http.MethodDelete, "/directories/root", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = do(t, router, http.MethodDelete, "/directories/trip", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, router, http.MethodGet, "/directories/trip/children", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, router, http.MethodPost, "/directories", models.DirectoryDTO{Name: "no key"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMaintenanceEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w, env := do(t, router, http.MethodPost, "/maintenance/backfill", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reports []backfill.Report
	require.NoError(t, json.Unmarshal(env.Data, &reports))
	assert.Len(t, reports, 2)

	w, env = do(t, router, http.MethodGet, "/maintenance/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"missing"`)
	assert.Contains(t, string(env.Data), `"worker_pool"`)
}
