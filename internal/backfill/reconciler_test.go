package backfill

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/anoixa/image-resizer/database"
	"github.com/anoixa/image-resizer/database/dbtest"
	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/database/repo/images"
	"github.com/anoixa/image-resizer/internal/resizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBase64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 3, 3))))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func seed(t *testing.T, p database.Provider, key, payload string) *models.OriginalImage {
	o := &models.OriginalImage{ImageKey: key, SessionKey: "s", Payload: payload}
	require.NoError(t, images.NewOriginalRepository(p).Save(context.Background(), o))
	return o
}

func TestRunSizePaginatesAndConverges(t *testing.T) {
	p := dbtest.NewProvider(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c", "d"} {
		seed(t, p, k, pngBase64(t))
	}
	seed(t, p, "broken", "data:image/png;base64,AAAA")

	r := NewReconciler(p, resizer.New(2), []models.TargetSize{models.SizeSmall}, 2)
	report, err := r.RunSize(ctx, models.SizeSmall)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Pages)
	assert.Equal(t, 4, report.Generated)
	assert.Equal(t, 1, report.Sentinels)
	assert.Zero(t, report.Failed)

	missing, err := images.NewOriginalRepository(p).CountMissingDerived(ctx, models.SizeSmall)
	require.NoError(t, err)
	assert.Zero(t, missing)

	again, err := r.RunSize(ctx, models.SizeSmall)
	require.NoError(t, err)
	assert.Zero(t, again.Pages)
	assert.Zero(t, again.Generated+again.Sentinels)
}

func TestRunFillsOnlyGaps(t *testing.T) {
	p := dbtest.NewProvider(t)
	ctx := context.Background()
	derivedRepo := images.NewDerivedRepository(p)

	full := seed(t, p, "full", pngBase64(t))
	partial := seed(t, p, "partial", pngBase64(t))
	sentinelOrig := seed(t, p, "sentinel", models.SentinelPayload)

	out, err := resizer.New(1).Resize(ctx, resizer.SourceOf(full), models.AllTargetSizes())
	require.NoError(t, err)
	for i := range out {
		_, err := derivedRepo.Save(ctx, &out[i])
		require.NoError(t, err)
	}
	small := resizer.Sentinel(resizer.SourceOf(partial), models.SizeSmall)
	_, err = derivedRepo.Save(ctx, &small)
	require.NoError(t, err)

	r := NewReconciler(p, resizer.New(2), models.AllTargetSizes(), 10)
	reports, err := r.Run(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 3)

	bySize := map[string]Report{}
	for _, rep := range reports {
		bySize[rep.Size] = rep
	}
	// small: 只缺 sentinel 原图
	assert.Equal(t, 0, bySize["small"].Generated)
	assert.Equal(t, 1, bySize["small"].Sentinels)
	// medium/large: partial 生成真实图，sentinel 原图生成占位
	assert.Equal(t, 1, bySize["medium"].Generated)
	assert.Equal(t, 1, bySize["medium"].Sentinels)
	assert.Equal(t, 1, bySize["large"].Generated)

	list, err := derivedRepo.ListByOriginalID(ctx, partial.ID)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, err = derivedRepo.ListByOriginalID(ctx, sentinelOrig.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, d := range list {
		assert.True(t, d.IsSentinel())
	}

	assert.Len(t, r.LastReports(), 3)
}

func TestRunSizeHonoursCancel(t *testing.T) {
	p := dbtest.NewProvider(t)
	seed(t, p, "a", pngBase64(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewReconciler(p, resizer.New(1), nil, 10)
	_, err := r.RunSize(ctx, models.SizeLarge)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStartRunsInBackground(t *testing.T) {
	p := dbtest.NewProvider(t)
	seed(t, p, "a", pngBase64(t))

	r := NewReconciler(p, resizer.New(1), []models.TargetSize{models.SizeSmall}, 10)
	r.Start(0)
	r.Start(0)
	defer r.Stop()

	require.Eventually(t, func() bool {
		return len(r.LastReports()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, r.LastReports()[0].Generated)
}
