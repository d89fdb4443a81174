package resizer

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"testing"

	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload(t *testing.T, format string, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return "data:image/" + format + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestResizeAllTargets(t *testing.T) {
	r := New(2)
	src := Source{OriginalID: 7, ImageKey: "k", Name: "n", SessionKey: "s", Payload: payload(t, "png", 1, 1)}

	out, err := r.Resize(context.Background(), src, models.AllTargetSizes())
	require.NoError(t, err)
	require.Len(t, out, 3)

	for i, size := range models.AllTargetSizes() {
		d := out[i]
		assert.Equal(t, size.Name, d.Size)
		assert.Equal(t, size.Width, d.Width)
		assert.Equal(t, size.Height, d.Height)
		assert.Equal(t, uint(7), d.OriginalImageID)
		assert.Equal(t, "k", d.ImageKey)
		assert.Equal(t, "s", d.SessionKey)
		assert.False(t, d.IsSentinel())

		back, err := codec.Decode(d.Payload)
		require.NoError(t, err)
		assert.Equal(t, size.Width, back.Width())
		assert.Equal(t, size.Height, back.Height())
	}
}

func TestResizeEncodeFailureYieldsSentinels(t *testing.T) {
	// 声明为 webp 的 png 数据可以解码，但无法以 webp 编码
	src := Source{ImageKey: "w", Payload: payload(t, "webp", 2, 2)}

	out, err := New(1).Resize(context.Background(), src, []models.TargetSize{models.SizeSmall, models.SizeLarge})
	require.NoError(t, err)
	require.Len(t, out, 2)
	for i, size := range []models.TargetSize{models.SizeSmall, models.SizeLarge} {
		assert.True(t, out[i].IsSentinel())
		assert.Equal(t, size.Name, out[i].Size)
		assert.Equal(t, models.SentinelPayload, out[i].Payload)
	}
}

func TestResizeDecodeFailure(t *testing.T) {
	_, err := New(1).Resize(context.Background(), Source{Payload: "garbage"}, models.AllTargetSizes())
	assert.ErrorIs(t, err, codec.ErrDecode)
}

func TestResizeHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(1)
	require.NoError(t, r.sem.Acquire(context.Background(), 1))
	defer r.sem.Release(1)

	_, err := r.Resize(ctx, Source{Payload: payload(t, "png", 1, 1)}, models.AllTargetSizes())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSentinels(t *testing.T) {
	src := Source{OriginalID: 1, ImageKey: "k"}
	out := Sentinels(src, models.AllTargetSizes())
	require.Len(t, out, 3)
	assert.Equal(t, "large", out[2].Size)
	assert.Zero(t, out[2].Width)
}
