package codec

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngPayload(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 20), G: uint8(y * 20), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecode(t *testing.T) {
	d, err := Decode(pngPayload(t, 10, 5))
	require.NoError(t, err)
	assert.Equal(t, "png", d.Format)
	assert.Equal(t, 10, d.Width())
	assert.Equal(t, 5, d.Height())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"no comma", "not a data url"},
		{"no format", "data:;base64,AAAA"},
		{"bad base64", "data:image/png;base64,@@@"},
		{"not an image", "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.payload)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecode)
			assert.NotErrorIs(t, err, ErrEncode)

			var cerr *Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, StageDecode, cerr.Stage)
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("data:image/jpeg;base64,xyz")
	require.NoError(t, err)
	assert.Equal(t, "jpeg", f)

	_, err = ParseFormat("data:image/jpeg")
	assert.ErrorIs(t, err, ErrDecode)
}

func TestEncodeStretchesToTarget(t *testing.T) {
	d, err := Decode(pngPayload(t, 10, 5))
	require.NoError(t, err)

	for _, size := range [][2]int{{50, 50}, {200, 200}, {300, 300}, {3, 7}} {
		out, err := Encode(d.Image, d.Format, size[0], size[1])
		require.NoError(t, err)
		assert.Contains(t, out, "data:image/png;base64,")

		back, err := Decode(out)
		require.NoError(t, err)
		assert.Equal(t, size[0], back.Width())
		assert.Equal(t, size[1], back.Height())
	}
}

func TestEncodeKeepsFormatToken(t *testing.T) {
	d, err := Decode(pngPayload(t, 4, 4))
	require.NoError(t, err)

	for _, format := range []string{"jpeg", "jpg", "gif", "bmp", "tiff"} {
		out, err := Encode(d.Image, format, 8, 8)
		require.NoError(t, err, format)

		back, err := Decode(out)
		require.NoError(t, err, format)
		assert.Equal(t, format, back.Format)
		assert.Equal(t, 8, back.Width())
	}
}

func TestEncodeErrors(t *testing.T) {
	d, err := Decode(pngPayload(t, 4, 4))
	require.NoError(t, err)

	_, err = Encode(d.Image, "webp", 8, 8)
	assert.ErrorIs(t, err, ErrEncode)

	_, err = Encode(d.Image, "svg+xml", 8, 8)
	assert.ErrorIs(t, err, ErrEncode)

	_, err = Encode(d.Image, "png", 0, 8)
	assert.ErrorIs(t, err, ErrEncode)
}
