// Package codec 负责 data URL 形式的图片载荷与位图之间的转换
package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrDecode = errors.New("image decode failed")
	ErrEncode = errors.New("image encode failed")
)

// Stage 出错的阶段
type Stage string

const (
	StageDecode Stage = "decode"
	StageEncode Stage = "encode"
)

// Error 编解码错误，可用 errors.Is 与 ErrDecode / ErrEncode 比较
type Error struct {
	Stage  Stage
	Format string
	Err    error
}

func (e *Error) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("%s %s: %v", e.Stage, e.Format, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrDecode:
		return e.Stage == StageDecode
	case ErrEncode:
		return e.Stage == StageEncode
	}
	return false
}

func decodeErr(format string, err error) error {
	return &Error{Stage: StageDecode, Format: format, Err: err}
}

func encodeErr(format string, err error) error {
	return &Error{Stage: StageEncode, Format: format, Err: err}
}

// Decoded 解码结果
type Decoded struct {
	Image  image.Image
	Format string // data URL 中声明的格式，例如 png、jpeg
}

// Width 原图宽度
func (d *Decoded) Width() int {
	return d.Image.Bounds().Dx()
}

// Height 原图高度
func (d *Decoded) Height() int {
	return d.Image.Bounds().Dy()
}

// ParseFormat 从 data URL 前缀中取出格式，即 "/" 与 ";" 之间的部分
func ParseFormat(payload string) (string, error) {
	comma := strings.IndexByte(payload, ',')
	if comma < 0 {
		return "", decodeErr("", errors.New("missing data url separator"))
	}
	return formatOf(payload[:comma])
}

func formatOf(prefix string) (string, error) {
	slash := strings.IndexByte(prefix, '/')
	semi := strings.IndexByte(prefix, ';')
	if slash < 0 || semi < 0 || semi <= slash+1 {
		return "", decodeErr("", fmt.Errorf("malformed data url prefix %q", prefix))
	}
	return prefix[slash+1 : semi], nil
}

// Decode 解析 data:image/<format>;base64,<data> 形式的载荷
func Decode(payload string) (*Decoded, error) {
	comma := strings.IndexByte(payload, ',')
	if comma < 0 {
		return nil, decodeErr("", errors.New("missing data url separator"))
	}
	format, err := formatOf(payload[:comma])
	if err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(payload[comma+1:])
	if err != nil {
		return nil, decodeErr(format, fmt.Errorf("invalid base64: %w", err))
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, decodeErr(format, err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, decodeErr(format, errors.New("empty image"))
	}

	return &Decoded{Image: img, Format: format}, nil
}

// Encode 将位图拉伸到 width x height 并以 format 重新编码为 data URL
// 不保持宽高比
func Encode(img image.Image, format string, width, height int) (string, error) {
	if width <= 0 || height <= 0 {
		return "", encodeErr(format, fmt.Errorf("invalid target size %dx%d", width, height))
	}
	f, err := imaging.FormatFromExtension(format)
	if err != nil {
		return "", encodeErr(format, err)
	}

	dst := imaging.Resize(img, width, height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, f); err != nil {
		return "", encodeErr(format, err)
	}

	return "data:image/" + format + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
