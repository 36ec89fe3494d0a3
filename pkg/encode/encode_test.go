package encode

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func TestLoadRoundTrip(t *testing.T) {
	raw := pngBytes(t)
	path := filepath.Join(t.TempDir(), "scan.png")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	img, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "scan.png", img.Name)
	assert.Equal(t, "image/png", img.MIME)
	assert.Equal(t, raw, img.Raw)

	decoded, err := decode(img.Base64)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestRoundTripArbitraryBytes(t *testing.T) {
	for _, raw := range [][]byte{{}, {0}, {0xff, 0xfe, 0x00, 0x01}, bytes.Repeat([]byte("abc"), 1000)} {
		decoded, err := decode(FromBytes("x.png", raw).Base64)
		require.NoError(t, err)
		assert.Equal(t, len(raw), len(decoded))
		assert.True(t, bytes.Equal(raw, decoded))
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.png"))
	assert.Error(t, err)
}

func TestDataURL(t *testing.T) {
	img := FromBytes("a.png", []byte("hi"))
	assert.Equal(t, "data:image/png;base64,aGk=", img.DataURL())
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, "image/png", DetectMIME("x.jpg", pngBytes(t)))
	assert.Equal(t, "image/jpeg", DetectMIME("photo.JPEG", []byte("not an image")))
	assert.Equal(t, "image/png", DetectMIME("noext", nil))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.png"))
	assert.True(t, Supported("a.JPG"))
	assert.True(t, Supported("dir/a.jpeg"))
	assert.False(t, Supported("a.gif"))
	assert.False(t, Supported("png"))
}
