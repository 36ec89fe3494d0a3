package encode

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
)

const defaultMIME = "image/png"

var (
	fileSystem = afs.New()

	exts = map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
	}
)

// Image is one encoded upload, alive for a single recognition.
type Image struct {
	Name   string
	MIME   string
	Raw    []byte
	Base64 string
}

// Load reads the image at path (a local path or any afs URL) and encodes it.
func Load(ctx context.Context, path string) (*Image, error) {
	data, err := fileSystem.DownloadWithURL(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read image %s failed: %w", path, err)
	}
	return FromBytes(filepath.Base(path), data), nil
}

func FromBytes(name string, raw []byte) *Image {
	return &Image{
		Name:   name,
		MIME:   DetectMIME(name, raw),
		Raw:    raw,
		Base64: base64.StdEncoding.EncodeToString(raw),
	}
}

// DataURL returns the image as a data: URL, as used in image_url parts.
func (i *Image) DataURL() string {
	return "data:" + i.MIME + ";base64," + i.Base64
}

// DetectMIME sniffs the content first, then the extension, then falls back to png.
func DetectMIME(name string, raw []byte) string {
	if len(raw) > 0 {
		ct := http.DetectContentType(raw)
		if strings.HasPrefix(ct, "image/") {
			return ct
		}
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := exts[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return defaultMIME
}

// Supported reports whether the file name carries an accepted upload extension.
func Supported(name string) bool {
	_, ok := exts[strings.ToLower(filepath.Ext(name))]
	return ok
}
