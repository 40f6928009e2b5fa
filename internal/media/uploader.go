package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Uploader is the store-blob-get-URL capability. Third-party media hosts
// sit behind this seam.
type Uploader interface {
	Store(ctx context.Context, dataURL string) (url string, err error)
}

// LocalUploader stores decoded data URLs on the local disk and serves
// them under /media/.
type LocalUploader struct {
	dir string
}

// NewLocalUploader creates an uploader writing into dir.
func NewLocalUploader(dir string) (*LocalUploader, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalUploader{dir: dir}, nil
}

// Store decodes a base64 data URL (data:image/png;base64,...) and writes
// it under a fresh name, returning the public URL path.
func (u *LocalUploader) Store(_ context.Context, dataURL string) (string, error) {
	mime, b64, ok := splitDataURL(dataURL)
	if !ok {
		return "", fmt.Errorf("not a base64 data URL")
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("decode image data: %w", err)
	}

	name := uuid.New().String() + extFor(mime)
	if err := os.WriteFile(filepath.Join(u.dir, name), data, 0600); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}
	return "/media/" + name, nil
}

// Dir returns the directory served under /media/.
func (u *LocalUploader) Dir() string { return u.dir }

func splitDataURL(s string) (mime, b64 string, ok bool) {
	if !strings.HasPrefix(s, "data:") {
		return "", "", false
	}
	rest := strings.TrimPrefix(s, "data:")
	meta, b64, found := strings.Cut(rest, ",")
	if !found || !strings.HasSuffix(meta, ";base64") {
		return "", "", false
	}
	return strings.TrimSuffix(meta, ";base64"), b64, true
}

func extFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
