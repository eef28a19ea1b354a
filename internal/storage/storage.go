// Package storage hands finished recordings to durable storage.
package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
)

// ContentTypeWebM is the content type of recorded videos
const ContentTypeWebM = "video/webm"

// Reference locates a stored artifact
type Reference struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// Store uploads a local file. On success the local file is removed; on failure it
// is left untouched so the upload can be retried by hand.
type Store interface {
	Store(ctx context.Context, localPath, contentType string) (Reference, error)
}

// UploadError is returned when a file could not be stored. The local file still exists.
type UploadError struct {
	Path string
	Key  string
	Err  error
}

func (e *UploadError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("upload %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("upload %s as %s: %v", e.Path, e.Key, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// newKey names an object after a fresh uuid, keeping the file's extension
func newKey(localPath string) string {
	ext := filepath.Ext(localPath)
	if ext == "" {
		ext = ".webm"
	}
	return uuid.New().String() + ext
}
