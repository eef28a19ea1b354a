package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// LocalStore moves recordings into a directory served under /videos
type LocalStore struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

func NewLocalStore(dir, baseURL string, logger *zap.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create public directory: %w", err)
	}
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("local-store"),
	}, nil
}

func (s *LocalStore) Store(ctx context.Context, localPath, contentType string) (Reference, error) {
	if err := ctx.Err(); err != nil {
		return Reference{}, &UploadError{Path: localPath, Err: err}
	}
	if _, err := os.Stat(localPath); err != nil {
		return Reference{}, &UploadError{Path: localPath, Err: err}
	}

	key := newKey(localPath)
	target := filepath.Join(s.dir, key)

	if err := os.Rename(localPath, target); err != nil {
		// the scratch and public directories may sit on different filesystems
		if err := copyFile(localPath, target); err != nil {
			os.Remove(target)
			return Reference{}, &UploadError{Path: localPath, Key: key, Err: err}
		}
		if err := os.Remove(localPath); err != nil {
			s.logger.Warn("stored but failed to remove local file", zap.String("path", localPath), zap.Error(err))
		}
	}

	s.logger.Info("stored video", zap.String("key", key), zap.String("content_type", contentType))
	return Reference{URL: s.baseURL + "/videos/" + key, Key: key}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
