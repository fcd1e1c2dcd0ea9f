package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// LocalStorage implements BlobStorage on the local filesystem.
// Writes go to a temporary file and are renamed into place, so readers
// never observe a partially written photo.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Error().Err(err).Str("path", basePath).Msg("failed to create storage directory")
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	log.Info().Str("path", basePath).Msg("local storage initialized")
	return &LocalStorage{basePath: basePath}, nil
}

// resolve maps a key to a path under basePath
func (ls *LocalStorage) resolve(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return filepath.Join(ls.basePath, clean), nil
}

// Store saves content with an atomic rename and logs its checksum
func (ls *LocalStorage) Store(ctx context.Context, key string, content io.Reader, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := ls.resolve(key)
	if err != nil {
		return err
	}

	startTime := time.Now()
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Error().Err(err).Str("key", key).Str("dir", dir).Msg("failed to create directory")
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, filepath.Base(fullPath)+".tmp.*")
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to create temporary file")
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempPath := tempFile.Name()
	committed := false
	defer func() {
		if !committed {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tempFile, hasher), &contextReader{ctx: ctx, r: content})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to write content to temporary file")
		return fmt.Errorf("failed to write content: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to move temporary file to final location")
		return fmt.Errorf("failed to move file to final location: %w", err)
	}
	committed = true

	log.Info().
		Str("key", key).
		Str("content_type", contentType).
		Int64("bytes_written", written).
		Str("checksum", hex.EncodeToString(hasher.Sum(nil))).
		Dur("duration", time.Since(startTime)).
		Msg("object stored")

	return nil
}

// Retrieve opens the stored file for reading
func (ls *LocalStorage) Retrieve(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := ls.resolve(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("key", key).Msg("object not found")
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		log.Error().Err(err).Str("key", key).Msg("failed to open file")
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete removes the file; a missing file is not an error
func (ls *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := ls.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("key", key).Msg("object already deleted or does not exist")
			return nil
		}
		log.Error().Err(err).Str("key", key).Msg("failed to delete file")
		return fmt.Errorf("failed to delete file: %w", err)
	}

	log.Info().Str("key", key).Msg("object deleted")
	return nil
}

// Exists reports whether a regular file is stored under key
func (ls *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := ls.GetSize(ctx, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetSize returns the size of the stored file
func (ls *LocalStorage) GetSize(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	fullPath, err := ls.resolve(key)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		log.Error().Err(err).Str("key", key).Msg("failed to get file info")
		return 0, fmt.Errorf("failed to get file info: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}

	return info.Size(), nil
}

// contextReader stops a copy once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
