// Package media stores uploaded visit photos on local disk.
package media

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultMaxBytes is the per-file upload limit.
const DefaultMaxBytes = 5 * 1024 * 1024

var (
	// ErrUnsupportedType is returned for files that are not an allowed image type.
	ErrUnsupportedType = errors.New("unsupported file type (allowed: .jpg, .jpeg, .png, .gif, .webp)")
	// ErrTooLarge is returned when a file exceeds the size limit.
	ErrTooLarge = errors.New("file is too large")
	// ErrInvalidKey is returned for keys that do not name a stored file.
	ErrInvalidKey = errors.New("invalid media key")
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Store saves files under a directory using random keys.
type Store struct {
	dir      string
	maxBytes int64
}

// NewStore creates the directory if needed and returns a store rooted there.
func NewStore(dir string, maxBytes int64) (*Store, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media directory %s: %w", dir, err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// MaxBytes returns the per-file size limit.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Save validates and writes an uploaded image, returning its key. filename is
// only used for its extension.
func (s *Store) Save(filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", ErrUnsupportedType
	}

	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("reading upload: %w", err)
	}
	if !strings.HasPrefix(http.DetectContentType(head), "image/") {
		return "", ErrUnsupportedType
	}

	key := uuid.NewString() + ext
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		// No-op once renamed.
		_ = os.Remove(tmp.Name())
	}()

	n, err := io.Copy(tmp, io.LimitReader(br, s.maxBytes+1))
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("writing upload: %w", err)
	}
	if n > s.maxBytes {
		return "", fmt.Errorf("%w (max %d MB)", ErrTooLarge, s.maxBytes/(1024*1024))
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, key)); err != nil {
		return "", fmt.Errorf("storing upload: %w", err)
	}
	return key, nil
}

// Remove deletes a stored file. Missing files are not an error.
func (s *Store) Remove(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

// Open returns a reader for a stored file.
func (s *Store) Open(key string) (*os.File, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Handler serves stored files. Mount it with http.StripPrefix.
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, err := s.path(strings.TrimPrefix(r.URL.Path, "/"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "private, max-age=86400")
		http.ServeFile(w, r, path)
	})
}

// path maps a key to a file inside the store, rejecting anything that could
// escape the directory.
func (s *Store) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", ErrInvalidKey
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(key))] {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.dir, key), nil
}
