// Package images stores generated PNG files and serves them back by name.
//
// Filenames are generated server-side from a timestamp and a UUID, so the
// serving path only ever has to validate against that exact shape. Nothing
// user-controlled reaches the filesystem.
package images

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxImageSizeBytes is the maximum size for a stored image.
	MaxImageSizeBytes = 50 * 1024 * 1024 // 50MB
)

var (
	// ErrInvalidFilename is returned when a requested filename does not
	// match the generated shape.
	ErrInvalidFilename = errors.New("invalid image filename")

	// ErrNotFound is returned when a valid filename has no stored image.
	ErrNotFound = errors.New("image not found")

	// ErrImageTooLarge is returned when image data exceeds MaxImageSizeBytes.
	ErrImageTooLarge = errors.New("image exceeds maximum size")
)

// filenamePattern matches the filenames Save produces.
var filenamePattern = regexp.MustCompile(`^image_[0-9]+_[0-9a-f-]{36}\.png$`)

// Store manages generated image files in a single directory.
type Store struct {
	dir string
}

// NewStore creates an image store rooted at dir.
// The directory is created on first save, not here.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes PNG data to a new file and returns its generated filename.
// The write is atomic (temp file plus rename).
func (s *Store) Save(pngData []byte) (string, error) {
	if len(pngData) == 0 {
		return "", errors.New("image data is empty")
	}
	if len(pngData) > MaxImageSizeBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrImageTooLarge, len(pngData))
	}

	// Create images directory (0700: owner-only access)
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create images directory: %w", err)
	}

	filename := fmt.Sprintf("image_%d_%s.png", time.Now().UnixMilli(), uuid.NewString())
	path := filepath.Join(s.dir, filename)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, pngData, 0600); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to commit image file: %w", err)
	}

	return filename, nil
}

// Open returns the PNG data for a previously saved filename.
func (s *Store) Open(filename string) ([]byte, error) {
	if !filenamePattern.MatchString(filename) {
		return nil, ErrInvalidFilename
	}

	data, err := os.ReadFile(filepath.Join(s.dir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}

	return data, nil
}

// URL returns the serving path for a stored filename.
func (s *Store) URL(filename string) string {
	return "/images/" + filename
}
