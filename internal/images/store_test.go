package images

import (
	"errors"
	"strings"
	"testing"
)

func TestStore_SaveAndOpen(t *testing.T) {
	store := NewStore(t.TempDir())

	pngData := []byte("\x89PNG\r\n\x1a\nfake image bytes")
	filename, err := store.Save(pngData)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if !strings.HasPrefix(filename, "image_") || !strings.HasSuffix(filename, ".png") {
		t.Errorf("filename = %q, want image_*.png shape", filename)
	}
	if !filenamePattern.MatchString(filename) {
		t.Errorf("filename %q does not match its own validation pattern", filename)
	}

	got, err := store.Open(filename)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if string(got) != string(pngData) {
		t.Error("Open() returned different data than saved")
	}
}

func TestStore_SaveGeneratesUniqueNames(t *testing.T) {
	store := NewStore(t.TempDir())

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		filename, err := store.Save([]byte("data"))
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if seen[filename] {
			t.Fatalf("duplicate filename %q", filename)
		}
		seen[filename] = true
	}
}

func TestStore_SaveRejectsEmpty(t *testing.T) {
	store := NewStore(t.TempDir())

	if _, err := store.Save(nil); err == nil {
		t.Error("Save(nil) error = nil, want error")
	}
}

func TestStore_OpenValidation(t *testing.T) {
	store := NewStore(t.TempDir())

	tests := []struct {
		name     string
		filename string
		wantErr  error
	}{
		{"path traversal", "../../etc/passwd", ErrInvalidFilename},
		{"wrong extension", "image_1_00000000-0000-0000-0000-000000000000.jpg", ErrInvalidFilename},
		{"arbitrary name", "evil.png", ErrInvalidFilename},
		{"valid shape but missing", "image_1_00000000-0000-0000-0000-000000000000.png", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Open(tt.filename)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Open(%q) error = %v, want %v", tt.filename, err, tt.wantErr)
			}
		})
	}
}

func TestStore_URL(t *testing.T) {
	store := NewStore(t.TempDir())

	if got := store.URL("image_1_x.png"); got != "/images/image_1_x.png" {
		t.Errorf("URL() = %q, want /images/ prefix", got)
	}
}
