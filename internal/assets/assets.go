// Package assets stores uploaded images and videos and turns them into blocks.
package assets

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/content"
)

const (
	// URLPrefix is where stored assets are served from.
	URLPrefix = "/api/assets/"
	// MaxSize bounds a single upload.
	MaxSize = 50 << 20
)

var (
	imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true}
	videoExts = map[string]bool{".mp4": true, ".webm": true}

	mimeToExt = map[string]string{
		"image/png":     ".png",
		"image/jpeg":    ".jpg",
		"image/gif":     ".gif",
		"image/webp":    ".webp",
		"image/svg+xml": ".svg",
		"video/mp4":     ".mp4",
		"video/webm":    ".webm",
	}

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// Asset describes a stored file and the block that embeds it.
type Asset struct {
	Filename string        `json:"filename"`
	Original string        `json:"original"`
	Size     int64         `json:"size"`
	URL      string        `json:"url"`
	Block    content.Block `json:"block"`
	HTML     string        `json:"html"`
}

// Store keeps assets in one flat directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created on first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the asset directory.
func (s *Store) Dir() string { return s.dir }

// Save validates data against the extension of original and stores it under
// a fresh name.
func (s *Store) Save(original string, data []byte) (*Asset, error) {
	original = SanitizeFilename(original)
	ext := strings.ToLower(filepath.Ext(original))
	if !imageExts[ext] && !videoExts[ext] {
		return nil, fmt.Errorf("unsupported file extension %q (allowed: png, jpg, jpeg, gif, webp, svg, mp4, webm): %w", ext, apperr.ErrValidation)
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d): %w", len(data), MaxSize, apperr.ErrValidation)
	}
	if err := validateMagicBytes(data, ext); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("assets: mkdir: %w", err)
	}
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return nil, fmt.Errorf("assets: write: %w", err)
	}

	url := URLPrefix + name
	b := content.NewBlock(content.TypeVideo)
	b.VideoURL = url
	if imageExts[ext] {
		b = content.NewBlock(content.TypeImage)
		b.ImageURL = url
		b.ImageAlt = strings.TrimSuffix(original, filepath.Ext(original))
	}
	return &Asset{
		Filename: name,
		Original: original,
		Size:     int64(len(data)),
		URL:      url,
		Block:    b,
		HTML:     content.Encode([]content.Block{b}),
	}, nil
}

// Path resolves a stored asset name, rejecting anything that is not a plain
// file name inside the store.
func (s *Store) Path(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required: %w", apperr.ErrValidation)
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("invalid filename %q: %w", name, apperr.ErrValidation)
	}
	abs := filepath.Join(s.dir, cleaned)
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("asset %s: %w", name, apperr.ErrNotFound)
	}
	return abs, nil
}

// ExtForMIME maps a content type to a file extension, or "".
func ExtForMIME(mime string) string {
	return mimeToExt[strings.TrimSpace(strings.Split(mime, ";")[0])]
}

// SanitizeFilename strips path separators and unsafe characters.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == "/" {
		name = uuid.NewString()
	}
	return name
}

// validateMagicBytes verifies file content matches the declared extension.
func validateMagicBytes(data []byte, ext string) error {
	if ext == ".svg" {
		prefix := data
		if len(prefix) > 1024 {
			prefix = prefix[:1024]
		}
		if !bytes.Contains(prefix, []byte("<svg")) {
			return fmt.Errorf("content does not appear to be a valid SVG: %w", apperr.ErrValidation)
		}
		return nil
	}

	detected := http.DetectContentType(data)
	got := ExtForMIME(detected)
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	if got != ext {
		return fmt.Errorf("content does not match extension %s (detected: %s): %w", ext, detected, apperr.ErrValidation)
	}
	return nil
}
