package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/checksum"
	"github.com/starford/folio/internal/models"
)

// tempPattern names in-flight writes. The leading dot keeps them out of
// List and the watcher.
const tempPattern = ".folio-tmp-*"

// FS stores articles as files under a single directory.
type FS struct {
	root string
}

// NewFS returns an FS rooted at dir, which must already exist.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	switch {
	case err != nil:
		return nil, fmt.Errorf("storage: stat root: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute content root.
func (f *FS) Root() string { return f.root }

// resolve maps a slash-separated article path to an absolute file path and
// refuses anything outside the root.
func (f *FS) resolve(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	local := filepath.FromSlash(rel)
	if filepath.IsAbs(local) || !filepath.IsLocal(local) {
		return "", fmt.Errorf("storage: path %q leaves the content root: %w", rel, apperr.ErrValidation)
	}
	return filepath.Join(f.root, local), nil
}

// wrap tags a missing file with apperr.ErrNotFound while keeping the
// underlying *PathError.
func wrap(op, rel string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: %s %s: %w: %w", op, rel, apperr.ErrNotFound, err)
	}
	return fmt.Errorf("storage: %s %s: %w", op, rel, err)
}

// List returns every article under dir with its checksum. Dot-directories
// are skipped.
func (f *FS) List(dir string) ([]models.ArticleMetadata, error) {
	base, err := f.resolve(dir)
	if err != nil {
		return nil, err
	}
	var out []models.ArticleMetadata
	walk := func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != base && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsArticle(d.Name()) {
			return nil
		}
		meta, err := f.stat(p)
		if err != nil {
			return err
		}
		out = append(out, meta)
		return nil
	}
	if err := filepath.WalkDir(base, walk); err != nil {
		return nil, wrap("list", dir, err)
	}
	return out, nil
}

func (f *FS) stat(abs string) (models.ArticleMetadata, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return models.ArticleMetadata{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return models.ArticleMetadata{}, err
	}
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return models.ArticleMetadata{}, err
	}
	return models.ArticleMetadata{
		Path:      filepath.ToSlash(rel),
		Checksum:  checksum.Sum(data),
		UpdatedAt: info.ModTime(),
	}, nil
}

// Exists reports whether an article file is present at rel.
func (f *FS) Exists(rel string) (bool, error) {
	abs, err := f.resolve(rel)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, wrap("stat", rel, err)
	}
	return info.Mode().IsRegular(), nil
}

// Read returns the file at rel.
func (f *FS) Read(rel string) ([]byte, error) {
	abs, err := f.resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, wrap("read", rel, err)
	}
	return data, nil
}

// Write replaces the file at rel so readers see either the old or the new
// bytes, never a prefix.
func (f *FS) Write(rel string, data []byte) error {
	abs, err := f.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return wrap("mkdir", rel, err)
	}
	if err := writeAtomic(abs, data); err != nil {
		return wrap("write", rel, err)
	}
	return nil
}

func writeAtomic(abs string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(abs), tempPattern)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), abs)
}

// Delete removes the file at rel and any directories it leaves empty.
func (f *FS) Delete(rel string) error {
	abs, err := f.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return wrap("delete", rel, err)
	}
	f.prune(filepath.Dir(abs))
	return nil
}

// Move renames from to to. An existing file at to is never overwritten.
func (f *FS) Move(from, to string) error {
	src, err := f.resolve(from)
	if err != nil {
		return err
	}
	dst, err := f.resolve(to)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("storage: move %s: %s: %w", from, to, apperr.ErrAlreadyExists)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return wrap("mkdir", to, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return wrap("move", from, err)
	}
	f.prune(filepath.Dir(src))
	return nil
}

// prune removes dir and its parents while they are empty, stopping at the
// root. os.Remove refuses non-empty directories, which ends the climb.
func (f *FS) prune(dir string) {
	for dir != f.root && strings.HasPrefix(dir, f.root+string(os.PathSeparator)) {
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
