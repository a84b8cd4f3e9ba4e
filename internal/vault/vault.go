// Package vault abstracts the note vault: enumerating, reading, and statting
// markdown documents under a root directory.
package vault

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// NoteExtension is the file extension of indexable documents.
const NoteExtension = ".md"

// FileInfo describes a vault document.
type FileInfo struct {
	// Path is the document path relative to the vault root, using "/" separators.
	Path string

	// Size is the file size in bytes.
	Size int64

	// Mtime is the last-modified time in Unix milliseconds.
	Mtime int64
}

// Vault enumerates and reads documents of the supported content type.
type Vault interface {
	// List returns all markdown documents in the vault, sorted by path.
	List(ctx context.Context) ([]FileInfo, error)

	// Read returns the current text content of a document.
	Read(ctx context.Context, path string) (string, error)

	// Stat returns the current metadata of a document.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// Exists reports whether a document is present.
	Exists(ctx context.Context, path string) bool

	// Root returns the absolute vault root directory.
	Root() string
}

// DirVault implements Vault over an OS directory.
type DirVault struct {
	root string
}

// NewDirVault creates a vault rooted at dir.
func NewDirVault(dir string) *DirVault {
	return &DirVault{root: dir}
}

// Root returns the absolute vault root directory.
func (v *DirVault) Root() string {
	return v.root
}

// List walks the vault and returns all markdown documents sorted by path.
// Hidden directories (dot-prefixed) are skipped; the data directory lives
// under one of those.
func (v *DirVault) List(ctx context.Context) ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(v.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		name := d.Name()
		if d.IsDir() {
			if path != v.root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are not followed
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if !strings.EqualFold(filepath.Ext(name), NoteExtension) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		rel, err := filepath.Rel(v.root, path)
		if err != nil {
			return nil
		}

		files = append(files, FileInfo{
			Path:  filepath.ToSlash(rel),
			Size:  info.Size(),
			Mtime: info.ModTime().UnixMilli(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// Read returns the current text content of a document.
func (v *DirVault) Read(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(v.abs(path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Stat returns the current metadata of a document.
func (v *DirVault) Stat(ctx context.Context, path string) (FileInfo, error) {
	info, err := os.Stat(v.abs(path))
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Path:  path,
		Size:  info.Size(),
		Mtime: info.ModTime().UnixMilli(),
	}, nil
}

// Exists reports whether a document is present.
func (v *DirVault) Exists(ctx context.Context, path string) bool {
	info, err := os.Stat(v.abs(path))
	return err == nil && !info.IsDir()
}

func (v *DirVault) abs(path string) string {
	return filepath.Join(v.root, filepath.FromSlash(path))
}

var _ Vault = (*DirVault)(nil)
