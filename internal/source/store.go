package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrObjectNotFound is returned when a container or object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidPath is returned for object paths that would escape the store.
var ErrInvalidPath = errors.New("invalid object path")

// Object describes one stored file.
type Object struct {
	Container string
	Path      string // slash-separated, relative to the container
	Size      int64
	ModTime   time.Time
}

// Store is the object storage the ingest reads uploads from.
type Store interface {
	Open(ctx context.Context, container, objectPath string) (io.ReadCloser, error)
	List(ctx context.Context, container, prefix string) ([]Object, error)
}

// DirStore is a Store over a local directory tree: each container is a
// top-level directory under Root and object paths are relative to it.
type DirStore struct {
	Root string
}

// NewDirStore returns a store rooted at root.
func NewDirStore(root string) *DirStore {
	return &DirStore{Root: root}
}

// Resolve maps a container and object path to a file path under Root.
func (s *DirStore) Resolve(container, objectPath string) (string, error) {
	if container == "" || container == "." || container == ".." || strings.ContainsAny(container, `/\`) {
		return "", fmt.Errorf("%w: container %q", ErrInvalidPath, container)
	}

	clean := path.Clean("/" + objectPath)
	if objectPath == "" || clean == "/" || strings.Contains(objectPath, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	for _, seg := range strings.Split(objectPath, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
		}
	}

	return filepath.Join(s.Root, container, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// Open opens an object for reading.
func (s *DirStore) Open(ctx context.Context, container, objectPath string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := s.Resolve(container, objectPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, container, objectPath)
		}
		return nil, fmt.Errorf("open %s/%s: %w", container, objectPath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s/%s: %w", container, objectPath, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s/%s is a directory", ErrObjectNotFound, container, objectPath)
	}
	return f, nil
}

// List returns the regular files in a container whose path starts with
// prefix, sorted by path. Hidden files and editor lock files are skipped.
func (s *DirStore) List(ctx context.Context, container, prefix string) ([]Object, error) {
	if container == "" || strings.ContainsAny(container, `/\`) || container == ".." {
		return nil, fmt.Errorf("%w: container %q", ErrInvalidPath, container)
	}
	base := filepath.Join(s.Root, container)

	var objects []Object
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == base {
				return fmt.Errorf("%w: container %s", ErrObjectNotFound, container)
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || IsTemporary(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasPrefix(rel, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{
			Container: container,
			Path:      rel,
			Size:      info.Size(),
			ModTime:   info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Path < objects[j].Path })
	return objects, nil
}

// Locate maps an absolute file path under Root back to its container and
// object path. ok is false for paths outside the store.
func (s *DirStore) Locate(file string) (container, objectPath string, ok bool) {
	rel, err := filepath.Rel(s.Root, file)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", "", false
	}
	container, objectPath, found := strings.Cut(filepath.ToSlash(rel), "/")
	if !found || objectPath == "" {
		return "", "", false
	}
	return container, objectPath, true
}

// IsTemporary reports names written by spreadsheet editors and partial
// uploads: dotfiles, Office lock files ("~$x.xlsx") and "*.part"/"*.tmp".
func IsTemporary(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasPrefix(name, "~$") ||
		strings.HasSuffix(name, ".part") ||
		strings.HasSuffix(name, ".tmp")
}
