// Package storage is the filesystem view of an asset project: content under
// a few top level roots, each item next to a ".meta" sidecar carrying its id.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/lexandro/assetindex-mcp/asset"
)

// MetaExt is the sidecar suffix.
const MetaExt = ".meta"

// DefaultRoots are the content folders enumerated when none are configured.
var DefaultRoots = []string{"Assets", "Packages", "ProjectSettings"}

// idNamespace seeds the ids of items that have no sidecar.
var idNamespace = uuid.MustParse("5b1d7c8e-3a52-4f0e-9e2b-4c6d1a7f0b93")

// Info is the subset of file information the cache tracks.
type Info struct {
	Size  int64
	IsDir bool
	// WriteTime is the later of the item's and its sidecar's modification time.
	WriteTime time.Time
}

// Ignorer hides paths from enumeration.
type Ignorer interface {
	ShouldIgnore(absolutePath string) bool
	ShouldIgnoreDir(absolutePath string) bool
}

// Options configures an FS.
type Options struct {
	RootDir string
	Roots   []string
	Ignore  Ignorer
	Logger  *slog.Logger
}

// FS resolves project relative paths (forward slashes) against a root
// directory and keeps a two-way path/id map refreshed on every enumeration.
// Thread-safe: the maps are guarded by mu.
type FS struct {
	rootDir string
	roots   []string
	ignore  Ignorer
	logger  *slog.Logger

	mu       sync.RWMutex
	pathToID map[string]asset.ID
	idToPath map[asset.ID]string
}

// New creates a filesystem source. Nothing is read until ListAllPaths.
func New(opts Options) *FS {
	fsys := &FS{
		rootDir:  opts.RootDir,
		roots:    opts.Roots,
		ignore:   opts.Ignore,
		logger:   opts.Logger,
		pathToID: make(map[string]asset.ID),
		idToPath: make(map[asset.ID]string),
	}
	if len(fsys.roots) == 0 {
		fsys.roots = DefaultRoots
	}
	if fsys.logger == nil {
		fsys.logger = slog.Default()
	}
	return fsys
}

// RootDir returns the absolute project directory.
func (f *FS) RootDir() string { return f.rootDir }

// Roots returns the enumerated top level folders.
func (f *FS) Roots() []string { return f.roots }

// Abs converts a project relative path to an absolute one.
func (f *FS) Abs(rel string) string {
	return filepath.Join(f.rootDir, filepath.FromSlash(rel))
}

// Rel converts an absolute path to a project relative one. Sidecar paths map
// to the item they describe. ok is false outside the configured roots.
func (f *FS) Rel(absolutePath string) (string, bool) {
	rel, err := filepath.Rel(f.rootDir, absolutePath)
	if err != nil {
		return "", false
	}
	rel = strings.TrimSuffix(filepath.ToSlash(rel), MetaExt)
	for _, root := range f.roots {
		if rel == root || strings.HasPrefix(rel, root+"/") {
			return rel, true
		}
	}
	return "", false
}

// ListAllPaths walks every root and returns the sorted project relative paths
// of all items, folders included. Sidecars are not listed. The path/id map is
// rebuilt from what was found.
func (f *FS) ListAllPaths() ([]string, error) {
	pathToID := make(map[string]asset.ID)
	idToPath := make(map[asset.ID]string)
	var paths []string

	for _, root := range f.roots {
		rootAbs := f.Abs(root)
		if _, err := os.Stat(rootAbs); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat root %s: %w", root, err)
		}

		err := filepath.WalkDir(rootAbs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				f.logger.Debug("walk error", "path", p, "error", err)
				return nil
			}
			if d.IsDir() && p != rootAbs && f.ignore != nil && f.ignore.ShouldIgnoreDir(p) {
				return filepath.SkipDir
			}
			if strings.HasSuffix(p, MetaExt) {
				return nil
			}
			if !d.IsDir() && f.ignore != nil && f.ignore.ShouldIgnore(p) {
				return nil
			}
			rel, _ := filepath.Rel(f.rootDir, p)
			rel = filepath.ToSlash(rel)

			id := f.readID(rel)
			if prev, dup := idToPath[id]; dup {
				// Copied sidecars share an id; the first path in walk order keeps it.
				f.logger.Warn("duplicate id in sidecars", "id", id, "kept", prev, "skipped", rel)
				return nil
			}
			pathToID[rel] = id
			idToPath[id] = rel
			paths = append(paths, rel)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}

	sort.Strings(paths)
	f.mu.Lock()
	f.pathToID = pathToID
	f.idToPath = idToPath
	f.mu.Unlock()
	return paths, nil
}

// PathToID resolves a path to its id. Paths not seen by the last enumeration
// are resolved from disk and remembered.
func (f *FS) PathToID(rel string) (asset.ID, bool) {
	f.mu.RLock()
	id, ok := f.pathToID[rel]
	f.mu.RUnlock()
	if ok {
		return id, true
	}

	if _, err := os.Stat(f.Abs(rel)); err != nil {
		return "", false
	}
	id = f.readID(rel)
	f.remember(rel, id)
	return id, true
}

// IDToPath resolves an id to its current path. A mapping whose item no
// longer exists is forgotten.
func (f *FS) IDToPath(id asset.ID) (string, bool) {
	f.mu.RLock()
	rel, ok := f.idToPath[id]
	f.mu.RUnlock()
	if !ok {
		return "", false
	}
	if _, err := os.Stat(f.Abs(rel)); err != nil {
		f.forget(rel, id)
		return "", false
	}
	return rel, true
}

func (f *FS) remember(rel string, id asset.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if old, ok := f.idToPath[id]; ok && old != rel {
		delete(f.pathToID, old)
	}
	if old, ok := f.pathToID[rel]; ok && old != id {
		delete(f.idToPath, old)
	}
	f.pathToID[rel] = id
	f.idToPath[id] = rel
}

func (f *FS) forget(rel string, id asset.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idToPath[id] == rel {
		delete(f.idToPath, id)
	}
	if f.pathToID[rel] == id {
		delete(f.pathToID, rel)
	}
}

// readID returns the sidecar id, or a deterministic id derived from the path
// when the sidecar is absent or carries no valid id.
func (f *FS) readID(rel string) asset.ID {
	meta, err := readMeta(f.Abs(rel) + MetaExt)
	if err == nil && asset.IsValidID(meta.guid) {
		return asset.ID(meta.guid)
	}
	return DerivedID(rel)
}

// DerivedID is the id given to items without a sidecar.
func DerivedID(rel string) asset.ID {
	u := uuid.NewSHA1(idNamespace, []byte(rel))
	return asset.ID(strings.ReplaceAll(u.String(), "-", ""))
}

// Stat returns size, kind and the combined write time of an item.
func (f *FS) Stat(rel string) (Info, error) {
	info, err := os.Stat(f.Abs(rel))
	if err != nil {
		return Info{}, fmt.Errorf("stat %s: %w", rel, err)
	}
	out := Info{IsDir: info.IsDir(), WriteTime: info.ModTime()}
	if !info.IsDir() {
		out.Size = info.Size()
	}
	if meta, err := os.Stat(f.Abs(rel) + MetaExt); err == nil && meta.ModTime().After(out.WriteTime) {
		out.WriteTime = meta.ModTime()
	}
	return out, nil
}

// LastWriteTime returns Stat(rel).WriteTime.
func (f *FS) LastWriteTime(rel string) (time.Time, error) {
	info, err := f.Stat(rel)
	if err != nil {
		return time.Time{}, err
	}
	return info.WriteTime, nil
}

// OpenRead opens an item's content for reading.
func (f *FS) OpenRead(rel string) (io.ReadCloser, error) {
	file, err := os.Open(f.Abs(rel))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", rel, err)
	}
	return file, nil
}

// ReadAllText reads an item's whole content.
func (f *FS) ReadAllText(rel string) (string, error) {
	data, err := os.ReadFile(f.Abs(rel))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rel, err)
	}
	return string(data), nil
}

// ListChildren returns the project relative paths of a folder's immediate
// children, sidecars included, in name order.
func (f *FS) ListChildren(rel string) ([]string, error) {
	entries, err := os.ReadDir(f.Abs(rel))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", rel, err)
	}
	children := make([]string, 0, len(entries))
	for _, e := range entries {
		child := path.Join(rel, e.Name())
		abs := f.Abs(child)
		if f.ignore != nil {
			if e.IsDir() && f.ignore.ShouldIgnoreDir(abs) {
				continue
			}
			if !e.IsDir() && f.ignore.ShouldIgnore(abs) {
				continue
			}
		}
		children = append(children, child)
	}
	return children, nil
}

// Groupings returns the bundle and atlas names recorded in an item's sidecar.
func (f *FS) Groupings(rel string) (bundle, atlas string) {
	meta, err := readMeta(f.Abs(rel) + MetaExt)
	if err != nil {
		return "", ""
	}
	return meta.bundle, meta.atlas
}

type metaInfo struct {
	guid   string
	bundle string
	atlas  string
}

// readMeta decodes a sidecar. The id is a top level key; the grouping names
// live one level down, under the importer section.
func readMeta(metaPath string) (metaInfo, error) {
	file, err := os.Open(metaPath)
	if err != nil {
		return metaInfo{}, err
	}
	defer file.Close()

	var doc yaml.Node
	if err := yaml.NewDecoder(file).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return metaInfo{}, nil
		}
		return metaInfo{}, fmt.Errorf("decoding %s: %w", metaPath, err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}

	var meta metaInfo
	if root.Kind != yaml.MappingNode {
		return meta, nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		switch {
		case key.Value == "guid" && value.Kind == yaml.ScalarNode:
			meta.guid = value.Value
		case value.Kind == yaml.MappingNode:
			for j := 0; j+1 < len(value.Content); j += 2 {
				field, v := value.Content[j], value.Content[j+1]
				if v.Kind != yaml.ScalarNode || v.Tag == "!!null" || v.Value == "" {
					continue
				}
				switch field.Value {
				case "assetBundleName":
					meta.bundle = v.Value
				case "spritePackingTag":
					meta.atlas = v.Value
				}
			}
		}
	}
	return meta, nil
}
