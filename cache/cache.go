// Package cache keeps the incremental reference-graph cache of an asset
// project: one record per id, its forward references, and the derived
// reverse ("used by") graph.
//
// A Cache is owned by a single goroutine. Work is done in small steps by the
// scheduler (see Step); queries are answered from the last completed usage
// pass. No method is safe for concurrent use.
package cache

import (
	"io"
	"log/slog"
	"time"

	"github.com/lexandro/assetindex-mcp/asset"
	"github.com/lexandro/assetindex-mcp/duplicate"
	"github.com/lexandro/assetindex-mcp/graph"
	"github.com/lexandro/assetindex-mcp/index"
	"github.com/lexandro/assetindex-mcp/refparse"
	"github.com/lexandro/assetindex-mcp/sched"
	"github.com/lexandro/assetindex-mcp/storage"
)

// Source is the host storage layer: enumeration, path/id resolution and
// raw content access. Paths are project relative with forward slashes.
type Source interface {
	ListAllPaths() ([]string, error)
	PathToID(path string) (asset.ID, bool)
	IDToPath(id asset.ID) (string, bool)
	Stat(path string) (storage.Info, error)
	LastWriteTime(path string) (time.Time, error)
	OpenRead(path string) (io.ReadCloser, error)
	ReadAllText(path string) (string, error)
	ListChildren(path string) ([]string, error)
}

// GroupingSource is implemented by sources that know bundle and atlas names.
type GroupingSource interface {
	Groupings(path string) (bundle, atlas string)
}

// IgnoreRules decides which records are excluded from unused and duplicate
// reports. Generation must change whenever the answer for any path may change.
type IgnoreRules interface {
	IsExcluded(path string) bool
	Generation() uint64
}

// Options configures a Cache.
type Options struct {
	Source Source
	Ignore IgnoreRules // nil excludes nothing
	Loader refparse.ObjectLoader

	// ManifestPath is the project relative path of the build manifest.
	ManifestPath string
	Unused       graph.UnusedPolicy
	// ExcludeTypes are type group names left out of duplicate scans.
	ExcludeTypes []string
	// DuplicateFolders are folder names whose contents are never duplicate candidates.
	DuplicateFolders []string
	Duplicate        duplicate.Options

	Logger *slog.Logger
	Now    func() time.Time
}

// Cache is the record store plus everything derived from it.
type Cache struct {
	src          Source
	ignore       IgnoreRules
	loader       refparse.ObjectLoader
	visitor      *refparse.Visitor
	manifestPath string
	policy       graph.UnusedPolicy
	excludeTypes asset.GroupSet
	dupFolders   []string
	logger       *slog.Logger
	now          func() time.Time
	lastStamp    time.Time

	store *index.Store
	names *index.NameIndex
	graph *graph.Graph

	queue        []asset.ID
	ready        bool
	usagePending bool
	seen         uint64
	workDone     int
	workTotal    int

	dups *duplicate.Engine
}

// New creates an empty cache. Call Refresh (or Import) to populate it.
func New(opts Options) (*Cache, error) {
	names, err := index.NewNameIndex()
	if err != nil {
		return nil, err
	}
	c := &Cache{
		src:          opts.Source,
		ignore:       opts.Ignore,
		loader:       opts.Loader,
		visitor:      refparse.NewVisitor(),
		manifestPath: opts.ManifestPath,
		policy:       opts.Unused,
		excludeTypes: asset.NewGroupSet(opts.ExcludeTypes),
		dupFolders:   opts.DuplicateFolders,
		logger:       opts.Logger,
		now:          opts.Now,
		names:        names,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.dupFolders == nil {
		c.dupFolders = []string{"Editor", "Plugins"}
	}
	c.store = index.NewStore(c.logger)
	c.graph = graph.Build(c.store)

	dupOpts := opts.Duplicate
	if dupOpts.Logger == nil {
		dupOpts.Logger = c.logger
	}
	c.dups = duplicate.NewEngine(c.openRecord, dupOpts)
	return c, nil
}

// Workers returns the scheduler workers driven by this cache: the record
// worker first, then the duplicate engine.
func (c *Cache) Workers() []sched.Worker {
	return []sched.Worker{c, c.dups}
}

// Ready reports whether the reverse graph matches the forward references:
// a usage pass has run and no record has been queued or lost since.
func (c *Cache) Ready() bool {
	return c.ready
}

// Get returns the record for id, whatever its state. It is not gated on Ready.
func (c *Cache) Get(id asset.ID) (*asset.Record, bool) {
	return c.store.Get(id)
}

// Graph returns the graph of the last usage pass.
func (c *Cache) Graph() *graph.Graph {
	return c.graph
}

// Progress returns processed and total records of the current batch of work.
func (c *Cache) Progress() (done, total int) {
	return c.workDone, c.workTotal
}

// DuplicateProgress returns bytes done and total of the running duplicate scan.
func (c *Cache) DuplicateProgress() (done, total int64, running bool) {
	done, total = c.dups.Progress()
	return done, total, c.dups.Running()
}

// Stats is a point-in-time summary of the cache.
type Stats struct {
	Records      int
	Live         int
	Missing      int
	Queued       int
	Edges        int
	TotalBytes   int64
	NameDocs     uint64
	ByKind       map[string]int
	Ready        bool
	Duplicates   bool
	WorkDone     int
	WorkTotal    int
	LastRefresh  uint64
	IgnoreEpoch  uint64
	ManifestPath string
}

// Stats summarizes the cache.
func (c *Cache) Stats() Stats {
	byState := c.store.CountsByState()
	byKind := make(map[string]int)
	for kind, n := range c.store.CountsByKind() {
		byKind[kind.String()] = n
	}
	s := Stats{
		Records:      c.store.Len(),
		Missing:      byState[asset.StateMissing],
		Queued:       len(c.queue),
		Edges:        c.graph.EdgeCount(),
		TotalBytes:   c.store.TotalSizeBytes(),
		NameDocs:     c.names.DocumentCount(),
		ByKind:       byKind,
		Ready:        c.ready,
		Duplicates:   c.dups.Running(),
		WorkDone:     c.workDone,
		WorkTotal:    c.workTotal,
		LastRefresh:  c.seen,
		ManifestPath: c.manifestPath,
	}
	s.Live = s.Records - s.Missing
	if c.ignore != nil {
		s.IgnoreEpoch = c.ignore.Generation()
	}
	return s
}

// Reset drops every record and derived structure. The cache is not ready
// until the next usage pass.
func (c *Cache) Reset() error {
	c.dups.Stop()
	c.store.Clear()
	c.queue = nil
	c.graph = graph.Build(c.store)
	c.ready = false
	c.usagePending = false
	c.workDone, c.workTotal = 0, 0
	return c.names.Clear()
}

// Close stops any scan and releases the name index.
func (c *Cache) Close() error {
	c.dups.Stop()
	return c.names.Close()
}

// stamp returns a strictly increasing timestamp.
func (c *Cache) stamp() time.Time {
	t := c.now()
	if !t.After(c.lastStamp) {
		t = c.lastStamp.Add(time.Nanosecond)
	}
	c.lastStamp = t
	return t
}

func (c *Cache) openRecord(rec *asset.Record) (io.ReadCloser, error) {
	return c.src.OpenRead(rec.Path)
}
