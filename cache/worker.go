package cache

import (
	"errors"
	"io"
	"strings"

	"github.com/lexandro/assetindex-mcp/asset"
	"github.com/lexandro/assetindex-mcp/graph"
	"github.com/lexandro/assetindex-mcp/refparse"
)

// Pending reports whether dirty records or a usage pass are waiting.
func (c *Cache) Pending() bool {
	return len(c.queue) > 0 || c.usagePending
}

// Step processes one dirty record. Once the queue is empty the next step
// runs the usage pass, so the reverse graph is never derived from a
// partially updated set of forward references.
func (c *Cache) Step() {
	if len(c.queue) == 0 {
		if c.usagePending {
			c.usagePass()
		}
		return
	}
	id := c.queue[0]
	c.queue = c.queue[1:]
	c.workDone++

	rec, ok := c.store.Get(id)
	if !ok {
		return
	}
	rec.Queued = false
	c.load(rec)
}

// Stop discards queued work. The duplicate engine is stopped separately by
// the scheduler.
func (c *Cache) Stop() {
	for _, id := range c.queue {
		if rec, ok := c.store.Get(id); ok {
			rec.Queued = false
		}
	}
	c.queue = nil
	c.workDone, c.workTotal = 0, 0
}

// Drain runs every pending step synchronously. Used by the CLI batch commands.
func (c *Cache) Drain() {
	for c.Pending() {
		c.Step()
	}
}

func (c *Cache) usagePass() {
	c.graph = graph.Build(c.store)
	c.usagePending = false
	c.ready = true
	c.logger.Debug("usage pass complete", "records", c.store.Len(), "edges", c.graph.EdgeCount())
	c.workDone, c.workTotal = 0, 0
}

// load brings one record up to date with its backing content.
func (c *Cache) load(rec *asset.Record) {
	p, ok := c.src.IDToPath(rec.ID)
	if !ok {
		c.logger.Debug("record has no content",
			"error", asset.NewError(asset.ErrMissingContent, "resolve", nil).WithRecord(rec.ID, rec.Path))
		c.markMissing(rec)
		return
	}
	if p != rec.Path {
		c.setPath(rec, p)
	}

	if rec.MetadataDirty() || rec.IsMissing() {
		if !c.loadMetadata(rec) {
			return
		}
	}
	if rec.ContentDirty() {
		c.loadContent(rec)
	}
}

// loadMetadata reads size, times, kind and groupings. It returns false if
// the content vanished and the record became Missing.
func (c *Cache) loadMetadata(rec *asset.Record) bool {
	info, err := c.src.Stat(rec.Path)
	if err != nil {
		c.logger.Debug("stat failed",
			"error", asset.NewError(asset.ErrMissingContent, "stat", err).WithRecord(rec.ID, rec.Path))
		c.markMissing(rec)
		return false
	}

	rec.SizeBytes = info.Size
	rec.WriteTime = info.WriteTime
	kind, err := asset.GuessKind(rec.Path, info.IsDir, func() ([]byte, error) {
		return c.readHeader(rec.Path)
	})
	if err != nil {
		c.logger.Debug("kind detection failed",
			"error", asset.NewError(asset.ErrUnreadableContent, "header", err).WithRecord(rec.ID, rec.Path))
		kind = asset.KindNonReadable
	}
	rec.Kind = kind
	rec.Fingerprint = asset.Fingerprint(rec.SizeBytes, rec.Extension)
	if gs, ok := c.src.(GroupingSource); ok && !info.IsDir {
		rec.BundleName, rec.AtlasName = gs.Groupings(rec.Path)
	}
	rec.State = asset.StateCached
	rec.MetadataReadTime = c.stamp()
	c.refreshExcluded(rec)

	if err := c.names.Index(rec); err != nil {
		c.logger.Debug("name index failed", "path", rec.Path, "error", err)
	}
	return true
}

func (c *Cache) readHeader(p string) ([]byte, error) {
	r, err := c.src.OpenRead(p)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	buf := make([]byte, asset.HeaderSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// loadContent rebuilds the record's forward references. Failures keep
// whatever references were collected and are only logged.
func (c *Cache) loadContent(rec *asset.Record) {
	rec.ClearRefs()
	defer func() {
		rec.IndexedTime = rec.WriteTime
		c.usagePending = true
	}()

	if c.isManifest(rec) {
		c.loadManifest(rec)
		return
	}

	switch rec.Kind {
	case asset.KindFolder:
		children, err := c.src.ListChildren(rec.Path)
		if err != nil {
			c.logUnreadable(rec, "list children", err)
			return
		}
		refparse.Apply(rec, refparse.FolderRefs(children, c.src.PathToID))

	case asset.KindScene, asset.KindReferencable:
		r, err := c.src.OpenRead(rec.Path)
		if err != nil {
			c.logUnreadable(rec, "open", err)
			return
		}
		defer r.Close()
		refs, err := refparse.ScanText(r)
		refparse.Apply(rec, refs)
		if err != nil {
			c.logUnreadable(rec, "scan", err)
		}

	case asset.KindBinary, asset.KindModel, asset.KindTerrain:
		if c.loader == nil {
			return
		}
		loaded, err := c.loader.LoadObjects(rec.Path)
		if err != nil {
			c.logUnreadable(rec, "load objects", err)
			return
		}
		if loaded.Kind != asset.KindUnknown {
			rec.Kind = loaded.Kind
		}
		refparse.Apply(rec, c.visitor.Collect(loaded.Objects))
	}
}

func (c *Cache) isManifest(rec *asset.Record) bool {
	return c.manifestPath != "" && strings.EqualFold(rec.Path, c.manifestPath)
}

// loadManifest records one reference per enabled build member.
func (c *Cache) loadManifest(rec *asset.Record) {
	r, err := c.src.OpenRead(rec.Path)
	if err != nil {
		c.logUnreadable(rec, "open manifest", err)
		return
	}
	defer r.Close()
	refs, err := refparse.ParseBuildManifest(rec.Path, r, c.src.PathToID)
	if err != nil {
		c.logUnreadable(rec, "parse manifest", err)
		return
	}
	refparse.Apply(rec, refs)
}

func (c *Cache) logUnreadable(rec *asset.Record, op string, err error) {
	c.logger.Debug("content read failed",
		"error", asset.NewError(asset.ErrUnreadableContent, op, err).WithRecord(rec.ID, rec.Path))
}
