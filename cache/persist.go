package cache

import (
	"time"

	"github.com/lexandro/assetindex-mcp/asset"
	"github.com/lexandro/assetindex-mcp/graph"
	"github.com/lexandro/assetindex-mcp/snapshot"
)

// Export projects every loaded record into a snapshot. Records whose
// content has not been read yet are left out.
func (c *Cache) Export(root string) *snapshot.File {
	f := &snapshot.File{
		Version: snapshot.FormatVersion,
		Root:    root,
		SavedAt: c.now().UTC(),
	}
	for _, rec := range c.store.Records() {
		if rec.State == asset.StateNew || (!rec.IsMissing() && rec.IndexedTime.IsZero()) {
			continue
		}
		f.Records = append(f.Records, snapshot.FromRecord(rec))
	}
	return f
}

// Import replaces the cache content with a snapshot and runs the usage pass
// at once, so queries are answered before the first Refresh completes.
func (c *Cache) Import(f *snapshot.File) error {
	if err := c.Reset(); err != nil {
		return err
	}
	read := c.stamp()
	for _, r := range f.Records {
		rec := r.ToRecord()
		rec.ChangeTime = time.Time{}
		rec.MetadataReadTime = read
		if !c.store.Insert(rec) {
			c.logger.Debug("duplicate id in snapshot", "id", rec.ID, "path", rec.Path)
			continue
		}
		if !rec.IsMissing() {
			if err := c.names.Index(rec); err != nil {
				c.logger.Debug("name index failed", "path", rec.Path, "error", err)
			}
		}
	}
	c.graph = graph.Build(c.store)
	c.ready = true
	c.logger.Info("snapshot imported", "records", c.store.Len(), "edges", c.graph.EdgeCount(), "savedAt", f.SavedAt)
	return nil
}
