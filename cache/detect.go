package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/lexandro/assetindex-mcp/asset"
	"github.com/lexandro/assetindex-mcp/graph"
)

// RefreshResult counts what a full enumeration found.
type RefreshResult struct {
	Seen    int
	Added   int
	Changed int
	Missing int
	Pruned  int
}

// Refresh enumerates the source and queues everything that is new or
// changed. Records not seen become Missing. With force every seen record is
// re-read, and unseen records nothing references are erased.
func (c *Cache) Refresh(force bool) (RefreshResult, error) {
	paths, err := c.src.ListAllPaths()
	if err != nil {
		return RefreshResult{}, fmt.Errorf("enumerating content: %w", err)
	}

	c.seen++
	seen := c.seen
	result := RefreshResult{Seen: len(paths)}

	for _, p := range paths {
		id, ok := c.src.PathToID(p)
		if !ok {
			continue
		}
		rec, exists := c.store.Get(id)
		if !exists {
			rec = c.store.Add(id)
			c.setPath(rec, p)
			rec.ChangeTime = c.stamp()
			c.enqueue(rec)
			rec.SeenStamp = seen
			result.Added++
			continue
		}
		rec.SeenStamp = seen

		changed := force || rec.IsMissing() || rec.Path != p
		if !changed {
			wt, err := c.src.LastWriteTime(p)
			changed = err != nil || !wt.Equal(rec.WriteTime)
		}
		if !changed {
			continue
		}
		if rec.Path != p {
			c.setPath(rec, p)
		}
		if rec.IsMissing() {
			rec.State = asset.StateNew
		}
		c.invalidate(rec, force)
		result.Changed++
	}

	for _, rec := range c.store.Records() {
		if rec.SeenStamp != seen && !rec.IsMissing() {
			c.markMissing(rec)
			result.Missing++
		}
	}

	if force {
		referenced := c.liveTargets(seen)
		pruned := c.store.Prune(seen, func(id asset.ID) bool { return referenced[id] })
		for _, id := range pruned {
			if err := c.names.Remove(id); err != nil {
				c.logger.Debug("name index remove failed", "id", id, "error", err)
			}
		}
		c.dropQueued(pruned)
		result.Pruned = len(pruned)
		// Ordinals were compacted; the old graph is keyed by the old ones.
		c.graph = graph.Build(c.store)
	}

	c.usagePending = true
	c.logger.Debug("refresh complete",
		"seen", result.Seen,
		"added", result.Added,
		"changed", result.Changed,
		"missing", result.Missing,
		"pruned", result.Pruned,
		"force", force,
	)
	return result, nil
}

// MarkDirty queues one record for re-reading. With moved the path is
// resolved again from the id first; if that fails the record becomes
// Missing. With force the content is parsed again even if unchanged.
// It reports false for unknown ids.
func (c *Cache) MarkDirty(id asset.ID, moved, force bool) bool {
	rec, ok := c.store.Get(id)
	if !ok {
		return false
	}
	if moved {
		p, ok := c.src.IDToPath(id)
		if !ok {
			if !rec.IsMissing() {
				c.markMissing(rec)
			}
			c.usagePending = true
			return true
		}
		if p != rec.Path {
			c.setPath(rec, p)
		}
		if rec.IsMissing() {
			rec.State = asset.StateNew
		}
	}
	c.invalidate(rec, force)
	c.usagePending = true
	return true
}

// MarkPathDirty maps a change notification for a path onto records. A new
// path creates a record; a vanished path re-resolves every record at or
// below it, which turns moves into path updates and deletions into Missing.
// It returns the number of records touched.
func (c *Cache) MarkPathDirty(p string) int {
	if id, ok := c.src.PathToID(p); ok {
		rec, exists := c.store.Get(id)
		if !exists {
			rec = c.store.Add(id)
			c.setPath(rec, p)
			rec.ChangeTime = c.stamp()
			c.enqueue(rec)
			c.usagePending = true
			return 1
		}
		c.MarkDirty(id, rec.Path != p || rec.IsMissing(), false)
		return 1
	}

	touched := 0
	prefix := strings.TrimSuffix(p, "/") + "/"
	for _, rec := range c.store.Records() {
		if rec.Path == p || strings.HasPrefix(rec.Path, prefix) {
			c.MarkDirty(rec.ID, true, false)
			touched++
		}
	}
	return touched
}

// invalidate makes the metadata dirty (and the content too when forced) and queues the record.
func (c *Cache) invalidate(rec *asset.Record, force bool) {
	rec.ChangeTime = c.stamp()
	if force {
		rec.IndexedTime = time.Time{}
	}
	c.enqueue(rec)
}

// enqueue adds a record to the dirty queue once. Queries stay gated until the
// queue drains and the usage pass rebuilds the reverse graph.
func (c *Cache) enqueue(rec *asset.Record) {
	if rec.Queued {
		return
	}
	rec.Queued = true
	c.queue = append(c.queue, rec.ID)
	c.workTotal++
	c.ready = false
	c.usagePending = true
}

func (c *Cache) dropQueued(ids []asset.ID) {
	if len(ids) == 0 {
		return
	}
	gone := make(map[asset.ID]bool, len(ids))
	for _, id := range ids {
		gone[id] = true
	}
	kept := c.queue[:0]
	for _, id := range c.queue {
		if !gone[id] {
			kept = append(kept, id)
		}
	}
	c.queue = kept
}

// markMissing invalidates everything the record knew about its content.
func (c *Cache) markMissing(rec *asset.Record) {
	rec.State = asset.StateMissing
	rec.SizeBytes = 0
	rec.Fingerprint = 0
	rec.IndexedTime = time.Time{}
	rec.ClearRefs()
	if err := c.names.Remove(rec.ID); err != nil {
		c.logger.Debug("name index remove failed", "id", rec.ID, "error", err)
	}
	c.ready = false
	c.usagePending = true
}

func (c *Cache) setPath(rec *asset.Record, p string) {
	rec.SetPath(p)
	rec.ExcludedGeneration = 0
}

// refreshExcluded re-derives the excluded flag when the ignore rules moved on.
func (c *Cache) refreshExcluded(rec *asset.Record) {
	if c.ignore == nil {
		rec.Excluded = false
		return
	}
	gen := c.ignore.Generation()
	if rec.ExcludedGeneration == gen {
		return
	}
	rec.Excluded = c.ignore.IsExcluded(rec.Path)
	rec.ExcludedGeneration = gen
}

func (c *Cache) refreshAllExcluded() {
	for _, rec := range c.store.Records() {
		c.refreshExcluded(rec)
	}
}

// liveTargets returns every id referenced by a record seen in this
// enumeration. Folder membership does not keep a record alive.
func (c *Cache) liveTargets(seen uint64) map[asset.ID]bool {
	out := make(map[asset.ID]bool)
	for _, rec := range c.store.Records() {
		if rec.SeenStamp != seen || rec.IsMissing() || rec.IsFolder() {
			continue
		}
		for target := range rec.ForwardRefs {
			out[target] = true
		}
	}
	return out
}
