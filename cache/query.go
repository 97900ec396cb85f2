package cache

import (
	"strings"

	"github.com/lexandro/assetindex-mcp/asset"
	"github.com/lexandro/assetindex-mcp/duplicate"
	"github.com/lexandro/assetindex-mcp/graph"
)

func emptyClosure() *graph.Closure {
	return &graph.Closure{Nodes: make(map[asset.ID]*graph.Node)}
}

// FindRecords returns the records for ids in request order. Missing records
// are returned when named directly. With expandFolders every live record
// below a requested folder is added after it. Empty until ready.
func (c *Cache) FindRecords(ids []asset.ID, expandFolders bool) []*asset.Record {
	if !c.ready {
		return nil
	}
	var out []*asset.Record
	added := make(map[asset.ID]bool)
	add := func(rec *asset.Record) {
		if !added[rec.ID] {
			added[rec.ID] = true
			out = append(out, rec)
		}
	}

	var folders []string
	for _, id := range ids {
		rec, ok := c.store.Get(id)
		if !ok {
			continue
		}
		add(rec)
		if expandFolders && rec.IsFolder() && !rec.IsMissing() {
			folders = append(folders, rec.Path+"/")
		}
	}
	if len(folders) == 0 {
		return out
	}
	for _, rec := range c.store.Records() {
		if rec.IsMissing() {
			continue
		}
		for _, prefix := range folders {
			if strings.HasPrefix(rec.Path, prefix) {
				add(rec)
				break
			}
		}
	}
	return out
}

// ForwardClosure returns what ids use, transitively when deep.
func (c *Cache) ForwardClosure(ids []asset.ID, deep bool) *graph.Closure {
	if !c.ready {
		return emptyClosure()
	}
	return c.graph.Forward(ids, deep)
}

// ReverseClosure returns what uses ids, transitively when deep.
func (c *Cache) ReverseClosure(ids []asset.ID, deep bool) *graph.Closure {
	if !c.ready {
		return emptyClosure()
	}
	return c.graph.Reverse(ids, deep)
}

// ScanUnused returns records nothing references, filtered by the unused policy.
func (c *Cache) ScanUnused() []*asset.Record {
	if !c.ready {
		return nil
	}
	c.refreshAllExcluded()
	return c.graph.Unused(c.policy)
}

// UsedInBuild returns the deep forward closure of the build manifest.
func (c *Cache) UsedInBuild() *graph.Closure {
	if !c.ready || c.manifestPath == "" {
		return emptyClosure()
	}
	var manifest *asset.Record
	for _, rec := range c.store.Records() {
		if !rec.IsMissing() && strings.EqualFold(rec.Path, c.manifestPath) {
			manifest = rec
			break
		}
	}
	if manifest == nil {
		return emptyClosure()
	}
	return c.graph.Forward([]asset.ID{manifest.ID}, true)
}

// ScanDuplicates starts a duplicate scan over eligible records, replacing
// any scan in progress. The callbacks fire from scheduler steps. It reports
// false, and starts nothing, until the cache is ready.
func (c *Cache) ScanDuplicates(cb duplicate.Callbacks) bool {
	if !c.ready {
		return false
	}
	c.refreshAllExcluded()
	groups := duplicate.Partition(c.store.Records(), c.duplicateEligible)
	c.logger.Info("duplicate scan starting", "groups", len(groups), "candidates", duplicate.Candidates(groups))
	c.dups.Start(groups, cb)
	return true
}

// StopDuplicates aborts a running duplicate scan.
func (c *Cache) StopDuplicates() {
	c.dups.Stop()
}

// DuplicateResults returns the groups of the last finished scan.
func (c *Cache) DuplicateResults() []duplicate.Group {
	return c.dups.Results()
}

func (c *Cache) duplicateEligible(rec *asset.Record) bool {
	if rec.IsMissing() || rec.IsFolder() || rec.Excluded {
		return false
	}
	if c.policy.PrimaryRoot != "" && !rec.UnderRoot(c.policy.PrimaryRoot) {
		return false
	}
	for _, folder := range c.dupFolders {
		if rec.InFolderNamed(folder) {
			return false
		}
	}
	return !c.excludeTypes.ContainsExt(rec.Extension)
}

// SearchNames runs a name query and returns live records, best match first.
// A non-empty group keeps only records of that type group.
func (c *Cache) SearchNames(query string, maxResults int, group string) ([]*asset.Record, error) {
	ids, err := c.names.Search(query, maxResults)
	if err != nil {
		return nil, err
	}
	var out []*asset.Record
	for _, id := range ids {
		if rec, ok := c.store.Get(id); ok && !rec.IsMissing() && inGroup(rec, group) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// SearchGlob returns live records whose path matches a doublestar pattern.
func (c *Cache) SearchGlob(pattern string, maxResults int, group string) ([]*asset.Record, error) {
	recs, err := c.store.SearchByGlob(pattern, c.store.Len()+1)
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		maxResults = 50
	}
	var out []*asset.Record
	for _, rec := range recs {
		if len(out) >= maxResults {
			break
		}
		if inGroup(rec, group) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ResolvePath maps a project relative path to a known id. Paths of Missing
// records resolve to the last id seen there.
func (c *Cache) ResolvePath(p string) (asset.ID, bool) {
	if id, ok := c.src.PathToID(p); ok {
		if _, known := c.store.Get(id); known {
			return id, true
		}
	}
	for _, rec := range c.store.Records() {
		if rec.Path == p {
			return rec.ID, true
		}
	}
	return "", false
}

func inGroup(rec *asset.Record, group string) bool {
	if group == "" {
		return true
	}
	if rec.IsFolder() {
		return false
	}
	return strings.EqualFold(asset.GroupOf(rec.Extension), group)
}
