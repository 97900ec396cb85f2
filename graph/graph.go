// Package graph maintains the reverse ("used by") adjacency derived from the
// records' forward references, and answers closure queries over both directions.
package graph

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/lexandro/assetindex-mcp/asset"
	"github.com/lexandro/assetindex-mcp/index"
)

// Graph is the result of one usage pass. It is never patched incrementally;
// any change to forward refs or ordinals requires a new Build.
type Graph struct {
	store   *index.Store
	reverse map[uint32]*roaring.Bitmap // target ordinal -> owner ordinals
	edges   int
}

// Build runs a usage pass: reverse refs are rebuilt from scratch from the
// forward refs of every live, non-folder record.
func Build(store *index.Store) *Graph {
	g := &Graph{
		store:   store,
		reverse: make(map[uint32]*roaring.Bitmap),
	}
	for _, owner := range store.Records() {
		if owner.IsMissing() || owner.IsFolder() {
			continue
		}
		for targetID := range owner.ForwardRefs {
			target, ok := store.Get(targetID)
			if !ok || target.IsMissing() {
				continue
			}
			owners, ok := g.reverse[target.Ordinal]
			if !ok {
				owners = roaring.New()
				g.reverse[target.Ordinal] = owners
			}
			if owners.CheckedAdd(owner.Ordinal) {
				g.edges++
			}
		}
	}
	return g
}

// EdgeCount returns the number of reverse edges.
func (g *Graph) EdgeCount() int {
	return g.edges
}

// UsedByCount returns how many live records reference id.
func (g *Graph) UsedByCount(id asset.ID) int {
	rec, ok := g.store.Get(id)
	if !ok {
		return 0
	}
	owners, ok := g.reverse[rec.Ordinal]
	if !ok {
		return 0
	}
	return int(owners.GetCardinality())
}

// UsedBy returns the records that reference id, sorted by path.
func (g *Graph) UsedBy(id asset.ID) []*asset.Record {
	rec, ok := g.store.Get(id)
	if !ok {
		return nil
	}
	owners, ok := g.reverse[rec.Ordinal]
	if !ok {
		return nil
	}
	out := make([]*asset.Record, 0, owners.GetCardinality())
	it := owners.Iterator()
	for it.HasNext() {
		if owner := g.store.ByOrdinal(it.Next()); owner != nil {
			out = append(out, owner)
		}
	}
	sortByPath(out)
	return out
}

// LocalUseCount returns how many distinct embedded sub-objects of owner reference target.
func (g *Graph) LocalUseCount(owner, target asset.ID) int {
	rec, ok := g.store.Get(owner)
	if !ok {
		return 0
	}
	locals, ok := rec.ForwardRefs[target]
	if !ok {
		return 0
	}
	if len(locals) == 0 {
		return 1
	}
	return len(locals)
}

func sortByPath(recs []*asset.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Path != recs[j].Path {
			return recs[i].Path < recs[j].Path
		}
		return recs[i].ID < recs[j].ID
	})
}
