package graph

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/lexandro/assetindex-mcp/asset"
)

// Node is one record reached by a closure query.
type Node struct {
	Record  *asset.Record
	Depth   int        // 0 for roots
	AddedBy []asset.ID // records through which this node was reached
	Index   int        // discovery order
}

// Closure is the result of a forward or reverse traversal.
type Closure struct {
	Roots []asset.ID
	Nodes map[asset.ID]*Node
	Order []asset.ID // discovery order, roots first
}

// Len returns the number of non-root nodes.
func (c *Closure) Len() int {
	return len(c.Order) - len(c.Roots)
}

// Members returns the non-root nodes in discovery order.
func (c *Closure) Members() []*Node {
	out := make([]*Node, 0, c.Len())
	for _, id := range c.Order[len(c.Roots):] {
		out = append(out, c.Nodes[id])
	}
	return out
}

// Forward returns everything the roots use. With deep=false only direct
// references are followed.
func (g *Graph) Forward(roots []asset.ID, deep bool) *Closure {
	return g.traverse(roots, deep, func(rec *asset.Record) []*asset.Record {
		out := make([]*asset.Record, 0, len(rec.ForwardRefs))
		for _, id := range rec.RefTargets() {
			if target, ok := g.store.Get(id); ok {
				out = append(out, target)
			}
		}
		return out
	})
}

// Reverse returns everything that uses the roots.
func (g *Graph) Reverse(roots []asset.ID, deep bool) *Closure {
	return g.traverse(roots, deep, func(rec *asset.Record) []*asset.Record {
		return g.UsedBy(rec.ID)
	})
}

// traverse is a breadth-first walk with an explicit queue. Visited records are
// tracked by ordinal in a bitmap local to the call.
func (g *Graph) traverse(roots []asset.ID, deep bool, next func(*asset.Record) []*asset.Record) *Closure {
	c := &Closure{Nodes: make(map[asset.ID]*Node)}
	visited := roaring.New()

	var queue []*Node
	for _, id := range roots {
		rec, ok := g.store.Get(id)
		if !ok || !visited.CheckedAdd(rec.Ordinal) {
			continue
		}
		n := &Node{Record: rec, Index: len(c.Order)}
		c.Roots = append(c.Roots, id)
		c.Nodes[id] = n
		c.Order = append(c.Order, id)
		queue = append(queue, n)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if !deep && cur.Depth >= 1 {
			continue
		}
		for _, rec := range next(cur.Record) {
			if n, ok := c.Nodes[rec.ID]; ok {
				if n.Depth > 0 && !containsID(n.AddedBy, cur.Record.ID) {
					n.AddedBy = append(n.AddedBy, cur.Record.ID)
				}
				continue
			}
			if !visited.CheckedAdd(rec.Ordinal) {
				continue
			}
			n := &Node{
				Record:  rec,
				Depth:   cur.Depth + 1,
				AddedBy: []asset.ID{cur.Record.ID},
				Index:   len(c.Order),
			}
			c.Nodes[rec.ID] = n
			c.Order = append(c.Order, rec.ID)
			if rec.IsMissing() {
				continue
			}
			queue = append(queue, n)
		}
	}
	return c
}

func containsID(ids []asset.ID, id asset.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
