// Package refparse extracts outgoing asset references from raw content.
package refparse

import (
	"strings"

	"github.com/lexandro/assetindex-mcp/asset"
)

// Ref is one outgoing reference. HasLocal is false when the reference carried
// no local element id.
type Ref struct {
	Target   asset.ID
	Local    int32
	HasLocal bool
}

// Apply adds refs to rec. Self references are dropped by the record.
func Apply(rec *asset.Record, refs []Ref) {
	for _, ref := range refs {
		rec.AddRef(ref.Target, ref.Local, ref.HasLocal)
	}
}

// Resolver maps a project relative path to an id.
type Resolver func(path string) (asset.ID, bool)

// FolderRefs returns a reference to every immediate child of a folder.
// Sidecar files and children without an id are skipped.
func FolderRefs(children []string, resolve Resolver) []Ref {
	refs := make([]Ref, 0, len(children))
	for _, child := range children {
		if strings.HasSuffix(child, ".meta") {
			continue
		}
		id, ok := resolve(child)
		if !ok {
			continue
		}
		refs = append(refs, Ref{Target: id})
	}
	return refs
}
