package graph

import (
	"sort"
	"strings"

	"github.com/lexandro/assetindex-mcp/asset"
)

// UnusedPolicy decides which records are candidates for unused reporting.
type UnusedPolicy struct {
	PrimaryRoot       string   // only records below this root are reported
	SpecialFolders    []string // folder names whose contents are loaded by name at runtime
	SpecialAssets     []string // exact paths consumed by the toolchain
	SpecialExtensions []string
	// KeepGrouped skips records that carry a bundle or atlas grouping.
	KeepGrouped bool
}

// DefaultUnusedPolicy returns the standard policy for a Unity-style tree.
func DefaultUnusedPolicy() UnusedPolicy {
	return UnusedPolicy{
		PrimaryRoot:    "Assets",
		SpecialFolders: []string{"Editor", "Resources", "Plugins", "StreamingAssets"},
		SpecialAssets: []string{
			"Assets/link.xml",
			"Assets/csc.rsp",
			"Assets/mcs.rsp",
			"Assets/GoogleService-Info.plist",
			"Assets/google-services.json",
		},
		SpecialExtensions: []string{".asmdef", ".cginc", ".cs", ".dll"},
		KeepGrouped:       true,
	}
}

// Candidate reports whether rec may be reported as unused at all, regardless
// of its reverse references.
func (p UnusedPolicy) Candidate(rec *asset.Record) bool {
	if rec.IsMissing() || rec.IsFolder() || rec.Excluded {
		return false
	}
	if rec.Kind == asset.KindCode || rec.Kind == asset.KindUnknown {
		return false
	}
	if p.PrimaryRoot != "" && !rec.UnderRoot(p.PrimaryRoot) {
		return false
	}
	for _, folder := range p.SpecialFolders {
		if rec.InFolderNamed(folder) {
			return false
		}
	}
	for _, special := range p.SpecialAssets {
		if rec.Path == special {
			return false
		}
	}
	for _, ext := range p.SpecialExtensions {
		if strings.EqualFold(rec.Extension, ext) {
			return false
		}
	}
	if p.KeepGrouped && (rec.BundleName != "" || rec.AtlasName != "") {
		return false
	}
	return true
}

// Unused returns candidate records that no live record references, sorted by
// extension and then path.
func (g *Graph) Unused(p UnusedPolicy) []*asset.Record {
	var out []*asset.Record
	for _, rec := range g.store.Records() {
		if !p.Candidate(rec) {
			continue
		}
		if owners, ok := g.reverse[rec.Ordinal]; ok && !owners.IsEmpty() {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Extension != out[j].Extension {
			return out[i].Extension < out[j].Extension
		}
		return out[i].Path < out[j].Path
	})
	return out
}
