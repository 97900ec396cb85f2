package asset

import (
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ID is the stable identifier of a content item (a 32 character lowercase hex GUID).
type ID string

// State tracks where a record is in its lifecycle.
type State int

const (
	StateNew State = iota
	StateCached
	StateMissing
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateCached:
		return "cached"
	case StateMissing:
		return "missing"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Record is the cached view of one content item.
//
// Metadata fields are written by the change detector and ForwardRefs by the
// reference parser. A Record in StateMissing has no valid size, fingerprint or
// refs; check State before reading them.
type Record struct {
	ID          ID
	Path        string // project relative, forward slashes
	Extension   string // lower case, with dot
	Kind        Kind
	State       State
	SizeBytes   int64
	Fingerprint uint64

	WriteTime        time.Time // max(content mtime, sidecar mtime)
	IndexedTime      time.Time // WriteTime observed at the last content load
	MetadataReadTime time.Time
	ChangeTime       time.Time

	// ForwardRefs maps a referenced id to the local sub-element ids it is used from.
	ForwardRefs map[ID]map[int32]struct{}

	BundleName string
	AtlasName  string

	Excluded           bool
	ExcludedGeneration uint64

	Ordinal   uint32
	Queued    bool
	SeenStamp uint64
}

// NewRecord creates a record in StateNew with an unknown kind.
func NewRecord(id ID) *Record {
	return &Record{
		ID:          id,
		Kind:        KindUnknown,
		State:       StateNew,
		ForwardRefs: make(map[ID]map[int32]struct{}),
	}
}

// MetadataDirty reports whether file info must be re-read.
func (r *Record) MetadataDirty() bool {
	return r.Kind == KindUnknown || !r.MetadataReadTime.After(r.ChangeTime)
}

// ContentDirty reports whether the content changed since the last parse.
func (r *Record) ContentDirty() bool {
	return !r.WriteTime.Equal(r.IndexedTime)
}

// Dirty is MetadataDirty || ContentDirty.
func (r *Record) Dirty() bool {
	return r.MetadataDirty() || r.ContentDirty()
}

func (r *Record) IsMissing() bool { return r.State == StateMissing }
func (r *Record) IsFolder() bool  { return r.Kind == KindFolder }

// Name returns the base name of the record's path.
func (r *Record) Name() string {
	return path.Base(r.Path)
}

// AddRef records a reference to target. Self references are dropped.
// hasLocal=false registers the target without a local element id.
func (r *Record) AddRef(target ID, local int32, hasLocal bool) {
	if target == "" || target == r.ID {
		return
	}
	locals, ok := r.ForwardRefs[target]
	if !ok {
		locals = make(map[int32]struct{})
		r.ForwardRefs[target] = locals
	}
	if hasLocal {
		locals[local] = struct{}{}
	}
}

// ClearRefs drops every forward reference.
func (r *Record) ClearRefs() {
	r.ForwardRefs = make(map[ID]map[int32]struct{})
}

// RefTargets returns the referenced ids in sorted order.
func (r *Record) RefTargets() []ID {
	out := make([]ID, 0, len(r.ForwardRefs))
	for id := range r.ForwardRefs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LocalIDs returns the sorted local element ids used to reference target.
func (r *Record) LocalIDs(target ID) []int32 {
	locals := r.ForwardRefs[target]
	out := make([]int32, 0, len(locals))
	for id := range locals {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetPath updates the path and the derived extension.
func (r *Record) SetPath(p string) {
	r.Path = p
	r.Extension = strings.ToLower(path.Ext(p))
}

// UnderRoot reports whether the record lives strictly below root (e.g. "Assets").
func (r *Record) UnderRoot(root string) bool {
	return strings.HasPrefix(r.Path, strings.TrimSuffix(root, "/")+"/")
}

// InFolderNamed reports whether any directory component of the path equals name.
func (r *Record) InFolderNamed(name string) bool {
	parts := strings.Split(r.Path, "/")
	for _, part := range parts[:len(parts)-1] {
		if part == name {
			return true
		}
	}
	return false
}

// Fingerprint is the cheap pre-filter hash of size and extension.
func Fingerprint(size int64, ext string) uint64 {
	return xxhash.Sum64String(strconv.FormatInt(size, 10) + "|" + strings.ToLower(ext))
}

// IsValidID reports whether s looks like a GUID: 32 lowercase hex characters.
func IsValidID(s string) bool {
	if len(s) != 32 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
