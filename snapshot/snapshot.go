// Package snapshot persists the record store between runs as a versioned,
// checksummed, zstd-compressed JSON file.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/lexandro/assetindex-mcp/asset"
)

// FormatVersion is bumped on any change to the persisted layout. Files with
// another version are never migrated.
const FormatVersion = 3

// ErrCorruptSnapshot means the payload does not match its checksum or cannot be decoded.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// Ref is one persisted forward reference.
type Ref struct {
	Target asset.ID `json:"target"`
	Locals []int32  `json:"locals,omitempty"`
}

// Record is the persisted projection of an asset.Record.
type Record struct {
	ID        asset.ID  `json:"id"`
	Path      string    `json:"path"`
	Kind      string    `json:"kind"`
	Missing   bool      `json:"missing,omitempty"`
	Size      int64     `json:"size"`
	WriteTime time.Time `json:"writeTime"`
	Refs      []Ref     `json:"refs,omitempty"`
	Bundle    string    `json:"bundle,omitempty"`
	Atlas     string    `json:"atlas,omitempty"`
}

// File is the decoded content of a snapshot.
type File struct {
	Version int
	Root    string
	SavedAt time.Time
	Records []Record
}

type envelope struct {
	Version  int             `json:"version"`
	Root     string          `json:"root"`
	SavedAt  time.Time       `json:"savedAt"`
	Checksum uint64          `json:"checksum"`
	Records  json.RawMessage `json:"records"`
}

// FromRecord projects a live record. Refs are kept in target order.
func FromRecord(rec *asset.Record) Record {
	out := Record{
		ID:        rec.ID,
		Path:      rec.Path,
		Kind:      rec.Kind.String(),
		Missing:   rec.IsMissing(),
		Size:      rec.SizeBytes,
		WriteTime: rec.IndexedTime,
		Bundle:    rec.BundleName,
		Atlas:     rec.AtlasName,
	}
	for _, target := range rec.RefTargets() {
		out.Refs = append(out.Refs, Ref{Target: target, Locals: rec.LocalIDs(target)})
	}
	return out
}

// ToRecord rebuilds a record. Its content counts as indexed at WriteTime, so
// it is re-parsed only if the file changed since the snapshot was taken.
func (r Record) ToRecord() *asset.Record {
	rec := asset.NewRecord(r.ID)
	rec.SetPath(r.Path)
	rec.Kind = asset.ParseKind(r.Kind)
	rec.State = asset.StateCached
	if r.Missing {
		rec.State = asset.StateMissing
	}
	rec.SizeBytes = r.Size
	rec.Fingerprint = asset.Fingerprint(r.Size, rec.Extension)
	rec.WriteTime = r.WriteTime
	rec.IndexedTime = r.WriteTime
	rec.BundleName = r.Bundle
	rec.AtlasName = r.Atlas
	for _, ref := range r.Refs {
		if len(ref.Locals) == 0 {
			rec.AddRef(ref.Target, 0, false)
			continue
		}
		for _, local := range ref.Locals {
			rec.AddRef(ref.Target, local, true)
		}
	}
	return rec
}

// Save writes f atomically: the payload goes to a temporary file in the
// same directory which is then renamed over path.
func Save(path string, f *File) error {
	records, err := json.Marshal(f.Records)
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}
	payload, err := json.Marshal(envelope{
		Version:  FormatVersion,
		Root:     f.Root,
		SavedAt:  f.SavedAt,
		Checksum: xxhash.Sum64(records),
		Records:  records,
	})
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("creating compressor: %w", err)
	}
	compressed := enc.EncodeAll(payload, nil)
	enc.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot. A different format version returns an error
// wrapping asset.ErrStaleCacheVersion; the caller decides whether to rebuild.
func Load(path string) (*File, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating decompressor: %w", err)
	}
	defer dec.Close()
	payload, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w: %v", path, ErrCorruptSnapshot, err)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decoding %s: %w: %v", path, ErrCorruptSnapshot, err)
	}
	if env.Version != FormatVersion {
		return nil, asset.NewError(asset.ErrStaleCacheVersion, "load snapshot",
			fmt.Errorf("%s has format version %d, want %d", path, env.Version, FormatVersion))
	}
	if xxhash.Sum64(env.Records) != env.Checksum {
		return nil, fmt.Errorf("%s: checksum mismatch: %w", path, ErrCorruptSnapshot)
	}

	f := &File{Version: env.Version, Root: env.Root, SavedAt: env.SavedAt}
	if err := json.Unmarshal(env.Records, &f.Records); err != nil {
		return nil, fmt.Errorf("decoding records in %s: %w: %v", path, ErrCorruptSnapshot, err)
	}
	return f, nil
}
