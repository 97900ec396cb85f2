package index

import (
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/lexandro/assetindex-mcp/asset"
)

// Store holds one record per id, in insertion order.
// It is not safe for concurrent use: the cache owns it on a single goroutine.
type Store struct {
	records   map[asset.ID]*asset.Record
	order     []asset.ID
	byOrdinal []*asset.Record
	logger    *slog.Logger
}

// NewStore creates an empty record store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		records: make(map[asset.ID]*asset.Record),
		logger:  logger,
	}
}

// Get returns the record for id.
func (s *Store) Get(id asset.ID) (*asset.Record, bool) {
	rec, ok := s.records[id]
	return rec, ok
}

// Add creates a record for id. If the id is already present the existing
// record is returned unchanged.
func (s *Store) Add(id asset.ID) *asset.Record {
	if rec, ok := s.records[id]; ok {
		s.logger.Debug("record already present", "id", id, "path", rec.Path)
		return rec
	}
	rec := asset.NewRecord(id)
	rec.Ordinal = uint32(len(s.byOrdinal))
	s.records[id] = rec
	s.order = append(s.order, id)
	s.byOrdinal = append(s.byOrdinal, rec)
	return rec
}

// Insert adds a fully built record (used when restoring a snapshot).
// It reports false if the id is already present.
func (s *Store) Insert(rec *asset.Record) bool {
	if _, ok := s.records[rec.ID]; ok {
		return false
	}
	rec.Ordinal = uint32(len(s.byOrdinal))
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	s.byOrdinal = append(s.byOrdinal, rec)
	return true
}

// Remove marks the record missing. The record stays addressable by id.
func (s *Store) Remove(id asset.ID) {
	if rec, ok := s.records[id]; ok {
		rec.State = asset.StateMissing
	}
}

// AllIDs iterates ids in insertion order.
func (s *Store) AllIDs() iter.Seq[asset.ID] {
	return func(yield func(asset.ID) bool) {
		for _, id := range s.order {
			if !yield(id) {
				return
			}
		}
	}
}

// Records returns all records in insertion order.
func (s *Store) Records() []*asset.Record {
	out := make([]*asset.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// ByOrdinal returns the record with the given dense ordinal, or nil.
func (s *Store) ByOrdinal(ordinal uint32) *asset.Record {
	if int(ordinal) >= len(s.byOrdinal) {
		return nil
	}
	return s.byOrdinal[ordinal]
}

// Len returns the number of records, missing ones included.
func (s *Store) Len() int {
	return len(s.order)
}

// Prune erases records whose seen stamp differs from stamp. Records for which
// referenced returns true are kept and marked missing instead. Ordinals are
// compacted afterwards, so any ordinal-keyed structure must be rebuilt.
func (s *Store) Prune(stamp uint64, referenced func(asset.ID) bool) []asset.ID {
	var pruned []asset.ID
	kept := s.order[:0]
	for _, id := range s.order {
		rec := s.records[id]
		if rec.SeenStamp == stamp {
			kept = append(kept, id)
			continue
		}
		if referenced != nil && referenced(id) {
			rec.State = asset.StateMissing
			kept = append(kept, id)
			continue
		}
		delete(s.records, id)
		pruned = append(pruned, id)
	}
	s.order = kept

	s.byOrdinal = s.byOrdinal[:0]
	for i, id := range s.order {
		rec := s.records[id]
		rec.Ordinal = uint32(i)
		s.byOrdinal = append(s.byOrdinal, rec)
	}
	return pruned
}

// Clear removes all records.
func (s *Store) Clear() {
	s.records = make(map[asset.ID]*asset.Record)
	s.order = nil
	s.byOrdinal = nil
}

// CountsByKind returns live (non-missing) record counts per kind.
func (s *Store) CountsByKind() map[asset.Kind]int {
	counts := make(map[asset.Kind]int)
	for _, rec := range s.records {
		if rec.IsMissing() {
			continue
		}
		counts[rec.Kind]++
	}
	return counts
}

// CountsByState returns record counts per state.
func (s *Store) CountsByState() map[asset.State]int {
	counts := make(map[asset.State]int)
	for _, rec := range s.records {
		counts[rec.State]++
	}
	return counts
}

// TotalSizeBytes returns the total size of all live records.
func (s *Store) TotalSizeBytes() int64 {
	var total int64
	for _, rec := range s.records {
		if !rec.IsMissing() {
			total += rec.SizeBytes
		}
	}
	return total
}

// SearchByGlob returns live records whose path matches a doublestar pattern,
// sorted by path.
func (s *Store) SearchByGlob(pattern string, maxResults int) ([]*asset.Record, error) {
	if maxResults <= 0 {
		maxResults = 50
	}

	// Normalize pattern to forward slashes
	pattern = strings.ReplaceAll(pattern, "\\", "/")
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern: %s", pattern)
	}

	paths := make([]string, 0, len(s.records))
	byPath := make(map[string]*asset.Record, len(s.records))
	for _, rec := range s.records {
		if rec.IsMissing() || rec.Path == "" {
			continue
		}
		paths = append(paths, rec.Path)
		byPath[rec.Path] = rec
	}
	sort.Strings(paths)

	var results []*asset.Record
	for _, p := range paths {
		if len(results) >= maxResults {
			break
		}
		matched, err := doublestar.Match(pattern, p)
		if err != nil || !matched {
			continue
		}
		results = append(results, byPath[p])
	}
	return results, nil
}
