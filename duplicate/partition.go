package duplicate

import (
	"sort"

	"github.com/lexandro/assetindex-mcp/asset"
)

type fingerprintKey struct {
	size int64
	ext  string
}

// Partition groups eligible records by size and extension and drops groups
// that cannot contain a duplicate. Groups keep the input order of their
// members and are returned largest size first.
func Partition(records []*asset.Record, eligible func(*asset.Record) bool) [][]*asset.Record {
	groups := make(map[fingerprintKey][]*asset.Record)
	var keys []fingerprintKey
	for _, rec := range records {
		if eligible != nil && !eligible(rec) {
			continue
		}
		key := fingerprintKey{size: rec.SizeBytes, ext: rec.Extension}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], rec)
	}

	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].size != keys[j].size {
			return keys[i].size > keys[j].size
		}
		return keys[i].ext < keys[j].ext
	})

	out := make([][]*asset.Record, 0, len(keys))
	for _, key := range keys {
		if group := groups[key]; len(group) > 1 {
			out = append(out, group)
		}
	}
	return out
}

// Candidates is the number of records across groups.
func Candidates(groups [][]*asset.Record) int {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	return n
}
