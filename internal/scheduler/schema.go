package scheduler

import (
	"sort"

	"github.com/smilemakc/dagengine/internal/column"
)

// SchemaDelta records, for one node, the keys its output added or
// removed relative to the union of its inputs' keys.
type SchemaDelta struct {
	NodeID  string
	Added   []column.KeyID
	Removed []column.KeyID
}

func unionKeys(views []column.RowView) []column.KeyID {
	seen := make(map[column.KeyID]struct{})
	for _, v := range views {
		if v.Bundle == nil {
			continue
		}
		for _, k := range v.Bundle.Keys() {
			seen[k] = struct{}{}
		}
	}
	return sortedKeySet(seen)
}

func sortedKeySet(seen map[column.KeyID]struct{}) []column.KeyID {
	out := make([]column.KeyID, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// computeSchemaDelta diffs an output bundle's keys against the union of
// its inputs' keys.
func computeSchemaDelta(nodeID string, ins []column.RowView, out column.RowView) SchemaDelta {
	before := make(map[column.KeyID]struct{})
	for _, k := range unionKeys(ins) {
		before[k] = struct{}{}
	}
	after := make(map[column.KeyID]struct{})
	if out.Bundle != nil {
		for _, k := range out.Bundle.Keys() {
			after[k] = struct{}{}
		}
	}

	var added, removed []column.KeyID
	for k := range after {
		if _, ok := before[k]; !ok {
			added = append(added, k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			removed = append(removed, k)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })

	return SchemaDelta{NodeID: nodeID, Added: added, Removed: removed}
}
