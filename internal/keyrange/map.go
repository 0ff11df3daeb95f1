// Package keyrange implements the shared key-range interval map that
// backs both KeyResolvers and KeyInfo (spec.md section 4, components 4
// and 5). Modeled on the teacher's kv/test_raftstore/pd.go region
// lookup, which keeps btree.Item-backed range entries and queries them
// with DescendLessOrEqual; github.com/google/btree is in the teacher's
// go.mod for exactly this purpose, so no interval-tree library needs
// to be introduced from elsewhere in the pack.
package keyrange

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

// Entry is one contiguous [Begin, End) range and its associated value,
// returned by Intersecting and Lookup.
type Entry struct {
	Begin []byte
	End   []byte
	Value interface{}
}

type rangeItem struct {
	start []byte
	end   []byte
	value interface{}
}

func (r *rangeItem) Less(than btree.Item) bool {
	return bytes.Compare(r.start, than.(*rangeItem).start) < 0
}

// Map is a mutable, non-overlapping partition of the full key space
// into contiguous ranges, each carrying an opaque value (an []Assignment
// list for KeyResolvers, a *keyinfo.Entry for KeyInfo). Inserting a range
// splits whatever ranges it overlaps, like FDB's KeyRangeMap.
type Map struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// New returns a Map with the entire key space [nil, nil) is left
// unassigned until the first Insert.
func New() *Map {
	return &Map{tree: btree.New(32)}
}

// Insert assigns value to [begin, end), splitting or trimming any
// ranges it overlaps so the partition remains non-overlapping.
func (m *Map) Insert(begin, end []byte, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pred *rangeItem
	m.tree.DescendLessOrEqual(&rangeItem{start: begin}, func(i btree.Item) bool {
		pred = i.(*rangeItem)
		return false
	})
	scanFrom := begin
	if pred != nil && (pred.end == nil || bytes.Compare(pred.end, begin) > 0) {
		scanFrom = pred.start
	}

	var overlapping []*rangeItem
	m.tree.AscendGreaterOrEqual(&rangeItem{start: scanFrom}, func(i btree.Item) bool {
		it := i.(*rangeItem)
		if end != nil && bytes.Compare(it.start, end) >= 0 {
			return false
		}
		overlapping = append(overlapping, it)
		return true
	})

	for _, it := range overlapping {
		m.tree.Delete(it)
		if bytes.Compare(it.start, begin) < 0 {
			m.tree.ReplaceOrInsert(&rangeItem{start: it.start, end: begin, value: it.value})
		}
		if end != nil && (it.end == nil || bytes.Compare(it.end, end) > 0) {
			m.tree.ReplaceOrInsert(&rangeItem{start: end, end: it.end, value: it.value})
		}
	}
	m.tree.ReplaceOrInsert(&rangeItem{start: begin, end: end, value: value})
}

// Lookup returns the value assigned to the range containing key, if
// any range has been inserted that covers it.
func (m *Map) Lookup(key []byte) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *rangeItem
	m.tree.DescendLessOrEqual(&rangeItem{start: key}, func(i btree.Item) bool {
		found = i.(*rangeItem)
		return false
	})
	if found == nil || (found.end != nil && bytes.Compare(key, found.end) >= 0) {
		return nil, false
	}
	return found.value, true
}

// Intersecting returns every entry overlapping [begin, end), in key
// order, for the resolver fan-out that must contact every resolver
// whose shard intersects a transaction's conflict ranges.
func (m *Map) Intersecting(begin, end []byte) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pred *rangeItem
	m.tree.DescendLessOrEqual(&rangeItem{start: begin}, func(i btree.Item) bool {
		pred = i.(*rangeItem)
		return false
	})
	scanFrom := begin
	if pred != nil && (pred.end == nil || bytes.Compare(pred.end, begin) > 0) {
		scanFrom = pred.start
	}

	var out []Entry
	m.tree.AscendGreaterOrEqual(&rangeItem{start: scanFrom}, func(i btree.Item) bool {
		it := i.(*rangeItem)
		if end != nil && bytes.Compare(it.start, end) >= 0 {
			return false
		}
		out = append(out, Entry{Begin: it.start, End: it.end, Value: it.value})
		return true
	})
	return out
}

// Len returns the number of distinct ranges currently partitioned.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}
