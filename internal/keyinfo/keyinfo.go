// Package keyinfo implements KeyInfo (spec.md section 4, component 8):
// the interval map from key ranges to storage-server tags, a cache
// flag, and source/destination server lists, kept current by applying
// system-metadata mutations as they pass through the commit pipeline.
// Grounded on internal/keyrange as resolvers.KeyResolvers is.
package keyinfo

import "github.com/pingcap-incubator/txnproxy/internal/keyrange"

// InvalidTag is never a valid storage-server tag; entries must never
// contain it (spec.md section 4, invariant "tag != invalid_tag").
const InvalidTag = ""

// Entry is the shard metadata KeyInfo attaches to a key range.
type Entry struct {
	Tags            []string
	Cached          bool
	SourceServers   []string
	DestServers     []string
}

// Map is the commit proxy's per-process KeyInfo.
type Map struct {
	m *keyrange.Map
}

// New returns an empty KeyInfo, to be bulk-loaded from the initial
// TxnStateRequest batch.
func New() *Map {
	return &Map{m: keyrange.New()}
}

// Assign sets the shard metadata for [begin, end), deduplicating tags
// and dropping InvalidTag.
func (k *Map) Assign(begin, end []byte, e Entry) {
	e.Tags = dedupValidTags(e.Tags)
	k.m.Insert(begin, end, &e)
}

// Lookup returns the shard metadata covering key, if known.
func (k *Map) Lookup(key []byte) (*Entry, bool) {
	v, ok := k.m.Lookup(key)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// TagsFor returns the deduplicated tag set for key, including the
// cache tag "cache" when the shard is marked cached (spec.md section
// 4.3: "include the cache tag if the key is in the cache set").
func (k *Map) TagsFor(key []byte) []string {
	e, ok := k.Lookup(key)
	if !ok {
		return nil
	}
	if !e.Cached {
		return e.Tags
	}
	return append(append([]string{}, e.Tags...), "cache")
}

// Intersecting returns every shard entry overlapping [begin, end), for
// the clear-range fast-path/union-of-tags dispatch (spec.md section
// 4.3).
func (k *Map) Intersecting(begin, end []byte) []keyrange.Entry {
	return k.m.Intersecting(begin, end)
}

func dedupValidTags(tags []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == InvalidTag || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
