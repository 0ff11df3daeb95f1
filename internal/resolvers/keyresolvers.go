// Package resolvers holds KeyResolvers (spec.md section 4, component
// 4: the interval map from key range to an ordered list of
// (effective-from version, resolver-id) pairs) and the resolution
// request builder that projects a CommitBatch onto it (component 5).
// Both are grounded on internal/keyrange, itself grounded on the
// teacher's region-range lookups in kv/test_raftstore/pd.go.
package resolvers

import (
	"bytes"
	"sort"

	"github.com/pingcap-incubator/txnproxy/internal/keyrange"
)

// Assignment is one (effective-from version, resolver-id) entry.
type Assignment struct {
	EffectiveFrom uint64
	ResolverID    int
}

// KeyResolvers is the commit proxy's dynamic key→resolver map. It is
// initialized covering the whole key space with a single (0, 0) entry
// and is extended whenever the master reports a resolver-range change,
// then coalesced periodically to bound memory.
type KeyResolvers struct {
	m *keyrange.Map
}

// NewKeyResolvers returns a KeyResolvers with the entire key space
// assigned to resolver 0, effective from version 0.
func NewKeyResolvers() *KeyResolvers {
	kr := &KeyResolvers{m: keyrange.New()}
	kr.m.Insert(nil, nil, []Assignment{{EffectiveFrom: 0, ResolverID: 0}})
	return kr
}

// ApplyRangeChange records that, from effectiveFrom onward, [begin,end)
// is served by resolverID. Existing assignments for the range are kept
// (older effective-from entries remain visible to older read
// snapshots) by appending rather than overwriting.
func (kr *KeyResolvers) ApplyRangeChange(begin, end []byte, effectiveFrom uint64, resolverID int) {
	for _, e := range kr.m.Intersecting(begin, end) {
		assignments := append(cloneAssignments(e.Value.([]Assignment)), Assignment{EffectiveFrom: effectiveFrom, ResolverID: resolverID})
		sort.Slice(assignments, func(i, j int) bool { return assignments[i].EffectiveFrom < assignments[j].EffectiveFrom })
		rangeBegin, rangeEnd := e.Begin, e.End
		if bytes.Compare(rangeBegin, begin) < 0 {
			rangeBegin = begin
		}
		if rangeEnd == nil || (end != nil && bytes.Compare(rangeEnd, end) > 0) {
			rangeEnd = end
		}
		kr.m.Insert(rangeBegin, rangeEnd, assignments)
	}
	if len(kr.m.Intersecting(begin, end)) == 0 {
		kr.m.Insert(begin, end, []Assignment{{EffectiveFrom: effectiveFrom, ResolverID: resolverID}})
	}
}

// ResolversFor returns the set of resolver-ids responsible for any key
// in [begin, end) as of readSnapshot: the union, over every partition
// entry intersecting the range, of the entries whose effective-from is
// >= readSnapshot plus the latest earlier entry (spec.md section 4.2,
// step 3). A range is used rather than a single point so a conflict
// range spanning a resolver-reassignment boundary still picks up the
// resolver covering the far side of the range, matching
// keyResolvers.intersectingRanges in the original proxy.
func (kr *KeyResolvers) ResolversFor(begin, end []byte, readSnapshot uint64) []int {
	seen := map[int]bool{}
	var out []int
	for _, e := range kr.m.Intersecting(begin, end) {
		assignments := e.Value.([]Assignment)
		var lastEarlier *Assignment
		for i := range assignments {
			a := assignments[i]
			if a.EffectiveFrom >= readSnapshot {
				if !seen[a.ResolverID] {
					seen[a.ResolverID] = true
					out = append(out, a.ResolverID)
				}
			} else if lastEarlier == nil || a.EffectiveFrom > lastEarlier.EffectiveFrom {
				lastEarlier = &a
			}
		}
		if lastEarlier != nil && !seen[lastEarlier.ResolverID] {
			seen[lastEarlier.ResolverID] = true
			out = append(out, lastEarlier.ResolverID)
		}
	}
	return out
}

// LatestResolverFor returns the union of the single most recent
// resolver-id assigned to each partition entry intersecting
// [begin, end), used for write-conflict ranges (spec.md section 4.2,
// step 3: "For each write-conflict range, use only the latest
// resolver-id from the map" — applied per intersecting entry, since a
// write-conflict range can itself straddle a reassignment boundary).
func (kr *KeyResolvers) LatestResolverFor(begin, end []byte) ([]int, bool) {
	seen := map[int]bool{}
	var out []int
	for _, e := range kr.m.Intersecting(begin, end) {
		assignments := e.Value.([]Assignment)
		if len(assignments) == 0 {
			continue
		}
		latest := assignments[0]
		for _, a := range assignments[1:] {
			if a.EffectiveFrom > latest.EffectiveFrom {
				latest = a
			}
		}
		if !seen[latest.ResolverID] {
			seen[latest.ResolverID] = true
			out = append(out, latest.ResolverID)
		}
	}
	return out, len(out) > 0
}

// Coalesce drops assignments whose effective-from predates the oldest
// version any in-flight batch can still need, bounding the map's
// growth (spec.md section 4.3, "coalesce KeyResolvers by popping
// entries older than prevVersion − MAX_WRITE_TRANSACTION_LIFE_VERSIONS").
func (kr *KeyResolvers) Coalesce(oldestNeeded uint64) {
	for _, e := range kr.m.Intersecting(nil, nil) {
		assignments := e.Value.([]Assignment)
		if len(assignments) <= 1 {
			continue
		}
		sort.Slice(assignments, func(i, j int) bool { return assignments[i].EffectiveFrom < assignments[j].EffectiveFrom })
		var kept []Assignment
		for _, a := range assignments {
			if a.EffectiveFrom >= oldestNeeded {
				kept = append(kept, a)
			}
		}
		if len(kept) == 0 {
			kept = []Assignment{assignments[len(assignments)-1]}
		}
		kr.m.Insert(e.Begin, e.End, kept)
	}
}

func cloneAssignments(in []Assignment) []Assignment {
	out := make([]Assignment, len(in))
	copy(out, in)
	return out
}
