// Package txnstate implements the proxy-local txnStateStore (spec.md
// section 7, "Persisted state"): a logical KV seeded by replayed
// TxnStateRequests and mutated by the metadata mutations that pass
// through the commit pipeline's Phase 3. Grounded on the teacher's
// kv/transaction/mvcc key encoding conventions for the \xff-prefixed
// system key space, and on kv/storage's InnerServer shape for the
// logical get/apply split.
package txnstate

import (
	"bytes"
	"sync"

	"github.com/pingcap-incubator/txnproxy/internal/keyinfo"
	"github.com/pingcap-incubator/txnproxy/internal/txnpb"
	"github.com/pkg/errors"
)

// Well-known system keys (spec.md section 7).
var (
	DatabaseLockedKey = []byte("\xff/databaseLocked")
	MetadataVersionKey = []byte("\xff/metadataVersion")
	CoordinatorsKey    = []byte("\xff/coordinators")
	LogAntiQuorumKey   = []byte("\xff/log_anti_quorum")
)

var (
	serverTagPrefix        = []byte("\xff/serverTag/")
	serverTagHistoryPrefix = []byte("\xff/serverTagHistory/")
	tagLocalityPrefix      = []byte("\xff/tagLocalityList/")
	keyServersPrefix       = []byte("\xff/keyServers/")
	cacheKeysPrefix        = []byte("\xff/cacheKeys/")
)

// CoordinatorsChange is reported when applying a mutation to
// CoordinatorsKey observes a new value, so the caller can submit a
// ChangeCoordinatorsRequest and restart.
type CoordinatorsChange struct {
	Old []string
	New []string
}

// Store is the commit proxy's logical metadata KV, backing the system
// key space that KeyInfo, the cache set, and the coordinator list are
// derived from.
type Store struct {
	mu           sync.RWMutex
	kv           map[string][]byte
	keyInfo      *keyinfo.Map
	cacheSet     map[string]bool
	coordinators []string
}

// New returns an empty Store bound to an existing KeyInfo map, which
// it updates in place as keyServers/ mutations arrive.
func New(ki *keyinfo.Map) *Store {
	return &Store{
		kv:       make(map[string][]byte),
		keyInfo:  ki,
		cacheSet: make(map[string]bool),
	}
}

// Get returns the raw value stored at key, if any.
func (s *Store) Get(key []byte) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.kv[string(key)]
	return v, ok
}

// Locked reports whether DatabaseLockedKey is currently set.
func (s *Store) Locked() bool {
	_, ok := s.Get(DatabaseLockedKey)
	return ok
}

// Cached reports whether key falls within the cache set.
func (s *Store) Cached(key []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cacheSet[string(key)]
}

// Apply interprets one committed metadata mutation against the store,
// updating derived structures (KeyInfo, the cache set) and returning a
// non-nil CoordinatorsChange when CoordinatorsKey's value changed
// (spec.md section 4.3: "If the coordinators key changed vs.
// oldCoordinators, submit a ChangeCoordinatorsRequest").
func (s *Store) Apply(m txnpb.Mutation) (*CoordinatorsChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m.Kind {
	case txnpb.MutationSet:
		return s.applySet(m.Param1, m.Param2)
	case txnpb.MutationClearRange:
		s.applyClearRange(m.Param1, m.Param2)
		return nil, nil
	default:
		return nil, errors.Errorf("txnstate: mutation kind %d is not a valid metadata mutation", m.Kind)
	}
}

func (s *Store) applySet(key, value []byte) (*CoordinatorsChange, error) {
	s.kv[string(key)] = append([]byte{}, value...)

	switch {
	case bytes.Equal(key, CoordinatorsKey):
		oldList := s.coordinators
		newList := splitCoordinatorList(value)
		s.coordinators = newList
		if !stringsEqual(oldList, newList) {
			return &CoordinatorsChange{Old: oldList, New: newList}, nil
		}
		return nil, nil

	case bytes.HasPrefix(key, keyServersPrefix):
		s.applyKeyServers(bytes.TrimPrefix(key, keyServersPrefix), value)

	case bytes.HasPrefix(key, cacheKeysPrefix):
		s.cacheSet[string(bytes.TrimPrefix(key, cacheKeysPrefix))] = true
	}
	return nil, nil
}

func (s *Store) applyClearRange(begin, end []byte) {
	for k := range s.kv {
		kb := []byte(k)
		if bytes.Compare(kb, begin) >= 0 && (end == nil || bytes.Compare(kb, end) < 0) {
			delete(s.kv, k)
			if bytes.HasPrefix(kb, cacheKeysPrefix) {
				delete(s.cacheSet, string(bytes.TrimPrefix(kb, cacheKeysPrefix)))
			}
		}
	}
}

// applyKeyServers decodes a keyServers/<range> value as a comma-separated
// source tag list and a comma-separated destination tag list, separated
// by a 0x00 byte, and assigns them in KeyInfo to the single-key range
// [rangeKey, rangeKey\x00); the encoding is this proxy's own, since the generated
// protobuf schema for the real keyServers value is not available in
// this module (see SPEC_FULL.md section 1).
func (s *Store) applyKeyServers(rangeKey, value []byte) {
	parts := bytes.SplitN(value, []byte("\x00"), 2)
	var src, dst []string
	if len(parts) > 0 && len(parts[0]) > 0 {
		src = splitTags(parts[0])
	}
	if len(parts) > 1 && len(parts[1]) > 0 {
		dst = splitTags(parts[1])
	}
	end := append(append([]byte{}, rangeKey...), 0x00)
	s.keyInfo.Assign(rangeKey, end, keyinfo.Entry{
		Tags:          src,
		SourceServers: src,
		DestServers:   dst,
		Cached:        s.cacheSet[string(rangeKey)],
	})
}

func splitTags(b []byte) []string {
	var out []string
	for _, p := range bytes.Split(b, []byte(",")) {
		if len(p) > 0 {
			out = append(out, string(p))
		}
	}
	return out
}

func splitCoordinatorList(b []byte) []string {
	return splitTags(bytes.ReplaceAll(b, []byte(";"), []byte(",")))
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
