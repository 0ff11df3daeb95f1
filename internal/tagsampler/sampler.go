// Package tagsampler implements the commit pipeline's write-cost
// sampling (spec.md section 4.3, "Sample the write cost with
// probability mul x cost / totalCosts") and the backup mutation part
// key derivation, which hashes the commit version with
// dgryski/go-farm's fingerprint the way the teacher's backup path
// would — farmhash is in the retrieval pack's dependency set
// specifically for this kind of non-cryptographic part-key hashing.
package tagsampler

import (
	"encoding/binary"
	"math/rand"
	"sync"

	farm "github.com/dgryski/go-farm"
)

// Sampler decides, for a given per-mutation cost and the batch's total
// cost, whether this mutation's cost should be attributed to the
// storage servers it touched, and accumulates the attributed costs for
// the rate keeper (spec.md section 4.3, "Sample the write cost ...
// attribute it to each source storage server"; reportTxnTagCommitCost
// in the original this was distilled from, per SPEC_FULL.md's
// supplemented feature list).
type Sampler struct {
	sampleCost float64
	rand       *rand.Rand

	mu    sync.Mutex
	costs map[string]map[string]int64 // storage server id -> tag -> sampled cost
}

// New returns a Sampler using sampleCost as COMMIT_SAMPLE_COST.
func New(sampleCost float64) *Sampler {
	return &Sampler{sampleCost: sampleCost, rand: rand.New(rand.NewSource(1)), costs: map[string]map[string]int64{}}
}

// AttributeCost records a sampled mutation's cost against every
// (server, tag) pair it touched, for the next ReportTagCosts flush.
func (s *Sampler) AttributeCost(servers []string, tags []string, cost int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, server := range servers {
		byTag, ok := s.costs[server]
		if !ok {
			byTag = map[string]int64{}
			s.costs[server] = byTag
		}
		for _, tag := range tags {
			byTag[tag] += cost
		}
	}
}

// DrainCosts returns and clears the accumulated per-(server, tag) cost
// totals. cmd/commitproxy's tag-cost reporter calls it once a second
// (spec.md section 4.5).
func (s *Sampler) DrainCosts() map[string]map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.costs
	s.costs = map[string]map[string]int64{}
	return out
}

// ShouldSample reports whether a mutation costing `cost` bytes, out of
// `totalCosts` for the whole batch, should be sampled:
// mul = max(1, totalCosts/sampleCost); probability = mul*cost/totalCosts.
func (s *Sampler) ShouldSample(cost, totalCosts float64) bool {
	if totalCosts <= 0 {
		return false
	}
	mul := totalCosts / s.sampleCost
	if mul < 1 {
		mul = 1
	}
	probability := mul * cost / totalCosts
	if probability >= 1 {
		return true
	}
	return s.rand.Float64() < probability
}

// PartKey derives the key for one MUTATION_BLOCK_SIZE-sized part of a
// backup sub-blob: destPrefix ++ hash8(version) ++ bigEndian64(commitVersion)
// ++ bigEndian32(partIndex) (spec.md section 4.3). hash8 is a single
// byte so consecutive versions' parts fan out across the shard's key
// range instead of clustering on one storage server.
func PartKey(destPrefix []byte, version uint64, commitVersion uint64, partIndex uint32) []byte {
	out := make([]byte, len(destPrefix)+1+8+4)
	n := copy(out, destPrefix)
	out[n] = hash8(version)
	n++
	binary.BigEndian.PutUint64(out[n:], commitVersion)
	n += 8
	binary.BigEndian.PutUint32(out[n:], partIndex)
	return out
}

func hash8(version uint64) byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], version)
	return byte(farm.Hash32(buf[:]))
}
