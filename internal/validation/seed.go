// Package validation implements the statistical validation engine (spec
// §4.7, C7): a permutation test, an adaptively block-bootstrapped
// confidence interval (HADJ-BB), and walk-forward out-of-sample
// partitioning. Every trial's randomness is derived from a single
// seed_root so that identical inputs always reproduce identical
// distributions (spec's Determinism requirement).
package validation

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// Fold32 folds a SHA-256 digest down to a uint32 by XOR-folding its four
// 8-byte lanes, then XORing the resulting two 4-byte halves.
func Fold32(digest [32]byte) uint32 {
	var lanes [4]uint64
	for i := range lanes {
		lanes[i] = binary.BigEndian.Uint64(digest[i*8 : i*8+8])
	}
	folded := lanes[0] ^ lanes[1] ^ lanes[2] ^ lanes[3]
	return uint32(folded>>32) ^ uint32(folded)
}

// DeriveSeed computes the deterministic sub-seed for validation method m,
// trial index i: fold32(SHA256(seed_root || m || i)) (spec §4.7).
func DeriveSeed(seedRoot int64, method string, index int) uint32 {
	h := sha256.New()
	var rootBuf [8]byte
	binary.BigEndian.PutUint64(rootBuf[:], uint64(seedRoot))
	h.Write(rootBuf[:])
	h.Write([]byte(method))
	h.Write([]byte(fmt.Sprintf("%d", index)))
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return Fold32(digest)
}

// NewTrialRand returns a *rand.Rand seeded deterministically for method m,
// trial i, given the run's seed_root.
func NewTrialRand(seedRoot int64, method string, index int) *rand.Rand {
	seed := DeriveSeed(seedRoot, method, index)
	return rand.New(rand.NewSource(int64(seed)))
}
