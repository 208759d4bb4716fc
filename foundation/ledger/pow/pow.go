// Package pow implements the proof-of-work search and its verification
// predicate. Finding a proof is the only CPU-bound hot loop in the node;
// verifying one is a single hash.
package pow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// DefaultDifficulty is the number of leading zero characters required in the
// hex digest of a valid proof.
const DefaultDifficulty = 2

// Work evaluates the difficulty predicate over a block's previous hash and
// merkle root.
type Work struct {
	difficulty int
	prefix     string
}

// New constructs the proof-of-work predicate for the given difficulty. A
// difficulty below 1 falls back to the default.
func New(difficulty int) Work {
	if difficulty < 1 {
		difficulty = DefaultDifficulty
	}

	return Work{
		difficulty: difficulty,
		prefix:     strings.Repeat("0", difficulty),
	}
}

// Search returns the smallest non-negative proof satisfying the predicate
// for the given previous block hash and merkle root. The enumeration is
// monotonic from zero and always terminates for a well-formed predicate.
// Cancellation is cooperative: the context is checked between iterations.
func (w Work) Search(ctx context.Context, previousHash string, merkleRoot string) (uint64, error) {
	var proof uint64
	for !w.Verify(previousHash, merkleRoot, proof) {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		proof++
	}

	return proof, nil
}

// Verify reports whether the proof satisfies the difficulty predicate for
// the given previous block hash and merkle root.
func (w Work) Verify(previousHash string, merkleRoot string, proof uint64) bool {
	guess := merkleRoot + previousHash + strconv.FormatUint(proof, 10)
	hash := sha256.Sum256([]byte(guess))
	digest := hex.EncodeToString(hash[:])

	return strings.HasPrefix(digest, w.prefix)
}
