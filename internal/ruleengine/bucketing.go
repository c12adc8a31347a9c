package ruleengine

import (
	"crypto/sha1"
	"fmt"
	"math"
	"math/big"

	"github.com/spaolacci/murmur3"
)

// NumBuckets is the resolution of a bucketing draw: a draw is bucket/NumBuckets,
// so variant ranges are honored at 0.1% granularity.
const NumBuckets = 1000

// HashFunc names the hash used to turn (seed, identifier) into a bucket.
type HashFunc string

const (
	// HashSHA1 interprets the SHA-1 digest as a big-endian integer.
	// It is the default and keeps assignments stable with existing experiments.
	HashSHA1 HashFunc = "sha1"

	// HashMurmur3 uses 32-bit Murmur3, which is much cheaper than SHA-1 and has
	// comparable distribution for bucketing purposes.
	HashMurmur3 HashFunc = "murmur3"
)

var numBucketsBig = big.NewInt(NumBuckets)

// ParseHashFunc validates a configured hash name. Empty means HashSHA1.
func ParseHashFunc(s string) (HashFunc, error) {
	switch HashFunc(s) {
	case "", HashSHA1:
		return HashSHA1, nil
	case HashMurmur3:
		return HashMurmur3, nil
	default:
		return "", fmt.Errorf("unknown hash_func %q", s)
	}
}

// Seed builds the per-experiment salt. Changing shuffleVersion reshuffles the
// population of one experiment without touching any other.
func Seed(featureID uint32, featureName string, shuffleVersion uint32) string {
	return fmt.Sprintf("%d.%s.%d", featureID, featureName, shuffleVersion)
}

// Bucket deterministically maps an identifier into [0, NumBuckets).
//
// Thread-Safety: stateless; a new hasher is created per call.
func Bucket(seed, identifier string, fn HashFunc) int {
	// Composite key: the seed (salt) keeps experiments statistically independent.
	key := []byte(seed + identifier)

	switch fn {
	case HashMurmur3:
		return int(murmur3.Sum32(key) % NumBuckets)
	default:
		sum := sha1.Sum(key)
		n := new(big.Int).SetBytes(sum[:])
		return int(n.Mod(n, numBucketsBig).Int64())
	}
}

// Draw converts a bucket into the uniform value r in [0, 1).
func Draw(bucket int) float64 {
	return float64(bucket) / NumBuckets
}

// Range is a half-open slice [Start, End) of the unit interval.
type Range struct {
	Start float64
	End   float64
}

// Bounds returns the bucket interval [lo, hi) owned by the range.
// A range ending at 1.0 owns every bucket up to the top so no draw falls in a gap.
func (r Range) Bounds() (lo, hi int) {
	lo = int(math.Round(r.Start * NumBuckets))
	hi = int(math.Round(r.End * NumBuckets))
	if r.End >= 1.0 {
		hi = NumBuckets
	}
	return lo, hi
}

// Contains reports whether the bucket falls inside the range.
// Zero-width ranges contain nothing.
func (r Range) Contains(bucket int) bool {
	lo, hi := r.Bounds()
	return bucket >= lo && bucket < hi
}

// Locate returns the index of the first range containing bucket, or -1.
// Ranges are expected sorted by Start; the first match wins on overlap.
func Locate(ranges []Range, bucket int) int {
	for i, r := range ranges {
		if r.Contains(bucket) {
			return i
		}
	}
	return -1
}
