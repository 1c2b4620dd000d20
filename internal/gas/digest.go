package gas

import (
	"encoding/binary"
	"hash"
	"math"

	"golang.org/x/crypto/blake2b"
)

// Digest returns a BLAKE2b-256 fingerprint of the system's observable
// state: level, attributes, tags with weights and active containers.
// Two systems driven by the same inputs produce the same digest.
func (s *System) Digest() [32]byte {
	h, _ := blake2b.New256(nil)
	s.writeDigest(h)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Digest fingerprints every system in creation order.
func (w *World) Digest() [32]byte {
	h, _ := blake2b.New256(nil)
	putUint(h, uint64(len(w.systems)))
	for _, s := range w.systems {
		s.writeDigest(h)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (s *System) writeDigest(h hash.Hash) {
	putString(h, s.name)
	putUint(h, uint64(s.level))

	putUint(h, uint64(len(s.order)))
	for _, attr := range s.order {
		v := s.attrs[attr]
		putString(h, attr.Name)
		putFloat(h, v.Current)
		putFloat(h, v.Base)
	}

	tags := s.tags.Tags()
	putUint(h, uint64(len(tags)))
	for _, t := range tags {
		putUint(h, uint64(t.Key))
		putUint(h, uint64(s.tags.Weight(t)))
	}

	putUint(h, uint64(len(s.shelf)))
	for _, c := range s.shelf {
		tracked := c.TrackedImpact()
		putString(h, c.spec.Effect.Name)
		putUint(h, uint64(c.Stacks()))
		putFloat(h, c.DurationRemaining())
		putFloat(h, tracked.Current)
		putFloat(h, tracked.Base)
	}
}

func putUint(h hash.Hash, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	h.Write(b[:])
}

func putFloat(h hash.Hash, f float64) { putUint(h, math.Float64bits(f)) }

func putString(h hash.Hash, s string) {
	putUint(h, uint64(len(s)))
	h.Write([]byte(s))
}
