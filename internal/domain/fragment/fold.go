package fragment

import (
	"sort"
)

// ─────────────────────────────────────────────────────────────────────────────
// FoldedEncoder
// ─────────────────────────────────────────────────────────────────────────────

// FoldedEncoder maps raw fragment hashes onto a fixed number of bits and
// records which raw hashes landed on each bit.
type FoldedEncoder struct {
	size       int
	collisions *CollisionMap
}

// NewFoldedEncoder returns an encoder for size bits.  size must be positive.
func NewFoldedEncoder(size int) *FoldedEncoder {
	return &FoldedEncoder{size: size, collisions: NewCollisionMap()}
}

// Size returns the number of bits.
func (e *FoldedEncoder) Size() int { return e.size }

// Bit folds a raw hash.  Negative hashes are read as their unsigned 32-bit
// value before the modulo.
func (e *FoldedEncoder) Bit(h Fragment) int {
	return int(uint64(uint32(h)) % uint64(e.size))
}

// Encode returns the ascending set bits for occs and records every raw hash
// in the collision map.
func (e *FoldedEncoder) Encode(occs []Occurrence) []int {
	return e.encode(occs, true)
}

// Peek is Encode without touching the collision map.
func (e *FoldedEncoder) Peek(occs []Occurrence) []int {
	return e.encode(occs, false)
}

func (e *FoldedEncoder) encode(occs []Occurrence, record bool) []int {
	set := make(map[int]struct{}, len(occs))
	for _, o := range occs {
		bit := e.Bit(o.Hash)
		if record {
			e.collisions.Record(bit, o.Hash)
		}
		set[bit] = struct{}{}
	}
	bits := make([]int, 0, len(set))
	for b := range set {
		bits = append(bits, b)
	}
	sort.Ints(bits)
	return bits
}

// Collisions returns the live collision map.
func (e *FoldedEncoder) Collisions() *CollisionMap { return e.collisions }

// ─────────────────────────────────────────────────────────────────────────────
// CollisionMap
// ─────────────────────────────────────────────────────────────────────────────

// CollisionMap records the distinct raw hashes observed per folded bit.  It is
// diagnostic only.
type CollisionMap struct {
	bits map[int]map[Fragment]struct{}
}

func NewCollisionMap() *CollisionMap {
	return &CollisionMap{bits: make(map[int]map[Fragment]struct{})}
}

// Record notes that raw hash h folded onto bit.
func (m *CollisionMap) Record(bit int, h Fragment) {
	s, ok := m.bits[bit]
	if !ok {
		s = make(map[Fragment]struct{})
		m.bits[bit] = s
	}
	s[h] = struct{}{}
}

// Hashes returns the raw hashes at bit in ascending order.
func (m *CollisionMap) Hashes(bit int) []Fragment {
	s := m.bits[bit]
	out := make([]Fragment, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BitLoad returns the number of distinct raw hashes at bit.
func (m *CollisionMap) BitLoad(bit int) int { return len(m.bits[bit]) }

// UsedBits returns the bits with at least one raw hash, ascending.
func (m *CollisionMap) UsedBits() []int {
	out := make([]int, 0, len(m.bits))
	for b := range m.bits {
		out = append(out, b)
	}
	sort.Ints(out)
	return out
}

// CollisionStats summarises a CollisionMap.
type CollisionStats struct {
	UsedBits      int     `json:"used_bits"`
	CollidingBits int     `json:"colliding_bits"`
	Ratio         float64 `json:"collision_ratio"`
	MeanBitLoad   float64 `json:"mean_bit_load"`
}

// Stats returns the share of used bits holding more than one raw hash and the
// mean number of raw hashes per used bit.  Both are zero for an empty map.
func (m *CollisionMap) Stats() CollisionStats {
	var st CollisionStats
	total := 0
	for _, s := range m.bits {
		st.UsedBits++
		total += len(s)
		if len(s) > 1 {
			st.CollidingBits++
		}
	}
	if st.UsedBits > 0 {
		st.Ratio = float64(st.CollidingBits) / float64(st.UsedBits)
		st.MeanBitLoad = float64(total) / float64(st.UsedBits)
	}
	return st
}

// export flattens the map for snapshots.
func (m *CollisionMap) export() map[int][]Fragment {
	if len(m.bits) == 0 {
		return nil
	}
	out := make(map[int][]Fragment, len(m.bits))
	for b := range m.bits {
		out[b] = m.Hashes(b)
	}
	return out
}

func collisionMapFrom(in map[int][]Fragment) *CollisionMap {
	m := NewCollisionMap()
	for b, hs := range in {
		for _, h := range hs {
			m.Record(b, h)
		}
	}
	return m
}
