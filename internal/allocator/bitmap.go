package allocator

import "sync/atomic"

// fieldBits is the width of one atomic bitmap field, 64 on every host
// this package targets.
const fieldBits = 64

// Bitmap is an array of atomic 64-bit fields treated as one flat bit
// vector, with operations to atomically claim, unclaim, and test runs of
// bits that may span field boundaries.
//
// A TryClaim run that spans more than one field locks the affected
// fields in index order and rolls back any fields already locked if a
// later CAS in the run fails, so the run either commits entirely or
// leaves no bits set. ClaimAcross and UnclaimAcross are unconditional and
// update each field of the run independently.
type Bitmap struct {
	fields []atomic.Uint64
}

// NewBitmap allocates a bitmap with room for fieldCount fields
// (fieldCount*fieldBits bits total), all initially zero.
func NewBitmap(fieldCount int) *Bitmap {
	return &Bitmap{fields: make([]atomic.Uint64, fieldCount)}
}

// FieldCount returns the number of atomic fields backing the bitmap.
func (b *Bitmap) FieldCount() int {
	return len(b.fields)
}

// BitCount returns the total number of addressable bits.
func (b *Bitmap) BitCount() uint64 {
	return uint64(len(b.fields)) * fieldBits
}

// bitRun is one field's contribution to a (possibly cross-field) bit run.
type bitRun struct {
	mask  uint64
	field int
}

// fieldRuns splits a [index, index+count) bit range into per-field masks.
func fieldRuns(index uint64, count int) []bitRun {
	runs := make([]bitRun, 0, 2)

	remaining := uint64(count)
	pos := index

	for remaining > 0 {
		field := pos / fieldBits
		bitOff := pos % fieldBits

		n := fieldBits - bitOff
		if remaining < n {
			n = remaining
		}

		runs = append(runs, bitRun{field: int(field), mask: maskRange(bitOff, n)})

		pos += n
		remaining -= n
	}

	return runs
}

// maskRange returns a mask with `length` contiguous bits set starting at
// bit `offset`.
func maskRange(offset, length uint64) uint64 {
	if length >= fieldBits {
		return ^uint64(0)
	}

	return ((uint64(1) << length) - 1) << offset
}

// tryLockFieldBits atomically sets `mask` in *f iff none of those bits
// were already set, CAS-retrying against unrelated concurrent bit changes
// in the same field. Returns false iff some bit in mask was already set.
func tryLockFieldBits(f *atomic.Uint64, mask uint64) bool {
	for {
		old := f.Load()
		if old&mask != 0 {
			return false
		}

		if f.CompareAndSwap(old, old|mask) {
			return true
		}
	}
}

// clearFieldBits atomically clears `mask` in *f, CAS-retrying against
// unrelated concurrent bit changes.
func clearFieldBits(f *atomic.Uint64, mask uint64) {
	for {
		old := f.Load()
		if f.CompareAndSwap(old, old&^mask) {
			return
		}
	}
}

// TryClaim atomically sets `count` bits starting at `index`, all-or-
// nothing: if any bit in the run is already set, no bit is modified and
// TryClaim returns false. Fields touched by the run are locked in
// ascending index order; on a mid-run conflict, bits already claimed in
// this call are rolled back in reverse order before returning.
func (b *Bitmap) TryClaim(count int, index uint64) bool {
	runs := fieldRuns(index, count)

	for i, r := range runs {
		if !tryLockFieldBits(&b.fields[r.field], r.mask) {
			for j := i - 1; j >= 0; j-- {
				clearFieldBits(&b.fields[runs[j].field], runs[j].mask)
			}

			return false
		}
	}

	return true
}

// ClaimAcross unconditionally sets `count` bits starting at `index` and
// reports whether at least one of them was previously zero.
func (b *Bitmap) ClaimAcross(count int, index uint64) bool {
	anyWasZero := false

	for _, r := range fieldRuns(index, count) {
		f := &b.fields[r.field]

		for {
			old := f.Load()
			if old&r.mask != r.mask {
				anyWasZero = true
			}

			if f.CompareAndSwap(old, old|r.mask) {
				break
			}
		}
	}

	return anyWasZero
}

// UnclaimAcross unconditionally clears `count` bits starting at `index`
// and reports whether every one of them was previously set.
func (b *Bitmap) UnclaimAcross(count int, index uint64) bool {
	allWereOne := true

	for _, r := range fieldRuns(index, count) {
		f := &b.fields[r.field]

		for {
			old := f.Load()
			if old&r.mask != r.mask {
				allWereOne = false
			}

			if f.CompareAndSwap(old, old&^r.mask) {
				break
			}
		}
	}

	return allWereOne
}

// IsClaimedAcross reports whether every bit in [index, index+count) is
// currently set.
func (b *Bitmap) IsClaimedAcross(count int, index uint64) bool {
	for _, r := range fieldRuns(index, count) {
		if b.fields[r.field].Load()&r.mask != r.mask {
			return false
		}
	}

	return true
}

// isZeroRun reports whether every bit in [index, index+count) is
// currently clear. Used by TryFindFromClaimAcross as a cheap pre-check
// before attempting the atomic claim.
func (b *Bitmap) isZeroRun(index uint64, count int) bool {
	for _, r := range fieldRuns(index, count) {
		if b.fields[r.field].Load()&r.mask != 0 {
			return false
		}
	}

	return true
}

// TryFindFromClaimAcross locates and atomically claims the first run of
// exactly `count` consecutive zero bits, searching from startHint and
// wrapping around the bitmap. The run never itself wraps past the end of
// the bitmap. Returns the claimed index and true on success.
func (b *Bitmap) TryFindFromClaimAcross(startHint uint64, count int) (uint64, bool) {
	total := b.BitCount()
	if count <= 0 || uint64(count) > total {
		return 0, false
	}

	start := startHint % total

	for attempt := uint64(0); attempt < total; attempt++ {
		idx := (start + attempt) % total
		if idx+uint64(count) > total {
			continue
		}

		if !b.isZeroRun(idx, count) {
			continue
		}

		if b.TryClaim(count, idx) {
			return idx, true
		}
		// Lost the race to a concurrent claim; keep scanning rather than
		// retrying the same index immediately.
	}

	return 0, false
}

// SetRange unconditionally sets `count` bits starting at `index`,
// discarding the "any was zero" report. Used at registration time to mark
// permanently-reserved trailing bits.
func (b *Bitmap) SetRange(index uint64, count int) {
	b.ClaimAcross(count, index)
}

// SetAll unconditionally sets every addressable bit.
func (b *Bitmap) SetAll() {
	for i := range b.fields {
		b.fields[i].Store(^uint64(0))
	}
}
