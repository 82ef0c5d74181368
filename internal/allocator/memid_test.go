package allocator

import "testing"

func TestMemID_RoundTrip(t *testing.T) {
	cases := []struct {
		arenaID   uint8
		exclusive bool
		blockIdx  uint64
	}{
		{1, false, 0},
		{126, true, 12345},
		{1, true, 1},
		{63, false, (1 << 40)},
	}

	for _, c := range cases {
		m := EncodeMemID(c.arenaID, c.exclusive, c.blockIdx)

		gotID, gotExcl, gotIdx := DecodeMemID(m)
		if gotID != c.arenaID || gotExcl != c.exclusive || gotIdx != c.blockIdx {
			t.Errorf("EncodeMemID(%d, %v, %d) round trip mismatch: got (%d, %v, %d)",
				c.arenaID, c.exclusive, c.blockIdx, gotID, gotExcl, gotIdx)
		}
	}
}

func TestMemID_DirectIsZeroAndDistinct(t *testing.T) {
	if !IsDirect(directMemID) {
		t.Fatalf("directMemID must report IsDirect")
	}

	m := EncodeMemID(1, false, 0)
	if IsDirect(m) {
		t.Fatalf("a real arena allocation must not be mistaken for a direct one")
	}
}
