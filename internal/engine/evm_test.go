package engine

import "testing"

func TestFeeCapsFromHint(t *testing.T) {
	tip, cap, ok := feeCapsFromHint("25000000000")
	if !ok {
		t.Fatalf("expected a valid hint to parse")
	}
	if cap.String() != "25000000000" {
		t.Fatalf("unexpected fee cap %s", cap)
	}
	if tip.Cmp(cap) != 0 {
		t.Fatalf("tip must equal the flat cap, got tip=%s cap=%s", tip, cap)
	}

	for _, hint := range []string{"", "0", "-5", "not-a-number"} {
		if _, _, ok := feeCapsFromHint(hint); ok {
			t.Fatalf("hint %q must not parse", hint)
		}
	}
}

func TestDecodeHex(t *testing.T) {
	data, err := decodeHex("0xd0e30db0")
	if err != nil {
		t.Fatalf("decodeHex failed: %v", err)
	}
	if len(data) != 4 || data[0] != 0xd0 {
		t.Fatalf("unexpected calldata %x", data)
	}
	if data, err := decodeHex(""); err != nil || len(data) != 0 {
		t.Fatalf("empty calldata must decode to nil, got %x err=%v", data, err)
	}
	if _, err := decodeHex("0xzz"); err == nil {
		t.Fatalf("expected error for invalid hex")
	}
}
