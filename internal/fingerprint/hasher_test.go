package fingerprint

import "testing"

func TestEncodeKeyLayout(t *testing.T) {
	k := Key{AnchorBin: 255, TargetBin: 3, Delta: 5}
	want := uint32(255)<<17 | uint32(3)<<8 | 5
	if got := EncodeKey(k); got != want {
		t.Fatalf("EncodeKey(%+v) = %#x, want %#x", k, got, want)
	}
	if got := DecodeHash(want); got != k {
		t.Errorf("DecodeHash(%#x) = %+v, want %+v", want, got, k)
	}

	top := Key{AnchorBin: 511, TargetBin: 511, Delta: 255}
	if got := EncodeKey(top); got>>26 != 0 {
		t.Errorf("EncodeKey(%+v) = %#x overflows 26 bits", top, got)
	}
	if got := DecodeHash(EncodeKey(top)); got != top {
		t.Errorf("round trip of %+v gave %+v", top, got)
	}
}

func TestEncode(t *testing.T) {
	tr := NewTree()
	tr.Insert(Key{AnchorBin: 9, TargetBin: 1, Delta: 1}, Occurrence{Offset: 44100, Frame: 2})
	tr.Insert(Key{AnchorBin: 2, TargetBin: 7, Delta: 4}, Occurrence{Offset: 22049, Frame: 1})

	fps := Encode(tr, 44100)
	if len(fps) != 2 {
		t.Fatalf("got %d fingerprints, want 2", len(fps))
	}
	if fps[0].Hash >= fps[1].Hash {
		t.Errorf("fingerprints not sorted by hash: %#x, %#x", fps[0].Hash, fps[1].Hash)
	}
	if fps[0].AnchorTimeMs != 499 {
		t.Errorf("AnchorTimeMs = %d, want 499", fps[0].AnchorTimeMs)
	}
	if fps[1].AnchorTimeMs != 1000 {
		t.Errorf("AnchorTimeMs = %d, want 1000", fps[1].AnchorTimeMs)
	}
}
