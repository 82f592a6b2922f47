package fingerprint

import (
	"github.com/himanishpuri/acousticprint/internal/model"
)

// bit layout: [ anchorBin (BinBits) | targetBin (BinBits) | delta (DeltaBits) ]
const (
	targetShift = DeltaBits
	anchorShift = DeltaBits + BinBits

	binMask   = 1<<BinBits - 1
	deltaMask = 1<<DeltaBits - 1
)

// EncodeKey packs k into a 26-bit hash.
func EncodeKey(k Key) uint32 {
	return uint32(k.AnchorBin&binMask)<<anchorShift |
		uint32(k.TargetBin&binMask)<<targetShift |
		uint32(k.Delta)&deltaMask
}

// DecodeHash recovers the key packed by EncodeKey.
func DecodeHash(h uint32) Key {
	return Key{
		AnchorBin: uint16(h >> anchorShift & binMask),
		TargetBin: uint16(h >> targetShift & binMask),
		Delta:     uint8(h & deltaMask),
	}
}

// Encode turns a track tree into fingerprints, one per entry, ordered by hash.
func Encode(t *Tree, sampleRate int) []model.Fingerprint {
	entries := t.Entries()
	out := make([]model.Fingerprint, len(entries))
	for i, e := range entries {
		out[i] = model.Fingerprint{
			Hash:         EncodeKey(e.Key),
			AnchorTimeMs: uint32(int64(e.Offset) * 1000 / int64(sampleRate)),
		}
	}
	return out
}
