package common

import "golang.org/x/crypto/sha3"

// BloomByteLength is the 2048-bit log bloom required on every
// header.
const BloomByteLength = 256

// Bloom is the block-level log bloom filter: "union of all log entries
// across all receipts". Three bits are set per key
// using the same 3-chunks-of-the-keccak-digest construction go-ethereum
// and erigon use.
type Bloom [BloomByteLength]byte

// Add ORs in the bits for one key (an address or a topic hash).
func (b *Bloom) Add(data []byte) {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	sum := h.Sum(nil)
	for i := 0; i < 6; i += 2 {
		bit := (uint(sum[i])<<8 | uint(sum[i+1])) & 0x7ff
		b[BloomByteLength-1-bit/8] |= 1 << (bit % 8)
	}
}

// Contains reports whether every bit Add(data) would set is already set;
// it is the membership test "Bloom soundness" relies on.
func (b Bloom) Contains(data []byte) bool {
	var probe Bloom
	probe.Add(data)
	for i := range b {
		if probe[i]&b[i] != probe[i] {
			return false
		}
	}
	return true
}

// Or merges another bloom's bits into this one.
func (b *Bloom) Or(o Bloom) {
	for i := range b {
		b[i] |= o[i]
	}
}

func (b Bloom) Bytes() []byte { return b[:] }
