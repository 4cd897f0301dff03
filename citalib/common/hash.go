package common

import "golang.org/x/crypto/sha3"

// HashFunc is the pluggable content-addressing hash used by the trie, the
// position-indexed storage scheme, and transaction/block identity. CITA's
// original build supported keccak256, blake2b and sm3 selected once at
// genesis; this repo exposes the same seam as a package-level variable set
// once at startup.
var HashFunc = Keccak256

// Keccak256 is the default algorithm; always available regardless of which
// HashFunc a deployment selects, since genesis bootstrapping needs a hash
// before configuration is read.
func Keccak256(data ...[]byte) Hash {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	var h Hash
	d.Sum(h[:0])
	return h
}

// CryptHash applies the configured HashFunc, matching the original's
// `crypt_hash` indirection (chain/core/src/native/storage.rs).
func CryptHash(data ...[]byte) Hash {
	return HashFunc(data...)
}
