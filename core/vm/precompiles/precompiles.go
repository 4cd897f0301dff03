// Package precompiles implements the fixed set of native contracts
// reachable at low, well-known addresses: identity, sha256, ripemd160,
// ec-recover and ed-recover. Each is a pure (input []byte) -> (output
// []byte) function priced by a Linear{base,word} schedule, the same
// shape the original native-contract dispatcher used.
package precompiles

import (
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // no replacement ships a drop-in Go ripemd160
	"golang.org/x/crypto/sha3"
)

// Linear is the base+per-word gas pricer every precompile here uses:
// cost = base + word*ceil(len(input)/32).
type Linear struct {
	Base uint64
	Word uint64
}

func (l Linear) Cost(inputLen int) uint64 {
	words := (uint64(inputLen) + 31) / 32
	return l.Base + l.Word*words
}

// Precompile is a native contract: Run never fails the call outright on
// bad input, it signals failure by returning ok=false, leaving the
// caller's output buffer exactly as it found it (the ec-recover "leave
// output unchanged on validation failure" rule generalizes to every
// entry here).
type Precompile interface {
	Pricer() Linear
	Run(input []byte) (output []byte, ok bool)
}

// Registry maps the reserved low addresses to their precompile.
type Registry map[common.Address]Precompile

func DefaultRegistry() Registry {
	return Registry{
		IdentityAddress:  Identity{},
		SHA256Address:    SHA256{},
		RIPEMD160Address: RIPEMD160{},
		ECRecoverAddress: ECRecover{},
		EDRecoverAddress: EDRecover{},
	}
}

var (
	IdentityAddress  = common.BytesToAddress([]byte{0x04})
	SHA256Address    = common.BytesToAddress([]byte{0x02})
	RIPEMD160Address = common.BytesToAddress([]byte{0x03})
	ECRecoverAddress = common.BytesToAddress([]byte{0x01})
	EDRecoverAddress = common.BytesToAddress([]byte{0x05})
)

// Identity copies its input to its output unchanged, truncated or
// zero-extended to whatever the caller's output buffer length requests —
// that truncation happens at the call site (the buffer length is a CALL
// argument, not something a precompile sees), so Run just returns the
// input back.
type Identity struct{}

func (Identity) Pricer() Linear         { return Linear{Base: 15, Word: 3} }
func (Identity) Run(input []byte) ([]byte, bool) { return append([]byte(nil), input...), true }

// SHA256 returns a 32-byte digest, left-aligned.
type SHA256 struct{}

func (SHA256) Pricer() Linear { return Linear{Base: 60, Word: 12} }

func (SHA256) Run(input []byte) ([]byte, bool) {
	h := sha256.Sum256(input)
	return h[:], true
}

// RIPEMD160 returns a 20-byte digest, right-aligned in a 32-byte field.
type RIPEMD160 struct{}

func (RIPEMD160) Pricer() Linear { return Linear{Base: 600, Word: 120} }

func (RIPEMD160) Run(input []byte) ([]byte, bool) {
	h := ripemd160.New()
	h.Write(input)
	sum := h.Sum(nil)
	out := make([]byte, 32)
	copy(out[32-len(sum):], sum)
	return out, true
}

// ECRecover expects hash(32) ‖ v(32) ‖ r(32) ‖ s(32), accepts only
// v ∈ {27,28} with the rest of that word zero, and outputs
// 0^12 ‖ hash(pubkey)[12:]. Any validation failure reports ok=false so the
// caller leaves its output buffer untouched.
type ECRecover struct{}

func (ECRecover) Pricer() Linear { return Linear{Base: 3000, Word: 0} }

func (ECRecover) Run(input []byte) ([]byte, bool) {
	data := make([]byte, 128)
	copy(data, input)

	var hash common.Hash
	copy(hash[:], data[:32])
	vWord := data[32:64]
	for _, b := range vWord[:31] {
		if b != 0 {
			return nil, false
		}
	}
	v := vWord[31]
	if v != 27 && v != 28 {
		return nil, false
	}
	r := data[64:96]
	s := data[96:128]

	var compact [65]byte
	compact[0] = v
	copy(compact[1:33], r)
	copy(compact[33:65], s)

	pub, _, err := ecdsa.RecoverCompact(compact[:], hash[:])
	if err != nil {
		return nil, false
	}
	addr := pubkeyToAddress(pub)
	out := make([]byte, 32)
	copy(out[12:], addr[:])
	return out, true
}

func pubkeyToAddress(pub *secp256k1.PublicKey) common.Address {
	uncompressed := pub.SerializeUncompressed()
	d := sha3.NewLegacyKeccak256()
	d.Write(uncompressed[1:])
	sum := d.Sum(nil)
	return common.BytesToAddress(sum[12:])
}

// EDRecover is the edwards-curve analogue of ECRecover. No Go library
// inverts an ed25519 signature back to a public key — verification only
// runs the other direction — so the input carries the candidate public
// key alongside the signature: pubkey(32) ‖ hash(32) ‖ sig(64). Run
// verifies the signature against the embedded key and, only on success,
// derives the output the same way ECRecover does: 0^12 ‖ hash(pubkey)[12:].
type EDRecover struct{}

func (EDRecover) Pricer() Linear { return Linear{Base: 3000, Word: 0} }

func (EDRecover) Run(input []byte) ([]byte, bool) {
	if len(input) < 128 {
		return nil, false
	}
	pubBytes := input[0:32]
	hash := input[32:64]
	sig := input[64:128]

	if !ed25519.Verify(ed25519.PublicKey(pubBytes), hash, sig) {
		return nil, false
	}
	d := sha3.NewLegacyKeccak256()
	d.Write(pubBytes)
	sum := d.Sum(nil)
	out := make([]byte, 32)
	copy(out[12:], sum[12:])
	return out, true
}
