// Package systemcontract implements the native governance contracts
// reachable at fixed, reserved addresses: Admin, SysConfig, QuotaManager,
// CrossChainVerify and ZkPrivacy. Each exposes a small selector-dispatched
// call surface, mirroring the ABI-style entry points the original Rust
// native contracts exposed, and most persist their state through
// citalib/syscontract.VersionedStore so historical reads at any past
// block height are possible.
package systemcontract

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"golang.org/x/crypto/sha3"
)

// Selector is the first 4 bytes of keccak256(signature), the same
// function-dispatch convention Solidity-ABI contracts use.
type Selector [4]byte

func selector(signature string) Selector {
	d := sha3.NewLegacyKeccak256()
	d.Write([]byte(signature))
	sum := d.Sum(nil)
	var s Selector
	copy(s[:], sum[:4])
	return s
}

// unknownSelectorError is returned when input's leading 4 bytes match no
// entry in a contract's dispatch table.
type unknownSelectorError struct{ sel Selector }

func (e *unknownSelectorError) Error() string { return "unknown system-contract selector" }

// notAuthorizedError is returned by any mutating call made by a sender that
// fails the contract's authorization check (only-admin, only-operator, ...).
type notAuthorizedError struct{ caller common.Address }

func (e *notAuthorizedError) Error() string { return "caller is not authorized" }

func splitSelector(input []byte) (Selector, []byte, bool) {
	if len(input) < 4 {
		return Selector{}, nil, false
	}
	var s Selector
	copy(s[:], input[:4])
	return s, input[4:], true
}

// addressWord left-pads an address with zeros to a 32-byte ABI word, the way
// every getter in this package returns addresses.
func addressWord(a common.Address) []byte {
	out := make([]byte, 32)
	copy(out[12:], a[:])
	return out
}

func readAddressArg(args []byte, i int) common.Address {
	off := i * 32
	if off+32 > len(args) {
		return common.Address{}
	}
	return common.BytesToAddress(args[off+12 : off+32])
}
