// Package types holds the execution core's data model: Account,
// Transaction (v0 and v1+), Block/Header, Receipt/LogEntry, and the
// reserved-address registry.
package types

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/rlp"
	"github.com/holiman/uint256"
)

// EmptyCodeHash is keccak256(""), the sentinel that means "no code".
var EmptyCodeHash = common.Keccak256(nil)

// Account is the per-address record the state trie maps addresses to.
// Storage is the root of a separate per-account trie, not inlined here.
type Account struct {
	Nonce       uint64
	Balance     *uint256.Int
	StorageRoot common.Hash
	CodeHash    common.Hash
	AbiHash     common.Hash
}

// NewAccount returns a freshly created account: zero nonce/balance, empty
// storage root, and CodeHash/AbiHash set to the empty-string hash ("no
// code", not the zero hash).
func NewAccount() *Account {
	return &Account{
		Balance:  uint256.NewInt(0),
		CodeHash: EmptyCodeHash,
		AbiHash:  EmptyCodeHash,
	}
}

// IsEmpty reports whether every field equals its zero value. Note this is the
// literal zero, not the "no code" sentinel — a freshly NewAccount()-ed
// account is therefore not Empty until its CodeHash/AbiHash are also
// zeroed, matching the original's definition precisely rather than the
// more familiar go-ethereum "empty = zero nonce, zero balance, no code"
// rule.
func (a *Account) IsEmpty() bool {
	return a.Nonce == 0 && a.Balance.IsZero() && a.StorageRoot.IsZero() &&
		a.CodeHash.IsZero() && a.AbiHash.IsZero()
}

// HasCode reports whether the account's code hash differs from the
// well-known empty-code hash.
func (a *Account) HasCode() bool { return a.CodeHash != EmptyCodeHash }

// Copy returns a deep copy, since Balance is a pointer.
func (a *Account) Copy() *Account {
	cp := *a
	cp.Balance = new(uint256.Int).Set(a.Balance)
	return &cp
}

// Encode produces the account's structural encoding for trie storage.
func (a *Account) Encode() []byte {
	return rlp.EncodeList(
		rlp.EncodeUint64(a.Nonce),
		rlp.EncodeBytes(a.Balance.Bytes()),
		rlp.EncodeBytes(a.StorageRoot[:]),
		rlp.EncodeBytes(a.CodeHash[:]),
		rlp.EncodeBytes(a.AbiHash[:]),
	)
}

// DecodeAccount parses an Encode()-d buffer.
func DecodeAccount(data []byte) (*Account, error) {
	items, err := rlp.DecodeList(data)
	if err != nil {
		return nil, err
	}
	r := rlp.NewListReader(items)
	nonce, err := r.Uint64("nonce")
	if err != nil {
		return nil, err
	}
	balB, err := r.Bytes("balance")
	if err != nil {
		return nil, err
	}
	storageRoot, err := r.FixedBytes("storage_root", common.HashLength)
	if err != nil {
		return nil, err
	}
	codeHash, err := r.FixedBytes("code_hash", common.HashLength)
	if err != nil {
		return nil, err
	}
	abiHash, err := r.FixedBytes("abi_hash", common.HashLength)
	if err != nil {
		return nil, err
	}
	return &Account{
		Nonce:       nonce,
		Balance:     new(uint256.Int).SetBytes(balB),
		StorageRoot: common.BytesToHash(storageRoot),
		CodeHash:    common.BytesToHash(codeHash),
		AbiHash:     common.BytesToHash(abiHash),
	}, nil
}
