package state

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/trie"
	"github.com/citahub/cita-sub003/core/types"
	"github.com/holiman/uint256"
)

// stateObject is the pending-changes buffer for one address within a
// block. It starts from the committed account (or nil, for a
// not-yet-existing account) and accumulates overrides until Finalize.
type stateObject struct {
	address common.Address

	account   *types.Account // current (possibly mutated) account; nil if never existed
	origin    *types.Account // as read from reader/cache, for change detection; nil if new

	code      []byte
	codeSet   bool
	abi       []byte
	abiSet    bool
	storageRoot common.Hash // the trie root this object's storage reads fall back to

	storage     map[common.Hash]common.Hash // dirty overrides
	suicided    bool
	touched     bool // true once any mutation happened, including zero-value writes
}

func newStateObject(addr common.Address, origin *types.Account) *stateObject {
	var acc *types.Account
	if origin != nil {
		acc = origin.Copy()
	}
	return &stateObject{
		address: addr,
		account: acc,
		origin:  origin,
		storage: make(map[common.Hash]common.Hash),
	}
}

func (s *stateObject) ensureAccount() {
	if s.account == nil {
		s.account = types.NewAccount()
		s.storageRoot = common.Hash{}
	}
}

func (s *stateObject) empty() bool {
	if s.account == nil {
		return true
	}
	return s.account.IsEmpty()
}

func (s *stateObject) balance() *uint256.Int {
	if s.account == nil {
		return uint256.NewInt(0)
	}
	return s.account.Balance
}

func (s *stateObject) setBalance(v *uint256.Int) {
	s.ensureAccount()
	s.account.Balance = v
	s.touched = true
}

func (s *stateObject) nonce() uint64 {
	if s.account == nil {
		return 0
	}
	return s.account.Nonce
}

func (s *stateObject) setNonce(n uint64) {
	s.ensureAccount()
	s.account.Nonce = n
	s.touched = true
}

func (s *stateObject) codeHash() common.Hash {
	if s.account == nil {
		return types.EmptyCodeHash
	}
	return s.account.CodeHash
}

func (s *stateObject) setCode(code []byte) {
	s.ensureAccount()
	s.code = code
	s.codeSet = true
	s.account.CodeHash = common.CryptHash(code)
	s.touched = true
}

func (s *stateObject) setAbi(abi []byte) {
	s.ensureAccount()
	s.abi = abi
	s.abiSet = true
	s.account.AbiHash = common.CryptHash(abi)
	s.touched = true
}

// storageTrie constructs a read-only handle over this object's committed
// storage trie for fallback reads through reader. Dirty overrides in
// s.storage always take priority and never touch it.
func (s *stateObject) storageTrie(nodes trie.NodeStore) *trie.Trie {
	return trie.New(nodes, s.storageRoot)
}
