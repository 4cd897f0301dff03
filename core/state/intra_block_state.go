package state

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/trie"
	"github.com/citahub/cita-sub003/core/types"
	"github.com/holiman/uint256"
)

// IntraBlockState is the per-block state view every transaction in a block
// executes against: a journaled overlay of stateObjects backed by a
// StateReader and the shared AccountCache. It is not safe for concurrent
// use — the executor is single-threaded per block.
type IntraBlockState struct {
	reader StateReader
	cache  *AccountCache
	nodes  trie.NodeStore
	block  common.Hash // the block this state view reads cached entries against
	parent common.Hash // block's parent, recorded alongside its modified-address set

	objects map[common.Address]*stateObject
	journal journal

	refund uint64
	logs   []*types.LogEntry

	modified map[common.Address]struct{} // every address touched this block, for cache invalidation
}

func New(reader StateReader, cache *AccountCache, nodes trie.NodeStore, block, parent common.Hash) *IntraBlockState {
	return &IntraBlockState{
		reader:   reader,
		cache:    cache,
		nodes:    nodes,
		block:    block,
		parent:   parent,
		objects:  make(map[common.Address]*stateObject),
		modified: make(map[common.Address]struct{}),
	}
}

func (s *IntraBlockState) markTouched(addr common.Address) { s.modified[addr] = struct{}{} }

// getStateObject loads (from the pending set, then the shared cache, then
// the reader) or lazily creates the object for addr.
func (s *IntraBlockState) getStateObject(addr common.Address) *stateObject {
	if obj, ok := s.objects[addr]; ok {
		return obj
	}
	var origin *types.Account
	if s.cache != nil {
		if acc, empty, ok := s.cache.Get(addr, s.block); ok && !empty {
			origin = acc
		}
	}
	if origin == nil && s.reader != nil {
		acc, err := s.reader.ReadAccountData(addr)
		if err == nil {
			origin = acc
		}
	}
	obj := newStateObject(addr, origin)
	if origin != nil {
		obj.storageRoot = origin.StorageRoot
	}
	s.objects[addr] = obj
	return obj
}

// --- balance ---

func (s *IntraBlockState) GetBalance(addr common.Address) *uint256.Int {
	return s.getStateObject(addr).balance()
}

func (s *IntraBlockState) SetBalance(addr common.Address, v *uint256.Int) {
	obj := s.getStateObject(addr)
	prev := new(uint256.Int).Set(obj.balance())
	s.journal.append(func() { obj.setBalance(prev) })
	obj.setBalance(new(uint256.Int).Set(v))
	s.markTouched(addr)
}

func (s *IntraBlockState) AddBalance(addr common.Address, v *uint256.Int) {
	s.SetBalance(addr, new(uint256.Int).Add(s.GetBalance(addr), v))
}

func (s *IntraBlockState) SubBalance(addr common.Address, v *uint256.Int) {
	s.SetBalance(addr, new(uint256.Int).Sub(s.GetBalance(addr), v))
}

// --- nonce ---

func (s *IntraBlockState) GetNonce(addr common.Address) uint64 {
	return s.getStateObject(addr).nonce()
}

func (s *IntraBlockState) SetNonce(addr common.Address, n uint64) {
	obj := s.getStateObject(addr)
	prev := obj.nonce()
	s.journal.append(func() { obj.setNonce(prev) })
	obj.setNonce(n)
	s.markTouched(addr)
}

// --- code / abi ---

func (s *IntraBlockState) GetCodeHash(addr common.Address) common.Hash {
	return s.getStateObject(addr).codeHash()
}

func (s *IntraBlockState) GetCode(addr common.Address) []byte {
	obj := s.getStateObject(addr)
	if obj.codeSet {
		return obj.code
	}
	hash := obj.codeHash()
	if hash == types.EmptyCodeHash || hash.IsZero() {
		return nil
	}
	if s.cache != nil {
		if code, ok := s.cache.GetCode(hash); ok {
			return code
		}
	}
	if s.reader != nil {
		code, err := s.reader.ReadAccountCode(hash)
		if err == nil {
			return code
		}
	}
	return nil
}

func (s *IntraBlockState) GetCodeSize(addr common.Address) int { return len(s.GetCode(addr)) }

func (s *IntraBlockState) SetCode(addr common.Address, code []byte) {
	obj := s.getStateObject(addr)
	prevCode, prevSet := obj.code, obj.codeSet
	prevHash := obj.codeHash()
	s.journal.append(func() {
		obj.code, obj.codeSet = prevCode, prevSet
		if obj.account != nil {
			obj.account.CodeHash = prevHash
		}
	})
	obj.setCode(code)
	s.markTouched(addr)
}

func (s *IntraBlockState) SetAbi(addr common.Address, abi []byte) {
	obj := s.getStateObject(addr)
	prevHash := obj.account.AbiHash
	s.journal.append(func() {
		if obj.account != nil {
			obj.account.AbiHash = prevHash
		}
	})
	obj.setAbi(abi)
	s.markTouched(addr)
}

// --- storage ---

// GetCommittedState reads key bypassing any dirty override in this block —
// used by the storage-clear-refund rule.
func (s *IntraBlockState) GetCommittedState(addr common.Address, key common.Hash) common.Hash {
	obj := s.getStateObject(addr)
	v, _ := s.reader.ReadAccountStorage(addr, obj.storageRoot, key)
	return v
}

func (s *IntraBlockState) GetState(addr common.Address, key common.Hash) common.Hash {
	obj := s.getStateObject(addr)
	if v, ok := obj.storage[key]; ok {
		return v
	}
	return s.GetCommittedState(addr, key)
}

func (s *IntraBlockState) SetState(addr common.Address, key, value common.Hash) {
	obj := s.getStateObject(addr)
	prev, had := obj.storage[key]
	s.journal.append(func() {
		if had {
			obj.storage[key] = prev
		} else {
			delete(obj.storage, key)
		}
	})
	obj.storage[key] = value
	obj.touched = true
	s.markTouched(addr)
}

// --- existence ---

func (s *IntraBlockState) Exist(addr common.Address) bool {
	return !s.getStateObject(addr).empty()
}

func (s *IntraBlockState) Empty(addr common.Address) bool {
	return s.getStateObject(addr).empty()
}

// CreateAccount ensures addr has a (possibly still empty) account record,
// the lazy-creation-on-first-write behavior accounts need.
func (s *IntraBlockState) CreateAccount(addr common.Address) {
	obj := s.getStateObject(addr)
	wasNil := obj.account == nil
	s.journal.append(func() {
		if wasNil {
			obj.account = nil
		}
	})
	obj.ensureAccount()
	s.markTouched(addr)
}

// Suicide transfers the account's balance to beneficiary and marks the
// account suicided; the next Commit deletes it from the account trie and
// caches it as known-empty. The bloom filter is not cleared.
func (s *IntraBlockState) Suicide(addr, beneficiary common.Address) {
	obj := s.getStateObject(addr)
	if obj.suicided {
		return
	}
	bal := new(uint256.Int).Set(obj.balance())
	s.AddBalance(beneficiary, bal)
	prevSuicided := obj.suicided
	s.journal.append(func() { obj.suicided = prevSuicided })
	obj.suicided = true
	obj.setBalance(uint256.NewInt(0))
	s.markTouched(addr)
}

func (s *IntraBlockState) HasSuicided(addr common.Address) bool {
	return s.getStateObject(addr).suicided
}

// --- refund ---

func (s *IntraBlockState) AddRefund(n uint64) {
	prev := s.refund
	s.journal.append(func() { s.refund = prev })
	s.refund += n
}

func (s *IntraBlockState) SubRefund(n uint64) {
	prev := s.refund
	s.journal.append(func() { s.refund = prev })
	if n > s.refund {
		s.refund = 0
		return
	}
	s.refund -= n
}

func (s *IntraBlockState) GetRefund() uint64 { return s.refund }

// --- logs ---

func (s *IntraBlockState) AddLog(log *types.LogEntry) {
	idx := len(s.logs)
	s.journal.append(func() { s.logs = s.logs[:idx] })
	s.logs = append(s.logs, log)
}

func (s *IntraBlockState) Logs() []*types.LogEntry { return s.logs }

// TxLogsFrom returns the logs appended since mark (a prior len(s.logs)),
// used by the executor to slice out exactly one transaction's logs.
func (s *IntraBlockState) TxLogsFrom(mark int) []*types.LogEntry {
	return append([]*types.LogEntry(nil), s.logs[mark:]...)
}

func (s *IntraBlockState) LogLen() int { return len(s.logs) }

// --- checkpoint/rollback ---

func (s *IntraBlockState) Snapshot() int { return s.journal.snapshot() }

func (s *IntraBlockState) RevertToSnapshot(id int) { s.journal.revertTo(id) }

// ModifiedAddresses returns every address touched this block, for
// AccountCache.RecordBlock.
func (s *IntraBlockState) ModifiedAddresses() map[common.Address]struct{} { return s.modified }
