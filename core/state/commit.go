package state

import (
	"bytes"
	"sort"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/trie"
	"github.com/citahub/cita-sub003/core/types"
)

// Commit writes every touched stateObject into the account trie (and, for
// each, its own storage trie), persists code into the shared code store,
// and returns the new state root. Empty accounts are not persisted;
// suicided accounts are removed.
//
// addrs is iterated in sorted order so that commit order — and therefore
// the resulting trie structure and root — is deterministic regardless of
// Go's map iteration order.
func (s *IntraBlockState) Commit(stateRoot common.Hash, codeStore CodeStore) (common.Hash, error) {
	addrs := make([]common.Address, 0, len(s.objects))
	for addr := range s.objects {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })

	acctTrie := trie.New(s.nodes, stateRoot)
	for _, addr := range addrs {
		obj := s.objects[addr]
		if !obj.touched && !obj.suicided {
			continue
		}
		if obj.suicided || obj.empty() {
			if _, err := acctTrie.Delete(addr.Bytes()); err != nil {
				return common.Hash{}, err
			}
			if s.cache != nil {
				s.cache.Set(addr, nil, true)
			}
			continue
		}
		newStorageRoot, err := s.commitStorage(obj)
		if err != nil {
			return common.Hash{}, err
		}
		obj.account.StorageRoot = newStorageRoot
		if obj.codeSet {
			codeStore.PutCode(obj.account.CodeHash, obj.code)
			if s.cache != nil {
				s.cache.SetCode(obj.account.CodeHash, obj.code)
			}
		}
		if obj.abiSet {
			// ABI bytes are content-addressed the same way code is: the
			// store doesn't care what the hash names, only that callers
			// look it up by the hash they stored it under.
			codeStore.PutCode(obj.account.AbiHash, obj.abi)
		}
		if _, err := acctTrie.Update(addr.Bytes(), obj.account.Encode()); err != nil {
			return common.Hash{}, err
		}
		if s.cache != nil {
			s.cache.Set(addr, obj.account.Copy(), false)
		}
	}

	newRoot := acctTrie.Root()
	if s.cache != nil {
		s.cache.RecordBlock(s.block, s.parent, s.modified)
	}
	return newRoot, nil
}

func (s *IntraBlockState) commitStorage(obj *stateObject) (common.Hash, error) {
	if len(obj.storage) == 0 {
		return obj.storageRoot, nil
	}
	keys := make([]common.Hash, 0, len(obj.storage))
	for k := range obj.storage {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })

	st := trie.New(s.nodes, obj.storageRoot)
	for _, k := range keys {
		v := obj.storage[k]
		var err error
		if v.IsZero() {
			_, err = st.Delete(k.Bytes())
		} else {
			_, err = st.Update(k.Bytes(), v.Bytes())
		}
		if err != nil {
			return common.Hash{}, err
		}
	}
	return st.Root(), nil
}

// EmptyCodeHash re-exported for callers that only import core/state.
var EmptyCodeHash = types.EmptyCodeHash
