// Package state is the transactional account state layer:
// an in-memory account cache with checkpoint/rollback over a Merkle state
// trie, backed by citalib/kv through citalib/trie. Grounded on
// core/state/history_reader_v3.go's StateReader method set
// (ReadAccountData/ReadAccountStorage/ReadAccountCode/ReadAccountCodeSize/
// ReadAccountIncarnation).
package state

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/trie"
	"github.com/citahub/cita-sub003/core/types"
)

// StateReader is the read-only seam IntraBlockState falls back to on a
// cache miss, the same method set erigon's HistoryReaderV3 implements.
type StateReader interface {
	ReadAccountData(addr common.Address) (*types.Account, error)
	ReadAccountStorage(addr common.Address, storageRoot common.Hash, key common.Hash) (common.Hash, error)
	ReadAccountCode(codeHash common.Hash) ([]byte, error)
}

// TrieStateReader is the production StateReader: one account trie rooted at
// StateRoot, and one storage trie per account rooted at the account's
// StorageRoot, both over the same NodeStore.
type TrieStateReader struct {
	nodes     trie.NodeStore
	codeStore CodeStore
	stateRoot common.Hash
}

// CodeStore is the content-addressed contract-code store (hash -> bytes),
// separate from the trie since code is opaque payload, not trie-structured.
type CodeStore interface {
	GetCode(hash common.Hash) ([]byte, bool)
	PutCode(hash common.Hash, code []byte)
}

func NewTrieStateReader(nodes trie.NodeStore, codeStore CodeStore, stateRoot common.Hash) *TrieStateReader {
	return &TrieStateReader{nodes: nodes, codeStore: codeStore, stateRoot: stateRoot}
}

func (r *TrieStateReader) accountTrie() *trie.Trie { return trie.New(r.nodes, r.stateRoot) }

func (r *TrieStateReader) ReadAccountData(addr common.Address) (*types.Account, error) {
	enc, found, err := r.accountTrie().Get(addr.Bytes())
	if err != nil || !found {
		return nil, err
	}
	return types.DecodeAccount(enc)
}

func (r *TrieStateReader) ReadAccountStorage(addr common.Address, storageRoot common.Hash, key common.Hash) (common.Hash, error) {
	if storageRoot.IsZero() {
		return common.Hash{}, nil
	}
	st := trie.New(r.nodes, storageRoot)
	enc, found, err := st.Get(key.Bytes())
	if err != nil || !found {
		return common.Hash{}, err
	}
	return common.BytesToHash(enc), nil
}

func (r *TrieStateReader) ReadAccountCode(codeHash common.Hash) ([]byte, error) {
	if codeHash == types.EmptyCodeHash || codeHash.IsZero() {
		return nil, nil
	}
	code, _ := r.codeStore.GetCode(codeHash)
	return code, nil
}
