package snapshotsync

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/rlp"
	"github.com/citahub/cita-sub003/citalib/trie"
	"github.com/citahub/cita-sub003/core/state"
	"github.com/citahub/cita-sub003/core/types"
)

// ChunkTargetSize is the raw (pre-compression) size a state chunk is packed
// up to before it gets flushed to the store, matching the ~4MiB figure
// chunk producers target.
const ChunkTargetSize = 4 * 1024 * 1024

// ChunkState walks every account reachable from stateRoot in key order,
// packs their fat entries into ~ChunkTargetSize chunks, and writes each
// chunk to store. It returns the chunk hashes in write order, ready to
// drop straight into a Manifest's StateHashes.
func ChunkState(nodes trie.NodeStore, codeStore state.CodeStore, stateRoot common.Hash, store ChunkStore) ([]common.Hash, error) {
	acctTrie := trie.New(nodes, stateRoot)
	seenCode := map[common.Hash]bool{}

	var hashes []common.Hash
	var pending [][]byte
	var pendingSize int

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		hash, err := store.PutChunk(rlp.EncodeList(pending...))
		if err != nil {
			return err
		}
		hashes = append(hashes, hash)
		pending = nil
		pendingSize = 0
		return nil
	}

	err := acctTrie.Walk(func(key, value []byte) error {
		if len(key) != common.AddressLength {
			return nil
		}
		addr := common.BytesToAddress(key)
		account, err := types.DecodeAccount(value)
		if err != nil {
			return err
		}

		var code []byte
		if account.HasCode() && !seenCode[account.CodeHash] {
			if c, ok := codeStore.GetCode(account.CodeHash); ok {
				code = c
				seenCode[account.CodeHash] = true
			}
		}

		var pairs []StoragePair
		if !account.StorageRoot.IsZero() {
			storageTrie := trie.New(nodes, account.StorageRoot)
			walkErr := storageTrie.Walk(func(k, v []byte) error {
				pairs = append(pairs, StoragePair{Key: common.BytesToHash(k), Value: common.BytesToHash(v)})
				return nil
			})
			if walkErr != nil {
				return walkErr
			}
		}

		entry := &AccountEntry{Address: addr, Account: account, Code: code, StoragePairs: pairs}
		enc := entry.Encode()
		if pendingSize > 0 && pendingSize+len(enc) > ChunkTargetSize {
			if err := flush(); err != nil {
				return err
			}
		}
		pending = append(pending, enc)
		pendingSize += len(enc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return hashes, nil
}
