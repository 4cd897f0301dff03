package snapshotsync

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/rlp"
	"github.com/citahub/cita-sub003/citalib/trie"
	"github.com/citahub/cita-sub003/core/state"
	"github.com/citahub/cita-sub003/core/types"
)

var (
	// ErrInvalidStateRoot is returned once every state chunk has been fed
	// but the rebuilt account trie's root does not match the manifest.
	ErrInvalidStateRoot = errors.New("snapshotsync: restored state root does not match manifest")
	// ErrRestorationAborted is returned by any call made at or after the
	// chunk boundary where Abort was observed.
	ErrRestorationAborted = errors.New("snapshotsync: restoration aborted")
	// ErrUnknownChunk is returned for a chunk hash the manifest never named
	// or that was already applied.
	ErrUnknownChunk = errors.New("snapshotsync: chunk hash not part of this restoration")
)

// LiveDatabase is the swap point: the nodes/code a running node actually
// reads through. Restoration builds a complete replacement off to the
// side and Finalize swaps it in under one lock once it has been verified,
// so readers never observe a partially-restored state.
type LiveDatabase struct {
	mu        sync.RWMutex
	nodes     trie.NodeStore
	codeStore state.CodeStore
}

func NewLiveDatabase(nodes trie.NodeStore, codeStore state.CodeStore) *LiveDatabase {
	return &LiveDatabase{nodes: nodes, codeStore: codeStore}
}

func (d *LiveDatabase) Current() (trie.NodeStore, state.CodeStore) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.nodes, d.codeStore
}

func (d *LiveDatabase) swap(nodes trie.NodeStore, codeStore state.CodeStore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nodes, d.codeStore = nodes, codeStore
}

// Restoration rebuilds a snapshot chunk by chunk into a database disjoint
// from the live one. Chunk writes are serialized by mu, held for the
// entire chunk boundary, matching the producer side's own
// one-writer-at-a-time discipline. Progress is exposed through atomic
// counters so a status endpoint can poll it without taking the lock.
type Restoration struct {
	manifest  *Manifest
	store     ChunkStore
	nodes     trie.NodeStore
	codeStore state.CodeStore
	blocks    BlockSink

	mu              sync.Mutex
	stateChunksLeft map[common.Hash]bool
	blockChunksLeft map[common.Hash]bool
	stateRoot       common.Hash

	stateChunksApplied atomic.Uint64
	blockChunksApplied atomic.Uint64
	aborted            atomic.Bool
}

// BlockSink is the write seam block restoration feeds, satisfied by
// core/chainstore.Store.
type BlockSink interface {
	PutHeader(h *types.Header) error
	PutBody(hash common.Hash, txs []*types.SignedTransaction) error
	PutReceipts(hash common.Hash, receipts []*types.Receipt) error
}

func NewRestoration(manifest *Manifest, store ChunkStore, nodes trie.NodeStore, codeStore state.CodeStore, blocks BlockSink) *Restoration {
	stateLeft := make(map[common.Hash]bool, len(manifest.StateHashes))
	for _, h := range manifest.StateHashes {
		stateLeft[h] = true
	}
	blockLeft := make(map[common.Hash]bool, len(manifest.BlockHashes))
	for _, h := range manifest.BlockHashes {
		blockLeft[h] = true
	}
	return &Restoration{
		manifest:        manifest,
		store:           store,
		nodes:           nodes,
		codeStore:       codeStore,
		blocks:          blocks,
		stateChunksLeft: stateLeft,
		blockChunksLeft: blockLeft,
	}
}

// Abort marks the restoration for cancellation; the next FeedStateChunk or
// FeedBlockChunk call observes it at its boundary and fails.
func (r *Restoration) Abort() { r.aborted.Store(true) }

// Progress reports monotonic counts safe to read without the lock.
func (r *Restoration) Progress() (stateApplied, stateTotal, blockApplied, blockTotal uint64) {
	return r.stateChunksApplied.Load(), uint64(len(r.manifest.StateHashes)),
		r.blockChunksApplied.Load(), uint64(len(r.manifest.BlockHashes))
}

// Done reports whether every chunk the manifest named has been applied.
func (r *Restoration) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stateChunksLeft) == 0 && len(r.blockChunksLeft) == 0
}

// FeedStateChunk decompresses and applies one state chunk: every account
// entry it holds is written into the account trie (and, for accounts with
// storage, a freshly built storage trie), code is written into codeStore
// the first time its hash appears. Once the chunk set this call empties
// was the last one outstanding, the rebuilt root is checked against the
// manifest immediately.
func (r *Restoration) FeedStateChunk(hash common.Hash) error {
	if r.aborted.Load() {
		return ErrRestorationAborted
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aborted.Load() {
		return ErrRestorationAborted
	}
	if !r.stateChunksLeft[hash] {
		return ErrUnknownChunk
	}

	raw, err := r.store.GetChunk(hash)
	if err != nil {
		return err
	}
	items, err := rlp.DecodeList(raw)
	if err != nil {
		return err
	}

	acctTrie := trie.New(r.nodes, r.stateRoot)
	for _, it := range items {
		if !it.IsList {
			return &rlp.DecodeError{Kind: rlp.KindLengthMismatch, Msg: "state chunk entry"}
		}
		entry, err := decodeAccountEntryItems(it.Items)
		if err != nil {
			return err
		}
		if len(entry.Code) > 0 {
			r.codeStore.PutCode(entry.Account.CodeHash, entry.Code)
		}
		if len(entry.StoragePairs) > 0 {
			storageTrie := trie.New(r.nodes, common.Hash{})
			for _, p := range entry.StoragePairs {
				if _, err := storageTrie.Update(p.Key.Bytes(), p.Value.Bytes()); err != nil {
					return err
				}
			}
			entry.Account.StorageRoot = storageTrie.Root()
		}
		if _, err := acctTrie.Update(entry.Address.Bytes(), entry.Account.Encode()); err != nil {
			return err
		}
	}
	r.stateRoot = acctTrie.Root()
	delete(r.stateChunksLeft, hash)
	r.stateChunksApplied.Add(1)

	if len(r.stateChunksLeft) == 0 && r.stateRoot != r.manifest.StateRoot {
		return ErrInvalidStateRoot
	}
	return nil
}

// FeedBlockChunk decompresses one block chunk and writes every header,
// body, and receipt list it holds into the restoration's BlockSink.
func (r *Restoration) FeedBlockChunk(hash common.Hash) error {
	if r.aborted.Load() {
		return ErrRestorationAborted
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aborted.Load() {
		return ErrRestorationAborted
	}
	if !r.blockChunksLeft[hash] {
		return ErrUnknownChunk
	}

	raw, err := r.store.GetChunk(hash)
	if err != nil {
		return err
	}
	items, err := rlp.DecodeList(raw)
	if err != nil {
		return err
	}
	for _, it := range items {
		if !it.IsList {
			return &rlp.DecodeError{Kind: rlp.KindLengthMismatch, Msg: "block chunk entry"}
		}
		entry, err := decodeBlockEntryItems(it.Items)
		if err != nil {
			return err
		}
		blockHash := entry.Header.Hash()
		if err := r.blocks.PutHeader(entry.Header); err != nil {
			return err
		}
		if err := r.blocks.PutBody(blockHash, entry.Body); err != nil {
			return err
		}
		if err := r.blocks.PutReceipts(blockHash, entry.Receipts); err != nil {
			return err
		}
	}
	delete(r.blockChunksLeft, hash)
	r.blockChunksApplied.Add(1)
	return nil
}

// Finalize must only be called once Done reports true. It re-checks the
// state root one last time and swaps the rebuilt nodes/code into live,
// the point at which a running node actually starts reading through the
// restored database.
func (r *Restoration) Finalize(live *LiveDatabase) error {
	if !r.Done() {
		return errors.New("snapshotsync: restoration not finished")
	}
	if r.stateRoot != r.manifest.StateRoot {
		return ErrInvalidStateRoot
	}
	live.swap(r.nodes, r.codeStore)
	return nil
}

// Root returns the state root rebuilt so far; only meaningful once Done
// reports the state side finished.
func (r *Restoration) Root() common.Hash { return r.stateRoot }
