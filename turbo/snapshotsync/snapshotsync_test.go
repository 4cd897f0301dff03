package snapshotsync

import (
	"testing"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/kv"
	"github.com/citahub/cita-sub003/citalib/trie"
	"github.com/citahub/cita-sub003/core/chainstore"
	"github.com/citahub/cita-sub003/core/state"
	"github.com/citahub/cita-sub003/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

type memCodeStore struct{ m map[common.Hash][]byte }

func newMemCodeStore() *memCodeStore { return &memCodeStore{m: make(map[common.Hash][]byte)} }
func (c *memCodeStore) GetCode(h common.Hash) ([]byte, bool) { v, ok := c.m[h]; return v, ok }
func (c *memCodeStore) PutCode(h common.Hash, code []byte)   { c.m[h] = code }

// buildSampleState commits a handful of accounts, one of them with code and
// storage, and returns the nodes/codeStore/root triple to chunk from.
func buildSampleState(t *testing.T) (trie.NodeStore, state.CodeStore, common.Hash) {
	t.Helper()
	nodes := trie.NewMapNodeStore()
	cache := state.NewAccountCache(128, 128)
	codeStore := newMemCodeStore()
	reader := state.NewTrieStateReader(nodes, codeStore, common.Hash{})
	s := state.New(reader, cache, nodes, common.BigEndianHash(1), common.Hash{})

	plain := common.BytesToAddress([]byte{1})
	s.SetBalance(plain, uint256.NewInt(1000))

	contract := common.BytesToAddress([]byte{2})
	s.SetCode(contract, []byte{0x60, 0x01, 0x60, 0x00, 0x55})
	s.SetState(contract, common.BigEndianHash(7), common.BigEndianHash(42))
	s.SetState(contract, common.BigEndianHash(8), common.BigEndianHash(43))

	root, err := s.Commit(common.Hash{}, codeStore)
	require.NoError(t, err)
	return nodes, codeStore, root
}

func TestChunkAndRestoreStateReproducesRoot(t *testing.T) {
	nodes, codeStore, root := buildSampleState(t)
	store := NewDirStore(t.TempDir())

	hashes, err := ChunkState(nodes, codeStore, root, store)
	require.NoError(t, err)
	require.NotEmpty(t, hashes)

	manifest := &Manifest{StateHashes: hashes, StateRoot: root}
	require.NoError(t, store.PutManifest(manifest))
	roundTripped, err := store.GetManifest()
	require.NoError(t, err)
	require.Equal(t, manifest.StateRoot, roundTripped.StateRoot)
	require.Equal(t, manifest.StateHashes, roundTripped.StateHashes)

	restoredNodes := trie.NewMapNodeStore()
	restoredCode := newMemCodeStore()
	rst := NewRestoration(manifest, store, restoredNodes, restoredCode, nil)

	for _, h := range hashes {
		require.NoError(t, rst.FeedStateChunk(h))
	}
	require.True(t, rst.Done())
	require.Equal(t, root, rst.Root())

	live := NewLiveDatabase(trie.NewMapNodeStore(), newMemCodeStore())
	require.NoError(t, rst.Finalize(live))
	liveNodes, _ := live.Current()
	require.Equal(t, restoredNodes, liveNodes)

	// Spot-check the restored account trie actually reads back correctly.
	reader := state.NewTrieStateReader(restoredNodes, restoredCode, root)
	acc, err := reader.ReadAccountData(common.BytesToAddress([]byte{1}))
	require.NoError(t, err)
	require.True(t, acc.Balance.Eq(uint256.NewInt(1000)))
}

func TestRestorationFailsOnMismatchedManifestRoot(t *testing.T) {
	nodes, codeStore, root := buildSampleState(t)
	store := NewDirStore(t.TempDir())

	hashes, err := ChunkState(nodes, codeStore, root, store)
	require.NoError(t, err)

	manifest := &Manifest{StateHashes: hashes, StateRoot: common.BigEndianHash(9999)}
	rst := NewRestoration(manifest, store, trie.NewMapNodeStore(), newMemCodeStore(), nil)

	var lastErr error
	for _, h := range hashes {
		lastErr = rst.FeedStateChunk(h)
	}
	require.ErrorIs(t, lastErr, ErrInvalidStateRoot)
}

func TestRestorationAbortStopsAcceptingChunks(t *testing.T) {
	nodes, codeStore, root := buildSampleState(t)
	store := NewDirStore(t.TempDir())

	hashes, err := ChunkState(nodes, codeStore, root, store)
	require.NoError(t, err)

	manifest := &Manifest{StateHashes: hashes, StateRoot: root}
	rst := NewRestoration(manifest, store, trie.NewMapNodeStore(), newMemCodeStore(), nil)
	rst.Abort()

	require.ErrorIs(t, rst.FeedStateChunk(hashes[0]), ErrRestorationAborted)
}

func TestFeedStateChunkRejectsUnknownHash(t *testing.T) {
	manifest := &Manifest{}
	store := NewDirStore(t.TempDir())
	rst := NewRestoration(manifest, store, trie.NewMapNodeStore(), newMemCodeStore(), nil)
	require.ErrorIs(t, rst.FeedStateChunk(common.BigEndianHash(1)), ErrUnknownChunk)
}

func buildSampleChain(t *testing.T, source *chainstore.Store, count int) []common.Hash {
	t.Helper()
	hashes := make([]common.Hash, count)
	parent := common.Hash{}
	for i := 0; i < count; i++ {
		h := &types.Header{ParentHash: parent, Height: uint64(i), QuotaLimit: 1_000_000, Proposer: common.BytesToAddress([]byte{0xAA})}
		require.NoError(t, source.PutHeader(h))
		require.NoError(t, source.PutBody(h.Hash(), nil))
		require.NoError(t, source.PutReceipts(h.Hash(), nil))
		hashes[i] = h.Hash()
		parent = h.Hash()
	}
	return hashes
}

func TestChunkAndRestoreBlocksReproducesChain(t *testing.T) {
	source := chainstore.New(kv.NewMemDB(kv.ChaindataTables))
	hashes := buildSampleChain(t, source, 5)

	store := NewDirStore(t.TempDir())
	chunkHashes, err := ChunkBlocks(source, 4, 5, store)
	require.NoError(t, err)
	require.NotEmpty(t, chunkHashes)

	manifest := &Manifest{BlockHashes: chunkHashes, BlockNumber: 4, BlockHash: hashes[4]}
	dest := chainstore.New(kv.NewMemDB(kv.ChaindataTables))
	rst := NewRestoration(manifest, store, trie.NewMapNodeStore(), newMemCodeStore(), dest)

	for _, h := range chunkHashes {
		require.NoError(t, rst.FeedBlockChunk(h))
	}
	require.True(t, rst.Done())

	for i, wantHash := range hashes {
		got, ok, err := dest.HeaderByHeight(uint64(i))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, wantHash, got.Hash())
	}
}
