package state

import (
	"testing"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/trie"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

type memCodeStore struct{ m map[common.Hash][]byte }

func newMemCodeStore() *memCodeStore { return &memCodeStore{m: make(map[common.Hash][]byte)} }
func (c *memCodeStore) GetCode(h common.Hash) ([]byte, bool) { v, ok := c.m[h]; return v, ok }
func (c *memCodeStore) PutCode(h common.Hash, code []byte)   { c.m[h] = code }

func TestBalanceSnapshotRevert(t *testing.T) {
	nodes := trie.NewMapNodeStore()
	cache := NewAccountCache(128, 128)
	reader := NewTrieStateReader(nodes, newMemCodeStore(), common.Hash{})
	s := New(reader, cache, nodes, common.BigEndianHash(1), common.Hash{})

	addr := common.BytesToAddress([]byte{1})
	s.SetBalance(addr, uint256.NewInt(100))
	snap := s.Snapshot()
	s.SetBalance(addr, uint256.NewInt(500))
	require.True(t, s.GetBalance(addr).Eq(uint256.NewInt(500)))
	s.RevertToSnapshot(snap)
	require.True(t, s.GetBalance(addr).Eq(uint256.NewInt(100)))
}

func TestNonceMonotonicityAcrossCommit(t *testing.T) {
	nodes := trie.NewMapNodeStore()
	cache := NewAccountCache(128, 128)
	codeStore := newMemCodeStore()
	addr := common.BytesToAddress([]byte{2})

	root := common.Hash{}
	for i := uint64(0); i < 3; i++ {
		reader := NewTrieStateReader(nodes, codeStore, root)
		s := New(reader, cache, nodes, common.BigEndianHash(i+1), common.BigEndianHash(i))
		require.Equal(t, i, s.GetNonce(addr))
		s.SetNonce(addr, i+1)
		s.SetBalance(addr, uint256.NewInt(1)) // keep the account non-empty so it persists
		newRoot, err := s.Commit(root, codeStore)
		require.NoError(t, err)
		root = newRoot
	}
	reader := NewTrieStateReader(nodes, codeStore, root)
	s := New(reader, cache, nodes, common.BigEndianHash(100), common.Hash{})
	require.Equal(t, uint64(3), s.GetNonce(addr))
}

func TestSuicideZeroesBalanceAndTransfers(t *testing.T) {
	nodes := trie.NewMapNodeStore()
	cache := NewAccountCache(128, 128)
	codeStore := newMemCodeStore()
	reader := NewTrieStateReader(nodes, codeStore, common.Hash{})
	s := New(reader, cache, nodes, common.BigEndianHash(1), common.Hash{})

	victim := common.BytesToAddress([]byte{3})
	beneficiary := common.BytesToAddress([]byte{4})
	s.SetBalance(victim, uint256.NewInt(1000))
	s.Suicide(victim, beneficiary)
	require.True(t, s.GetBalance(victim).IsZero())
	require.True(t, s.GetBalance(beneficiary).Eq(uint256.NewInt(1000)))
	require.True(t, s.HasSuicided(victim))
}

func TestStateRootDeterminism(t *testing.T) {
	run := func() common.Hash {
		nodes := trie.NewMapNodeStore()
		cache := NewAccountCache(128, 128)
		codeStore := newMemCodeStore()
		reader := NewTrieStateReader(nodes, codeStore, common.Hash{})
		s := New(reader, cache, nodes, common.BigEndianHash(1), common.Hash{})
		for i := byte(0); i < 10; i++ {
			addr := common.BytesToAddress([]byte{i})
			s.SetBalance(addr, uint256.NewInt(uint64(i)+1))
		}
		root, err := s.Commit(common.Hash{}, codeStore)
		require.NoError(t, err)
		return root
	}
	require.Equal(t, run(), run())
}
