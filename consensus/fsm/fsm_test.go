package fsm

import (
	"context"
	"testing"
	"time"

	"github.com/citahub/cita-sub003/citalib/chain"
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/trie"
	"github.com/citahub/cita-sub003/core/state"
	"github.com/citahub/cita-sub003/core/types"
	"github.com/citahub/cita-sub003/core/vm"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memCodeStore struct{ m map[common.Hash][]byte }

func newMemCodeStore() *memCodeStore { return &memCodeStore{m: make(map[common.Hash][]byte)} }
func (c *memCodeStore) GetCode(h common.Hash) ([]byte, bool) { v, ok := c.m[h]; return v, ok }
func (c *memCodeStore) PutCode(h common.Hash, code []byte)   { c.m[h] = code }

// signTransfer builds a value-transfer transaction signed by priv with the
// given nonce, spendable by whoever holds the recovered sender address.
func signTransfer(t *testing.T, priv *secp256k1.PrivateKey, nonce uint64, to common.Address, value uint64) *types.SignedTransaction {
	t.Helper()
	tx := types.Transaction{
		Nonce:    intToDecimal(nonce),
		GasPrice: uint256.NewInt(1),
		Gas:      100000,
		Action:   types.Action{Kind: types.ActionCall, To: to},
		Value:    uint256.NewInt(value),
	}
	hash := tx.UnsignedHash()
	compact := ecdsa.SignCompact(priv, hash[:], false)
	sig := make([]byte, 65)
	copy(sig[:64], compact[1:])
	sig[64] = compact[0] - 27
	return &types.SignedTransaction{Transaction: tx, Signature: sig, CryptoKind: types.CryptoSECP256K1}
}

func intToDecimal(n uint64) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func newTestMachine(t *testing.T, proposals chan *Proposal, onClose func(*ClosedBlock)) (*Machine, *state.AccountCache, trie.NodeStore, *memCodeStore) {
	t.Helper()
	nodes := trie.NewMapNodeStore()
	cache := state.NewAccountCache(64, 64)
	codeStore := newMemCodeStore()
	cfg := &chain.Config{ChainName: "test", ChainID: 1}
	m := New(cfg, nil, nil, nil, vm.DefaultSchedule, nil, nil, cache, nodes, codeStore, proposals, onClose, zap.NewNop().Sugar())
	return m, cache, nodes, codeStore
}

func TestMachineAppliesSingleBlockEndToEnd(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	proposals := make(chan *Proposal, 1)
	var closed *ClosedBlock
	m, cache, nodes, codeStore := newTestMachine(t, proposals, func(c *ClosedBlock) { closed = c })

	reader := state.NewTrieStateReader(nodes, codeStore, common.Hash{})

	// Fund the sender directly through a throwaway state view sharing the
	// same cache/nodes, committed before the block opens, the way genesis
	// allocation would.
	to := common.BytesToAddress([]byte{0xAA})
	warm := state.New(reader, cache, nodes, common.BigEndianHash(0), common.Hash{})
	tx := signTransfer(t, priv, 0, to, 10)
	senderAddr, err := tx.Sender()
	require.NoError(t, err)
	warm.SetBalance(senderAddr, uint256.NewInt(1_000_000))
	root, err := warm.Commit(common.Hash{}, codeStore)
	require.NoError(t, err)

	proposals <- &Proposal{
		Header: types.OpenHeader{
			Timestamp:        1,
			Height:           1,
			TransactionsRoot: common.Hash{},
			QuotaLimit:       10_000_000,
			Proposer:         common.BytesToAddress([]byte{0xBB}),
		},
		Transactions: []*types.SignedTransaction{tx},
		Reader:       state.NewTrieStateReader(nodes, codeStore, root),
		ParentRoot:   root,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Step(ctx)) // Initialize -> Pause
	require.Equal(t, PhasePause, m.Phase())
	require.NoError(t, m.Step(ctx)) // Pause -> Execute
	require.Equal(t, PhaseExecute, m.Phase())
	require.NoError(t, m.Step(ctx)) // Execute tx 0 -> Pause
	require.Equal(t, PhasePause, m.Phase())
	require.NoError(t, m.Step(ctx)) // Pause -> Finalize
	require.Equal(t, PhaseFinalize, m.Phase())
	require.NoError(t, m.Step(ctx)) // Finalize -> Initialize
	require.Equal(t, PhaseInitialize, m.Phase())

	require.NotNil(t, closed)
	require.Len(t, closed.Receipts, 1)
	require.Equal(t, types.ErrNone, closed.Receipts[0].Error)
	require.False(t, closed.Block.Header.StateRoot.IsZero())
}

func TestMachineRestartsOnDivergentProposal(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	proposals := make(chan *Proposal, 1)
	var closedCount int
	m, cache, nodes, codeStore := newTestMachine(t, proposals, func(c *ClosedBlock) { closedCount++ })

	reader := state.NewTrieStateReader(nodes, codeStore, common.Hash{})
	to := common.BytesToAddress([]byte{0xCC})
	tx1 := signTransfer(t, priv, 0, to, 1)
	senderAddr, err := tx1.Sender()
	require.NoError(t, err)
	warm := state.New(reader, cache, nodes, common.BigEndianHash(0), common.Hash{})
	warm.SetBalance(senderAddr, uint256.NewInt(1_000_000))
	root, err := warm.Commit(common.Hash{}, codeStore)
	require.NoError(t, err)

	first := &Proposal{
		Header: types.OpenHeader{
			Timestamp:  1,
			Height:     5,
			QuotaLimit: 10_000_000,
			Proposer:   common.BytesToAddress([]byte{0xDD}),
		},
		Transactions: []*types.SignedTransaction{tx1, tx1},
		Reader:       state.NewTrieStateReader(nodes, codeStore, root),
		ParentRoot:   root,
	}
	proposals <- first

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Step(ctx)) // Initialize -> Pause(0)
	require.NoError(t, m.Step(ctx)) // Pause -> Execute
	require.NoError(t, m.Step(ctx)) // Execute tx 0 -> Pause(1)
	require.Equal(t, 1, m.index)

	second := &Proposal{
		Header: types.OpenHeader{
			Timestamp:  2, // differs from first: not equivalent
			Height:     5,
			QuotaLimit: 10_000_000,
			Proposer:   common.BytesToAddress([]byte{0xDD}),
		},
		Transactions: []*types.SignedTransaction{tx1},
		Reader:       state.NewTrieStateReader(nodes, codeStore, root),
		ParentRoot:   root,
	}
	proposals <- second

	require.NoError(t, m.Step(ctx)) // Pause drains divergent proposal, restarts
	require.Equal(t, 0, m.index)
	require.Equal(t, PhasePause, m.Phase())
}
