package core

import (
	"testing"

	"github.com/citahub/cita-sub003/citalib/chain"
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/core/systemcontract"
	"github.com/citahub/cita-sub003/core/types"
	"github.com/citahub/cita-sub003/core/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestApplyBlockProducesOneReceiptPerTransactionInOrder(t *testing.T) {
	st := newTestState()
	to := common.BytesToAddress([]byte{2})
	tx0, sender0 := signedTestTx(t, 0, to, 10, 0, 100000)
	tx1, sender1 := signedTestTx(t, 0, to, 20, 0, 100000)
	st.SetBalance(sender0, uint256.NewInt(1_000_000))
	st.SetBalance(sender1, uint256.NewInt(1_000_000))

	proc := &StateProcessor{Config: &chain.Config{ChainName: "test", ChainID: 1}, Sched: vm.DefaultSchedule}
	header := &types.Header{Height: 1, QuotaLimit: 10_000_000, Proposer: common.BytesToAddress([]byte{0xEE})}
	result := proc.ApplyBlock(st, header, []*types.SignedTransaction{tx0, tx1})

	require.Len(t, result.Receipts, 2)
	require.Equal(t, types.ErrNone, result.Receipts[0].Error)
	require.Equal(t, types.ErrNone, result.Receipts[1].Error)
	require.True(t, result.Receipts[1].CumulativeQuota > result.Receipts[0].CumulativeQuota,
		"cumulative quota must strictly increase across ordered transactions")
	require.Equal(t, result.QuotaUsed, result.Receipts[1].CumulativeQuota)
}

func TestApplyBlockInvokesAutoExecOnlyAtV2(t *testing.T) {
	st := newTestState()

	// A target contract whose code writes a marker word whenever called,
	// so we can observe whether the auto-exec hook actually ran.
	target := common.BytesToAddress([]byte{0x55})
	marker := []byte{byte(vm.PUSH1), 1, byte(vm.PUSH1), 0, byte(vm.SSTORE), byte(vm.STOP)}
	st.SetCode(target, marker)
	autoExec := &AutoExecInvoker{Target: target, Input: nil}

	header := &types.Header{Height: 10, QuotaLimit: 10_000_000, Proposer: common.BytesToAddress([]byte{0xEE})}

	t.Run("below v2 activation, hook does not run", func(t *testing.T) {
		cfg := &chain.Config{ChainID: 1, V2Configured: true, V2Block: 100}
		proc := &StateProcessor{Config: cfg, Sched: vm.DefaultSchedule, AutoExec: autoExec, Native: &systemcontract.Registry{}}
		proc.ApplyBlock(st, header, nil)
		require.True(t, st.GetState(target, common.Hash{}).IsZero())
	})

	t.Run("at or past v2 activation, hook runs", func(t *testing.T) {
		cfg := &chain.Config{ChainID: 1, V2Configured: true, V2Block: 10}
		proc := &StateProcessor{Config: cfg, Sched: vm.DefaultSchedule, AutoExec: autoExec, Native: &systemcontract.Registry{}}
		proc.ApplyBlock(st, header, nil)
		require.False(t, st.GetState(target, common.Hash{}).IsZero())
	})
}

func TestFinalizeCommitsStateAndComputesHeaderFields(t *testing.T) {
	st := newTestState()
	to := common.BytesToAddress([]byte{2})
	tx, sender := signedTestTx(t, 0, to, 10, 0, 100000)
	st.SetBalance(sender, uint256.NewInt(1_000_000))

	proc := &StateProcessor{Sched: vm.DefaultSchedule}
	header := &types.Header{Height: 1, QuotaLimit: 10_000_000, Proposer: common.BytesToAddress([]byte{0xEE})}
	result := proc.ApplyBlock(st, header, []*types.SignedTransaction{tx})

	codeStore := newMemCodeStore()
	root, err := proc.Finalize(st, header, result, codeStore, common.Hash{})
	require.NoError(t, err)
	require.False(t, root.IsZero())
	require.Equal(t, root, header.StateRoot)
	require.False(t, header.ReceiptsRoot.IsZero())
	require.Equal(t, result.QuotaUsed, header.QuotaUsed)
}
