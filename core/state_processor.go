package core

import (
	"github.com/citahub/cita-sub003/citalib/chain"
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/core/state"
	"github.com/citahub/cita-sub003/core/systemcontract"
	"github.com/citahub/cita-sub003/core/types"
	"github.com/citahub/cita-sub003/core/vm"
)

// AutoExecInvoker is the designated system contract the finalize-time
// auto-exec hook calls with a fixed quota budget, active at protocol
// version >= 2. A deployment without an auto-exec target leaves this nil.
type AutoExecInvoker struct {
	Target common.Address
	Input  []byte
}

// StateProcessor applies every transaction in block in order against st,
// accumulating receipts, then computes the header's commit-time fields:
// receipts_root, log_bloom, quota_used, and (via codeStore) state_root.
// It mirrors the Execute/Finalize pair of the block-execution FSM without
// owning the FSM's suspension logic itself — a caller that needs
// cooperative pausing calls Apply per transaction through StateTransition
// directly and invokes Finalize once it reaches the end.
type StateProcessor struct {
	Config   *chain.Config
	Native   *systemcontract.Registry
	SysCfg   *systemcontract.SysConfig
	QuotaMgr *systemcontract.QuotaManager
	Sched    vm.Schedule
	Perm     PermissionChecker
	AutoExec *AutoExecInvoker
}

// ProcessResult is everything Finalize needs to close out a block.
type ProcessResult struct {
	Receipts  []*types.Receipt
	QuotaUsed uint64
}

// ApplyBlock runs every transaction in order, returning their receipts and
// the total quota consumed. st is mutated in place; the caller commits it
// separately (Finalize's job, per the FSM).
func (p *StateProcessor) ApplyBlock(st *state.IntraBlockState, header *types.Header, txs []*types.SignedTransaction) *ProcessResult {
	tracker := NewBlockQuotaTracker(header.QuotaLimit)
	env := vm.EnvInfo{
		Coinbase:   header.Proposer,
		Origin:     common.Address{},
		Timestamp:  header.Timestamp,
		Number:     header.Height,
		QuotaLimit: header.QuotaLimit,
	}
	if p.Config != nil {
		env.ChainID = p.Config.ChainID
	}

	receipts := make([]*types.Receipt, 0, len(txs))
	var cumulative uint64
	for _, tx := range txs {
		trans := &StateTransition{
			State:    st,
			Native:   p.Native,
			SysCfg:   p.SysCfg,
			QuotaMgr: p.QuotaMgr,
			Config:   p.Config,
			Sched:    p.Sched,
			Env:      env,
			Height:   header.Height,
			Quota:    tracker,
			Perm:     p.Perm,
		}
		result := trans.Apply(tx, cumulative)
		cumulative = result.Receipt.CumulativeQuota
		receipts = append(receipts, result.Receipt)
	}

	if p.Config != nil && p.Config.IsV2(header.Height) && p.AutoExec != nil && p.Native != nil {
		ec := NewExecutionContext(st, p.Native, p.Sched, env, header.Height)
		_, _, _ = ec.Call(vm.CallKindCall, header.Proposer, p.AutoExec.Target, nil, p.AutoExec.Input, systemcontract.AutoExecQuota, false)
	}

	return &ProcessResult{Receipts: receipts, QuotaUsed: tracker.QuotaUsed}
}

// Finalize commits st, computes every header field ApplyBlock's result
// feeds, and rehashes the header, mirroring the FSM's Finalize transition
// (spec.md §4.H): "computes receipts_root, log_bloom, updates state_root
// and quota_used, rehashes the header."
func (p *StateProcessor) Finalize(st *state.IntraBlockState, header *types.Header, result *ProcessResult, codeStore state.CodeStore, priorStateRoot common.Hash) (common.Hash, error) {
	root, err := st.Commit(priorStateRoot, codeStore)
	if err != nil {
		return common.Hash{}, err
	}
	header.SetStateRoot(root)
	header.SetReceiptsRoot(types.MerkleReceiptsRoot(result.Receipts))
	header.SetQuotaUsed(result.QuotaUsed)

	var bloom common.Bloom
	for _, r := range result.Receipts {
		bloom.Or(r.Bloom())
	}
	header.SetLogBloom(bloom)
	return root, nil
}
