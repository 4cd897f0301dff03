// Package fsm drives one block at a time through the cooperative
// Initialize -> Pause -> Execute -> Finalize cycle: it opens a proposed
// block, applies one transaction per step, checks between transactions for
// a divergent re-proposal, and on reaching the last transaction commits the
// block and hands it to the caller. It owns none of the apply logic itself
// (core.StateTransition and core.StateProcessor do that); it only owns the
// suspension points.
package fsm

import (
	"context"
	"fmt"

	"github.com/citahub/cita-sub003/citalib/chain"
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/trie"
	"github.com/citahub/cita-sub003/core"
	"github.com/citahub/cita-sub003/core/state"
	"github.com/citahub/cita-sub003/core/systemcontract"
	"github.com/citahub/cita-sub003/core/types"
	"github.com/citahub/cita-sub003/core/vm"
	"go.uber.org/zap"
)

// Phase is one of the four states the machine cycles through.
type Phase int

const (
	PhaseInitialize Phase = iota
	PhasePause
	PhaseExecute
	PhaseFinalize
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialize:
		return "initialize"
	case PhasePause:
		return "pause"
	case PhaseExecute:
		return "execute"
	case PhaseFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// Proposal is a candidate block handed to the machine by the consensus
// driver: the open header fields fixed at proposal time, the transaction
// list, and the state reader/parent root the machine executes against.
type Proposal struct {
	Header       types.OpenHeader
	Transactions []*types.SignedTransaction
	Reader       state.StateReader
	ParentRoot   common.Hash
}

// ClosedBlock is what Finalize hands back: the rehashed, fully-committed
// block and the receipts produced while applying it.
type ClosedBlock struct {
	Block    *types.Block
	Receipts []*types.Receipt
}

// Machine is the single-threaded per-block driver. It is not safe for
// concurrent use; a consensus driver calls Step or Run from one goroutine.
type Machine struct {
	Config   *chain.Config
	Native   *systemcontract.Registry
	SysCfg   *systemcontract.SysConfig
	QuotaMgr *systemcontract.QuotaManager
	Sched    vm.Schedule
	Perm     core.PermissionChecker
	AutoExec *core.AutoExecInvoker

	Cache     *state.AccountCache
	Nodes     trie.NodeStore
	CodeStore state.CodeStore

	Proposals <-chan *Proposal
	OnClose   func(*ClosedBlock)

	Log *zap.SugaredLogger

	phase      Phase
	header     *types.Header
	openHeader types.OpenHeader
	txs        []*types.SignedTransaction
	st         *state.IntraBlockState
	env        vm.EnvInfo
	quota      *core.BlockQuotaTracker
	receipts   []*types.Receipt
	cumulative uint64
	index      int
	parentRoot common.Hash
}

// New builds a Machine at rest in PhaseInitialize.
func New(cfg *chain.Config, native *systemcontract.Registry, sysCfg *systemcontract.SysConfig, quotaMgr *systemcontract.QuotaManager, sched vm.Schedule, perm core.PermissionChecker, autoExec *core.AutoExecInvoker, cache *state.AccountCache, nodes trie.NodeStore, codeStore state.CodeStore, proposals <-chan *Proposal, onClose func(*ClosedBlock), log *zap.SugaredLogger) *Machine {
	if log == nil {
		log = zap.L().Sugar()
	}
	return &Machine{
		Config:    cfg,
		Native:    native,
		SysCfg:    sysCfg,
		QuotaMgr:  quotaMgr,
		Sched:     sched,
		Perm:      perm,
		AutoExec:  autoExec,
		Cache:     cache,
		Nodes:     nodes,
		CodeStore: codeStore,
		Proposals: proposals,
		OnClose:   onClose,
		Log:       log,
		phase:     PhaseInitialize,
	}
}

// Phase reports the machine's current state, for monitoring.
func (m *Machine) Phase() Phase { return m.phase }

// Run drives the machine until ctx is cancelled or the proposal channel is
// closed while idle in PhaseInitialize. Each iteration performs exactly one
// phase transition — Execute applies exactly one transaction — so a caller
// that wants to observe or rate-limit progress can do so between calls by
// using Step directly instead.
func (m *Machine) Run(ctx context.Context) error {
	for {
		if err := m.Step(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Step performs exactly one phase transition.
func (m *Machine) Step(ctx context.Context) error {
	switch m.phase {
	case PhaseInitialize:
		return m.stepInitialize(ctx)
	case PhasePause:
		return m.stepPause()
	case PhaseExecute:
		return m.stepExecute()
	case PhaseFinalize:
		return m.stepFinalize()
	default:
		return fmt.Errorf("fsm: unknown phase %d", m.phase)
	}
}

// stepInitialize blocks for the next proposal — there is nothing else this
// machine can usefully do while idle between blocks — then opens it and
// moves to Pause(0).
func (m *Machine) stepInitialize(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p, ok := <-m.Proposals:
		if !ok {
			return fmt.Errorf("fsm: proposal channel closed while idle")
		}
		m.openBlock(p)
		m.phase = PhasePause
		return nil
	}
}

// stepPause is the machine's only suspension point with more than one exit:
// it opportunistically drains a pending re-proposal without blocking, then
// either restarts the block (divergent proposal), stays paused (duplicate
// equivalent proposal, a no-op), or advances to Execute/Finalize.
func (m *Machine) stepPause() error {
	select {
	case p, ok := <-m.Proposals:
		if ok {
			if p.Header.Equivalent(m.openHeader) {
				m.Log.Debugw("ignoring duplicate equivalent proposal", "height", p.Header.Height)
				return nil
			} else {
				m.Log.Infow("divergent proposal observed mid-block, restarting", "height", p.Header.Height, "prior_txs_applied", m.index)
				m.openBlock(p)
				return nil
			}
		}
	default:
	}

	if m.index >= len(m.txs) {
		m.phase = PhaseFinalize
		return nil
	}
	m.phase = PhaseExecute
	return nil
}

// stepExecute applies the transaction at m.index against the live state,
// appends its receipt, and returns to Pause.
func (m *Machine) stepExecute() error {
	tx := m.txs[m.index]
	trans := &core.StateTransition{
		State:    m.st,
		Native:   m.Native,
		SysCfg:   m.SysCfg,
		QuotaMgr: m.QuotaMgr,
		Config:   m.Config,
		Quota:    m.quota,
		Perm:     m.Perm,
		Sched:    m.Sched,
		Env:      m.env,
		Height:   m.header.Height,
	}
	result := trans.Apply(tx, m.cumulative)
	m.cumulative = result.Receipt.CumulativeQuota
	m.receipts = append(m.receipts, result.Receipt)
	m.index++
	m.phase = PhasePause
	return nil
}

// stepFinalize runs the protocol-v2+ auto-exec hook, commits the state,
// rehashes the header, hands the closed block to OnClose, and returns the
// machine to PhaseInitialize for the next proposal.
func (m *Machine) stepFinalize() error {
	if m.Config != nil && m.Config.IsV2(m.header.Height) && m.AutoExec != nil && m.Native != nil {
		ec := core.NewExecutionContext(m.st, m.Native, m.Sched, m.env, m.header.Height)
		if _, _, err := ec.Call(vm.CallKindCall, m.header.Proposer, m.AutoExec.Target, nil, m.AutoExec.Input, systemcontract.AutoExecQuota, false); err != nil {
			m.Log.Warnw("auto-exec hook failed", "height", m.header.Height, "err", err)
		}
	}

	processor := &core.StateProcessor{}
	result := &core.ProcessResult{Receipts: m.receipts, QuotaUsed: m.quota.QuotaUsed}
	if _, err := processor.Finalize(m.st, m.header, result, m.CodeStore, m.parentRoot); err != nil {
		return fmt.Errorf("fsm: finalize block %d: %w", m.header.Height, err)
	}

	closed := &ClosedBlock{
		Block:    &types.Block{Header: m.header, Transactions: m.txs},
		Receipts: m.receipts,
	}
	m.Log.Infow("block closed", "height", m.header.Height, "txs", len(m.txs), "quota_used", result.QuotaUsed)
	if m.OnClose != nil {
		m.OnClose(closed)
	}

	m.header, m.txs, m.st, m.receipts = nil, nil, nil, nil
	m.phase = PhaseInitialize
	return nil
}

// openBlock sets up a fresh execution state for p, discarding anything a
// prior, now-superseded proposal had mutated — per the FSM's "any
// divergence forces restart with no partial DB commitment" rule, discarding
// an in-progress IntraBlockState is safe because nothing paused mid-block
// ever reaches Commit.
func (m *Machine) openBlock(p *Proposal) {
	header := &types.Header{
		ParentHash:       p.Header.ParentHash,
		Timestamp:        p.Header.Timestamp,
		Height:           p.Header.Height,
		TransactionsRoot: p.Header.TransactionsRoot,
		QuotaLimit:       p.Header.QuotaLimit,
		Proof:            p.Header.Proof,
		Version:          p.Header.Version,
		Proposer:         p.Header.Proposer,
	}
	blockID := header.Hash()

	env := vm.EnvInfo{
		Coinbase:   header.Proposer,
		Timestamp:  header.Timestamp,
		Number:     header.Height,
		QuotaLimit: header.QuotaLimit,
	}
	if m.Config != nil {
		env.ChainID = m.Config.ChainID
	}

	m.header = header
	m.openHeader = p.Header
	m.txs = p.Transactions
	m.st = state.New(p.Reader, m.Cache, m.Nodes, blockID, p.Header.ParentHash)
	m.env = env
	m.quota = core.NewBlockQuotaTracker(header.QuotaLimit)
	m.receipts = nil
	m.cumulative = 0
	m.index = 0
	m.parentRoot = p.ParentRoot
}
