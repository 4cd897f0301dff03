package core

import (
	"github.com/citahub/cita-sub003/citalib/chain"
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/core/state"
	"github.com/citahub/cita-sub003/core/systemcontract"
	"github.com/citahub/cita-sub003/core/types"
	"github.com/citahub/cita-sub003/core/vm"
	"github.com/holiman/uint256"
)

// PermissionChecker is the pluggable send-tx/call/create-contract gate
// state_transition consults when SysConfig reports permission checking
// enabled. The reserved permission-management contracts themselves are
// out of scope (only Admin/SysConfig/QuotaManager/CrossChainVerify/
// ZkPrivacy are implemented, per DESIGN.md); a deployment that wants
// enforcement plugs in its own checker, and the zero value (nil) allows
// everything, matching PermissionCheck=false's behavior.
type PermissionChecker interface {
	CanSendTransaction(addr common.Address) bool
	CanCall(addr, to common.Address) bool
	CanCreateContract(addr common.Address) bool
}

// BlockQuotaTracker is the small piece of per-block state state_transition
// needs beyond one transaction: the running quota_used total and per
// account the quota already spent this block, so QuotaManager's per
// account limit can be enforced across the whole block rather than per
// call.
type BlockQuotaTracker struct {
	QuotaLimit  uint64
	QuotaUsed   uint64
	accountUsed map[common.Address]uint64
}

func NewBlockQuotaTracker(quotaLimit uint64) *BlockQuotaTracker {
	return &BlockQuotaTracker{QuotaLimit: quotaLimit, accountUsed: map[common.Address]uint64{}}
}

func (t *BlockQuotaTracker) accountSpent(addr common.Address) uint64 { return t.accountUsed[addr] }

func (t *BlockQuotaTracker) charge(addr common.Address, used uint64) {
	t.QuotaUsed += used
	t.accountUsed[addr] += used
}

// StateTransition holds every collaborator applying one transaction needs:
// the block's state view, its native-contract registry, the chain config,
// and the running block-quota tracker.
type StateTransition struct {
	State    *state.IntraBlockState
	Native   *systemcontract.Registry
	SysCfg   *systemcontract.SysConfig
	QuotaMgr *systemcontract.QuotaManager
	Config   *chain.Config
	Sched    vm.Schedule
	Env      vm.EnvInfo
	Height   uint64
	Quota    *BlockQuotaTracker
	Perm     PermissionChecker
}

// Result is everything Apply learns about one transaction beyond the
// committed-to-the-chain Receipt: the actual error encountered, useful to
// a caller that wants to log or short-circuit without re-decoding the
// receipt's closed enum.
type Result struct {
	Receipt *types.Receipt
	Err     types.ReceiptError
}

func (st *StateTransition) newExecutionContext() *ExecutionContext {
	return NewExecutionContext(st.State, st.Native, st.Sched, st.Env, st.Height)
}

// Apply runs the 11-step algorithm against tx, producing a receipt. It
// returns no error value: every fallible outcome is recorded in the
// returned Result and its Receipt's Error field, per the closed
// ReceiptError convention. A transaction whose sender cannot be recovered
// (malformed signature) yields a Result carrying ErrInvalidTransaction.
func (st *StateTransition) Apply(tx *types.SignedTransaction, cumulativeBefore uint64) *Result {
	sender, err := tx.Sender()
	if err != nil {
		return &Result{Err: types.ErrInvalidTransaction, Receipt: &types.Receipt{
			CumulativeQuota: cumulativeBefore, Error: types.ErrInvalidTransaction, TxHash: tx.Hash(),
		}}
	}

	if st.Config != nil && tx.Version > 0 && tx.ChainID != st.Config.ChainID {
		return st.reject(tx, sender, types.ErrInvalidTransaction, cumulativeBefore)
	}
	if tx.ValidUntilBlock != 0 && st.Height > tx.ValidUntilBlock {
		return st.reject(tx, sender, types.ErrInvalidTransaction, cumulativeBefore)
	}

	nonce := st.State.GetNonce(sender)
	if ok := nonceMatches(tx, nonce, st.Config != nil && st.Config.IsV1(st.Height)); !ok {
		return st.reject(tx, sender, types.ErrInvalidNonce, cumulativeBefore)
	}

	base := tx.IntrinsicQuota()
	if tx.Gas < base {
		return st.reject(tx, sender, types.ErrNotEnoughBaseQuota, cumulativeBefore)
	}

	economicalModel := systemcontract.EconomicalQuota
	if st.SysCfg != nil {
		economicalModel = st.SysCfg.GetEconomicalModel(st.Height)
	}
	var cost *uint256.Int
	if economicalModel == systemcontract.EconomicalCharge {
		cost = new(uint256.Int).Mul(uint256.NewInt(tx.Gas), tx.GasPrice)
		if st.State.GetBalance(sender).Cmp(cost) < 0 {
			return st.reject(tx, sender, types.ErrNotEnoughBalance, cumulativeBefore)
		}
		st.State.SubBalance(sender, cost)
	}

	if st.Quota != nil {
		if st.Quota.QuotaUsed+tx.Gas > st.Quota.QuotaLimit {
			if economicalModel == systemcontract.EconomicalCharge {
				st.State.AddBalance(sender, cost)
			}
			return st.reject(tx, sender, types.ErrBlockQuotaLimitReached, cumulativeBefore)
		}
		if st.QuotaMgr != nil {
			limit := st.QuotaMgr.GetAccountQuota(st.Height, sender)
			if st.Quota.accountSpent(sender)+tx.Gas > limit {
				if economicalModel == systemcontract.EconomicalCharge {
					st.State.AddBalance(sender, cost)
				}
				return st.reject(tx, sender, types.ErrAccountQuotaLimitReached, cumulativeBefore)
			}
		}
	}

	if st.Perm != nil && st.SysCfg != nil && st.SysCfg.GetPermissionCheck(st.Height) {
		if !st.Perm.CanSendTransaction(sender) {
			if economicalModel == systemcontract.EconomicalCharge {
				st.State.AddBalance(sender, cost)
			}
			return st.reject(tx, sender, types.ErrNoTransactionPermission, cumulativeBefore)
		}
		if tx.Action.Kind == types.ActionCall && !st.Perm.CanCall(sender, tx.Action.To) {
			if economicalModel == systemcontract.EconomicalCharge {
				st.State.AddBalance(sender, cost)
			}
			return st.reject(tx, sender, types.ErrNoCallPermission, cumulativeBefore)
		}
		if tx.Action.Kind == types.ActionCreate && !st.Perm.CanCreateContract(sender) {
			if economicalModel == systemcontract.EconomicalCharge {
				st.State.AddBalance(sender, cost)
			}
			return st.reject(tx, sender, types.ErrNoContractPermission, cumulativeBefore)
		}
	}

	st.State.SetNonce(sender, nonce+1)

	gas := tx.Gas - base
	logMark := st.State.LogLen()
	var contractAddr *common.Address
	var execErr types.ReceiptError
	var used uint64

	ec := st.newExecutionContext()
	switch tx.Action.Kind {
	case types.ActionCreate, types.ActionGoCreate:
		addr, _, gasLeft, cerr := ec.Create(sender, tx.Value, gas, tx.Data)
		used = classifyAndCharge(tx.Gas, gasLeft, cerr, &execErr)
		if execErr == types.ErrNone {
			contractAddr = &addr
		}
	case types.ActionCall:
		_, gasLeft, cerr := ec.Call(vm.CallKindCall, sender, tx.Action.To, tx.Value, tx.Data, gas, false)
		used = classifyAndCharge(tx.Gas, gasLeft, cerr, &execErr)
	case types.ActionStore, types.ActionAbiStore, types.ActionAmendData:
		st.State.AddLog(&types.LogEntry{Address: sender, Data: tx.Data})
		used = base
		execErr = types.ErrNone
	default:
		used = base
		execErr = types.ErrInvalidTransaction
	}

	if st.Quota != nil {
		st.Quota.charge(sender, used)
	}

	if economicalModel == systemcontract.EconomicalCharge {
		refund := new(uint256.Int).Mul(uint256.NewInt(tx.Gas-used), tx.GasPrice)
		st.State.AddBalance(sender, refund)
		payment := new(uint256.Int).Mul(uint256.NewInt(used), tx.GasPrice)
		coinbase := st.Env.Coinbase
		if st.SysCfg != nil && st.SysCfg.GetFeeBackPlatform(st.Height) {
			if owner := st.SysCfg.GetChainOwner(st.Height); !owner.IsZero() {
				coinbase = owner
			}
		}
		st.State.AddBalance(coinbase, payment)
	}

	receipt := &types.Receipt{
		CumulativeQuota: cumulativeBefore + used,
		Logs:            st.State.TxLogsFrom(logMark),
		Error:           execErr,
		AccountNonce:    nonce + 1,
		TxHash:          tx.Hash(),
		ContractAddress: contractAddr,
	}
	return &Result{Receipt: receipt, Err: execErr}
}

func (st *StateTransition) reject(tx *types.SignedTransaction, sender common.Address, kind types.ReceiptError, cumulativeBefore uint64) *Result {
	return &Result{
		Err: kind,
		Receipt: &types.Receipt{
			CumulativeQuota: cumulativeBefore,
			Error:           kind,
			AccountNonce:    st.State.GetNonce(sender),
			TxHash:          tx.Hash(),
		},
	}
}

// nonceMatches compares tx.Nonce against the account's nonce.
// Transaction.NonceUint64 already normalizes v0's decimal-string encoding
// and v1's numeric encoding to the same uint64 comparison, so both
// versions share one path here; isV1 is accepted for symmetry with the
// rest of the height-gated checks and in case a future version changes
// the comparison rule.
func nonceMatches(tx *types.SignedTransaction, accountNonce uint64, isV1 bool) bool {
	n, ok := tx.NonceUint64()
	return ok && n == accountNonce
}

// classifyAndCharge applies the machine-exception-vs-reverted charging
// rule: a machine exception charges the full declared gas; success,
// Reverted or an internal (non-machine) error charges only what ran.
func classifyAndCharge(declaredGas, gasLeft uint64, err error, out *types.ReceiptError) uint64 {
	switch err {
	case nil:
		*out = types.ErrNone
	case vm.ErrExecutionReverted:
		*out = types.ErrReverted
	case vm.ErrOutOfGas:
		*out = types.ErrOutOfQuota
	case vm.ErrInvalidJump:
		*out = types.ErrBadJump
	case vm.ErrMutableCallInStaticContext:
		*out = types.ErrMutableCallInStaticContext
	case vm.ErrBadInstruction:
		*out = types.ErrBadInstruction
	case vm.ErrStackUnderflow:
		*out = types.ErrStackUnderflow
	case vm.ErrStackOverflow:
		*out = types.ErrStackOverflow
	case vm.ErrCallDepthExceeded, vm.ErrCodeTooLarge:
		*out = types.ErrExecutionInternal
	default:
		*out = types.ErrExecutionInternal
	}
	if out.IsMachineException() {
		return declaredGas
	}
	return declaredGas - gasLeft
}
