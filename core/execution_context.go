// Package core wires together the state layer, the EVM, the precompile
// and native-contract registries, and the per-transaction/per-block apply
// algorithms into the execution engine a consensus driver calls into.
package core

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/core/state"
	"github.com/citahub/cita-sub003/core/systemcontract"
	"github.com/citahub/cita-sub003/core/types"
	"github.com/citahub/cita-sub003/core/vm"
	"github.com/citahub/cita-sub003/core/vm/precompiles"
	"github.com/holiman/uint256"
)

// ExecutionContext is the sole production implementation of vm.Ext: it
// answers the interpreter's storage/balance/sub-call seam by reading and
// writing an IntraBlockState, and intercepts calls addressed to a
// precompile or a native system contract before they ever reach bytecode
// execution.
type ExecutionContext struct {
	State       *state.IntraBlockState
	Precompiles precompiles.Registry
	Native      *systemcontract.Registry
	Sched       vm.Schedule
	Env         vm.EnvInfo
	Height      uint64

	depth int
}

func NewExecutionContext(st *state.IntraBlockState, native *systemcontract.Registry, sched vm.Schedule, env vm.EnvInfo, height uint64) *ExecutionContext {
	return &ExecutionContext{
		State:       st,
		Precompiles: precompiles.DefaultRegistry(),
		Native:      native,
		Sched:       sched,
		Env:         env,
		Height:      height,
	}
}

func (e *ExecutionContext) StorageAt(addr common.Address, key common.Hash) common.Hash {
	return e.State.GetState(addr, key)
}

func (e *ExecutionContext) SetStorage(addr common.Address, key, value common.Hash) {
	e.State.SetState(addr, key, value)
}

func (e *ExecutionContext) Exists(addr common.Address) bool { return e.State.Exist(addr) }

func (e *ExecutionContext) Balance(addr common.Address) *uint256.Int {
	return e.State.GetBalance(addr)
}

// Blockhash has no block-history store wired in this repo; returning zero
// outside the last-256-block window is the documented contract, and there
// is currently no window at all.
func (e *ExecutionContext) Blockhash(n uint64) common.Hash { return common.Hash{} }

func (e *ExecutionContext) ExtCode(addr common.Address) []byte { return e.State.GetCode(addr) }

func (e *ExecutionContext) ExtCodeSize(addr common.Address) int { return e.State.GetCodeSize(addr) }

func (e *ExecutionContext) Log(addr common.Address, topics []common.Hash, data []byte) {
	e.State.AddLog(&types.LogEntry{Address: addr, Topics: topics, Data: data})
}

func (e *ExecutionContext) Suicide(addr, beneficiary common.Address) {
	e.State.Suicide(addr, beneficiary)
}

func (e *ExecutionContext) Schedule() vm.Schedule { return e.Sched }

func (e *ExecutionContext) EnvInfo() vm.EnvInfo { return e.Env }

func (e *ExecutionContext) Depth() int { return e.depth }

// callNativeOrPrecompile answers addr directly if it belongs to a
// precompile or a registered native contract, without spinning up an
// interpreter frame.
func (e *ExecutionContext) callNativeOrPrecompile(caller, to common.Address, input []byte, gas uint64) (out []byte, remaining uint64, handled bool, err error) {
	if p, ok := e.Precompiles[to]; ok {
		cost := p.Pricer().Cost(len(input))
		if cost > gas {
			return nil, 0, true, vm.ErrOutOfGas
		}
		ret, ok := p.Run(input)
		if !ok {
			return nil, gas - cost, true, vm.ErrExecutionReverted
		}
		return ret, gas - cost, true, nil
	}
	if e.Native != nil && e.Native.IsNative(to) {
		reg := *e.Native
		if reg.Log == nil {
			reg.Log = func(topics []common.Hash, data []byte) { e.Log(to, topics, data) }
		}
		ret, ok, derr := reg.Dispatch(e.Height, caller, to, input)
		if ok {
			return ret, gas, true, derr
		}
	}
	return nil, gas, false, nil
}

// Call dispatches a CALL/CALLCODE/DELEGATECALL/STATICCALL. Precompile and
// native-contract addresses are answered directly; everything else runs
// through a nested Interpreter at depth+1. The whole call (value transfer
// plus any state the nested frame touches) is wrapped in a snapshot so a
// revert or a precompile/native failure undoes exactly what this call did,
// nothing more.
func (e *ExecutionContext) Call(kind vm.CallKind, caller, to common.Address, value *uint256.Int, input []byte, gas uint64, static bool) ([]byte, uint64, error) {
	if e.depth+1 > vm.MaxCallDepth {
		return nil, gas, vm.ErrCallDepthExceeded
	}
	snap := e.State.Snapshot()

	if ret, remaining, handled, err := e.callNativeOrPrecompile(caller, to, input, gas); handled {
		if err != nil {
			e.State.RevertToSnapshot(snap)
		}
		return ret, remaining, err
	}

	if kind == vm.CallKindCall && value != nil && !value.IsZero() {
		e.State.SubBalance(caller, value)
		e.State.AddBalance(to, value)
	}

	code := e.State.GetCode(to)
	if len(code) == 0 {
		return nil, gas, nil
	}

	sub := &ExecutionContext{
		State:       e.State,
		Precompiles: e.Precompiles,
		Native:      e.Native,
		Sched:       e.Sched,
		Env:         e.Env,
		Height:      e.Height,
		depth:       e.depth + 1,
	}
	execAddr, execCaller := to, caller
	if kind == vm.CallKindDelegateCall || kind == vm.CallKindCallCode {
		execAddr = caller
	}
	ret, gasLeft, reverted, err := vm.Call(sub, vm.CallInput{
		Code:    code,
		Input:   input,
		Address: execAddr,
		Caller:  execCaller,
		Value:   value,
		Gas:     gas,
		Static:  static || kind == vm.CallKindStaticCall,
	})
	if err != nil {
		e.State.RevertToSnapshot(snap)
		return nil, gasLeft, err
	}
	if reverted {
		e.State.RevertToSnapshot(snap)
		return ret, gasLeft, vm.ErrExecutionReverted
	}
	return ret, gasLeft, nil
}

// Create runs init code at a CREATE-derived address, charging the
// returned bytecode's storage cost via FinalizeCreate before persisting
// it.
func (e *ExecutionContext) Create(caller common.Address, value *uint256.Int, gas uint64, code []byte) (common.Address, []byte, uint64, error) {
	if e.depth+1 > vm.MaxCallDepth {
		return common.Address{}, nil, gas, vm.ErrCallDepthExceeded
	}
	nonce := e.State.GetNonce(caller)
	addr := vm.NewContractAddress(caller, nonce)
	e.State.SetNonce(caller, nonce+1)

	if e.State.GetCodeSize(addr) > 0 {
		return addr, nil, gas, vm.ErrExecutionReverted
	}
	snap := e.State.Snapshot()
	e.State.CreateAccount(addr)
	if value != nil && !value.IsZero() {
		e.State.SubBalance(caller, value)
		e.State.AddBalance(addr, value)
	}

	sub := &ExecutionContext{
		State:       e.State,
		Precompiles: e.Precompiles,
		Native:      e.Native,
		Sched:       e.Sched,
		Env:         e.Env,
		Height:      e.Height,
		depth:       e.depth + 1,
	}
	ret, gasLeft, reverted, err := vm.Call(sub, vm.CallInput{
		Code:     code,
		Address:  addr,
		Caller:   caller,
		Value:    value,
		Gas:      gas,
		IsCreate: true,
	})
	if err != nil {
		e.State.RevertToSnapshot(snap)
		return addr, nil, gasLeft, err
	}
	if reverted {
		e.State.RevertToSnapshot(snap)
		return addr, ret, gasLeft, vm.ErrExecutionReverted
	}
	charged, ok := vm.FinalizeCreate(e.Sched, gasLeft, ret)
	if !ok {
		e.State.RevertToSnapshot(snap)
		return addr, nil, 0, vm.ErrCodeTooLarge
	}
	e.State.SetCode(addr, ret)
	return addr, nil, gasLeft - charged, nil
}
