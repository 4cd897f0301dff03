package vm

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/holiman/uint256"
)

// CallKind distinguishes the message-call variants the interpreter can
// issue through Ext.Call.
type CallKind uint8

const (
	CallKindCall CallKind = iota
	CallKindCallCode
	CallKindDelegateCall
	CallKindStaticCall
)

// Ext is the narrow seam the interpreter uses to reach outside itself:
// storage, balances, sub-calls, contract creation, logs, and environment
// info. It is a closed interface, not a trait object hierarchy — exactly
// one production implementation (core.ExecutionContext) and one test
// double exist.
type Ext interface {
	StorageAt(addr common.Address, key common.Hash) common.Hash
	SetStorage(addr common.Address, key, value common.Hash)
	Exists(addr common.Address) bool
	Balance(addr common.Address) *uint256.Int
	Blockhash(n uint64) common.Hash // only valid for the last 256 blocks; zero elsewhere

	Create(caller common.Address, value *uint256.Int, gas uint64, code []byte) (common.Address, []byte, uint64, error)
	Call(kind CallKind, caller, to common.Address, value *uint256.Int, input []byte, gas uint64, static bool) ([]byte, uint64, error)

	ExtCode(addr common.Address) []byte
	ExtCodeSize(addr common.Address) int

	Log(addr common.Address, topics []common.Hash, data []byte)
	Suicide(addr, beneficiary common.Address)

	Schedule() Schedule
	EnvInfo() EnvInfo
	Depth() int
}

// EnvInfo is the block-level environment every CALL/STATICCALL-reachable
// opcode (COINBASE, TIMESTAMP, NUMBER, ...) reads.
type EnvInfo struct {
	Coinbase   common.Address
	Origin     common.Address
	Timestamp  uint64
	Number     uint64
	QuotaLimit uint64
	ChainID    uint64
}

// ErrMutableCallInStaticContext is returned by any mutating Ext operation
// attempted while Depth's enclosing call is static.
type staticContextError struct{}

func (staticContextError) Error() string { return "mutable call in static context" }

var ErrMutableCallInStaticContext error = staticContextError{}

// MaxCallDepth bounds message-call recursion.
const MaxCallDepth = 1024
