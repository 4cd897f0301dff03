package core

import (
	"testing"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/trie"
	"github.com/citahub/cita-sub003/core/state"
	"github.com/citahub/cita-sub003/core/systemcontract"
	"github.com/citahub/cita-sub003/core/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"
)

type memCodeStore struct{ m map[common.Hash][]byte }

func newMemCodeStore() *memCodeStore { return &memCodeStore{m: make(map[common.Hash][]byte)} }
func (c *memCodeStore) GetCode(h common.Hash) ([]byte, bool) { v, ok := c.m[h]; return v, ok }
func (c *memCodeStore) PutCode(h common.Hash, code []byte)   { c.m[h] = code }

func newTestState() *state.IntraBlockState {
	nodes := trie.NewMapNodeStore()
	cache := state.NewAccountCache(64, 64)
	codeStore := newMemCodeStore()
	reader := state.NewTrieStateReader(nodes, codeStore, common.Hash{})
	return state.New(reader, cache, nodes, common.BigEndianHash(1), common.Hash{})
}

func TestCallTransfersValueToEmptyAccount(t *testing.T) {
	st := newTestState()
	caller := common.BytesToAddress([]byte{1})
	to := common.BytesToAddress([]byte{2})
	st.SetBalance(caller, uint256.NewInt(1000))

	ec := NewExecutionContext(st, nil, vm.DefaultSchedule, vm.EnvInfo{}, 1)
	ret, gasLeft, err := ec.Call(vm.CallKindCall, caller, to, uint256.NewInt(100), nil, 100000, false)
	require.NoError(t, err)
	require.Nil(t, ret)
	require.True(t, gasLeft > 0)
	require.True(t, st.GetBalance(caller).Eq(uint256.NewInt(900)))
	require.True(t, st.GetBalance(to).Eq(uint256.NewInt(100)))
}

func TestCallRevertRollsBackValueTransfer(t *testing.T) {
	st := newTestState()
	caller := common.BytesToAddress([]byte{1})
	to := common.BytesToAddress([]byte{2})
	st.SetBalance(caller, uint256.NewInt(1000))
	// PUSH1 0, PUSH1 0, REVERT
	code := []byte{byte(vm.PUSH1), 0, byte(vm.PUSH1), 0, byte(vm.REVERT)}
	st.SetCode(to, code)

	ec := NewExecutionContext(st, nil, vm.DefaultSchedule, vm.EnvInfo{}, 1)
	_, _, err := ec.Call(vm.CallKindCall, caller, to, uint256.NewInt(100), nil, 100000, false)
	require.ErrorIs(t, err, vm.ErrExecutionReverted)
	require.True(t, st.GetBalance(caller).Eq(uint256.NewInt(1000)))
	require.True(t, st.GetBalance(to).IsZero())
}

func TestCallDispatchesToNativeContract(t *testing.T) {
	st := newTestState()
	admin := systemcontract.NewAdmin(systemcontract.AccountStorage{State: st, Addr: systemcontract.AdminAddress}, common.BytesToAddress([]byte{0xAB}))
	native := &systemcontract.Registry{Admin: admin}
	ec := NewExecutionContext(st, native, vm.DefaultSchedule, vm.EnvInfo{}, 1)

	caller := common.BytesToAddress([]byte{1})
	out, _, err := ec.Call(vm.CallKindCall, caller, systemcontract.AdminAddress, nil, adminGetAdminSelector(), 100000, false)
	require.NoError(t, err)
	require.Equal(t, common.BytesToAddress([]byte{0xAB}), common.BytesToAddress(out[12:]))
}

func TestCallDispatchesToPrecompile(t *testing.T) {
	st := newTestState()
	ec := NewExecutionContext(st, nil, vm.DefaultSchedule, vm.EnvInfo{}, 1)
	identity := common.BytesToAddress([]byte{0x04})
	caller := common.BytesToAddress([]byte{1})
	out, _, err := ec.Call(vm.CallKindCall, caller, identity, nil, []byte("hello"), 100000, false)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), out)
}

func TestCreateInstallsCodeAtDerivedAddress(t *testing.T) {
	st := newTestState()
	caller := common.BytesToAddress([]byte{7})
	st.SetBalance(caller, uint256.NewInt(1000))
	// init code: PUSH1 1(len) PUSH1 0(offset for code) ... simplest: return 1 byte of runtime code (STOP)
	runtime := []byte{byte(vm.STOP)}
	// PUSH1 <runtime byte>, PUSH1 0, MSTORE8, PUSH1 1, PUSH1 0, RETURN
	init := []byte{
		byte(vm.PUSH1), runtime[0],
		byte(vm.PUSH1), 0,
		byte(vm.MSTORE8),
		byte(vm.PUSH1), 1,
		byte(vm.PUSH1), 0,
		byte(vm.RETURN),
	}

	ec := NewExecutionContext(st, nil, vm.DefaultSchedule, vm.EnvInfo{}, 1)
	addr, _, gasLeft, err := ec.Create(caller, uint256.NewInt(0), 200000, init)
	require.NoError(t, err)
	require.True(t, gasLeft > 0)
	require.Equal(t, runtime, st.GetCode(addr))
}

func TestCreateFailsOnDepthExceeded(t *testing.T) {
	st := newTestState()
	ec := &ExecutionContext{State: st, Sched: vm.DefaultSchedule, depth: vm.MaxCallDepth}
	_, _, _, err := ec.Create(common.Address{}, uint256.NewInt(0), 100000, nil)
	require.ErrorIs(t, err, vm.ErrCallDepthExceeded)
}

// adminGetAdminSelector duplicates the unexported selector("getAdmin()")
// computation from systemcontract, since the production selector table is
// package-private; this test only needs a stable 4-byte prefix the Admin
// contract's own dispatch table recognizes.
func adminGetAdminSelector() []byte {
	d := sha3.NewLegacyKeccak256()
	d.Write([]byte("getAdmin()"))
	return d.Sum(nil)[:4]
}
