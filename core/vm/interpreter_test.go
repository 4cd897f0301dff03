package vm

import (
	"testing"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

type testExt struct {
	storage map[common.Address]map[common.Hash]common.Hash
	balance map[common.Address]*uint256.Int
	code    map[common.Address][]byte
	logs    []struct {
		addr   common.Address
		topics []common.Hash
		data   []byte
	}
	depth     int
	schedule  Schedule
	env       EnvInfo
	destroyed []common.Address
}

func newTestExt() *testExt {
	return &testExt{
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
		balance:  make(map[common.Address]*uint256.Int),
		code:     make(map[common.Address][]byte),
		schedule: DefaultSchedule,
	}
}

func (e *testExt) StorageAt(addr common.Address, key common.Hash) common.Hash {
	if m, ok := e.storage[addr]; ok {
		return m[key]
	}
	return common.Hash{}
}

func (e *testExt) SetStorage(addr common.Address, key, value common.Hash) {
	if e.storage[addr] == nil {
		e.storage[addr] = make(map[common.Hash]common.Hash)
	}
	e.storage[addr][key] = value
}

func (e *testExt) Exists(addr common.Address) bool { _, ok := e.balance[addr]; return ok }

func (e *testExt) Balance(addr common.Address) *uint256.Int {
	if b, ok := e.balance[addr]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

func (e *testExt) Blockhash(n uint64) common.Hash { return common.Hash{} }

func (e *testExt) Create(caller common.Address, value *uint256.Int, gas uint64, code []byte) (common.Address, []byte, uint64, error) {
	return common.Address{}, nil, gas, nil
}

func (e *testExt) Call(kind CallKind, caller, to common.Address, value *uint256.Int, input []byte, gas uint64, static bool) ([]byte, uint64, error) {
	return nil, gas, nil
}

func (e *testExt) ExtCode(addr common.Address) []byte     { return e.code[addr] }
func (e *testExt) ExtCodeSize(addr common.Address) int    { return len(e.code[addr]) }
func (e *testExt) Log(addr common.Address, topics []common.Hash, data []byte) {
	e.logs = append(e.logs, struct {
		addr   common.Address
		topics []common.Hash
		data   []byte
	}{addr, topics, data})
}
func (e *testExt) Suicide(addr, beneficiary common.Address) { e.destroyed = append(e.destroyed, addr) }
func (e *testExt) Schedule() Schedule                       { return e.schedule }
func (e *testExt) EnvInfo() EnvInfo                         { return e.env }
func (e *testExt) Depth() int                               { return e.depth }

func push(n int64) []byte {
	if n >= 0 && n <= 0xff {
		return []byte{byte(PUSH1), byte(n)}
	}
	panic("test helper only supports small pushes")
}

func runCode(t *testing.T, ext Ext, code []byte) ([]byte, uint64, bool, error) {
	t.Helper()
	in := NewInterpreter(ext)
	return in.Run(CallInput{Code: code, Gas: 1_000_000})
}

func TestArithmeticAndReturn(t *testing.T) {
	ext := newTestExt()
	// PUSH1 3, PUSH1 10, SUB  -> 10-3 = 7, then MSTORE at 0 and RETURN 32 bytes.
	code := append(append(push(3), push(10)...), byte(SUB))
	code = append(code, push(0)...)
	code = append(code, byte(MSTORE))
	code = append(code, push(32)...)
	code = append(code, push(0)...)
	code = append(code, byte(RETURN))

	ret, _, reverted, err := runCode(t, ext, code)
	require.NoError(t, err)
	require.False(t, reverted)
	require.Equal(t, uint64(7), new(uint256.Int).SetBytes(ret).Uint64())
}

func TestDivByZeroIsZero(t *testing.T) {
	ext := newTestExt()
	code := append(append(push(0), push(5)...), byte(DIV))
	code = append(code, push(0)...)
	code = append(code, byte(MSTORE))
	code = append(code, push(32)...)
	code = append(code, push(0)...)
	code = append(code, byte(RETURN))

	ret, _, _, err := runCode(t, ext, code)
	require.NoError(t, err)
	require.True(t, new(uint256.Int).SetBytes(ret).IsZero())
}

func TestSSTORESLOADRoundTrip(t *testing.T) {
	ext := newTestExt()
	// SSTORE(key=1, value=42) then SLOAD(1) and RETURN it.
	code := append(append(push(42), push(1)...), byte(SSTORE))
	code = append(code, push(1)...)
	code = append(code, byte(SLOAD))
	code = append(code, push(0)...)
	code = append(code, byte(MSTORE))
	code = append(code, push(32)...)
	code = append(code, push(0)...)
	code = append(code, byte(RETURN))

	ret, _, _, err := runCode(t, ext, code)
	require.NoError(t, err)
	require.Equal(t, uint64(42), new(uint256.Int).SetBytes(ret).Uint64())
}

func TestSSTOREBlockedUnderStaticCall(t *testing.T) {
	ext := newTestExt()
	code := append(append(push(1), push(1)...), byte(SSTORE))
	in := NewInterpreter(ext)
	_, _, _, err := in.Run(CallInput{Code: code, Gas: 100000, Static: true})
	require.ErrorIs(t, err, ErrMutableCallInStaticContext)
}

func TestInvalidJumpDestination(t *testing.T) {
	ext := newTestExt()
	code := append(push(5), byte(JUMP))
	_, _, _, err := runCode(t, ext, code)
	require.ErrorIs(t, err, ErrInvalidJump)
}

func TestJumpToValidDest(t *testing.T) {
	ext := newTestExt()
	// PUSH1 4, JUMP, (skip STOP at pc3), JUMPDEST, PUSH1 9, PUSH1 0, MSTORE, PUSH1 32, PUSH1 0, RETURN
	code := []byte{byte(PUSH1), 4, byte(JUMP), byte(STOP), byte(JUMPDEST)}
	code = append(code, push(9)...)
	code = append(code, push(0)...)
	code = append(code, byte(MSTORE))
	code = append(code, push(32)...)
	code = append(code, push(0)...)
	code = append(code, byte(RETURN))

	ret, _, _, err := runCode(t, ext, code)
	require.NoError(t, err)
	require.Equal(t, uint64(9), new(uint256.Int).SetBytes(ret).Uint64())
}

func TestRevertReturnsData(t *testing.T) {
	ext := newTestExt()
	code := append(append(push(0xab), push(0)...), byte(MSTORE))
	code = append(code, push(32)...)
	code = append(code, push(0)...)
	code = append(code, byte(REVERT))

	ret, _, reverted, err := runCode(t, ext, code)
	require.NoError(t, err)
	require.True(t, reverted)
	require.Equal(t, uint64(0xab), new(uint256.Int).SetBytes(ret).Uint64())
}

func TestStackUnderflow(t *testing.T) {
	ext := newTestExt()
	_, _, _, err := runCode(t, ext, []byte{byte(ADD)})
	require.Error(t, err)
}

func TestCallDepthExceeded(t *testing.T) {
	ext := newTestExt()
	ext.depth = MaxCallDepth + 1
	_, _, _, err := runCode(t, ext, []byte{byte(STOP)})
	require.ErrorIs(t, err, ErrCallDepthExceeded)
}

func TestMemoryExpansionCostIsQuadratic(t *testing.T) {
	s := DefaultSchedule
	require.Equal(t, uint64(0), s.MemoryExpansionCost(4, 4))
	require.Greater(t, s.MemoryExpansionCost(0, 1000), s.MemoryExpansionCost(0, 10)*50)
}

func TestNewContractAddressDeterministic(t *testing.T) {
	sender := common.BytesToAddress([]byte{1, 2, 3})
	a1 := NewContractAddress(sender, 0)
	a2 := NewContractAddress(sender, 0)
	a3 := NewContractAddress(sender, 1)
	require.Equal(t, a1, a2)
	require.NotEqual(t, a1, a3)
}
