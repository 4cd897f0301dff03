package vm

import (
	"github.com/pkg/errors"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

var (
	ErrOutOfGas         = errors.New("out of gas")
	ErrInvalidJump      = errors.New("invalid jump destination")
	ErrExecutionReverted = errors.New("execution reverted")
	ErrCallDepthExceeded = errors.New("call depth exceeded")
	ErrCodeTooLarge      = errors.New("contract code too large")
	ErrBadInstruction    = errors.New("invalid opcode")
)

// CallInput bundles everything a single interpreter invocation needs;
// Interpreter.Run is the sole entry point used both for top-level
// transaction execution and for every nested CALL/CREATE dispatched
// through Ext.
type CallInput struct {
	Code     []byte
	Input    []byte
	Address  common.Address
	Caller   common.Address
	Value    *uint256.Int
	Gas      uint64
	Static   bool
	IsCreate bool
}

// Interpreter runs one frame of EVM bytecode against an Ext seam. A new
// Interpreter is constructed per call frame; Ext.Depth tracks recursion
// across frames.
type Interpreter struct {
	ext      Ext
	schedule Schedule
}

func NewInterpreter(ext Ext) *Interpreter {
	return &Interpreter{ext: ext, schedule: ext.Schedule()}
}

// jumpDests precomputes valid JUMPDEST offsets, skipping over PUSH
// immediate-data bytes so a PUSH operand can never be mistaken for a jump
// target.
func jumpDests(code []byte) map[uint64]bool {
	dests := make(map[uint64]bool)
	for pc := 0; pc < len(code); {
		op := OpCode(code[pc])
		if op == JUMPDEST {
			dests[uint64(pc)] = true
		}
		if isPush(op) {
			pc += pushSize(op)
		}
		pc++
	}
	return dests
}

// Run executes code starting at pc 0 until STOP, RETURN, REVERT, a
// terminal error, or falling off the end of code (implicit STOP).
func (in *Interpreter) Run(call CallInput) (ret []byte, gasLeft uint64, reverted bool, err error) {
	if in.ext.Depth() > MaxCallDepth {
		return nil, call.Gas, false, ErrCallDepthExceeded
	}

	stack := NewStack()
	mem := NewMemory()
	dests := jumpDests(call.Code)
	gas := call.Gas
	pc := uint64(0)
	var lastReturnData []byte

	useGas := func(amount uint64) bool {
		if gas < amount {
			gas = 0
			return false
		}
		gas -= amount
		return true
	}
	requireStack := func(n int) bool { return stack.Len() >= n }
	writeGuard := func() error {
		if call.Static {
			return ErrMutableCallInStaticContext
		}
		return nil
	}
	expandMemory := func(offset, size uint64) bool {
		if size == 0 {
			return true
		}
		need := offset + size
		cur := WordCount(uint64(mem.Len()))
		want := WordCount(need)
		if !useGas(in.schedule.MemoryExpansionCost(cur, want)) {
			return false
		}
		mem.Resize(need)
		return true
	}

	for {
		if pc >= uint64(len(call.Code)) {
			return nil, gas, false, nil
		}
		op := OpCode(call.Code[pc])
		if !useGas(in.schedule.Zero) {
			return nil, 0, false, ErrOutOfGas
		}

		switch {
		case op == STOP:
			return nil, gas, false, nil

		case op == ADD, op == SUB, op == MUL, op == DIV, op == SDIV, op == MOD, op == SMOD,
			op == AND, op == OR, op == XOR, op == BYTE, op == SHL, op == SHR, op == SAR,
			op == LT, op == GT, op == SLT, op == SGT, op == EQ:
			if !requireStack(2) || !useGas(binOpCost(in.schedule, op)) {
				return nil, 0, false, stackOrGasErr(stack, 2)
			}
			top, _ := stack.Pop()
			second, _ := stack.Pop()
			r := applyBinOp(op, &top, &second)
			stack.Push(r)

		case op == ADDMOD, op == MULMOD:
			if !requireStack(3) || !useGas(in.schedule.Mid) {
				return nil, 0, false, stackOrGasErr(stack, 3)
			}
			c, _ := stack.Pop()
			b, _ := stack.Pop()
			a, _ := stack.Pop()
			r := new(uint256.Int)
			if op == ADDMOD {
				r.AddMod(&a, &b, &c)
			} else {
				r.MulMod(&a, &b, &c)
			}
			stack.Push(r)

		case op == EXP:
			if !requireStack(2) {
				return nil, 0, false, stackOrGasErr(stack, 2)
			}
			base, _ := stack.Pop()
			exponent, _ := stack.Pop()
			byteLen := (exponent.BitLen() + 7) / 8
			if !useGas(in.schedule.Exp + in.schedule.ExpByte*uint64(byteLen)) {
				return nil, 0, false, ErrOutOfGas
			}
			r := new(uint256.Int).Exp(&base, &exponent)
			stack.Push(r)

		case op == SIGNEXTEND:
			if !requireStack(2) || !useGas(in.schedule.Low) {
				return nil, 0, false, stackOrGasErr(stack, 2)
			}
			b, _ := stack.Pop()
			x, _ := stack.Pop()
			r := new(uint256.Int).ExtendSign(&x, &b)
			stack.Push(r)

		case op == ISZERO, op == NOT:
			if !requireStack(1) || !useGas(in.schedule.VeryLow) {
				return nil, 0, false, stackOrGasErr(stack, 1)
			}
			a, _ := stack.Pop()
			r := new(uint256.Int)
			if op == ISZERO {
				if a.IsZero() {
					r.SetOne()
				}
			} else {
				r.Not(&a)
			}
			stack.Push(r)

		case op == SHA3:
			if !requireStack(2) {
				return nil, 0, false, stackOrGasErr(stack, 2)
			}
			offsetW, _ := stack.Pop()
			sizeW, _ := stack.Pop()
			offset, size := offsetW.Uint64(), sizeW.Uint64()
			if !expandMemory(offset, size) {
				return nil, 0, false, ErrOutOfGas
			}
			if !useGas(in.schedule.Sha3 + in.schedule.Sha3Word*WordCount(size)) {
				return nil, 0, false, ErrOutOfGas
			}
			h := sha3.NewLegacyKeccak256()
			h.Write(mem.Get(offset, size))
			var out [32]byte
			h.Sum(out[:0])
			stack.Push(new(uint256.Int).SetBytes(out[:]))

		case op == ADDRESS:
			useGas(0)
			if err := stack.Push(addrToWord(call.Address)); err != nil {
				return nil, 0, false, err
			}
		case op == CALLER:
			if err := stack.Push(addrToWord(call.Caller)); err != nil {
				return nil, 0, false, err
			}
		case op == CALLVALUE:
			if err := stack.Push(new(uint256.Int).Set(call.Value)); err != nil {
				return nil, 0, false, err
			}
		case op == ORIGIN:
			if err := stack.Push(addrToWord(in.ext.EnvInfo().Origin)); err != nil {
				return nil, 0, false, err
			}
		case op == CALLDATASIZE:
			if err := stack.Push(new(uint256.Int).SetUint64(uint64(len(call.Input)))); err != nil {
				return nil, 0, false, err
			}
		case op == CALLDATALOAD:
			if !requireStack(1) {
				return nil, 0, false, stackOrGasErr(stack, 1)
			}
			offW, _ := stack.Pop()
			stack.Push(loadPadded32(call.Input, offW.Uint64()))
		case op == CALLDATACOPY, op == CODECOPY, op == RETURNDATACOPY:
			if !requireStack(3) {
				return nil, 0, false, stackOrGasErr(stack, 3)
			}
			destW, _ := stack.Pop()
			srcW, _ := stack.Pop()
			sizeW, _ := stack.Pop()
			dest, src, size := destW.Uint64(), srcW.Uint64(), sizeW.Uint64()
			if !expandMemory(dest, size) {
				return nil, 0, false, ErrOutOfGas
			}
			if !useGas(in.schedule.CopyWord * WordCount(size)) {
				return nil, 0, false, ErrOutOfGas
			}
			var source []byte
			switch op {
			case CALLDATACOPY:
				source = call.Input
			case CODECOPY:
				source = call.Code
			case RETURNDATACOPY:
				source = lastReturnData
			}
			mem.Set(dest, rightPadSlice(source, src, size))
		case op == CODESIZE:
			if err := stack.Push(new(uint256.Int).SetUint64(uint64(len(call.Code)))); err != nil {
				return nil, 0, false, err
			}
		case op == RETURNDATASIZE:
			if err := stack.Push(new(uint256.Int).SetUint64(uint64(len(lastReturnData)))); err != nil {
				return nil, 0, false, err
			}
		case op == GASPRICE:
			if err := stack.Push(new(uint256.Int)); err != nil {
				return nil, 0, false, err
			}
		case op == BALANCE:
			if !requireStack(1) || !useGas(in.schedule.Balance) {
				return nil, 0, false, stackOrGasErr(stack, 1)
			}
			a, _ := stack.Pop()
			stack.Push(in.ext.Balance(wordToAddr(&a)))
		case op == EXTCODESIZE:
			if !requireStack(1) || !useGas(in.schedule.ExtCode) {
				return nil, 0, false, stackOrGasErr(stack, 1)
			}
			a, _ := stack.Pop()
			stack.Push(new(uint256.Int).SetUint64(uint64(in.ext.ExtCodeSize(wordToAddr(&a)))))
		case op == EXTCODEHASH:
			if !requireStack(1) || !useGas(in.schedule.ExtCode) {
				return nil, 0, false, stackOrGasErr(stack, 1)
			}
			a, _ := stack.Pop()
			code := in.ext.ExtCode(wordToAddr(&a))
			if len(code) == 0 {
				stack.Push(new(uint256.Int))
			} else {
				h := common.CryptHash(code)
				stack.Push(new(uint256.Int).SetBytes(h[:]))
			}
		case op == EXTCODECOPY:
			if !requireStack(4) {
				return nil, 0, false, stackOrGasErr(stack, 4)
			}
			addrW, _ := stack.Pop()
			destW, _ := stack.Pop()
			srcW, _ := stack.Pop()
			sizeW, _ := stack.Pop()
			dest, src, size := destW.Uint64(), srcW.Uint64(), sizeW.Uint64()
			if !expandMemory(dest, size) {
				return nil, 0, false, ErrOutOfGas
			}
			if !useGas(in.schedule.ExtCode + in.schedule.CopyWord*WordCount(size)) {
				return nil, 0, false, ErrOutOfGas
			}
			code := in.ext.ExtCode(wordToAddr(&addrW))
			mem.Set(dest, rightPadSlice(code, src, size))

		case op == BLOCKHASH:
			if !requireStack(1) || !useGas(in.schedule.ExtCode) {
				return nil, 0, false, stackOrGasErr(stack, 1)
			}
			n, _ := stack.Pop()
			h := in.ext.Blockhash(n.Uint64())
			stack.Push(new(uint256.Int).SetBytes(h[:]))
		case op == COINBASE:
			if err := stack.Push(addrToWord(in.ext.EnvInfo().Coinbase)); err != nil {
				return nil, 0, false, err
			}
		case op == TIMESTAMP:
			if err := stack.Push(new(uint256.Int).SetUint64(in.ext.EnvInfo().Timestamp)); err != nil {
				return nil, 0, false, err
			}
		case op == NUMBER:
			if err := stack.Push(new(uint256.Int).SetUint64(in.ext.EnvInfo().Number)); err != nil {
				return nil, 0, false, err
			}
		case op == DIFFICULTY:
			if err := stack.Push(new(uint256.Int)); err != nil {
				return nil, 0, false, err
			}
		case op == GASLIMIT:
			if err := stack.Push(new(uint256.Int).SetUint64(in.ext.EnvInfo().QuotaLimit)); err != nil {
				return nil, 0, false, err
			}
		case op == CHAINID:
			if err := stack.Push(new(uint256.Int).SetUint64(in.ext.EnvInfo().ChainID)); err != nil {
				return nil, 0, false, err
			}

		case op == POP:
			if !requireStack(1) {
				return nil, 0, false, stackOrGasErr(stack, 1)
			}
			stack.Pop()
		case op == MLOAD:
			if !requireStack(1) {
				return nil, 0, false, stackOrGasErr(stack, 1)
			}
			offW, _ := stack.Pop()
			offset := offW.Uint64()
			if !expandMemory(offset, 32) {
				return nil, 0, false, ErrOutOfGas
			}
			stack.Push(new(uint256.Int).SetBytes(mem.Get(offset, 32)))
		case op == MSTORE:
			if !requireStack(2) {
				return nil, 0, false, stackOrGasErr(stack, 2)
			}
			offW, _ := stack.Pop()
			v, _ := stack.Pop()
			offset := offW.Uint64()
			if !expandMemory(offset, 32) {
				return nil, 0, false, ErrOutOfGas
			}
			mem.Set32(offset, v.Bytes32())
		case op == MSTORE8:
			if !requireStack(2) {
				return nil, 0, false, stackOrGasErr(stack, 2)
			}
			offW, _ := stack.Pop()
			v, _ := stack.Pop()
			offset := offW.Uint64()
			if !expandMemory(offset, 1) {
				return nil, 0, false, ErrOutOfGas
			}
			mem.Set(offset, []byte{byte(v.Uint64())})
		case op == MSIZE:
			if err := stack.Push(new(uint256.Int).SetUint64(uint64(mem.Len()))); err != nil {
				return nil, 0, false, err
			}
		case op == SLOAD:
			if !requireStack(1) || !useGas(in.schedule.SLoad) {
				return nil, 0, false, stackOrGasErr(stack, 1)
			}
			k, _ := stack.Pop()
			key := common.Hash(k.Bytes32())
			v := in.ext.StorageAt(call.Address, key)
			stack.Push(new(uint256.Int).SetBytes(v[:]))
		case op == SSTORE:
			if err := writeGuard(); err != nil {
				return nil, 0, false, err
			}
			if !requireStack(2) {
				return nil, 0, false, stackOrGasErr(stack, 2)
			}
			k, _ := stack.Pop()
			v, _ := stack.Pop()
			key := common.Hash(k.Bytes32())
			old := in.ext.StorageAt(call.Address, key)
			cost := in.schedule.SReset
			if old == (common.Hash{}) && v.Sign() != 0 {
				cost = in.schedule.SSet
			}
			if !useGas(cost) {
				return nil, 0, false, ErrOutOfGas
			}
			in.ext.SetStorage(call.Address, key, common.Hash(v.Bytes32()))
		case op == JUMP:
			if !requireStack(1) {
				return nil, 0, false, stackOrGasErr(stack, 1)
			}
			dest, _ := stack.Pop()
			target := dest.Uint64()
			if !dests[target] {
				return nil, 0, false, ErrInvalidJump
			}
			pc = target
			continue
		case op == JUMPI:
			if !requireStack(2) {
				return nil, 0, false, stackOrGasErr(stack, 2)
			}
			cond, _ := stack.Pop()
			dest, _ := stack.Pop()
			if !cond.IsZero() {
				target := dest.Uint64()
				if !dests[target] {
					return nil, 0, false, ErrInvalidJump
				}
				pc = target
				continue
			}
		case op == PC:
			if err := stack.Push(new(uint256.Int).SetUint64(pc)); err != nil {
				return nil, 0, false, err
			}
		case op == GAS:
			if err := stack.Push(new(uint256.Int).SetUint64(gas)); err != nil {
				return nil, 0, false, err
			}
		case op == JUMPDEST:
			// no-op marker

		case isPush(op):
			n := pushSize(op)
			end := pc + 1 + uint64(n)
			var raw []byte
			if end > uint64(len(call.Code)) {
				raw = rightPadSlice(call.Code, pc+1, uint64(n))
			} else {
				raw = call.Code[pc+1 : end]
			}
			if err := stack.Push(new(uint256.Int).SetBytes(raw)); err != nil {
				return nil, 0, false, err
			}
			pc += uint64(n) + 1
			continue

		case isDup(op):
			if err := stack.Dup(dupN(op)); err != nil {
				return nil, 0, false, err
			}
		case isSwap(op):
			if err := stack.Swap(swapN(op)); err != nil {
				return nil, 0, false, err
			}

		case isLog(op):
			if err := writeGuard(); err != nil {
				return nil, 0, false, err
			}
			nTopics := logTopics(op)
			if !requireStack(2 + nTopics) {
				return nil, 0, false, stackOrGasErr(stack, 2+nTopics)
			}
			offW, _ := stack.Pop()
			sizeW, _ := stack.Pop()
			offset, size := offW.Uint64(), sizeW.Uint64()
			if !expandMemory(offset, size) {
				return nil, 0, false, ErrOutOfGas
			}
			if !useGas(in.schedule.Log + in.schedule.LogData*size + in.schedule.LogTopic*uint64(nTopics)) {
				return nil, 0, false, ErrOutOfGas
			}
			topics := make([]common.Hash, nTopics)
			for i := 0; i < nTopics; i++ {
				t, _ := stack.Pop()
				topics[i] = common.Hash(t.Bytes32())
			}
			in.ext.Log(call.Address, topics, mem.Get(offset, size))

		case op == RETURN, op == REVERT:
			if !requireStack(2) {
				return nil, 0, false, stackOrGasErr(stack, 2)
			}
			offW, _ := stack.Pop()
			sizeW, _ := stack.Pop()
			offset, size := offW.Uint64(), sizeW.Uint64()
			if !expandMemory(offset, size) {
				return nil, 0, false, ErrOutOfGas
			}
			out := mem.Get(offset, size)
			if op == REVERT {
				return out, gas, true, nil
			}
			return out, gas, false, nil

		case op == CREATE, op == CREATE2:
			if err := writeGuard(); err != nil {
				return nil, 0, false, err
			}
			nargs := 3
			if op == CREATE2 {
				nargs = 4
			}
			if !requireStack(nargs) || !useGas(in.schedule.Create) {
				return nil, 0, false, stackOrGasErr(stack, nargs)
			}
			valueW, _ := stack.Pop()
			offW, _ := stack.Pop()
			sizeW, _ := stack.Pop()
			if op == CREATE2 {
				stack.Pop() // salt: CREATE2 address derivation not modeled, treated as CREATE
			}
			offset, size := offW.Uint64(), sizeW.Uint64()
			if !expandMemory(offset, size) {
				return nil, 0, false, ErrOutOfGas
			}
			initCode := mem.Get(offset, size)
			addr, retData, leftover, cerr := in.ext.Create(call.Address, &valueW, gas, initCode)
			lastReturnData = retData
			gas = leftover
			if cerr != nil {
				stack.Push(new(uint256.Int))
			} else {
				stack.Push(addrToWord(addr))
			}

		case op == CALL, op == CALLCODE, op == DELEGATECALL, op == STATICCALL:
			nargs := 7
			if op == DELEGATECALL || op == STATICCALL {
				nargs = 6
			}
			if !requireStack(nargs) {
				return nil, 0, false, stackOrGasErr(stack, nargs)
			}
			callGasW, _ := stack.Pop()
			toW, _ := stack.Pop()
			var value uint256.Int
			if op == CALL || op == CALLCODE {
				v, _ := stack.Pop()
				value = v
			}
			inOffW, _ := stack.Pop()
			inSizeW, _ := stack.Pop()
			outOffW, _ := stack.Pop()
			outSizeW, _ := stack.Pop()
			if (op == CALL) && call.Static && value.Sign() != 0 {
				return nil, 0, false, ErrMutableCallInStaticContext
			}
			inOff, inSize := inOffW.Uint64(), inSizeW.Uint64()
			outOff, outSize := outOffW.Uint64(), outSizeW.Uint64()
			if !expandMemory(inOff, inSize) || !expandMemory(outOff, outSize) {
				return nil, 0, false, ErrOutOfGas
			}
			if !useGas(in.schedule.Call) {
				return nil, 0, false, ErrOutOfGas
			}
			callGas := callGasW.Uint64()
			if callGas > gas {
				callGas = gas
			}
			gas -= callGas
			input := mem.Get(inOff, inSize)
			kind := map[OpCode]CallKind{CALL: CallKindCall, CALLCODE: CallKindCallCode, DELEGATECALL: CallKindDelegateCall, STATICCALL: CallKindStaticCall}[op]
			static := call.Static || kind == CallKindStaticCall
			out, leftover, callErr := in.ext.Call(kind, call.Address, wordToAddr(&toW), &value, input, callGas, static)
			gas += leftover
			lastReturnData = out
			if callErr == nil || len(out) > 0 {
				// a failed call that returned nothing (such as a rejected
				// precompile input) leaves the output buffer as it was
				mem.Set(outOff, rightPadSlice(out, 0, outSize))
			}
			if callErr != nil {
				stack.Push(new(uint256.Int))
			} else {
				stack.Push(new(uint256.Int).SetOne())
			}

		case op == SELFDESTRUCT:
			if err := writeGuard(); err != nil {
				return nil, 0, false, err
			}
			if !requireStack(1) {
				return nil, 0, false, stackOrGasErr(stack, 1)
			}
			b, _ := stack.Pop()
			in.ext.Suicide(call.Address, wordToAddr(&b))
			return nil, gas, false, nil

		default:
			return nil, 0, false, ErrBadInstruction
		}
		pc++
	}
}

func stackOrGasErr(s *Stack, need int) error {
	if s.Len() < need {
		return ErrStackUnderflow
	}
	return ErrOutOfGas
}

func addrToWord(a common.Address) *uint256.Int {
	return new(uint256.Int).SetBytes(a[:])
}

func wordToAddr(w *uint256.Int) common.Address {
	b := w.Bytes32()
	return common.BytesToAddress(b[common.HashLength-common.AddressLength:])
}

func loadPadded32(data []byte, offset uint64) *uint256.Int {
	return new(uint256.Int).SetBytes(rightPadSlice(data, offset, 32))
}

// rightPadSlice copies size bytes of src starting at off, zero-filling
// past src's end — the semantics CALLDATACOPY/CODECOPY/PUSH-truncation all
// share.
func rightPadSlice(src []byte, off, size uint64) []byte {
	out := make([]byte, size)
	if off >= uint64(len(src)) {
		return out
	}
	end := off + size
	if end > uint64(len(src)) {
		end = uint64(len(src))
	}
	copy(out, src[off:end])
	return out
}

func binOpCost(s Schedule, op OpCode) uint64 {
	switch op {
	case MUL, DIV, SDIV, MOD, SMOD:
		return s.Low
	default:
		return s.VeryLow
	}
}

// applyBinOp implements every order-sensitive two-operand opcode with x as
// the value popped from the top of the stack and y as the value beneath
// it, matching the conventional EVM stack-operand order (e.g. SUB computes
// x-y, DIV computes x/y, SHL shifts y left by x).
func applyBinOp(op OpCode, x, y *uint256.Int) *uint256.Int {
	r := new(uint256.Int)
	switch op {
	case ADD:
		r.Add(x, y)
	case SUB:
		r.Sub(x, y)
	case MUL:
		r.Mul(x, y)
	case DIV:
		r.Div(x, y)
	case SDIV:
		r.SDiv(x, y)
	case MOD:
		r.Mod(x, y)
	case SMOD:
		r.SMod(x, y)
	case AND:
		r.And(x, y)
	case OR:
		r.Or(x, y)
	case XOR:
		r.Xor(x, y)
	case BYTE:
		r.Byte(x, y)
	case SHL:
		r.Lsh(y, uint(clampShift(x)))
	case SHR:
		r.Rsh(y, uint(clampShift(x)))
	case SAR:
		r.SRsh(y, uint(clampShift(x)))
	case LT:
		if x.Lt(y) {
			r.SetOne()
		}
	case GT:
		if x.Gt(y) {
			r.SetOne()
		}
	case SLT:
		if x.Slt(y) {
			r.SetOne()
		}
	case SGT:
		if x.Sgt(y) {
			r.SetOne()
		}
	case EQ:
		if x.Eq(y) {
			r.SetOne()
		}
	}
	return r
}

func clampShift(n *uint256.Int) uint64 {
	if n.BitLen() > 64 || n.Uint64() > 256 {
		return 256
	}
	return n.Uint64()
}
