package vm

// Schedule is the gas cost table the interpreter charges against; it is a
// plain struct rather than a trait object, so a genesis configuration can
// swap it out by value with no virtual dispatch in the hot loop. One
// Schedule is selected for the chain's lifetime.
type Schedule struct {
	Zero          uint64
	Base          uint64
	VeryLow       uint64
	Low           uint64
	Mid           uint64
	High          uint64
	ExtCode       uint64
	Balance       uint64
	SLoad         uint64
	JumpDest      uint64
	SSet          uint64 // SSTORE: zero -> non-zero
	SReset        uint64 // SSTORE: non-zero -> {zero, non-zero}
	SClearRefund  uint64 // refund: non-zero -> zero
	Create        uint64
	Call          uint64
	CallValue     uint64
	CallStipend   uint64
	NewAccount    uint64
	Exp           uint64
	ExpByte       uint64
	MemoryWord    uint64
	CopyWord      uint64
	Sha3          uint64
	Sha3Word      uint64
	Log           uint64
	LogData       uint64
	LogTopic      uint64
	CreateDataGas uint64 // per byte of returned init-code stored as code
	MaxCodeSize   uint64
}

// DefaultSchedule matches the conventional EVM gas schedule (go-ethereum's
// "Frontier+Tangerine Whistle+EIP-150" baseline), the schedule every CITA
// deployment starts from absent a genesis override.
var DefaultSchedule = Schedule{
	Zero: 0, Base: 2, VeryLow: 3, Low: 5, Mid: 8, High: 10,
	ExtCode: 700, Balance: 400, SLoad: 200, JumpDest: 1,
	SSet: 20000, SReset: 5000, SClearRefund: 15000,
	Create: 32000, Call: 700, CallValue: 9000, CallStipend: 2300,
	NewAccount: 25000, Exp: 10, ExpByte: 50,
	MemoryWord: 3, CopyWord: 3, Sha3: 30, Sha3Word: 6,
	Log: 375, LogData: 8, LogTopic: 375,
	CreateDataGas: 200, MaxCodeSize: 24576,
}

// MemoryExpansionCost implements the quadratic memory-growth charge:
// C(size) = MemoryWord*words + words^2/512, charged for the delta between
// the current and requested size.
func (s Schedule) MemoryExpansionCost(currentWords, newWords uint64) uint64 {
	cost := func(words uint64) uint64 { return s.MemoryWord*words + words*words/512 }
	if newWords <= currentWords {
		return 0
	}
	return cost(newWords) - cost(currentWords)
}
