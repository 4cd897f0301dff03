package vm

// FinalizeCreate applies the code-storage step CREATE/GoCreate finish with:
// the returned init-code output is charged CreateDataGas per byte and
// rejected outright once it exceeds MaxCodeSize. Callers (the concrete Ext
// implementation) invoke this after Interpreter.Run returns the init-code's
// output, before persisting it as the new contract's code.
func FinalizeCreate(schedule Schedule, gasLeft uint64, code []byte) (charged uint64, ok bool) {
	if uint64(len(code)) > schedule.MaxCodeSize {
		return 0, false
	}
	cost := schedule.CreateDataGas * uint64(len(code))
	if gasLeft < cost {
		return 0, false
	}
	return cost, true
}

// Call is the convenience entry point a transaction executor uses to run a
// top-level or nested message call through one Interpreter frame.
func Call(ext Ext, call CallInput) (ret []byte, gasLeft uint64, reverted bool, err error) {
	return NewInterpreter(ext).Run(call)
}
