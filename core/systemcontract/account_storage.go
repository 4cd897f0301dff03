package systemcontract

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/core/state"
)

// AccountStorage adapts one contract address's storage slots in an
// IntraBlockState to the citalib/storage.Accessor seam every native
// contract's position-indexed layout is built over — the same role the
// EVM's Ext.StorageAt/SetStorage pair plays for bytecode, but reached
// directly by the executor instead of through the interpreter.
type AccountStorage struct {
	State *state.IntraBlockState
	Addr  common.Address
}

func (a AccountStorage) GetStorage(position common.Hash) common.Hash {
	return a.State.GetState(a.Addr, position)
}

func (a AccountStorage) SetStorage(position common.Hash, value common.Hash) {
	a.State.SetState(a.Addr, position, value)
}
