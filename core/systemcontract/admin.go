package systemcontract

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/storage"
	"github.com/citahub/cita-sub003/citalib/syscontract"
)

// AdminAddress is the reserved address the Admin native contract answers
// calls at.
var AdminAddress = common.BytesToAddress([]byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x0c,
})

var adminPosition = common.Keccak256([]byte("systemcontract.Admin"))

var (
	selGetAdmin    = selector("getAdmin()")
	selIsAdmin     = selector("isAdmin(address)")
	selUpdateAdmin = selector("update(address)")
)

// AdminUpdatedTopic is the event signature hash logged on every successful
// update(address) call.
var AdminUpdatedTopic = common.Keccak256([]byte("AdminUpdated(address,address,address)"))

// LogSink receives the (topics, data) pairs Admin.Dispatch emits;
// core.ExecutionContext wires it to IntraBlockState.AddLog.
type LogSink func(topics []common.Hash, data []byte)

// Admin is the height-indexed single-admin governance contract: one
// address is "the admin" at any height, changeable only by the current
// admin, with every change preserved so a query against a past height
// returns what was true then.
type Admin struct {
	store *syscontract.VersionedStore
}

// NewAdmin binds Admin to the chain's persistent storage and loads its
// write history so historical reads work immediately after construction.
func NewAdmin(acc storage.Accessor, genesisAdmin common.Address) *Admin {
	store := syscontract.NewVersionedStore(acc, adminPosition)
	store.Load()
	if _, ok := store.ReadRaw(0); !ok {
		store.Write(0, genesisAdmin)
	}
	return &Admin{store: store}
}

// GetAdmin returns the admin in effect at height h (the largest
// write height ≤ h).
func (a *Admin) GetAdmin(h uint64) common.Address {
	var addr common.Address
	a.store.Read(h, &addr)
	return addr
}

func (a *Admin) IsAdmin(h uint64, addr common.Address) bool {
	return a.GetAdmin(h) == addr
}

// Update installs newAdmin as the admin effective at height h, provided
// caller is the admin in effect at h. It returns the previous admin so
// the caller can emit AdminUpdated(new, old, sender) with the true old
// value — the old admin must be captured before the write, since the
// write is what makes it "old".
func (a *Admin) Update(h uint64, caller, newAdmin common.Address) (oldAdmin common.Address, err error) {
	oldAdmin = a.GetAdmin(h)
	if caller != oldAdmin {
		return oldAdmin, &notAuthorizedError{caller: caller}
	}
	if err := a.store.Write(h, newAdmin); err != nil {
		return oldAdmin, err
	}
	return oldAdmin, nil
}

// Dispatch routes a raw ABI-style call at height h from caller through
// Admin's selector table, returning the ABI-encoded result and emitting
// AdminUpdated via log on a successful update.
func (a *Admin) Dispatch(h uint64, caller common.Address, input []byte, log LogSink) ([]byte, error) {
	sel, args, ok := splitSelector(input)
	if !ok {
		return nil, &unknownSelectorError{}
	}
	switch sel {
	case selGetAdmin:
		return addressWord(a.GetAdmin(h)), nil
	case selIsAdmin:
		addr := readAddressArg(args, 0)
		out := make([]byte, 32)
		if a.IsAdmin(h, addr) {
			out[31] = 1
		}
		return out, nil
	case selUpdateAdmin:
		newAdmin := readAddressArg(args, 0)
		old, err := a.Update(h, caller, newAdmin)
		if err != nil {
			return nil, err
		}
		if log != nil {
			data := append(append([]byte{}, addressWord(newAdmin)...), addressWord(old)...)
			data = append(data, addressWord(caller)...)
			log([]common.Hash{AdminUpdatedTopic}, data)
		}
		return nil, nil
	default:
		return nil, &unknownSelectorError{sel: sel}
	}
}
