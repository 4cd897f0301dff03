package types

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/rlp"
)

// Reserved addresses: identifiers that trigger a system action
// instead of a normal call/transfer. These are process-wide read-only
// constants,
// not lazily-initialized statics.
var (
	StoreAddress     = common.BytesToAddress(mustHex("ffffffffffffffffffffffffffffffffffffffff"))
	AbiStoreAddress  = common.BytesToAddress(mustHex("fffffffffffffffffffffffffffffffffffffffe"))
	AmendDataAddress = common.BytesToAddress(mustHex("fffffffffffffffffffffffffffffffffffffffd"))
	GoCreateAddress  = common.BytesToAddress(mustHex("fffffffffffffffffffffffffffffffffffffffc"))
)

func mustHex(s string) []byte {
	b := common.HexToHash("0x" + s) // reuses HexToHash's hex decoding+panic-on-error
	return b[common.HashLength-common.AddressLength:]
}

// ActionKind tags the closed set of transaction actions.
type ActionKind uint8

const (
	ActionCreate ActionKind = iota
	ActionCall
	ActionStore
	ActionAbiStore
	ActionGoCreate
	ActionAmendData
)

// Action is what a transaction does: create a contract, call an address
// (possibly a builtin/native precompile), or perform one of the
// data-only/system actions addressed by a reserved address.
type Action struct {
	Kind ActionKind
	To   common.Address // meaningful only for ActionCall
}

// reservedActions matches a 20-byte payload against the four reserved
// addresses in sequence, as original_source's Action decoder does.
var reservedActions = []struct {
	addr common.Address
	kind ActionKind
}{
	{StoreAddress, ActionStore},
	{AbiStoreAddress, ActionAbiStore},
	{GoCreateAddress, ActionGoCreate},
	{AmendDataAddress, ActionAmendData},
}

// DecodeAction resolves Open Question #1 as: an empty payload
// is the unique Create marker; any other payload must be exactly 20 bytes
// or decoding fails with a structural codec error — it is never silently
// truncated or padded.
func DecodeAction(payload []byte) (Action, error) {
	if len(payload) == 0 {
		return Action{Kind: ActionCreate}, nil
	}
	if len(payload) != common.AddressLength {
		return Action{}, &rlp.DecodeError{Kind: rlp.KindBadWidth, Msg: "action payload must be 0 or 20 bytes"}
	}
	addr := common.BytesToAddress(payload)
	for _, r := range reservedActions {
		if r.addr == addr {
			return Action{Kind: r.kind, To: addr}, nil
		}
	}
	return Action{Kind: ActionCall, To: addr}, nil
}

// EncodeAction is the inverse of DecodeAction.
func EncodeAction(a Action) []byte {
	switch a.Kind {
	case ActionCreate:
		return nil
	case ActionCall:
		return a.To.Bytes()
	case ActionStore:
		return StoreAddress.Bytes()
	case ActionAbiStore:
		return AbiStoreAddress.Bytes()
	case ActionGoCreate:
		return GoCreateAddress.Bytes()
	case ActionAmendData:
		return AmendDataAddress.Bytes()
	default:
		panic("types: unknown action kind")
	}
}

// IsSystemAction reports whether the action is a reserved-address action
// (neither a transfer/call nor a contract-creation EVM execution).
func (a Action) IsSystemAction() bool {
	switch a.Kind {
	case ActionStore, ActionAbiStore, ActionGoCreate, ActionAmendData:
		return true
	default:
		return false
	}
}
