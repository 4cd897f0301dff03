package systemcontract

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/storage"
	"github.com/citahub/cita-sub003/citalib/syscontract"
)

// QuotaManagerAddress is the reserved address the QuotaManager native
// contract answers calls at.
var QuotaManagerAddress = common.BytesToAddress([]byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x06,
})

var quotaManagerPosition = common.Keccak256([]byte("systemcontract.QuotaManager"))

// AutoExecQuota is the fixed quota budget the finalize-time auto-exec hook
// runs with, per spec.md's glossary entry.
const AutoExecQuota = 1 << 20

// Quota bounds every AQL/BQL setter validates against: "values validated
// against [2^22, 2^63]".
const (
	MinQuotaBound uint64 = 1 << 22
	MaxQuotaBound uint64 = 1 << 63
)

// quotaManagerSnapshot is QuotaManager's height-indexed persistent record.
type quotaManagerSnapshot struct {
	DefaultAQL uint64                    `json:"defaultAql"`
	BQL        uint64                    `json:"bql"`
	Accounts   map[common.Address]uint64 `json:"accounts"`
}

// QuotaManager tracks per-account quota, the default account quota limit,
// and the block quota limit, all height-indexed so a query against a past
// block sees what was true then.
type QuotaManager struct {
	store *syscontract.VersionedStore
	admin AdminChecker
}

func NewQuotaManager(acc storage.Accessor, admin AdminChecker, defaultAQL, bql uint64) *QuotaManager {
	store := syscontract.NewVersionedStore(acc, quotaManagerPosition)
	store.Load()
	qm := &QuotaManager{store: store, admin: admin}
	if _, ok := store.ReadRaw(0); !ok {
		store.Write(0, quotaManagerSnapshot{DefaultAQL: defaultAQL, BQL: bql, Accounts: map[common.Address]uint64{}})
	}
	return qm
}

func (q *QuotaManager) snapshot(h uint64) quotaManagerSnapshot {
	var s quotaManagerSnapshot
	q.store.Read(h, &s)
	if s.Accounts == nil {
		s.Accounts = map[common.Address]uint64{}
	}
	return s
}

// GetAccountQuota returns the account's own quota limit, or the default
// AQL in effect at h if the account has never been given its own.
func (q *QuotaManager) GetAccountQuota(h uint64, addr common.Address) uint64 {
	s := q.snapshot(h)
	if v, ok := s.Accounts[addr]; ok {
		return v
	}
	return s.DefaultAQL
}

func (q *QuotaManager) GetDefaultAQL(h uint64) uint64 { return q.snapshot(h).DefaultAQL }
func (q *QuotaManager) GetBQL(h uint64) uint64         { return q.snapshot(h).BQL }

// invalidQuotaBoundsError reports a setter value outside [MinQuotaBound,
// MaxQuotaBound], or a BQL set below the current default AQL.
type invalidQuotaBoundsError struct{ value uint64 }

func (e *invalidQuotaBoundsError) Error() string { return "quota value out of bounds" }

func inBounds(v uint64) bool { return v >= MinQuotaBound && v <= MaxQuotaBound }

func (q *QuotaManager) checkAdmin(h uint64, caller common.Address) error {
	if q.admin != nil && !q.admin.IsAdmin(h, caller) {
		return &notAuthorizedError{caller: caller}
	}
	return nil
}

// SetDefaultAQL installs a new default account quota limit, checked
// against bounds and against the current BQL ("BQL must be ≥ default
// AQL").
func (q *QuotaManager) SetDefaultAQL(h uint64, caller common.Address, v uint64) error {
	if err := q.checkAdmin(h, caller); err != nil {
		return err
	}
	if !inBounds(v) {
		return &invalidQuotaBoundsError{value: v}
	}
	s := q.snapshot(h)
	if s.BQL < v {
		return &invalidQuotaBoundsError{value: v}
	}
	s.DefaultAQL = v
	return q.store.Write(h, s)
}

// SetBQL installs a new block quota limit; it must be ≥ the current
// default AQL (checkBlockLimit).
func (q *QuotaManager) SetBQL(h uint64, caller common.Address, v uint64) error {
	if err := q.checkAdmin(h, caller); err != nil {
		return err
	}
	if !inBounds(v) {
		return &invalidQuotaBoundsError{value: v}
	}
	s := q.snapshot(h)
	if v < s.DefaultAQL {
		return &invalidQuotaBoundsError{value: v}
	}
	s.BQL = v
	return q.store.Write(h, s)
}

// SetAccountQuota installs addr's own quota limit, overriding the default.
func (q *QuotaManager) SetAccountQuota(h uint64, caller, addr common.Address, v uint64) error {
	if err := q.checkAdmin(h, caller); err != nil {
		return err
	}
	if !inBounds(v) {
		return &invalidQuotaBoundsError{value: v}
	}
	s := q.snapshot(h)
	s.Accounts[addr] = v
	return q.store.Write(h, s)
}

func (q *QuotaManager) Dispatch(h uint64, caller common.Address, input []byte) ([]byte, error) {
	sel, args, ok := splitSelector(input)
	if !ok {
		return nil, &unknownSelectorError{}
	}
	switch sel {
	case selGetDefaultAQL:
		return uint64Word(q.GetDefaultAQL(h)), nil
	case selGetBQL:
		return uint64Word(q.GetBQL(h)), nil
	case selGetAccountQuota:
		return uint64Word(q.GetAccountQuota(h, readAddressArg(args, 0))), nil
	case selSetDefaultAQL:
		return nil, q.SetDefaultAQL(h, caller, readUint64Arg(args, 0))
	case selSetBQL:
		return nil, q.SetBQL(h, caller, readUint64Arg(args, 0))
	case selSetAccountQuota:
		return nil, q.SetAccountQuota(h, caller, readAddressArg(args, 0), readUint64Arg(args, 1))
	default:
		return nil, &unknownSelectorError{sel: sel}
	}
}

var (
	selGetDefaultAQL   = selector("getDefaultAQL()")
	selGetBQL          = selector("getBQL()")
	selGetAccountQuota = selector("getAccountQuota(address)")
	selSetDefaultAQL   = selector("setDefaultAQL(uint256)")
	selSetBQL          = selector("setBQL(uint256)")
	selSetAccountQuota = selector("setAccountQuota(address,uint256)")
)

func readUint64Arg(args []byte, i int) uint64 {
	off := i * 32
	if off+32 > len(args) {
		return 0
	}
	var n uint64
	for _, b := range args[off+24 : off+32] {
		n = n<<8 | uint64(b)
	}
	return n
}
