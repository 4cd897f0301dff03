package systemcontract

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/storage"
	"github.com/citahub/cita-sub003/citalib/syscontract"
)

// SysConfigAddress is the reserved address the SysConfig native contract
// answers calls at.
var SysConfigAddress = common.BytesToAddress([]byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x08,
})

var sysConfigPosition = common.Keccak256([]byte("systemcontract.SysConfig"))

// EconomicalModel selects whether a transaction's gas is actually charged
// (Charge) or merely metered against a per-account allowance (Quota).
type EconomicalModel uint8

const (
	EconomicalQuota EconomicalModel = iota
	EconomicalCharge
)

// TokenInfo is the chain's native-token descriptor, reported to clients via
// get_meta_data.
type TokenInfo struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Avatar string `json:"avatar"`
}

// SysConfigSnapshot is the full chain-parameters record stored at one
// height; every getter reads one field out of the snapshot in effect at
// the queried height.
type SysConfigSnapshot struct {
	DelayBlockNumber uint64          `json:"delayBlockNumber"`
	ChainOwner       common.Address  `json:"chainOwner"`
	ChainName        string          `json:"chainName"`
	ChainID          uint64          `json:"chainId"`
	Operator         string          `json:"operator"`
	Website          string          `json:"website"`
	BlockInterval    uint64          `json:"blockInterval"` // milliseconds
	EconomicalModel  EconomicalModel `json:"economicalModel"`
	Token            TokenInfo       `json:"token"`
	AutoExec         bool            `json:"autoExec"`
	FeeBackPlatform  bool            `json:"feeBackPlatform"`
	PermissionCheck  bool            `json:"permissionCheck"`
	QuotaCheck       bool            `json:"quotaCheck"`
}

// AdminChecker is the narrow seam SysConfig and QuotaManager use to gate
// mutations without importing the concrete Admin type.
type AdminChecker interface {
	IsAdmin(h uint64, addr common.Address) bool
}

// SysConfig is the height-indexed chain-parameters contract: "each getter
// returns the value at the given block tag or a typed default."
type SysConfig struct {
	store *syscontract.VersionedStore
	admin AdminChecker
}

// NewSysConfig binds SysConfig to persistent storage, seeding height 0 with
// genesis if nothing has been written yet.
func NewSysConfig(acc storage.Accessor, admin AdminChecker, genesis SysConfigSnapshot) *SysConfig {
	store := syscontract.NewVersionedStore(acc, sysConfigPosition)
	store.Load()
	sc := &SysConfig{store: store, admin: admin}
	if _, ok := store.ReadRaw(0); !ok {
		store.Write(0, genesis)
	}
	return sc
}

func (c *SysConfig) snapshot(h uint64) SysConfigSnapshot {
	var s SysConfigSnapshot
	c.store.Read(h, &s) // zero value (typed default) on no prior record
	return s
}

func (c *SysConfig) GetDelayBlockNumber(h uint64) uint64        { return c.snapshot(h).DelayBlockNumber }
func (c *SysConfig) GetChainOwner(h uint64) common.Address      { return c.snapshot(h).ChainOwner }
func (c *SysConfig) GetChainName(h uint64) string               { return c.snapshot(h).ChainName }
func (c *SysConfig) GetChainID(h uint64) uint64                 { return c.snapshot(h).ChainID }
func (c *SysConfig) GetOperator(h uint64) string                { return c.snapshot(h).Operator }
func (c *SysConfig) GetWebsite(h uint64) string                 { return c.snapshot(h).Website }
func (c *SysConfig) GetBlockInterval(h uint64) uint64           { return c.snapshot(h).BlockInterval }
func (c *SysConfig) GetEconomicalModel(h uint64) EconomicalModel { return c.snapshot(h).EconomicalModel }
func (c *SysConfig) GetTokenInfo(h uint64) TokenInfo            { return c.snapshot(h).Token }
func (c *SysConfig) GetAutoExec(h uint64) bool                  { return c.snapshot(h).AutoExec }
func (c *SysConfig) GetFeeBackPlatform(h uint64) bool           { return c.snapshot(h).FeeBackPlatform }
func (c *SysConfig) GetPermissionCheck(h uint64) bool           { return c.snapshot(h).PermissionCheck }
func (c *SysConfig) GetQuotaCheck(h uint64) bool                { return c.snapshot(h).QuotaCheck }

// set writes a new snapshot at h derived from the one currently in effect,
// after checking the caller is admin. mutate applies the one changed
// field.
func (c *SysConfig) set(h uint64, caller common.Address, mutate func(*SysConfigSnapshot)) error {
	if c.admin != nil && !c.admin.IsAdmin(h, caller) {
		return &notAuthorizedError{caller: caller}
	}
	s := c.snapshot(h)
	mutate(&s)
	return c.store.Write(h, s)
}

func (c *SysConfig) SetOperator(h uint64, caller common.Address, operator string) error {
	return c.set(h, caller, func(s *SysConfigSnapshot) { s.Operator = operator })
}

func (c *SysConfig) SetWebsite(h uint64, caller common.Address, website string) error {
	return c.set(h, caller, func(s *SysConfigSnapshot) { s.Website = website })
}

func (c *SysConfig) SetChainName(h uint64, caller common.Address, name string) error {
	return c.set(h, caller, func(s *SysConfigSnapshot) { s.ChainName = name })
}

func (c *SysConfig) SetDelayBlockNumber(h uint64, caller common.Address, n uint64) error {
	return c.set(h, caller, func(s *SysConfigSnapshot) { s.DelayBlockNumber = n })
}

// Dispatch routes ABI-style calls; only the read surface and a handful of
// setters are wired through selectors (callers that need the full
// field set can use the typed Go API directly — RPC only needs getters).
func (c *SysConfig) Dispatch(h uint64, caller common.Address, input []byte) ([]byte, error) {
	sel, args, ok := splitSelector(input)
	if !ok {
		return nil, &unknownSelectorError{}
	}
	switch sel {
	case selGetDelayBlockNumber:
		return uint64Word(c.GetDelayBlockNumber(h)), nil
	case selGetChainOwner:
		return addressWord(c.GetChainOwner(h)), nil
	case selGetChainID:
		return uint64Word(c.GetChainID(h)), nil
	case selGetEconomicalModel:
		return uint64Word(uint64(c.GetEconomicalModel(h))), nil
	case selGetBlockInterval:
		return uint64Word(c.GetBlockInterval(h)), nil
	case selGetAutoExec:
		return boolWord(c.GetAutoExec(h)), nil
	case selGetPermissionCheck:
		return boolWord(c.GetPermissionCheck(h)), nil
	case selGetQuotaCheck:
		return boolWord(c.GetQuotaCheck(h)), nil
	case selSetOperator:
		return nil, c.SetOperator(h, caller, string(trimRightZero(args)))
	default:
		return nil, &unknownSelectorError{sel: sel}
	}
}

var (
	selGetDelayBlockNumber = selector("getDelayBlockNumber()")
	selGetChainOwner       = selector("getChainOwner()")
	selGetChainID          = selector("getChainId()")
	selGetEconomicalModel  = selector("getEconomicalModel()")
	selGetBlockInterval    = selector("getBlockInterval()")
	selGetAutoExec         = selector("getAutoExec()")
	selGetPermissionCheck  = selector("getPermissionCheck()")
	selGetQuotaCheck       = selector("getQuotaCheck()")
	selSetOperator         = selector("setOperator(string)")
)

func uint64Word(n uint64) []byte {
	out := make([]byte, 32)
	for i := 0; i < 8; i++ {
		out[31-i] = byte(n >> (8 * i))
	}
	return out
}

func boolWord(b bool) []byte {
	out := make([]byte, 32)
	if b {
		out[31] = 1
	}
	return out
}

func trimRightZero(b []byte) []byte {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return b[:i]
}
