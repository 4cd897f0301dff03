// Package chain holds the chain-wide configuration every execution
// component reads: chain identity, the economical model, genesis
// parameters, and the height-gated protocol versions, modeled directly on
// erigon-lib/chain.Config's *Block-activation pattern.
package chain

import "github.com/citahub/cita-sub003/citalib/common"

// EconomicalModel mirrors systemcontract.EconomicalModel without importing
// it, since core/systemcontract itself depends on citalib packages and a
// back-reference would cycle.
type EconomicalModel uint8

const (
	EconomicalQuota EconomicalModel = iota
	EconomicalCharge
)

// Config is the chain's immutable identity and the height gates that
// switch on successive protocol versions, the CITA analogue of IsLondon.
type Config struct {
	ChainName string
	ChainID   uint64

	EconomicalModel EconomicalModel

	GenesisTimestamp uint64
	GenesisAdmin     common.Address

	// V1Block, V2Block and V3Block are the heights at which versions 1, 2
	// and 3 of the protocol activate; nil (unset, zero value 0 means
	// "active from genesis" just like erigon's *Block fields would if this
	// were a pointer — this repo uses a boolean alongside the height since
	// 0 is a valid, meaningful activation height and also the zero value).
	V1Block       uint64
	V1Configured  bool
	V2Block       uint64
	V2Configured  bool
	V3Block       uint64
	V3Configured  bool
}

func isForked(configured bool, forkBlock, num uint64) bool {
	return configured && num >= forkBlock
}

// IsV1 reports whether height has reached the v1 protocol activation
// (numeric nonce comparison, versioned transaction encoding).
func (c *Config) IsV1(height uint64) bool { return isForked(c.V1Configured, c.V1Block, height) }

// IsV2 reports whether height has reached the v2 protocol activation (the
// finalize-time auto-exec hook becomes active).
func (c *Config) IsV2(height uint64) bool { return isForked(c.V2Configured, c.V2Block, height) }

// IsV3 reports whether height has reached the v3 protocol activation.
func (c *Config) IsV3(height uint64) bool { return isForked(c.V3Configured, c.V3Block, height) }
