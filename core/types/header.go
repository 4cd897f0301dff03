package types

import (
	"sync/atomic"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/rlp"
)

// Header holds the full set of block header fields. Hash is
// memoized behind an atomic pointer and invalidated by every mutating
// setter, mirroring erigon's types.Header.Hash() cache.
type Header struct {
	ParentHash       common.Hash
	Timestamp        uint64
	Height           uint64
	TransactionsRoot common.Hash
	StateRoot        common.Hash
	ReceiptsRoot     common.Hash
	LogBloom         common.Bloom
	QuotaUsed        uint64
	QuotaLimit       uint64
	Proof            []byte
	Version          uint32
	Proposer         common.Address

	hash atomic.Pointer[common.Hash]
}

// OpenHeader is the subset fixed at proposal time: everything but
// state_root, receipts_root, log_bloom, quota_used.
type OpenHeader struct {
	ParentHash       common.Hash
	Timestamp        uint64
	Height           uint64
	TransactionsRoot common.Hash
	QuotaLimit       uint64
	Proof            []byte
	Version          uint32
	Proposer         common.Address
}

// Open extracts the open subset of a full header.
func (h *Header) Open() OpenHeader {
	return OpenHeader{
		ParentHash:       h.ParentHash,
		Timestamp:        h.Timestamp,
		Height:           h.Height,
		TransactionsRoot: h.TransactionsRoot,
		QuotaLimit:       h.QuotaLimit,
		Proof:            h.Proof,
		Version:          h.Version,
		Proposer:         h.Proposer,
	}
}

// Equivalent reports whether two open headers share the same
// transactions_root, timestamp, proposer, parent_hash, height and version
// — the FSM's "two equivalent proposals" test.
func (o OpenHeader) Equivalent(other OpenHeader) bool {
	return o.TransactionsRoot == other.TransactionsRoot &&
		o.Timestamp == other.Timestamp &&
		o.Proposer == other.Proposer &&
		o.ParentHash == other.ParentHash &&
		o.Height == other.Height &&
		o.Version == other.Version
}

// invalidateHash clears the memoized hash; every field mutation through the
// setters below calls this so a stale hash can never be observed.
func (h *Header) invalidateHash() { h.hash.Store(nil) }

func (h *Header) SetStateRoot(r common.Hash)    { h.StateRoot = r; h.invalidateHash() }
func (h *Header) SetReceiptsRoot(r common.Hash) { h.ReceiptsRoot = r; h.invalidateHash() }
func (h *Header) SetLogBloom(b common.Bloom)    { h.LogBloom = b; h.invalidateHash() }
func (h *Header) SetQuotaUsed(q uint64)         { h.QuotaUsed = q; h.invalidateHash() }

// Hash returns the memoized keccak of the full rlp encoding, computing and
// caching it on first access.
func (h *Header) Hash() common.Hash {
	if cached := h.hash.Load(); cached != nil {
		return *cached
	}
	computed := common.CryptHash(h.Encode())
	h.hash.Store(&computed)
	return computed
}

func (h *Header) Encode() []byte {
	return rlp.EncodeList(
		rlp.EncodeBytes(h.ParentHash[:]),
		rlp.EncodeUint64(h.Timestamp),
		rlp.EncodeUint64(h.Height),
		rlp.EncodeBytes(h.TransactionsRoot[:]),
		rlp.EncodeBytes(h.StateRoot[:]),
		rlp.EncodeBytes(h.ReceiptsRoot[:]),
		rlp.EncodeBytes(h.LogBloom[:]),
		rlp.EncodeUint64(h.QuotaUsed),
		rlp.EncodeUint64(h.QuotaLimit),
		rlp.EncodeBytes(h.Proof),
		rlp.EncodeUint64(uint64(h.Version)),
		rlp.EncodeBytes(h.Proposer[:]),
	)
}

func DecodeHeader(data []byte) (*Header, error) {
	items, err := rlp.DecodeList(data)
	if err != nil {
		return nil, err
	}
	r := rlp.NewListReader(items)
	h := &Header{}
	var b []byte
	if b, err = r.FixedBytes("parent_hash", common.HashLength); err != nil {
		return nil, err
	}
	h.ParentHash = common.BytesToHash(b)
	if h.Timestamp, err = r.Uint64("timestamp"); err != nil {
		return nil, err
	}
	if h.Height, err = r.Uint64("height"); err != nil {
		return nil, err
	}
	if b, err = r.FixedBytes("transactions_root", common.HashLength); err != nil {
		return nil, err
	}
	h.TransactionsRoot = common.BytesToHash(b)
	if b, err = r.FixedBytes("state_root", common.HashLength); err != nil {
		return nil, err
	}
	h.StateRoot = common.BytesToHash(b)
	if b, err = r.FixedBytes("receipts_root", common.HashLength); err != nil {
		return nil, err
	}
	h.ReceiptsRoot = common.BytesToHash(b)
	if b, err = r.FixedBytes("log_bloom", common.BloomByteLength); err != nil {
		return nil, err
	}
	copy(h.LogBloom[:], b)
	if h.QuotaUsed, err = r.Uint64("quota_used"); err != nil {
		return nil, err
	}
	if h.QuotaLimit, err = r.Uint64("quota_limit"); err != nil {
		return nil, err
	}
	if h.Proof, err = r.Bytes("proof"); err != nil {
		return nil, err
	}
	version, err := r.Uint64("version")
	if err != nil {
		return nil, err
	}
	h.Version = uint32(version)
	if b, err = r.FixedBytes("proposer", common.AddressLength); err != nil {
		return nil, err
	}
	h.Proposer = common.BytesToAddress(b)
	return h, nil
}
