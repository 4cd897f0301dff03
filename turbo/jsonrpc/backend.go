// Package jsonrpc implements spec.md §6's inbound-query surface over the
// generic rpc.Server: one handler per method, registered behind a Backend
// seam so the HTTP layer never touches chain internals directly. Modeled
// on erigon's cmd/rpcdaemon namespaced-API shape (one handler set bound
// to a backend interface, HTTP routing kept separate).
package jsonrpc

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/core/state"
	"github.com/citahub/cita-sub003/core/systemcontract"
	"github.com/citahub/cita-sub003/core/types"
	"github.com/holiman/uint256"
)

// CallRequest is call()'s read-only message: no signature, no nonce, run
// against a chosen height's state and discarded afterward.
type CallRequest struct {
	From  common.Address
	To    *common.Address // nil means contract creation
	Value *uint256.Int
	Data  []byte
}

// Backend is everything a handler needs: chain data lookups, state reads
// at a given height, transaction submission, and chain metadata. The
// repository has no production implementation of it; the package tests
// use an in-memory fake.
type Backend interface {
	LatestHeight() uint64
	HeaderByHeight(height uint64) (*types.Header, bool, error)
	HeaderByHash(hash common.Hash) (*types.Header, bool, error)
	BodyByHash(hash common.Hash) ([]*types.SignedTransaction, error)
	ReceiptsByHash(hash common.Hash) ([]*types.Receipt, error)
	TxLocator(hash common.Hash) (blockHash common.Hash, index uint32, found bool, err error)

	// StateReaderAt resolves a height to a read-only account/storage view.
	StateReaderAt(height uint64) (state.StateReader, error)

	// SubmitTransaction decodes and queues a signed transaction for
	// inclusion, returning its hash.
	SubmitTransaction(raw []byte) (common.Hash, error)

	// SubmitOpenBlock hands a proposed open block to the consensus driver
	// for execution; the caller supplies the open header fields and the
	// ordered transaction list, the backend resolves the state reader and
	// parent root itself.
	SubmitOpenBlock(header types.OpenHeader, txs []*types.SignedTransaction) error

	// RestorationStatus reports the snapshot restoration progress
	// query_status surfaces: applied/total chunk counts and whether a
	// restoration is currently in flight.
	RestorationStatus() (applied, total uint64, active bool)

	SysConfig() *systemcontract.SysConfig

	// Call runs req against the state at height and discards every write;
	// it never touches the chain.
	Call(req CallRequest, height uint64) ([]byte, error)

	// TransactionProof returns an opaque, already-encoded Merkle proof for
	// the transaction's inclusion; handlers pass it through as Data
	// without interpreting it.
	TransactionProof(hash common.Hash) ([]byte, bool, error)
}
