package snapshotsync

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/rlp"
	"github.com/citahub/cita-sub003/core/types"
)

// BlockSource is the read seam block chunking depends on, satisfied by
// core/chainstore.Store; kept as an interface so tests can substitute an
// in-memory stand-in without touching citalib/kv.
type BlockSource interface {
	HeaderByHeight(height uint64) (*types.Header, bool, error)
	BodyByHash(hash common.Hash) ([]*types.SignedTransaction, error)
	ReceiptsByHash(hash common.Hash) ([]*types.Receipt, error)
}

// BlockEntry is one block's full record: header, body, and receipts,
// self-contained so a chunk can be replayed without any other chunk.
type BlockEntry struct {
	Header   *types.Header
	Body     []*types.SignedTransaction
	Receipts []*types.Receipt
}

func (e *BlockEntry) Encode() []byte {
	body := make([][]byte, len(e.Body))
	for i, tx := range e.Body {
		body[i] = rlp.EncodeBytes(tx.Encode())
	}
	receipts := make([][]byte, len(e.Receipts))
	for i, r := range e.Receipts {
		receipts[i] = rlp.EncodeBytes(r.Encode())
	}
	return rlp.EncodeList(
		rlp.EncodeBytes(e.Header.Encode()),
		rlp.EncodeList(body...),
		rlp.EncodeList(receipts...),
	)
}

func DecodeBlockEntry(data []byte) (*BlockEntry, error) {
	items, err := rlp.DecodeList(data)
	if err != nil {
		return nil, err
	}
	return decodeBlockEntryItems(items)
}

func decodeBlockEntryItems(items []*rlp.Value) (*BlockEntry, error) {
	r := rlp.NewListReader(items)
	headerB, err := r.Bytes("header")
	if err != nil {
		return nil, err
	}
	header, err := types.DecodeHeader(headerB)
	if err != nil {
		return nil, err
	}
	bodyItems, err := r.List("body")
	if err != nil {
		return nil, err
	}
	body := make([]*types.SignedTransaction, len(bodyItems))
	for i, it := range bodyItems {
		tx, err := types.DecodeSignedTransaction(it.Bytes, true)
		if err != nil {
			tx, err = types.DecodeSignedTransaction(it.Bytes, false)
			if err != nil {
				return nil, err
			}
		}
		body[i] = tx
	}
	receiptItems, err := r.List("receipts")
	if err != nil {
		return nil, err
	}
	receipts := make([]*types.Receipt, len(receiptItems))
	for i, it := range receiptItems {
		rec, err := types.DecodeReceipt(it.Bytes)
		if err != nil {
			return nil, err
		}
		receipts[i] = rec
	}
	return &BlockEntry{Header: header, Body: body, Receipts: receipts}, nil
}

// ChunkBlocks walks blockCount blocks backward from fromHeight, emitting
// headers+bodies+receipts in reverse chronological order (newest first),
// packing them into ~ChunkTargetSize chunks the same way ChunkState packs
// accounts. It stops early if it reaches a height with no stored header.
func ChunkBlocks(source BlockSource, fromHeight, blockCount uint64, store ChunkStore) ([]common.Hash, error) {
	var hashes []common.Hash
	var pending [][]byte
	var pendingSize int

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		hash, err := store.PutChunk(rlp.EncodeList(pending...))
		if err != nil {
			return err
		}
		hashes = append(hashes, hash)
		pending = nil
		pendingSize = 0
		return nil
	}

	for i := uint64(0); i < blockCount; i++ {
		height := fromHeight - i
		header, ok, err := source.HeaderByHeight(height)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		hash := header.Hash()
		body, err := source.BodyByHash(hash)
		if err != nil {
			return nil, err
		}
		receipts, err := source.ReceiptsByHash(hash)
		if err != nil {
			return nil, err
		}
		enc := (&BlockEntry{Header: header, Body: body, Receipts: receipts}).Encode()
		if pendingSize > 0 && pendingSize+len(enc) > ChunkTargetSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		pending = append(pending, enc)
		pendingSize += len(enc)
		if height == 0 {
			break
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return hashes, nil
}
