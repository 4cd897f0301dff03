// Package chainstore wires citalib/kv's Headers/Bodies/Extras columns —
// designed but never bound to a concrete writer anywhere else in this
// repo — into a block-level chain store: headers indexed by both hash and
// height, bodies, and per-block receipt lists stored as Extras's dup-sorted
// entries. It is the BlockSource snapshot block-chunking walks.
package chainstore

import (
	"encoding/binary"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/kv"
	"github.com/citahub/cita-sub003/core/types"
)

// Store is the production chain store: every column lives in a single
// citalib/kv.KV handle.
type Store struct {
	db kv.KV
}

func New(db kv.KV) *Store { return &Store{db: db} }

func heightKey(height uint64) []byte {
	key := make([]byte, 9)
	key[0] = 'h' // disjoint from the 32-byte hash keys sharing the column
	binary.BigEndian.PutUint64(key[1:], height)
	return key
}

func (s *Store) PutHeader(h *types.Header) error {
	hash := h.Hash()
	enc := h.Encode()
	return s.db.Update(func(tx kv.Tx) error {
		if err := tx.Put(kv.Headers, hash[:], enc); err != nil {
			return err
		}
		return tx.Put(kv.Headers, heightKey(h.Height), hash[:])
	})
}

func (s *Store) HeaderByHash(hash common.Hash) (*types.Header, bool, error) {
	var enc []byte
	err := s.db.View(func(tx kv.Tx) error {
		v, err := tx.Get(kv.Headers, hash[:])
		if err != nil || v == nil {
			return err
		}
		enc = append([]byte{}, v...)
		return nil
	})
	if err != nil || enc == nil {
		return nil, false, err
	}
	h, err := types.DecodeHeader(enc)
	return h, err == nil, err
}

func (s *Store) HeaderByHeight(height uint64) (*types.Header, bool, error) {
	var hashB []byte
	err := s.db.View(func(tx kv.Tx) error {
		v, err := tx.Get(kv.Headers, heightKey(height))
		if err != nil || v == nil {
			return err
		}
		hashB = append([]byte{}, v...)
		return nil
	})
	if err != nil || hashB == nil {
		return nil, false, err
	}
	return s.HeaderByHash(common.BytesToHash(hashB))
}

// PutBody stores a block's transaction list RLP-encoded, keyed by the
// block hash shared with its header.
func (s *Store) PutBody(hash common.Hash, txs []*types.SignedTransaction) error {
	enc := encodeBody(txs)
	return s.db.Update(func(tx kv.Tx) error {
		return tx.Put(kv.Bodies, hash[:], enc)
	})
}

func (s *Store) BodyByHash(hash common.Hash) ([]*types.SignedTransaction, error) {
	var enc []byte
	err := s.db.View(func(tx kv.Tx) error {
		v, err := tx.Get(kv.Bodies, hash[:])
		if err != nil || v == nil {
			return err
		}
		enc = append([]byte{}, v...)
		return nil
	})
	if err != nil || enc == nil {
		return nil, err
	}
	return decodeBody(enc)
}

// PutReceipts appends a block's receipts as Extras's dup-sorted entries
// under the block hash, one value per receipt in order.
func (s *Store) PutReceipts(hash common.Hash, receipts []*types.Receipt) error {
	return s.db.Update(func(tx kv.Tx) error {
		for _, r := range receipts {
			if err := tx.AppendDup(kv.Extras, hash[:], r.Encode()); err != nil {
				return err
			}
		}
		return nil
	})
}

func txLocatorKey(txHash common.Hash) []byte {
	key := make([]byte, 1+common.HashLength)
	key[0] = 't' // disjoint from both the plain hash keys and the dup-sorted receipt keys
	copy(key[1:], txHash[:])
	return key
}

// PutTxLocators indexes each transaction's hash to its containing block and
// position, the "tx locator" spec's Extras column describes.
func (s *Store) PutTxLocators(blockHash common.Hash, txs []*types.SignedTransaction) error {
	return s.db.Update(func(tx kv.Tx) error {
		for i, t := range txs {
			loc := make([]byte, common.HashLength+4)
			copy(loc, blockHash[:])
			binary.BigEndian.PutUint32(loc[common.HashLength:], uint32(i))
			if err := tx.Put(kv.Extras, txLocatorKey(t.Hash()), loc); err != nil {
				return err
			}
		}
		return nil
	})
}

// TxLocator resolves a transaction hash to the block hash and index within
// that block's body it was found at.
func (s *Store) TxLocator(txHash common.Hash) (blockHash common.Hash, index uint32, found bool, err error) {
	var loc []byte
	err = s.db.View(func(tx kv.Tx) error {
		v, err := tx.Get(kv.Extras, txLocatorKey(txHash))
		if err != nil || v == nil {
			return err
		}
		loc = append([]byte{}, v...)
		return nil
	})
	if err != nil || loc == nil {
		return common.Hash{}, 0, false, err
	}
	return common.BytesToHash(loc[:common.HashLength]), binary.BigEndian.Uint32(loc[common.HashLength:]), true, nil
}

// PutBlock stores a block's header, body, receipts, and tx locators in one
// call, the shape both the executor's commit path and snapshot block
// restoration use.
func (s *Store) PutBlock(header *types.Header, txs []*types.SignedTransaction, receipts []*types.Receipt) error {
	hash := header.Hash()
	if err := s.PutHeader(header); err != nil {
		return err
	}
	if err := s.PutBody(hash, txs); err != nil {
		return err
	}
	if err := s.PutReceipts(hash, receipts); err != nil {
		return err
	}
	return s.PutTxLocators(hash, txs)
}

func (s *Store) ReceiptsByHash(hash common.Hash) ([]*types.Receipt, error) {
	var values [][]byte
	err := s.db.View(func(tx kv.Tx) error {
		v, err := tx.GetDup(kv.Extras, hash[:])
		values = v
		return err
	})
	if err != nil {
		return nil, err
	}
	receipts := make([]*types.Receipt, len(values))
	for i, v := range values {
		r, err := types.DecodeReceipt(v)
		if err != nil {
			return nil, err
		}
		receipts[i] = r
	}
	return receipts, nil
}
