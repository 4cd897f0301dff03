package trie

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/kv"
)

// KVNodeStore is the production NodeStore: every node lives in the State
// column of a citalib/kv.KV handle, content-addressed by the hash of its
// encoding exactly like MapNodeStore, just durable. Snapshot restoration
// builds a fresh KVNodeStore over a freshly opened database and swaps it
// in for the live one once the rebuilt root checks out.
type KVNodeStore struct {
	db kv.KV
}

func NewKVNodeStore(db kv.KV) *KVNodeStore { return &KVNodeStore{db: db} }

func (s *KVNodeStore) GetNode(hash common.Hash) (*Node, bool, error) {
	var enc []byte
	err := s.db.View(func(tx kv.Tx) error {
		v, err := tx.Get(kv.State, hash[:])
		if err != nil || v == nil {
			return err
		}
		enc = append([]byte{}, v...)
		return nil
	})
	if err != nil || enc == nil {
		return nil, false, err
	}
	n, err := DecodeNode(enc)
	return n, err == nil, err
}

func (s *KVNodeStore) PutNode(n *Node) (common.Hash, error) {
	enc := n.Encode()
	h := common.CryptHash(enc)
	err := s.db.Update(func(tx kv.Tx) error {
		return tx.Put(kv.State, h[:], enc)
	})
	return h, err
}
