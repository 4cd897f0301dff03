package snapshotsync

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/rlp"
	"github.com/citahub/cita-sub003/core/types"
)

// StoragePair is one key/value slot of an account's storage trie, inlined
// directly into the account's fat entry rather than chunked separately.
type StoragePair struct {
	Key   common.Hash
	Value common.Hash
}

// AccountEntry is a self-contained account record: enough to rebuild the
// account's trie leaf, its storage trie, and its code without consulting
// anything outside the chunk it lives in, except for code that was already
// inlined earlier in the same snapshot under the same code hash.
type AccountEntry struct {
	Address      common.Address
	Account      *types.Account
	Code         []byte // nil when Account.CodeHash was already emitted by an earlier entry
	StoragePairs []StoragePair
}

func (e *AccountEntry) Encode() []byte {
	pairs := make([][]byte, len(e.StoragePairs))
	for i, p := range e.StoragePairs {
		pairs[i] = rlp.EncodeList(rlp.EncodeBytes(p.Key[:]), rlp.EncodeBytes(p.Value[:]))
	}
	return rlp.EncodeList(
		rlp.EncodeBytes(e.Address[:]),
		rlp.EncodeBytes(e.Account.Encode()),
		rlp.EncodeBytes(e.Code),
		rlp.EncodeList(pairs...),
	)
}

func DecodeAccountEntry(data []byte) (*AccountEntry, error) {
	items, err := rlp.DecodeList(data)
	if err != nil {
		return nil, err
	}
	return decodeAccountEntryItems(items)
}

// decodeAccountEntryItems decodes from an already-parsed item list, so a
// chunk holding many entries as one rlp list can decode each member
// directly from its Items without a re-encode/decode round trip.
func decodeAccountEntryItems(items []*rlp.Value) (*AccountEntry, error) {
	r := rlp.NewListReader(items)
	addrB, err := r.FixedBytes("address", common.AddressLength)
	if err != nil {
		return nil, err
	}
	accountB, err := r.Bytes("account")
	if err != nil {
		return nil, err
	}
	account, err := types.DecodeAccount(accountB)
	if err != nil {
		return nil, err
	}
	code, err := r.Bytes("code")
	if err != nil {
		return nil, err
	}
	pairItems, err := r.List("storage_pairs")
	if err != nil {
		return nil, err
	}
	pairs := make([]StoragePair, len(pairItems))
	for i, pi := range pairItems {
		pr := rlp.NewListReader(pi.Items)
		keyB, err := pr.FixedBytes("key", common.HashLength)
		if err != nil {
			return nil, err
		}
		valB, err := pr.FixedBytes("value", common.HashLength)
		if err != nil {
			return nil, err
		}
		pairs[i] = StoragePair{Key: common.BytesToHash(keyB), Value: common.BytesToHash(valB)}
	}
	return &AccountEntry{
		Address:      common.BytesToAddress(addrB),
		Account:      account,
		Code:         code,
		StoragePairs: pairs,
	}, nil
}
