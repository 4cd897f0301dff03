package chainstore

import (
	"github.com/citahub/cita-sub003/citalib/rlp"
	"github.com/citahub/cita-sub003/core/types"
)

func encodeBody(txs []*types.SignedTransaction) []byte {
	enc := make([][]byte, len(txs))
	for i, tx := range txs {
		enc[i] = rlp.EncodeBytes(tx.Encode())
	}
	return rlp.EncodeList(enc...)
}

func decodeBody(data []byte) ([]*types.SignedTransaction, error) {
	items, err := rlp.DecodeList(data)
	if err != nil {
		return nil, err
	}
	txs := make([]*types.SignedTransaction, len(items))
	for i, it := range items {
		tx, err := types.DecodeSignedTransaction(it.Bytes, true)
		if err != nil {
			tx, err = types.DecodeSignedTransaction(it.Bytes, false)
			if err != nil {
				return nil, err
			}
		}
		txs[i] = tx
	}
	return txs, nil
}
