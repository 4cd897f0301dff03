package types

import "github.com/citahub/cita-sub003/citalib/common"

// Block is header + body.
type Block struct {
	Header       *Header
	Transactions []*SignedTransaction
}

// TransactionsRoot computes the merkle root over transaction hashes, in
// array order, the same construction Receipt uses for receipts_root.
func (b *Block) TransactionsRoot() common.Hash {
	hashes := make([][]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		hashes[i] = tx.Hash().Bytes()
	}
	return merkleRoot(hashes)
}
