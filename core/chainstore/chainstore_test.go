package chainstore

import (
	"testing"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/kv"
	"github.com/citahub/cita-sub003/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestPutBlockRoundTripsHeaderBodyReceiptsAndLocators(t *testing.T) {
	s := New(kv.NewMemDB(kv.ChaindataTables))

	tx := &types.SignedTransaction{
		Transaction: types.Transaction{
			Nonce:    "0",
			GasPrice: uint256.NewInt(0),
			Gas:      21000,
			Action:   types.Action{Kind: types.ActionCall, To: common.BytesToAddress([]byte{9})},
			Value:    uint256.NewInt(0),
		},
		Signature:  make([]byte, 65),
		CryptoKind: types.CryptoSECP256K1,
	}
	header := &types.Header{Height: 3, QuotaLimit: 1_000_000, Proposer: common.BytesToAddress([]byte{0xAB})}
	receipt := &types.Receipt{CumulativeQuota: 21000, TxHash: tx.Hash()}

	require.NoError(t, s.PutBlock(header, []*types.SignedTransaction{tx}, []*types.Receipt{receipt}))

	gotHeader, ok, err := s.HeaderByHeight(3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, header.Hash(), gotHeader.Hash())

	gotByHash, ok, err := s.HeaderByHash(header.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, header.Hash(), gotByHash.Hash())

	body, err := s.BodyByHash(header.Hash())
	require.NoError(t, err)
	require.Len(t, body, 1)
	require.Equal(t, tx.Hash(), body[0].Hash())

	receipts, err := s.ReceiptsByHash(header.Hash())
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	require.Equal(t, uint64(21000), receipts[0].CumulativeQuota)

	blockHash, index, found, err := s.TxLocator(tx.Hash())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, header.Hash(), blockHash)
	require.Equal(t, uint32(0), index)
}

func TestHeaderByHeightMissingReturnsNotFound(t *testing.T) {
	s := New(kv.NewMemDB(kv.ChaindataTables))
	_, ok, err := s.HeaderByHeight(42)
	require.NoError(t, err)
	require.False(t, ok)
}
