package jsonrpc

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/core/state"
	"github.com/citahub/cita-sub003/core/systemcontract"
	"github.com/citahub/cita-sub003/core/types"
	"github.com/citahub/cita-sub003/rpc"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func rpcRequest(method string, params json.RawMessage) *rpc.Request {
	return &rpc.Request{JSONRPC: "2.0", Method: method, Params: params}
}

type memAccessor struct{ m map[common.Hash]common.Hash }

func newMemAccessor() *memAccessor { return &memAccessor{m: make(map[common.Hash]common.Hash)} }

func (a *memAccessor) GetStorage(p common.Hash) common.Hash    { return a.m[p] }
func (a *memAccessor) SetStorage(p common.Hash, v common.Hash) { a.m[p] = v }

type fakeAdmin struct{}

func (fakeAdmin) IsAdmin(uint64, common.Address) bool { return false }

type fakeStateReader struct{ accounts map[common.Address]*types.Account }

func (r *fakeStateReader) ReadAccountData(addr common.Address) (*types.Account, error) {
	return r.accounts[addr], nil
}
func (r *fakeStateReader) ReadAccountStorage(common.Address, common.Hash, common.Hash) (common.Hash, error) {
	return common.Hash{}, nil
}
func (r *fakeStateReader) ReadAccountCode(hash common.Hash) ([]byte, error) {
	if hash == types.EmptyCodeHash {
		return nil, nil
	}
	return []byte{0xde, 0xad}, nil
}

type fakeBackend struct {
	headers  map[uint64]*types.Header
	byHash   map[common.Hash]*types.Header
	bodies   map[common.Hash][]*types.SignedTransaction
	receipts map[common.Hash][]*types.Receipt
	locators map[common.Hash]struct {
		block common.Hash
		index uint32
	}
	latest    uint64
	accounts  map[common.Address]*types.Account
	sysConfig *systemcontract.SysConfig
	submitted []*types.SignedTransaction
	openBlocks []types.OpenHeader
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		headers:  make(map[uint64]*types.Header),
		byHash:   make(map[common.Hash]*types.Header),
		bodies:   make(map[common.Hash][]*types.SignedTransaction),
		receipts: make(map[common.Hash][]*types.Receipt),
		locators: make(map[common.Hash]struct {
			block common.Hash
			index uint32
		}),
		accounts: make(map[common.Address]*types.Account),
	}
}

func (f *fakeBackend) addBlock(h *types.Header, body []*types.SignedTransaction, receipts []*types.Receipt) {
	f.headers[h.Height] = h
	f.byHash[h.Hash()] = h
	f.bodies[h.Hash()] = body
	f.receipts[h.Hash()] = receipts
	for i, tx := range body {
		f.locators[tx.Hash()] = struct {
			block common.Hash
			index uint32
		}{h.Hash(), uint32(i)}
	}
	if h.Height > f.latest {
		f.latest = h.Height
	}
}

func (f *fakeBackend) LatestHeight() uint64 { return f.latest }

func (f *fakeBackend) HeaderByHeight(height uint64) (*types.Header, bool, error) {
	h, ok := f.headers[height]
	return h, ok, nil
}

func (f *fakeBackend) HeaderByHash(hash common.Hash) (*types.Header, bool, error) {
	h, ok := f.byHash[hash]
	return h, ok, nil
}

func (f *fakeBackend) BodyByHash(hash common.Hash) ([]*types.SignedTransaction, error) {
	return f.bodies[hash], nil
}

func (f *fakeBackend) ReceiptsByHash(hash common.Hash) ([]*types.Receipt, error) {
	return f.receipts[hash], nil
}

func (f *fakeBackend) TxLocator(hash common.Hash) (common.Hash, uint32, bool, error) {
	loc, ok := f.locators[hash]
	return loc.block, loc.index, ok, nil
}

func (f *fakeBackend) StateReaderAt(uint64) (state.StateReader, error) {
	return &fakeStateReader{accounts: f.accounts}, nil
}

func (f *fakeBackend) SubmitTransaction(raw []byte) (common.Hash, error) {
	tx, err := types.DecodeSignedTransaction(raw, false)
	if err != nil {
		return common.Hash{}, err
	}
	f.submitted = append(f.submitted, tx)
	return tx.Hash(), nil
}

func (f *fakeBackend) SubmitOpenBlock(header types.OpenHeader, txs []*types.SignedTransaction) error {
	f.openBlocks = append(f.openBlocks, header)
	return nil
}

func (f *fakeBackend) RestorationStatus() (uint64, uint64, bool) { return 3, 10, true }

func (f *fakeBackend) SysConfig() *systemcontract.SysConfig { return f.sysConfig }

func (f *fakeBackend) Call(req CallRequest, height uint64) ([]byte, error) {
	return []byte{0x01, 0x02}, nil
}

func (f *fakeBackend) TransactionProof(hash common.Hash) ([]byte, bool, error) {
	if _, ok := f.locators[hash]; !ok {
		return nil, false, nil
	}
	return []byte{0x99}, true, nil
}

func mustParams(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func newTestBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := newFakeBackend()
	b.sysConfig = systemcontract.NewSysConfig(newMemAccessor(), fakeAdmin{}, systemcontract.SysConfigSnapshot{
		ChainName: "test-chain",
		ChainID:   42,
		Operator:  "acme",
		Website:   "https://example.com",
		Token:     systemcontract.TokenInfo{Name: "Nervos", Symbol: "CKB"},
	})
	return b
}

func sampleHeader(height uint64, parent common.Hash) *types.Header {
	return &types.Header{
		ParentHash: parent,
		Height:     height,
		Timestamp:  1000 + height,
		QuotaLimit: 1_000_000,
	}
}

func TestBlockByNumberRoundTrips(t *testing.T) {
	b := newTestBackend(t)
	header := sampleHeader(5, common.Hash{})
	tx := &types.SignedTransaction{Transaction: types.Transaction{
		Nonce: "1", GasPrice: uint256.NewInt(1), Gas: 21000, Value: uint256.NewInt(0),
	}}
	b.addBlock(header, []*types.SignedTransaction{tx}, []*types.Receipt{{TxHash: tx.Hash()}})

	srv := NewServer(b)
	resp := srv.Handle(rpcRequest("block_by_number", mustParams(t, []interface{}{"0x5", true})))
	require.Nil(t, resp.Error)
	view, ok := resp.Result.(*blockView)
	require.True(t, ok)
	require.Equal(t, header.Hash().String(), view.Hash)
	require.Len(t, view.TransactionsFull, 1)
}

func TestBlockByNumberMissingReturnsNilResult(t *testing.T) {
	b := newTestBackend(t)
	srv := NewServer(b)
	resp := srv.Handle(rpcRequest("block_by_number", mustParams(t, []interface{}{"0x9", false})))
	require.Nil(t, resp.Error)
	require.Nil(t, resp.Result)
}

func TestTransactionAndReceiptLookup(t *testing.T) {
	b := newTestBackend(t)
	header := sampleHeader(1, common.Hash{})
	tx := &types.SignedTransaction{Transaction: types.Transaction{
		Nonce: "0", GasPrice: uint256.NewInt(1), Gas: 21000, Value: uint256.NewInt(0),
	}}
	receipt := &types.Receipt{TxHash: tx.Hash(), CumulativeQuota: 21000}
	b.addBlock(header, []*types.SignedTransaction{tx}, []*types.Receipt{receipt})

	srv := NewServer(b)

	txResp := srv.Handle(rpcRequest("transaction", mustParams(t, []string{tx.Hash().String()})))
	require.Nil(t, txResp.Error)
	require.NotNil(t, txResp.Result)

	rcResp := srv.Handle(rpcRequest("transaction_receipt", mustParams(t, []string{tx.Hash().String()})))
	require.Nil(t, rcResp.Error)
	rv, ok := rcResp.Result.(*receiptView)
	require.True(t, ok)
	require.Equal(t, tx.Hash().String(), rv.TransactionHash)
}

func TestGetBalanceAndCode(t *testing.T) {
	b := newTestBackend(t)
	addr := common.BytesToAddress([]byte{1, 2, 3})
	acct := types.NewAccount()
	acct.Balance = uint256.NewInt(500)
	acct.CodeHash = common.CryptHash([]byte{0xaa})
	b.accounts[addr] = acct

	srv := NewServer(b)
	balResp := srv.Handle(rpcRequest("get_balance", mustParams(t, []string{addr.String(), "latest"})))
	require.Nil(t, balResp.Error)
	require.Equal(t, "0x1f4", balResp.Result)

	codeResp := srv.Handle(rpcRequest("get_code", mustParams(t, []string{addr.String(), "latest"})))
	require.Nil(t, codeResp.Error)
	require.Equal(t, "0xdead", codeResp.Result)
}

func TestSendTransactionDecodesAndSubmits(t *testing.T) {
	b := newTestBackend(t)
	tx := &types.Transaction{
		Nonce: "7", GasPrice: uint256.NewInt(1), Gas: 21000, Value: uint256.NewInt(0),
		Data: []byte{}, Action: types.Action{Kind: types.ActionCreate},
	}
	signed := &types.SignedTransaction{Transaction: *tx, Signature: make([]byte, 65)}
	raw := signed.Encode()

	srv := NewServer(b)
	resp := srv.Handle(rpcRequest("send_transaction", mustParams(t, []string{"0x" + fmt.Sprintf("%x", raw)})))
	require.Nil(t, resp.Error)
	require.Len(t, b.submitted, 1)
}

func TestGetMetaDataReadsSysConfig(t *testing.T) {
	b := newTestBackend(t)
	srv := NewServer(b)
	resp := srv.Handle(rpcRequest("get_meta_data", mustParams(t, []string{})))
	require.Nil(t, resp.Error)
	meta, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "test-chain", meta["chainName"])
	require.Equal(t, "0x2a", meta["chainId"])
}

func TestMethodNotFound(t *testing.T) {
	b := newTestBackend(t)
	srv := NewServer(b)
	resp := srv.Handle(rpcRequest("no_such_method", nil))
	require.NotNil(t, resp.Error)
	require.Equal(t, -32601, resp.Error.Code)
}

func TestInvalidParamsOnMissingArgs(t *testing.T) {
	b := newTestBackend(t)
	srv := NewServer(b)
	resp := srv.Handle(rpcRequest("get_balance", nil))
	require.NotNil(t, resp.Error)
	require.Equal(t, -32602, resp.Error.Code)
}

func TestFilterLifecycle(t *testing.T) {
	b := newTestBackend(t)
	topic := common.CryptHash([]byte("Transfer"))
	log := &types.LogEntry{Address: common.BytesToAddress([]byte{9}), Topics: []common.Hash{topic}}
	h1 := sampleHeader(1, common.Hash{})
	h1.LogBloom.Add(log.Address.Bytes())
	h1.LogBloom.Add(topic.Bytes())
	tx := &types.SignedTransaction{Transaction: types.Transaction{Nonce: "0", GasPrice: uint256.NewInt(1), Value: uint256.NewInt(0)}}
	b.addBlock(h1, []*types.SignedTransaction{tx}, []*types.Receipt{{TxHash: tx.Hash(), Logs: []*types.LogEntry{log}}})

	srv := NewServer(b)
	idResp := srv.Handle(rpcRequest("new_filter", mustParams(t, []map[string]interface{}{{
		"fromBlock": "0x0",
		"toBlock":   "latest",
	}})))
	require.Nil(t, idResp.Error)
	id, ok := idResp.Result.(string)
	require.True(t, ok)

	logsResp := srv.Handle(rpcRequest("get_filter_logs", mustParams(t, []string{id})))
	require.Nil(t, logsResp.Error)
	logs, ok := logsResp.Result.([]*logView)
	require.True(t, ok)
	require.Len(t, logs, 1)

	changesResp := srv.Handle(rpcRequest("get_filter_changes", mustParams(t, []string{id})))
	require.Nil(t, changesResp.Error)
	require.Empty(t, changesResp.Result)

	uninstallResp := srv.Handle(rpcRequest("uninstall_filter", mustParams(t, []string{id})))
	require.Nil(t, uninstallResp.Error)
	require.Equal(t, true, uninstallResp.Result)
}

func TestSubmitOpenBlockDecodesHeaderAndTransactions(t *testing.T) {
	b := newTestBackend(t)
	proposer := common.BytesToAddress([]byte{7})
	req := map[string]interface{}{
		"parentHash":       common.Hash{}.String(),
		"timestamp":        "0x1",
		"height":           "0x2",
		"transactionsRoot": common.Hash{}.String(),
		"quotaLimit":       "0x5f5e100",
		"proof":            "0x",
		"version":          "0x0",
		"proposer":         proposer.String(),
		"transactions":     []string{},
	}
	srv := NewServer(b)
	resp := srv.Handle(rpcRequest("submit_open_block", mustParams(t, req)))
	require.Nil(t, resp.Error)
	require.Len(t, b.openBlocks, 1)
	require.Equal(t, uint64(2), b.openBlocks[0].Height)
}
