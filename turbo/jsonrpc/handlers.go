package jsonrpc

import (
	"encoding/json"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/core/types"
	"github.com/citahub/cita-sub003/rpc"
	"github.com/holiman/uint256"
)

// parseHash/parseAddress mirror common.HexToHash's "0x"-stripping but
// return an error instead of panicking: handler input is untrusted wire
// data, not the internal literals common.HexToHash is meant for.
func parseHash(s string) (common.Hash, *rpc.Error) {
	b, err := rpc.ParseData(s)
	if err != nil {
		return common.Hash{}, rpc.InvalidParams(err.Error())
	}
	if len(b) != common.HashLength {
		return common.Hash{}, rpc.InvalidParams("expected 32-byte hash")
	}
	return common.BytesToHash(b), nil
}

func parseAddress(s string) (common.Address, *rpc.Error) {
	b, err := rpc.ParseData(s)
	if err != nil {
		return common.Address{}, rpc.InvalidParams(err.Error())
	}
	if len(b) != common.AddressLength {
		return common.Address{}, rpc.InvalidParams("expected 20-byte address")
	}
	return common.BytesToAddress(b), nil
}

func resolveHeight(b Backend, tagStr string) (uint64, *rpc.Error) {
	tag, err := rpc.ParseTag(tagStr)
	if err != nil {
		return 0, rpc.InvalidParams(err.Error())
	}
	switch tag.Kind {
	case rpc.TagEarliest:
		return 0, nil
	case rpc.TagLatest, rpc.TagPending:
		// Pending state is not modeled separately from the last committed
		// block: there is no speculative mempool state to diverge from.
		return b.LatestHeight(), nil
	default:
		return tag.Height, nil
	}
}

func decodeParams(params json.RawMessage, v interface{}) *rpc.Error {
	if len(params) == 0 {
		return rpc.InvalidParams("missing params")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return rpc.InvalidParams(err.Error())
	}
	return nil
}

type blockView struct {
	Number           string              `json:"number"`
	Hash             string              `json:"hash"`
	ParentHash       string              `json:"parentHash"`
	StateRoot        string              `json:"stateRoot"`
	TransactionsRoot string              `json:"transactionsRoot"`
	ReceiptsRoot     string              `json:"receiptsRoot"`
	Timestamp        string              `json:"timestamp"`
	QuotaUsed        string              `json:"quotaUsed"`
	QuotaLimit       string              `json:"quotaLimit"`
	Proposer         string              `json:"proposer"`
	Transactions     []string           `json:"transactions,omitempty"`
	TransactionsFull []*transactionView `json:"transactionsFull,omitempty"`
}

func newBlockView(h *types.Header, body []*types.SignedTransaction, withTxs bool) *blockView {
	bv := &blockView{
		Number:           rpc.Quantity(h.Height),
		Hash:             h.Hash().String(),
		ParentHash:       h.ParentHash.String(),
		StateRoot:        h.StateRoot.String(),
		TransactionsRoot: h.TransactionsRoot.String(),
		ReceiptsRoot:     h.ReceiptsRoot.String(),
		Timestamp:        rpc.Quantity(h.Timestamp),
		QuotaUsed:        rpc.Quantity(h.QuotaUsed),
		QuotaLimit:       rpc.Quantity(h.QuotaLimit),
		Proposer:         h.Proposer.String(),
	}
	if withTxs {
		bv.TransactionsFull = make([]*transactionView, len(body))
		for i, tx := range body {
			bv.TransactionsFull[i] = newTransactionView(tx)
		}
	} else {
		bv.Transactions = make([]string, len(body))
		for i, tx := range body {
			bv.Transactions[i] = tx.Hash().String()
		}
	}
	return bv
}

type transactionView struct {
	Hash     string `json:"hash"`
	Nonce    string `json:"nonce"`
	GasPrice string `json:"gasPrice"`
	Gas      string `json:"gas"`
	To       string `json:"to,omitempty"`
	Value    string `json:"value"`
	Data     string `json:"data"`
}

func newTransactionView(tx *types.SignedTransaction) *transactionView {
	tv := &transactionView{
		Hash:     tx.Hash().String(),
		Nonce:    tx.Nonce,
		GasPrice: rpc.Quantity(tx.GasPrice.Uint64()),
		Gas:      rpc.Quantity(tx.Gas),
		Value:    rpc.Quantity(tx.Value.Uint64()),
		Data:     rpc.Data(tx.Data),
	}
	if tx.Action.Kind == types.ActionCall {
		tv.To = tx.Action.To.String()
	}
	return tv
}

type receiptView struct {
	TransactionHash string   `json:"transactionHash"`
	CumulativeQuota string   `json:"cumulativeQuotaUsed"`
	Error           string   `json:"error,omitempty"`
	ContractAddress string   `json:"contractAddress,omitempty"`
	Logs            []string `json:"logsBloomKeys,omitempty"`
}

func newReceiptView(r *types.Receipt) *receiptView {
	rv := &receiptView{
		TransactionHash: r.TxHash.String(),
		CumulativeQuota: rpc.Quantity(r.CumulativeQuota),
		Error:           r.Error.String(),
	}
	if r.ContractAddress != nil {
		rv.ContractAddress = r.ContractAddress.String()
	}
	return rv
}

// parseLogFilterCriteria decodes the {fromBlock, toBlock, address,
// addresses, topics} shape get_logs/new_filter share, resolving tags
// against b's current height.
func parseLogFilterCriteria(b Backend, raw json.RawMessage) (LogFilterCriteria, *rpc.Error) {
	var in struct {
		FromBlock string     `json:"fromBlock"`
		ToBlock   string     `json:"toBlock"`
		Address   string     `json:"address"`
		Addresses []string   `json:"addresses"`
		Topics    [][]string `json:"topics"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &in); err != nil {
			return LogFilterCriteria{}, rpc.InvalidParams(err.Error())
		}
	}
	crit := LogFilterCriteria{}
	from, rerr := resolveHeight(b, in.FromBlock)
	if rerr != nil {
		return LogFilterCriteria{}, rerr
	}
	crit.FromHeight = from
	toStr := in.ToBlock
	if toStr == "" {
		toStr = "latest"
	}
	to, rerr := resolveHeight(b, toStr)
	if rerr != nil {
		return LogFilterCriteria{}, rerr
	}
	crit.ToHeight = to
	if in.Address != "" {
		in.Addresses = append(in.Addresses, in.Address)
	}
	for _, a := range in.Addresses {
		addr, rerr := parseAddress(a)
		if rerr != nil {
			return LogFilterCriteria{}, rerr
		}
		crit.Addresses = append(crit.Addresses, addr)
	}
	for _, position := range in.Topics {
		var hashes []common.Hash
		for _, t := range position {
			if t == "" {
				continue
			}
			h, rerr := parseHash(t)
			if rerr != nil {
				return LogFilterCriteria{}, rerr
			}
			hashes = append(hashes, h)
		}
		crit.Topics = append(crit.Topics, hashes)
	}
	return crit, nil
}

// registerAll binds every spec.md §6 inbound-query method (plus the
// inbound-control pair) to srv.
func registerAll(srv *rpc.Server, b Backend, filters *FilterManager) {
	srv.Register("get_logs", func(params json.RawMessage) (interface{}, *rpc.Error) {
		var args []json.RawMessage
		if err := decodeParams(params, &args); err != nil {
			return nil, err
		}
		if len(args) < 1 {
			return nil, rpc.InvalidParams("expected (filter)")
		}
		crit, rerr := parseLogFilterCriteria(b, args[0])
		if rerr != nil {
			return nil, rerr
		}
		logs, err := scanLogs(b, crit)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		return logs, nil
	})

	srv.Register("new_filter", func(params json.RawMessage) (interface{}, *rpc.Error) {
		var args []json.RawMessage
		if err := decodeParams(params, &args); err != nil {
			return nil, err
		}
		if len(args) < 1 {
			return nil, rpc.InvalidParams("expected (filter)")
		}
		crit, rerr := parseLogFilterCriteria(b, args[0])
		if rerr != nil {
			return nil, rerr
		}
		return filters.NewLogFilter(crit, b.LatestHeight()), nil
	})

	srv.Register("new_block_filter", func(json.RawMessage) (interface{}, *rpc.Error) {
		return filters.NewBlockFilter(b.LatestHeight()), nil
	})

	srv.Register("uninstall_filter", func(params json.RawMessage) (interface{}, *rpc.Error) {
		var args []string
		if err := decodeParams(params, &args); err != nil {
			return nil, err
		}
		if len(args) < 1 {
			return nil, rpc.InvalidParams("expected (id)")
		}
		return filters.Uninstall(args[0]), nil
	})

	srv.Register("get_filter_changes", func(params json.RawMessage) (interface{}, *rpc.Error) {
		var args []string
		if err := decodeParams(params, &args); err != nil {
			return nil, err
		}
		if len(args) < 1 {
			return nil, rpc.InvalidParams("expected (id)")
		}
		changes, err := filters.Changes(b, args[0], b.LatestHeight())
		if err != nil {
			return nil, rpc.InvalidParams(err.Error())
		}
		return changes, nil
	})

	srv.Register("get_filter_logs", func(params json.RawMessage) (interface{}, *rpc.Error) {
		var args []string
		if err := decodeParams(params, &args); err != nil {
			return nil, err
		}
		if len(args) < 1 {
			return nil, rpc.InvalidParams("expected (id)")
		}
		logs, err := filters.Logs(b, args[0])
		if err != nil {
			return nil, rpc.InvalidParams(err.Error())
		}
		return logs, nil
	})

	srv.Register("query_status", func(json.RawMessage) (interface{}, *rpc.Error) {
		applied, total, active := b.RestorationStatus()
		return map[string]interface{}{
			"height":                 rpc.Quantity(b.LatestHeight()),
			"restorationActive":      active,
			"restorationChunksDone":  applied,
			"restorationChunksTotal": total,
		}, nil
	})

	srv.Register("block_by_number", func(params json.RawMessage) (interface{}, *rpc.Error) {
		var args []interface{}
		if err := decodeParams(params, &args); err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, rpc.InvalidParams("expected (tag, with_txs)")
		}
		tagStr, _ := args[0].(string)
		withTxs, _ := args[1].(bool)
		height, rerr := resolveHeight(b, tagStr)
		if rerr != nil {
			return nil, rerr
		}
		header, ok, err := b.HeaderByHeight(height)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		if !ok {
			return nil, nil
		}
		body, err := b.BodyByHash(header.Hash())
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		return newBlockView(header, body, withTxs), nil
	})

	srv.Register("block_by_hash", func(params json.RawMessage) (interface{}, *rpc.Error) {
		var args []interface{}
		if err := decodeParams(params, &args); err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, rpc.InvalidParams("expected (hash, with_txs)")
		}
		hashStr, _ := args[0].(string)
		withTxs, _ := args[1].(bool)
		hash, rerr := parseHash(hashStr)
		if rerr != nil {
			return nil, rerr
		}
		header, ok, err := b.HeaderByHash(hash)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		if !ok {
			return nil, nil
		}
		body, err := b.BodyByHash(hash)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		return newBlockView(header, body, withTxs), nil
	})

	srv.Register("transaction", func(params json.RawMessage) (interface{}, *rpc.Error) {
		var args []string
		if err := decodeParams(params, &args); err != nil {
			return nil, err
		}
		if len(args) < 1 {
			return nil, rpc.InvalidParams("expected (hash)")
		}
		hash, rerr := parseHash(args[0])
		if rerr != nil {
			return nil, rerr
		}
		blockHash, index, found, err := b.TxLocator(hash)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		if !found {
			return nil, nil
		}
		body, err := b.BodyByHash(blockHash)
		if err != nil || int(index) >= len(body) {
			return nil, rpc.ServerError("transaction locator out of range")
		}
		return newTransactionView(body[index]), nil
	})

	srv.Register("transaction_receipt", func(params json.RawMessage) (interface{}, *rpc.Error) {
		var args []string
		if err := decodeParams(params, &args); err != nil {
			return nil, err
		}
		if len(args) < 1 {
			return nil, rpc.InvalidParams("expected (hash)")
		}
		hash, rerr := parseHash(args[0])
		if rerr != nil {
			return nil, rerr
		}
		blockHash, index, found, err := b.TxLocator(hash)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		if !found {
			return nil, nil
		}
		receipts, err := b.ReceiptsByHash(blockHash)
		if err != nil || int(index) >= len(receipts) {
			return nil, rpc.ServerError("receipt locator out of range")
		}
		return newReceiptView(receipts[index]), nil
	})

	srv.Register("get_balance", func(params json.RawMessage) (interface{}, *rpc.Error) {
		addr, height, rerr := addrTagParams(b, params)
		if rerr != nil {
			return nil, rerr
		}
		reader, err := b.StateReaderAt(height)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		account, err := reader.ReadAccountData(addr)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		if account == nil {
			return rpc.Quantity(0), nil
		}
		return rpc.Quantity(account.Balance.Uint64()), nil
	})

	srv.Register("get_transaction_count", func(params json.RawMessage) (interface{}, *rpc.Error) {
		addr, height, rerr := addrTagParams(b, params)
		if rerr != nil {
			return nil, rerr
		}
		reader, err := b.StateReaderAt(height)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		account, err := reader.ReadAccountData(addr)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		if account == nil {
			return rpc.Quantity(0), nil
		}
		return rpc.Quantity(account.Nonce), nil
	})

	srv.Register("get_code", func(params json.RawMessage) (interface{}, *rpc.Error) {
		addr, height, rerr := addrTagParams(b, params)
		if rerr != nil {
			return nil, rerr
		}
		reader, err := b.StateReaderAt(height)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		account, err := reader.ReadAccountData(addr)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		if account == nil || !account.HasCode() {
			return rpc.Data(nil), nil
		}
		code, err := reader.ReadAccountCode(account.CodeHash)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		return rpc.Data(code), nil
	})

	srv.Register("send_transaction", func(params json.RawMessage) (interface{}, *rpc.Error) {
		var args []string
		if err := decodeParams(params, &args); err != nil {
			return nil, err
		}
		if len(args) < 1 {
			return nil, rpc.InvalidParams("expected (data)")
		}
		raw, perr := rpc.ParseData(args[0])
		if perr != nil {
			return nil, rpc.InvalidParams(perr.Error())
		}
		hash, err := b.SubmitTransaction(raw)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		return map[string]string{"hash": hash.String()}, nil
	})

	srv.Register("get_abi", func(params json.RawMessage) (interface{}, *rpc.Error) {
		addr, height, rerr := addrTagParams(b, params)
		if rerr != nil {
			return nil, rerr
		}
		reader, err := b.StateReaderAt(height)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		account, err := reader.ReadAccountData(addr)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		if account == nil {
			return rpc.Data(nil), nil
		}
		abi, err := reader.ReadAccountCode(account.AbiHash)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		return rpc.Data(abi), nil
	})

	srv.Register("call", func(params json.RawMessage) (interface{}, *rpc.Error) {
		var args []json.RawMessage
		if err := decodeParams(params, &args); err != nil {
			return nil, err
		}
		if len(args) < 1 {
			return nil, rpc.InvalidParams("expected (request, tag)")
		}
		var raw struct {
			From  string `json:"from"`
			To    string `json:"to"`
			Value string `json:"value"`
			Data  string `json:"data"`
		}
		if err := json.Unmarshal(args[0], &raw); err != nil {
			return nil, rpc.InvalidParams(err.Error())
		}
		tagStr := "latest"
		if len(args) > 1 {
			var t string
			if err := json.Unmarshal(args[1], &t); err == nil {
				tagStr = t
			}
		}
		height, rerr := resolveHeight(b, tagStr)
		if rerr != nil {
			return nil, rerr
		}
		req := CallRequest{Data: []byte{}, Value: uint256.NewInt(0)}
		if raw.From != "" {
			from, rerr := parseAddress(raw.From)
			if rerr != nil {
				return nil, rerr
			}
			req.From = from
		}
		if raw.To != "" {
			to, rerr := parseAddress(raw.To)
			if rerr != nil {
				return nil, rerr
			}
			req.To = &to
		}
		if raw.Value != "" {
			v, err := rpc.ParseQuantity(raw.Value)
			if err != nil {
				return nil, rpc.InvalidParams(err.Error())
			}
			req.Value = uint256.NewInt(v)
		}
		if raw.Data != "" {
			d, err := rpc.ParseData(raw.Data)
			if err != nil {
				return nil, rpc.InvalidParams(err.Error())
			}
			req.Data = d
		}
		out, err := b.Call(req, height)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		return rpc.Data(out), nil
	})

	srv.Register("get_transaction_proof", func(params json.RawMessage) (interface{}, *rpc.Error) {
		var args []string
		if err := decodeParams(params, &args); err != nil {
			return nil, err
		}
		if len(args) < 1 {
			return nil, rpc.InvalidParams("expected (hash)")
		}
		hash, rerr := parseHash(args[0])
		if rerr != nil {
			return nil, rerr
		}
		proof, found, err := b.TransactionProof(hash)
		if err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		if !found {
			return nil, nil
		}
		return rpc.Data(proof), nil
	})

	srv.Register("submit_open_block", func(params json.RawMessage) (interface{}, *rpc.Error) {
		var raw struct {
			ParentHash       string   `json:"parentHash"`
			Timestamp        string   `json:"timestamp"`
			Height           string   `json:"height"`
			TransactionsRoot string   `json:"transactionsRoot"`
			QuotaLimit       string   `json:"quotaLimit"`
			Proof            string   `json:"proof"`
			Version          string   `json:"version"`
			Proposer         string   `json:"proposer"`
			Transactions     []string `json:"transactions"`
		}
		if err := decodeParams(params, &raw); err != nil {
			return nil, err
		}
		parentHash, rerr := parseHash(raw.ParentHash)
		if rerr != nil {
			return nil, rerr
		}
		timestamp, perr := rpc.ParseQuantity(raw.Timestamp)
		if perr != nil {
			return nil, rpc.InvalidParams(perr.Error())
		}
		height, perr := rpc.ParseQuantity(raw.Height)
		if perr != nil {
			return nil, rpc.InvalidParams(perr.Error())
		}
		txRoot, rerr := parseHash(raw.TransactionsRoot)
		if rerr != nil {
			return nil, rerr
		}
		quotaLimit, perr := rpc.ParseQuantity(raw.QuotaLimit)
		if perr != nil {
			return nil, rpc.InvalidParams(perr.Error())
		}
		proof, perr := rpc.ParseData(raw.Proof)
		if perr != nil {
			return nil, rpc.InvalidParams(perr.Error())
		}
		version, perr := rpc.ParseQuantity(raw.Version)
		if perr != nil {
			return nil, rpc.InvalidParams(perr.Error())
		}
		proposer, rerr := parseAddress(raw.Proposer)
		if rerr != nil {
			return nil, rerr
		}
		txs := make([]*types.SignedTransaction, len(raw.Transactions))
		for i, txHex := range raw.Transactions {
			data, perr := rpc.ParseData(txHex)
			if perr != nil {
				return nil, rpc.InvalidParams(perr.Error())
			}
			tx, err := types.DecodeSignedTransaction(data, true)
			if err != nil {
				tx, err = types.DecodeSignedTransaction(data, false)
			}
			if err != nil {
				return nil, rpc.InvalidParams("transaction " + rpc.Quantity(uint64(i)) + ": " + err.Error())
			}
			txs[i] = tx
		}
		header := types.OpenHeader{
			ParentHash:       parentHash,
			Timestamp:        timestamp,
			Height:           height,
			TransactionsRoot: txRoot,
			QuotaLimit:       quotaLimit,
			Proof:            proof,
			Version:          uint32(version),
			Proposer:         proposer,
		}
		if err := b.SubmitOpenBlock(header, txs); err != nil {
			return nil, rpc.ServerError(err.Error())
		}
		return nil, nil
	})

	srv.Register("get_meta_data", func(params json.RawMessage) (interface{}, *rpc.Error) {
		var args []string
		_ = decodeParams(params, &args) // tag is optional; missing or undecodable params mean latest, a tag that does not parse is rejected below
		tagStr := "latest"
		if len(args) > 0 {
			tagStr = args[0]
		}
		height, rerr := resolveHeight(b, tagStr)
		if rerr != nil {
			return nil, rerr
		}
		cfg := b.SysConfig()
		return map[string]interface{}{
			"chainId":         rpc.Quantity(cfg.GetChainID(height)),
			"chainName":       cfg.GetChainName(height),
			"operator":        cfg.GetOperator(height),
			"website":         cfg.GetWebsite(height),
			"economicalModel": uint8(cfg.GetEconomicalModel(height)),
			"token":           cfg.GetTokenInfo(height),
		}, nil
	})
}

func addrTagParams(b Backend, params json.RawMessage) (common.Address, uint64, *rpc.Error) {
	var args []string
	if err := decodeParams(params, &args); err != nil {
		return common.Address{}, 0, err
	}
	if len(args) < 1 {
		return common.Address{}, 0, rpc.InvalidParams("expected (addr, tag)")
	}
	tagStr := "latest"
	if len(args) > 1 {
		tagStr = args[1]
	}
	height, rerr := resolveHeight(b, tagStr)
	if rerr != nil {
		return common.Address{}, 0, rerr
	}
	addr, rerr := parseAddress(args[0])
	if rerr != nil {
		return common.Address{}, 0, rerr
	}
	return addr, height, nil
}
