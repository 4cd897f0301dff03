package types

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/rlp"
)

// ReceiptError is the closed set of fallible outcomes a receipt can record.
// It is never exposed as a generic error at the receipt boundary: every
// fallible operation returns one of these kinds, attached to the receipt,
// rather than a bare `error`.
type ReceiptError uint8

const (
	ErrNone ReceiptError = iota
	ErrInvalidNonce
	ErrInvalidTransaction
	ErrNotEnoughBaseQuota
	ErrNotEnoughBalance
	ErrBlockQuotaLimitReached
	ErrAccountQuotaLimitReached
	ErrOutOfQuota
	ErrBadJump
	ErrBadInstruction
	ErrStackUnderflow
	ErrStackOverflow
	ErrOutOfBounds
	ErrMutableCallInStaticContext
	ErrReverted
	ErrNoTransactionPermission
	ErrNoCallPermission
	ErrNoContractPermission
	ErrExecutionInternal
)

func (e ReceiptError) String() string {
	switch e {
	case ErrNone:
		return ""
	case ErrInvalidNonce:
		return "InvalidNonce"
	case ErrInvalidTransaction:
		return "InvalidTransaction"
	case ErrNotEnoughBaseQuota:
		return "NotEnoughBaseQuota"
	case ErrNotEnoughBalance:
		return "NotEnoughBalance"
	case ErrBlockQuotaLimitReached:
		return "BlockQuotaLimitReached"
	case ErrAccountQuotaLimitReached:
		return "AccountQuotaLimitReached"
	case ErrOutOfQuota:
		return "OutOfQuota"
	case ErrBadJump:
		return "BadJump"
	case ErrBadInstruction:
		return "BadInstruction"
	case ErrStackUnderflow:
		return "StackUnderflow"
	case ErrStackOverflow:
		return "StackOverflow"
	case ErrOutOfBounds:
		return "OutOfBounds"
	case ErrMutableCallInStaticContext:
		return "MutableCallInStaticContext"
	case ErrReverted:
		return "Reverted"
	case ErrNoTransactionPermission:
		return "NoTransactionPermission"
	case ErrNoCallPermission:
		return "NoCallPermission"
	case ErrNoContractPermission:
		return "NoContractPermission"
	case ErrExecutionInternal:
		return "ExecutionInternal"
	default:
		return "Unknown"
	}
}

// IsMachineException reports whether e is one of the machine-exception
// kinds that charge the transaction's full declared gas, as opposed to Reverted/Internal which charge only what ran.
func (e ReceiptError) IsMachineException() bool {
	switch e {
	case ErrOutOfQuota, ErrBadJump, ErrBadInstruction, ErrStackUnderflow,
		ErrStackOverflow, ErrOutOfBounds, ErrMutableCallInStaticContext:
		return true
	default:
		return false
	}
}

// LogEntry is one emitted event.
type LogEntry struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

func (l *LogEntry) Encode() []byte {
	topics := make([][]byte, len(l.Topics))
	for i, t := range l.Topics {
		topics[i] = rlp.EncodeBytes(t[:])
	}
	return rlp.EncodeList(
		rlp.EncodeBytes(l.Address[:]),
		rlp.EncodeList(topics...),
		rlp.EncodeBytes(l.Data),
	)
}

func DecodeLogEntry(data []byte) (*LogEntry, error) {
	items, err := rlp.DecodeList(data)
	if err != nil {
		return nil, err
	}
	r := rlp.NewListReader(items)
	addrB, err := r.FixedBytes("address", common.AddressLength)
	if err != nil {
		return nil, err
	}
	topicItems, err := r.List("topics")
	if err != nil {
		return nil, err
	}
	topics := make([]common.Hash, len(topicItems))
	for i, ti := range topicItems {
		if ti.IsList || len(ti.Bytes) != common.HashLength {
			return nil, &rlp.DecodeError{Kind: rlp.KindBadWidth, Msg: "topic"}
		}
		topics[i] = common.BytesToHash(ti.Bytes)
	}
	logData, err := r.Bytes("data")
	if err != nil {
		return nil, err
	}
	return &LogEntry{Address: common.BytesToAddress(addrB), Topics: topics, Data: logData}, nil
}

// BloomKeys returns the (address, topic) byte strings "Bloom soundness"
// requires be contained in the block's log bloom.
func (l *LogEntry) BloomKeys() [][]byte {
	keys := make([][]byte, 0, 1+len(l.Topics))
	keys = append(keys, l.Address.Bytes())
	for _, t := range l.Topics {
		keys = append(keys, t.Bytes())
	}
	return keys
}

// Receipt is the immutable record produced at apply time.
type Receipt struct {
	CumulativeQuota uint64
	Logs            []*LogEntry
	Error           ReceiptError
	AccountNonce    uint64
	TxHash          common.Hash
	ContractAddress *common.Address
}

func (r *Receipt) Bloom() common.Bloom {
	var b common.Bloom
	for _, l := range r.Logs {
		for _, k := range l.BloomKeys() {
			b.Add(k)
		}
	}
	return b
}

func (r *Receipt) Encode() []byte {
	logs := make([][]byte, len(r.Logs))
	for i, l := range r.Logs {
		logs[i] = l.Encode()
	}
	contractAddr := []byte{}
	if r.ContractAddress != nil {
		contractAddr = r.ContractAddress.Bytes()
	}
	return rlp.EncodeList(
		rlp.EncodeUint64(r.CumulativeQuota),
		rlp.EncodeList(logs...),
		rlp.EncodeUint64(uint64(r.Error)),
		rlp.EncodeUint64(r.AccountNonce),
		rlp.EncodeBytes(r.TxHash[:]),
		rlp.EncodeBytes(contractAddr),
	)
}

func DecodeReceipt(data []byte) (*Receipt, error) {
	items, err := rlp.DecodeList(data)
	if err != nil {
		return nil, err
	}
	r := rlp.NewListReader(items)
	cq, err := r.Uint64("cumulative_quota")
	if err != nil {
		return nil, err
	}
	logItems, err := r.List("logs")
	if err != nil {
		return nil, err
	}
	logs := make([]*LogEntry, len(logItems))
	for i, li := range logItems {
		// li is already a decoded list Value; re-encode-decode is avoided by
		// constructing a ListReader directly over its items.
		lr := rlp.NewListReader(li.Items)
		addrB, err := lr.FixedBytes("address", common.AddressLength)
		if err != nil {
			return nil, err
		}
		topicItems, err := lr.List("topics")
		if err != nil {
			return nil, err
		}
		topics := make([]common.Hash, len(topicItems))
		for j, ti := range topicItems {
			topics[j] = common.BytesToHash(ti.Bytes)
		}
		logData, err := lr.Bytes("data")
		if err != nil {
			return nil, err
		}
		logs[i] = &LogEntry{Address: common.BytesToAddress(addrB), Topics: topics, Data: logData}
	}
	errKind, err := r.Uint64("error")
	if err != nil {
		return nil, err
	}
	nonce, err := r.Uint64("account_nonce")
	if err != nil {
		return nil, err
	}
	txHashB, err := r.FixedBytes("tx_hash", common.HashLength)
	if err != nil {
		return nil, err
	}
	contractB, err := r.Bytes("contract_address")
	if err != nil {
		return nil, err
	}
	rec := &Receipt{
		CumulativeQuota: cq,
		Logs:            logs,
		Error:           ReceiptError(errKind),
		AccountNonce:    nonce,
		TxHash:          common.BytesToHash(txHashB),
	}
	if len(contractB) == common.AddressLength {
		addr := common.BytesToAddress(contractB)
		rec.ContractAddress = &addr
	}
	return rec, nil
}

// MerkleReceiptsRoot computes the receipts root over receipts in
// transaction order.
func MerkleReceiptsRoot(receipts []*Receipt) common.Hash {
	hashes := make([][]byte, len(receipts))
	for i, r := range receipts {
		hashes[i] = common.CryptHash(r.Encode()).Bytes()
	}
	return merkleRoot(hashes)
}

// merkleRoot is a simple binary Merkle tree over already-hashed leaves,
// duplicating the last leaf on an odd level (the conventional construction
// the merkle-root construction leaves unspecified in detail).
func merkleRoot(leaves [][]byte) common.Hash {
	if len(leaves) == 0 {
		return common.Hash{}
	}
	level := leaves
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, common.CryptHash(level[i], level[i+1]).Bytes())
			} else {
				next = append(next, common.CryptHash(level[i], level[i]).Bytes())
			}
		}
		level = next
	}
	return common.BytesToHash(level[0])
}
