package types

import (
	"strconv"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/rlp"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// CryptoKind is the signature scheme a signed transaction declares. SM2
// has no suitable Go ecosystem library available; its recovery path
// returns an unsupportedCryptoKindError rather than being silently treated as
// SECP256K1.
type CryptoKind uint8

const (
	CryptoSECP256K1 CryptoKind = iota
	CryptoSM2
)

// Transaction is the version-agnostic unsigned body. Version 0
// transactions carry Nonce as a decimal string (matching the original's
// U256-as-decimal-string convention); version 1+ transactions are expected
// to carry a canonical numeric nonce, but this repo keeps the string
// representation uniformly and normalizes on compare (NonceUint64), since
// the wire format never changed the nonce field's encoding, only how it is
// compared at validation time.
type Transaction struct {
	Nonce           string
	GasPrice        *uint256.Int
	Gas             uint64
	Action          Action
	Value           *uint256.Int
	Data            []byte
	ValidUntilBlock uint64

	// Version 1+ fields; zero/absent at version 0.
	ChainID uint64
	Version uint32
}

// NonceUint64 parses Nonce as a decimal integer; v1+ validation compares
// numerically.
func (tx *Transaction) NonceUint64() (uint64, bool) {
	n, err := strconv.ParseUint(tx.Nonce, 10, 64)
	return n, err == nil
}

// IntrinsicQuota is the base quota charge: constant + 64 per nonzero data
// byte + 4 per zero data byte.
const (
	baseIntrinsicQuota   = 21000
	nonZeroByteQuota     = 64
	zeroByteQuota        = 4
)

func (tx *Transaction) IntrinsicQuota() uint64 {
	total := uint64(baseIntrinsicQuota)
	for _, b := range tx.Data {
		if b == 0 {
			total += zeroByteQuota
		} else {
			total += nonZeroByteQuota
		}
	}
	return total
}

func (tx *Transaction) unsignedFields(includeVersion bool) [][]byte {
	fields := [][]byte{
		rlp.EncodeString(tx.Nonce),
		rlp.EncodeBytes(tx.GasPrice.Bytes()),
		rlp.EncodeUint64(tx.Gas),
		rlp.EncodeBytes(EncodeAction(tx.Action)),
		rlp.EncodeBytes(tx.Value.Bytes()),
		rlp.EncodeBytes(tx.Data),
		rlp.EncodeUint64(tx.ValidUntilBlock),
	}
	if includeVersion {
		fields = append(fields,
			rlp.EncodeUint64(tx.ChainID),
			rlp.EncodeUint64(uint64(tx.Version)),
		)
	}
	return fields
}

// EncodeUnsigned is the payload that gets signed: v0's 7 fields, or v1+'s 9
// fields.
func (tx *Transaction) EncodeUnsigned() []byte {
	return rlp.EncodeList(tx.unsignedFields(tx.Version > 0)...)
}

// UnsignedHash is the message a sender's signature is computed over: the
// unsigned body only, so recovery never depends on the signature it is
// itself verifying.
func (tx *Transaction) UnsignedHash() common.Hash {
	return common.CryptHash(tx.EncodeUnsigned())
}

// SignedTransaction is a Transaction plus its signature envelope. Hash and
// Sender memoize their results in plain pointer fields (not atomically) that
// are never invalidated.
type SignedTransaction struct {
	Transaction
	Signature  []byte
	CryptoKind CryptoKind

	hash   *common.Hash
	sender *common.Address
}

// Hash is keccak256 of the full signed-transaction encoding.
func (tx *SignedTransaction) Hash() common.Hash {
	if tx.hash != nil {
		return *tx.hash
	}
	h := common.CryptHash(tx.Encode())
	tx.hash = &h
	return h
}

// Encode is the canonical wire encoding: the length-prefixed encoding of
// (unsigned-fields list, signature, crypto_kind). The transaction hash is
// not part of the encoding; Hash computes it from these bytes.
func (tx *SignedTransaction) Encode() []byte {
	unsignedList := rlp.EncodeList(tx.unsignedFields(tx.Version > 0)...)
	return rlp.EncodeList(
		unsignedList,
		rlp.EncodeBytes(tx.Signature),
		rlp.EncodeUint64(uint64(tx.CryptoKind)),
	)
}

// DecodeSignedTransaction parses the wire format. isV1 tells the decoder
// whether to expect the 9-field or 7-field unsigned body, since the outer
// envelope alone does not distinguish version (the version field lives
// inside the unsigned body for v1+, and v0 has no version field at all);
// callers that don't know in advance can try v1 first and fall back.
func DecodeSignedTransaction(data []byte, isV1 bool) (*SignedTransaction, error) {
	items, err := rlp.DecodeList(data)
	if err != nil {
		return nil, err
	}
	r := rlp.NewListReader(items)
	unsignedItems, err := r.List("unsigned")
	if err != nil {
		return nil, err
	}
	tx, err := decodeUnsigned(unsignedItems, isV1)
	if err != nil {
		return nil, err
	}
	sig, err := r.Bytes("signature")
	if err != nil {
		return nil, err
	}
	kind, err := r.Uint64("crypto_kind")
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{Transaction: *tx, Signature: sig, CryptoKind: CryptoKind(kind)}, nil
}

func decodeUnsigned(items []*rlp.Value, isV1 bool) (*Transaction, error) {
	r := rlp.NewListReader(items)
	nonceB, err := r.Bytes("nonce")
	if err != nil {
		return nil, err
	}
	gasPriceB, err := r.Bytes("gas_price")
	if err != nil {
		return nil, err
	}
	gas, err := r.Uint64("gas")
	if err != nil {
		return nil, err
	}
	actionB, err := r.Bytes("action")
	if err != nil {
		return nil, err
	}
	action, err := DecodeAction(actionB)
	if err != nil {
		return nil, err
	}
	valueB, err := r.Bytes("value")
	if err != nil {
		return nil, err
	}
	if len(valueB) > 32 {
		return nil, &rlp.DecodeError{Kind: rlp.KindBadWidth, Msg: "value exceeds 32 bytes"}
	}
	data, err := r.Bytes("data")
	if err != nil {
		return nil, err
	}
	validUntil, err := r.Uint64("valid_until_block")
	if err != nil {
		return nil, err
	}
	tx := &Transaction{
		Nonce:           string(nonceB),
		GasPrice:        new(uint256.Int).SetBytes(gasPriceB),
		Gas:             gas,
		Action:          action,
		Value:           new(uint256.Int).SetBytes(valueB),
		Data:            data,
		ValidUntilBlock: validUntil,
	}
	if isV1 {
		chainID, err := r.Uint64("chain_id")
		if err != nil {
			return nil, err
		}
		version, err := r.Uint32("version")
		if err != nil {
			return nil, err
		}
		tx.ChainID = chainID
		tx.Version = version
	}
	return tx, nil
}

// unsupportedCryptoKindError is returned when recovery is requested for a
// crypto kind this repo cannot verify (SM2: no suitable library in the
// ecosystem).
type unsupportedCryptoKindError struct{ kind CryptoKind }

func (e *unsupportedCryptoKindError) Error() string { return "unsupported crypto kind" }

// Sender recovers and caches the sender address from (hash, signature,
// crypto_kind); recovery is deterministic, so the result is cached after
// the first call.
func (tx *SignedTransaction) Sender() (common.Address, error) {
	if tx.sender != nil {
		return *tx.sender, nil
	}
	switch tx.CryptoKind {
	case CryptoSECP256K1:
		addr, err := recoverSecp256k1(tx.UnsignedHash(), tx.Signature)
		if err != nil {
			return common.Address{}, err
		}
		tx.sender = &addr
		return addr, nil
	default:
		return common.Address{}, &unsupportedCryptoKindError{kind: tx.CryptoKind}
	}
}

// recoverSecp256k1 expects a 65-byte [R(32) S(32) V(1)] signature, the same
// layout as the ec-recover precompile (core/vm/precompiles), and derives
// the sender address as keccak256(pubkey)[12:].
func recoverSecp256k1(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, &rlp.DecodeError{Kind: rlp.KindBadWidth, Msg: "signature must be 65 bytes"}
	}
	var compact [65]byte
	compact[0] = sig[64] + 27
	copy(compact[1:], sig[:64])
	pub, _, err := ecdsa.RecoverCompact(compact[:], hash[:])
	if err != nil {
		return common.Address{}, err
	}
	return pubkeyToAddress(pub), nil
}

func pubkeyToAddress(pub *secp256k1.PublicKey) common.Address {
	uncompressed := pub.SerializeUncompressed()
	d := sha3.NewLegacyKeccak256()
	d.Write(uncompressed[1:]) // drop the 0x04 prefix
	sum := d.Sum(nil)
	return common.BytesToAddress(sum[12:])
}
