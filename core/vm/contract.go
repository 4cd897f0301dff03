package vm

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/rlp"
)

// NewContractAddress computes the address a CREATE/GoCreate at (sender,
// senderNonce) installs code at: hash(rlp(sender ‖ sender_nonce))[12:],
// using whichever HashFunc the chain has configured.
func NewContractAddress(sender common.Address, senderNonce uint64) common.Address {
	enc := rlp.EncodeList(rlp.EncodeBytes(sender[:]), rlp.EncodeUint64(senderNonce))
	h := common.CryptHash(enc)
	return common.BytesToAddress(h[common.HashLength-common.AddressLength:])
}
