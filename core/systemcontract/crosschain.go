package systemcontract

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/storage"
	"github.com/citahub/cita-sub003/citalib/trie"
)

// CrossChainVerifyAddress is the reserved address the cross-chain verify
// native contract answers calls at.
var CrossChainVerifyAddress = common.BytesToAddress([]byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x10,
})

var (
	crossChainHeaderPos    = common.Keccak256([]byte("systemcontract.CrossChain.headers"))
	crossChainStateRootPos = common.Keccak256([]byte("systemcontract.CrossChain.stateRoots"))
)

// HeaderChainLink is the minimal header shape cross-chain verification
// needs: enough to chain parent hashes and recompute the header's own
// hash, without depending on core/types.Header (which would pull the
// whole block model into a contract package).
type HeaderChainLink struct {
	ParentHash common.Hash
	Height     uint64
	StateRoot  common.Hash
	Encoding   []byte // the full encoding this header's Hash() is over
}

// AuthoritySetProvider is the chain-manager collaborator that supplies the
// authority set a foreign chain's transaction proof must be signed by.
type AuthoritySetProvider interface {
	Authorities(chainID uint64) ([]common.Address, error)
}

// StateProof is an inclusion/exclusion proof against a previously recorded
// state root, built the same way citalib/trie.Recorder records one.
type StateProof struct {
	Key      []byte
	Value    []byte // nil for an exclusion proof
	Entries  []trie.RecordedNode
}

// TxProof is a transaction's inclusion proof plus the authority signatures
// attesting to the block it was included in.
type TxProof struct {
	BlockHash  common.Hash
	ChainID    uint64
	Signatures []common.Address // recovered signer addresses, already verified by the caller
}

// CrossChainVerify tracks, per foreign chain-id, the latest verified
// header and the state roots recorded at each height, and verifies state
// and transaction proofs against that record.
type CrossChainVerify struct {
	headers    storage.Map // chain-id -> latest verified header hash
	heights    storage.Map // chain-id -> latest verified height
	stateRoots storage.Map // (chain-id, height) -> state root
	authorities AuthoritySetProvider
}

func NewCrossChainVerify(acc storage.Accessor, authorities AuthoritySetProvider) *CrossChainVerify {
	return &CrossChainVerify{
		headers:     storage.NewMap(acc, crossChainHeaderPos),
		heights:     storage.NewMap(acc, common.CryptHash(crossChainHeaderPos[:], []byte("height"))),
		stateRoots:  storage.NewMap(acc, crossChainStateRootPos),
		authorities: authorities,
	}
}

func chainIDKey(chainID uint64) []byte { return common.BigEndianHash(chainID).Bytes() }

func heightKey(chainID, height uint64) []byte {
	return append(append([]byte{}, chainIDKey(chainID)...), common.BigEndianHash(height).Bytes()...)
}

// VerifyHeaderChain validates that each link's ParentHash matches the
// previous link's hash and that the chain extends the last header this
// contract has recorded for chainID, then records each link's state root at
// its height and the last link as the new head. It rejects a chain that
// does not extend the recorded head, and records nothing for a rejected
// chain.
func (c *CrossChainVerify) VerifyHeaderChain(chainID uint64, links []HeaderChainLink) bool {
	if len(links) == 0 {
		return false
	}
	expectedParent := common.BytesToHash(c.headers.Get(chainIDKey(chainID)).Bytes())
	haveRecorded := expectedParent != (common.Hash{})
	for i, link := range links {
		if haveRecorded && i == 0 && link.ParentHash != expectedParent {
			return false
		}
		if i > 0 && link.ParentHash != common.CryptHash(links[i-1].Encoding) {
			return false
		}
	}
	for _, link := range links {
		c.stateRoots.Set(heightKey(chainID, link.Height), link.StateRoot)
	}
	last := links[len(links)-1]
	c.headers.Set(chainIDKey(chainID), common.CryptHash(last.Encoding))
	c.heights.Set(chainIDKey(chainID), common.BigEndianHash(last.Height))
	return true
}

// VerifyStateProof checks proof against the state root this contract
// recorded for (chainID, height).
func (c *CrossChainVerify) VerifyStateProof(chainID, height uint64, proof StateProof) bool {
	root := c.stateRoots.Get(heightKey(chainID, height))
	return trie.VerifyProof(root, proof.Key, proof.Value, proof.Entries)
}

// VerifyTxProof checks that proof.Signatures come from more than two thirds
// of the authority set chain-manager reports for chainID.
func (c *CrossChainVerify) VerifyTxProof(proof TxProof) bool {
	if c.authorities == nil {
		return false
	}
	authorities, err := c.authorities.Authorities(proof.ChainID)
	if err != nil || len(authorities) == 0 {
		return false
	}
	authSet := make(map[common.Address]struct{}, len(authorities))
	for _, a := range authorities {
		authSet[a] = struct{}{}
	}
	signed := 0
	seen := make(map[common.Address]struct{})
	for _, s := range proof.Signatures {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		if _, ok := authSet[s]; ok {
			signed++
		}
	}
	return signed*3 > len(authorities)*2 // 2/3+ supermajority, the conventional BFT threshold
}
