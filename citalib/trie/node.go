// Package trie implements an authenticated Merkle-Patricia mapping:
// address -> account root, with a per-account storage trie, both over the
// same Merkle-Patricia node shapes (empty/leaf/extension/branch, with
// partial keys kept as raw nibbles rather than hex-prefix encoded), each
// node content-addressed by the hash of its encoding. Nodes
// live in a citalib/kv column keyed by hash; a mutating trie never edits a
// node in place, it produces a new root. Grounded on the general erigon/
// geth trie node-type shape; no pluggable-backend Patricia trie library
// exists in the ecosystem to wire instead.
package trie

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/rlp"
)

// NodeKind tags the closed set of node shapes.
type NodeKind uint8

const (
	KindEmpty NodeKind = iota
	KindLeaf
	KindExtension
	KindBranch
)

// Node is one trie node. Branch holds 16 child hashes (nibble-indexed) plus
// an optional value at the branch itself; Leaf/Extension hold a partial
// key as raw nibbles plus either a value (leaf) or a child hash
// (extension).
type Node struct {
	Kind     NodeKind
	Key      []byte // raw nibbles, half-byte each, no hex-prefix encoding
	Value    []byte
	Child    common.Hash    // extension: child node hash
	Children [16]common.Hash // branch: 16 nibble-indexed child hashes (zero = empty)
	HasValue bool            // branch: whether Value is set at this node
}

// Encode produces the canonical structural encoding this node hashes to.
// Tag byte first so Decode is self-describing without external context.
func (n *Node) Encode() []byte {
	switch n.Kind {
	case KindEmpty:
		return rlp.EncodeList(rlp.EncodeBytes([]byte{byte(KindEmpty)}))
	case KindLeaf:
		return rlp.EncodeList(
			rlp.EncodeBytes([]byte{byte(KindLeaf)}),
			rlp.EncodeBytes(n.Key),
			rlp.EncodeBytes(n.Value),
		)
	case KindExtension:
		return rlp.EncodeList(
			rlp.EncodeBytes([]byte{byte(KindExtension)}),
			rlp.EncodeBytes(n.Key),
			rlp.EncodeBytes(n.Child[:]),
		)
	case KindBranch:
		items := make([][]byte, 0, 18)
		items = append(items, rlp.EncodeBytes([]byte{byte(KindBranch)}))
		for i := 0; i < 16; i++ {
			items = append(items, rlp.EncodeBytes(n.Children[i][:]))
		}
		if n.HasValue {
			items = append(items, rlp.EncodeBytes(n.Value))
		} else {
			items = append(items, rlp.EncodeBytes(nil))
		}
		return rlp.EncodeList(items...)
	default:
		panic("trie: unknown node kind")
	}
}

// Hash returns the content address of the node's encoding.
func (n *Node) Hash() common.Hash {
	return common.CryptHash(n.Encode())
}

// DecodeNode parses a previously Encode()-d buffer back into a Node.
func DecodeNode(data []byte) (*Node, error) {
	items, err := rlp.DecodeList(data)
	if err != nil {
		return nil, err
	}
	r := rlp.NewListReader(items)
	tagB, err := r.Bytes("kind")
	if err != nil {
		return nil, err
	}
	kind := NodeKind(0)
	if len(tagB) == 1 {
		kind = NodeKind(tagB[0])
	}
	switch kind {
	case KindEmpty:
		return &Node{Kind: KindEmpty}, nil
	case KindLeaf:
		key, err := r.Bytes("key")
		if err != nil {
			return nil, err
		}
		val, err := r.Bytes("value")
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindLeaf, Key: key, Value: val}, nil
	case KindExtension:
		key, err := r.Bytes("key")
		if err != nil {
			return nil, err
		}
		child, err := r.FixedBytes("child", common.HashLength)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindExtension, Key: key, Child: common.BytesToHash(child)}, nil
	case KindBranch:
		n := &Node{Kind: KindBranch}
		for i := 0; i < 16; i++ {
			c, err := r.FixedBytes("child", common.HashLength)
			if err != nil {
				return nil, err
			}
			n.Children[i] = common.BytesToHash(c)
		}
		val, err := r.Bytes("value")
		if err != nil {
			return nil, err
		}
		if val != nil {
			n.HasValue = true
			n.Value = val
		}
		return n, nil
	default:
		return nil, &rlp.DecodeError{Kind: rlp.KindBadWidth, Msg: "unknown trie node kind"}
	}
}
