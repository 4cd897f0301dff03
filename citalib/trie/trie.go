package trie

import (
	"github.com/citahub/cita-sub003/citalib/common"
)

// NodeStore is the hash -> encoding mapping the trie persists through;
// citalib/kv's State column backs the production implementation, but unit
// tests can substitute an in-memory map directly.
type NodeStore interface {
	GetNode(hash common.Hash) (*Node, bool, error)
	PutNode(node *Node) (common.Hash, error)
}

// MapNodeStore is a trivial in-memory NodeStore, used by tests and by any
// component (snapshot restoration) that materializes a trie outside of the
// main chain database.
type MapNodeStore struct {
	nodes map[common.Hash][]byte
}

func NewMapNodeStore() *MapNodeStore { return &MapNodeStore{nodes: make(map[common.Hash][]byte)} }

func (s *MapNodeStore) GetNode(hash common.Hash) (*Node, bool, error) {
	enc, ok := s.nodes[hash]
	if !ok {
		return nil, false, nil
	}
	n, err := DecodeNode(enc)
	return n, err == nil, err
}

func (s *MapNodeStore) PutNode(n *Node) (common.Hash, error) {
	enc := n.Encode()
	h := common.CryptHash(enc)
	s.nodes[h] = enc
	return h, nil
}

// Trie is an authenticated address -> value mapping. It never mutates a
// node in place; every Update/Delete returns a new root hash, leaving
// earlier roots (and the nodes they still reference) intact in the store.
type Trie struct {
	store NodeStore
	root  common.Hash
	rec   *Recorder
}

func New(store NodeStore, root common.Hash) *Trie { return &Trie{store: store, root: root} }

func (t *Trie) Root() common.Hash { return t.root }

// SetRecorder attaches a proof recorder; every node visited by a Get call
// made while it is attached is emitted to it.
func (t *Trie) SetRecorder(r *Recorder) { t.rec = r }

// Recorder accumulates the nodes visited on a lookup, in depth order, for
// proof construction. MinDepth skips the upper layers.
type Recorder struct {
	MinDepth int
	Entries  []RecordedNode
}

type RecordedNode struct {
	Depth    int
	Hash     common.Hash
	Encoding []byte
}

func (r *Recorder) record(depth int, hash common.Hash, enc []byte) {
	if r == nil || depth < r.MinDepth {
		return
	}
	r.Entries = append(r.Entries, RecordedNode{Depth: depth, Hash: hash, Encoding: enc})
}

// Get returns the value stored at key and whether it was found. A missing
// key is proven by the final non-match in the recorded trace.
func (t *Trie) Get(key []byte) ([]byte, bool, error) {
	path := keyToNibbles(key)
	return t.getAt(t.root, path, 0)
}

func (t *Trie) getAt(hash common.Hash, path []byte, depth int) ([]byte, bool, error) {
	if hash.IsZero() {
		return nil, false, nil
	}
	n, ok, err := t.store.GetNode(hash)
	if err != nil || !ok {
		return nil, false, err
	}
	t.rec.record(depth, hash, n.Encode())
	switch n.Kind {
	case KindEmpty:
		return nil, false, nil
	case KindLeaf:
		if commonPrefixLen(n.Key, path) == len(n.Key) && len(n.Key) == len(path) {
			return n.Value, true, nil
		}
		return nil, false, nil
	case KindExtension:
		pl := commonPrefixLen(n.Key, path)
		if pl != len(n.Key) {
			return nil, false, nil
		}
		return t.getAt(n.Child, path[pl:], depth+1)
	case KindBranch:
		if len(path) == 0 {
			if n.HasValue {
				return n.Value, true, nil
			}
			return nil, false, nil
		}
		return t.getAt(n.Children[path[0]], path[1:], depth+1)
	default:
		return nil, false, nil
	}
}

// Update inserts or overwrites key->value and returns the new root.
func (t *Trie) Update(key, value []byte) (common.Hash, error) {
	path := keyToNibbles(key)
	newRoot, err := t.insertAt(t.root, path, value)
	if err != nil {
		return common.Hash{}, err
	}
	t.root = newRoot
	return newRoot, nil
}

func (t *Trie) insertAt(hash common.Hash, path, value []byte) (common.Hash, error) {
	if hash.IsZero() {
		leaf := &Node{Kind: KindLeaf, Key: path, Value: value}
		return t.store.PutNode(leaf)
	}
	n, ok, err := t.store.GetNode(hash)
	if err != nil || !ok {
		return common.Hash{}, err
	}
	switch n.Kind {
	case KindLeaf:
		if equalBytes(n.Key, path) {
			return t.store.PutNode(&Node{Kind: KindLeaf, Key: path, Value: value})
		}
		return t.splitLeafOrExtension(n.Key, n.Value, false, path, value)
	case KindExtension:
		pl := commonPrefixLen(n.Key, path)
		if pl == len(n.Key) {
			childRoot, err := t.insertAt(n.Child, path[pl:], value)
			if err != nil {
				return common.Hash{}, err
			}
			return t.store.PutNode(&Node{Kind: KindExtension, Key: n.Key, Child: childRoot})
		}
		return t.splitExtension(n, pl, path, value)
	case KindBranch:
		if len(path) == 0 {
			n.HasValue = true
			n.Value = value
			return t.store.PutNode(n)
		}
		childRoot, err := t.insertAt(n.Children[path[0]], path[1:], value)
		if err != nil {
			return common.Hash{}, err
		}
		n.Children[path[0]] = childRoot
		return t.store.PutNode(n)
	default:
		leaf := &Node{Kind: KindLeaf, Key: path, Value: value}
		return t.store.PutNode(leaf)
	}
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// splitLeafOrExtension builds a branch node when a new key diverges from an
// existing leaf's key at some common prefix.
func (t *Trie) splitLeafOrExtension(existingKey, existingValue []byte, existingIsBranchChild bool, newKey, newValue []byte) (common.Hash, error) {
	pl := commonPrefixLen(existingKey, newKey)
	branch := &Node{Kind: KindBranch}

	placeInBranch := func(key, value []byte) (common.Hash, error) {
		if len(key) == 0 {
			branch.HasValue = true
			branch.Value = value
			return common.Hash{}, nil
		}
		leaf := &Node{Kind: KindLeaf, Key: key[1:], Value: value}
		h, err := t.store.PutNode(leaf)
		if err != nil {
			return common.Hash{}, err
		}
		branch.Children[key[0]] = h
		return h, nil
	}
	if _, err := placeInBranch(existingKey[pl:], existingValue); err != nil {
		return common.Hash{}, err
	}
	if _, err := placeInBranch(newKey[pl:], newValue); err != nil {
		return common.Hash{}, err
	}
	branchHash, err := t.store.PutNode(branch)
	if err != nil {
		return common.Hash{}, err
	}
	if pl == 0 {
		return branchHash, nil
	}
	return t.store.PutNode(&Node{Kind: KindExtension, Key: existingKey[:pl], Child: branchHash})
}

// splitExtension handles the case where a new key diverges from an
// extension node's shared prefix partway through.
func (t *Trie) splitExtension(ext *Node, pl int, newKey, newValue []byte) (common.Hash, error) {
	branch := &Node{Kind: KindBranch}

	// existing extension's remaining path continues to its original child.
	remaining := ext.Key[pl:]
	if len(remaining) == 1 {
		branch.Children[remaining[0]] = ext.Child
	} else {
		extTail, err := t.store.PutNode(&Node{Kind: KindExtension, Key: remaining[1:], Child: ext.Child})
		if err != nil {
			return common.Hash{}, err
		}
		branch.Children[remaining[0]] = extTail
	}

	newRemaining := newKey[pl:]
	if len(newRemaining) == 0 {
		branch.HasValue = true
		branch.Value = newValue
	} else {
		leaf := &Node{Kind: KindLeaf, Key: newRemaining[1:], Value: newValue}
		h, err := t.store.PutNode(leaf)
		if err != nil {
			return common.Hash{}, err
		}
		branch.Children[newRemaining[0]] = h
	}

	branchHash, err := t.store.PutNode(branch)
	if err != nil {
		return common.Hash{}, err
	}
	if pl == 0 {
		return branchHash, nil
	}
	return t.store.PutNode(&Node{Kind: KindExtension, Key: ext.Key[:pl], Child: branchHash})
}

// Delete removes key, returning the new root. Deleting a non-existent key
// is a no-op.
func (t *Trie) Delete(key []byte) (common.Hash, error) {
	path := keyToNibbles(key)
	newRoot, _, err := t.deleteAt(t.root, path)
	if err != nil {
		return common.Hash{}, err
	}
	t.root = newRoot
	return newRoot, nil
}

func (t *Trie) deleteAt(hash common.Hash, path []byte) (common.Hash, bool, error) {
	if hash.IsZero() {
		return common.Hash{}, false, nil
	}
	n, ok, err := t.store.GetNode(hash)
	if err != nil || !ok {
		return common.Hash{}, false, err
	}
	switch n.Kind {
	case KindLeaf:
		if equalBytes(n.Key, path) {
			return common.Hash{}, true, nil
		}
		return hash, false, nil
	case KindExtension:
		pl := commonPrefixLen(n.Key, path)
		if pl != len(n.Key) {
			return hash, false, nil
		}
		childRoot, deleted, err := t.deleteAt(n.Child, path[pl:])
		if err != nil {
			return common.Hash{}, false, err
		}
		if !deleted {
			return hash, false, nil
		}
		if childRoot.IsZero() {
			return common.Hash{}, true, nil
		}
		h, err := t.store.PutNode(&Node{Kind: KindExtension, Key: n.Key, Child: childRoot})
		return h, true, err
	case KindBranch:
		if len(path) == 0 {
			if !n.HasValue {
				return hash, false, nil
			}
			n.HasValue = false
			n.Value = nil
			h, err := t.store.PutNode(n)
			return h, true, err
		}
		childRoot, deleted, err := t.deleteAt(n.Children[path[0]], path[1:])
		if err != nil {
			return common.Hash{}, false, err
		}
		if !deleted {
			return hash, false, nil
		}
		n.Children[path[0]] = childRoot
		h, err := t.store.PutNode(n)
		return h, true, err
	default:
		return hash, false, nil
	}
}
