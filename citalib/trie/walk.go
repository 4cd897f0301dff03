package trie

import "github.com/citahub/cita-sub003/citalib/common"

// nibblesToKey packs a full (even-length) nibble path back into bytes, the
// inverse of keyToNibbles.
func nibblesToKey(nibbles []byte) []byte {
	out := make([]byte, len(nibbles)/2)
	for i := range out {
		out[i] = nibbles[i*2]<<4 | nibbles[i*2+1]
	}
	return out
}

// Walk visits every key/value pair reachable from the trie's root in
// ascending key order, the traversal order a snapshot chunker depends on to
// pack entries deterministically and reproduce the same chunk boundaries on
// re-snapshot. A non-nil error from fn aborts the walk immediately.
func (t *Trie) Walk(fn func(key, value []byte) error) error {
	if t.root.IsZero() {
		return nil
	}
	return t.walkAt(t.root, nil, fn)
}

func (t *Trie) walkAt(hash common.Hash, path []byte, fn func(key, value []byte) error) error {
	n, ok, err := t.store.GetNode(hash)
	if err != nil {
		return err
	}
	if !ok {
		return &MissingNodeError{Hash: hash}
	}
	switch n.Kind {
	case KindLeaf:
		full := append(append([]byte{}, path...), n.Key...)
		return fn(nibblesToKey(full), n.Value)
	case KindExtension:
		return t.walkAt(n.Child, append(append([]byte{}, path...), n.Key...), fn)
	case KindBranch:
		if n.HasValue {
			if err := fn(nibblesToKey(path), n.Value); err != nil {
				return err
			}
		}
		for i := 0; i < 16; i++ {
			if n.Children[i].IsZero() {
				continue
			}
			if err := t.walkAt(n.Children[i], append(append([]byte{}, path...), byte(i)), fn); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

// MissingNodeError reports a trie hash with no corresponding entry in the
// backing NodeStore — a torn database or a chunk applied out of order
// during restoration.
type MissingNodeError struct{ Hash common.Hash }

func (e *MissingNodeError) Error() string { return "trie: missing node " + e.Hash.String() }
