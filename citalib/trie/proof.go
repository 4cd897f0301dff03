package trie

import "github.com/citahub/cita-sub003/citalib/common"

// VerifyProof checks a recorded trace against a known root, proving either
// inclusion of (key, value) or, if value is nil, exclusion:
// "A recorded trace proves inclusion (or exclusion via the final
// non-match) to any party that knows the root."). It rebuilds a MapNodeStore
// from the recorded entries and re-runs Get against it; a one-bit mutation
// to any recorded node changes its hash, breaking the hash chain down from
// root and causing verification to fail.
func VerifyProof(root common.Hash, key, expectedValue []byte, entries []RecordedNode) bool {
	store := NewMapNodeStore()
	for _, e := range entries {
		if common.CryptHash(e.Encoding) != e.Hash {
			return false // a mutated node's hash no longer matches its claimed hash
		}
		store.nodes[e.Hash] = e.Encoding
	}
	tr := New(store, root)
	value, found, err := tr.Get(key)
	if err != nil {
		return false
	}
	if expectedValue == nil {
		return !found
	}
	return found && equalBytes(value, expectedValue)
}
