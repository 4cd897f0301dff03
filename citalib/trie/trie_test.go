package trie

import (
	"testing"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/stretchr/testify/require"
)

func TestInsertGetDelete(t *testing.T) {
	store := NewMapNodeStore()
	tr := New(store, common.Hash{})

	kvs := map[string]string{
		"alpha":   "one",
		"alpine":  "two",
		"bravo":   "three",
		"brazil":  "four",
		"charlie": "five",
	}
	var root common.Hash
	var err error
	for k, v := range kvs {
		root, err = tr.Update([]byte(k), []byte(v))
		require.NoError(t, err)
	}
	require.False(t, root.IsZero())

	for k, v := range kvs {
		got, found, err := tr.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, found, k)
		require.Equal(t, v, string(got))
	}

	_, found, err := tr.Get([]byte("missing"))
	require.NoError(t, err)
	require.False(t, found)

	root, err = tr.Delete([]byte("alpine"))
	require.NoError(t, err)
	tr2 := New(store, root)
	_, found, err = tr2.Get([]byte("alpine"))
	require.NoError(t, err)
	require.False(t, found)
	got, found, err := tr2.Get([]byte("alpha"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "one", string(got))
}

func TestProofRoundTripAndTamper(t *testing.T) {
	store := NewMapNodeStore()
	tr := New(store, common.Hash{})
	root, err := tr.Update([]byte("key1"), []byte("value1"))
	require.NoError(t, err)
	root, err = tr.Update([]byte("key2"), []byte("value2"))
	require.NoError(t, err)

	tr2 := New(store, root)
	rec := &Recorder{}
	tr2.SetRecorder(rec)
	val, found, err := tr2.Get([]byte("key1"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("value1"), val)
	require.NotEmpty(t, rec.Entries)

	require.True(t, VerifyProof(root, []byte("key1"), []byte("value1"), rec.Entries))
	require.False(t, VerifyProof(root, []byte("key1"), []byte("wrong-value"), rec.Entries))

	tampered := append([]RecordedNode(nil), rec.Entries...)
	mutated := append([]byte(nil), tampered[0].Encoding...)
	mutated[0] ^= 0xff
	tampered[0] = RecordedNode{Depth: tampered[0].Depth, Hash: tampered[0].Hash, Encoding: mutated}
	require.False(t, VerifyProof(root, []byte("key1"), []byte("value1"), tampered))
}

func TestDeterministicRoot(t *testing.T) {
	build := func() common.Hash {
		store := NewMapNodeStore()
		tr := New(store, common.Hash{})
		var root common.Hash
		for _, k := range []string{"a", "b", "c", "d"} {
			r, err := tr.Update([]byte(k), []byte(k+k))
			require.NoError(t, err)
			root = r
		}
		return root
	}
	require.Equal(t, build(), build())
}
