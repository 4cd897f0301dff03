package storage

import (
	"testing"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/stretchr/testify/require"
)

type memAccessor struct{ m map[common.Hash]common.Hash }

func newMemAccessor() *memAccessor { return &memAccessor{m: make(map[common.Hash]common.Hash)} }

func (a *memAccessor) GetStorage(p common.Hash) common.Hash { return a.m[p] }
func (a *memAccessor) SetStorage(p common.Hash, v common.Hash) { a.m[p] = v }

func TestScalarShortString(t *testing.T) {
	acc := newMemAccessor()
	s := NewScalar(acc, common.BigEndianHash(1))
	s.SetBytes([]byte("hello"))
	require.Equal(t, []byte("hello"), s.GetBytes())
}

func TestScalarLongString(t *testing.T) {
	acc := newMemAccessor()
	s := NewScalar(acc, common.BigEndianHash(2))
	long := make([]byte, 97)
	for i := range long {
		long[i] = byte(i)
	}
	s.SetBytes(long)
	require.Equal(t, long, s.GetBytes())
}

func TestScalarUint64AndAddress(t *testing.T) {
	acc := newMemAccessor()
	s := NewScalar(acc, common.BigEndianHash(3))
	s.SetUint64(424242)
	require.Equal(t, uint64(424242), s.GetUint64())

	addr := common.BytesToAddress([]byte{1, 2, 3, 4, 5})
	s2 := NewScalar(acc, common.BigEndianHash(4))
	s2.SetAddress(addr)
	require.Equal(t, addr, s2.GetAddress())
}

func TestArray(t *testing.T) {
	acc := newMemAccessor()
	arr := NewArray(acc, common.BigEndianHash(5))
	for i := uint64(0); i < 5; i++ {
		arr.Push(common.BigEndianHash(i * 10))
	}
	require.Equal(t, uint64(5), arr.Len())
	for i := uint64(0); i < 5; i++ {
		require.Equal(t, common.BigEndianHash(i*10), arr.Get(i))
	}
}

func TestMap(t *testing.T) {
	acc := newMemAccessor()
	m := NewMap(acc, common.BigEndianHash(6))
	m.Set([]byte("k1"), common.BigEndianHash(111))
	m.Set([]byte("k2"), common.BigEndianHash(222))
	require.Equal(t, common.BigEndianHash(111), m.Get([]byte("k1")))
	require.Equal(t, common.BigEndianHash(222), m.Get([]byte("k2")))
	require.Equal(t, common.Hash{}, m.Get([]byte("missing")))
}
