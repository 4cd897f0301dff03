package rlp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripBytes(t *testing.T) {
	for _, in := range [][]byte{nil, {}, {0x01}, []byte("hello world, this is CITA")} {
		enc := EncodeBytes(in)
		v, err := Decode(enc)
		require.NoError(t, err)
		require.False(t, v.IsList)
		require.Equal(t, in, v.Bytes)
	}
}

func TestRoundTripList(t *testing.T) {
	enc := EncodeList(EncodeBytes([]byte("a")), EncodeBytes([]byte("bb")), EncodeList(EncodeBytes([]byte("nested"))))
	items, err := DecodeList(enc)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, []byte("a"), items[0].Bytes)
	require.Equal(t, []byte("bb"), items[1].Bytes)
	require.True(t, items[2].IsList)
	require.Equal(t, []byte("nested"), items[2].Items[0].Bytes)
}

func TestExcessBytesRejected(t *testing.T) {
	enc := EncodeBytes([]byte("x"))
	enc = append(enc, 0xff)
	_, err := Decode(enc)
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, KindExcessBytes, de.Kind)
}

func TestMissingItem(t *testing.T) {
	enc := EncodeList(EncodeBytes([]byte("only-one")))
	items, err := DecodeList(enc)
	require.NoError(t, err)
	r := NewListReader(items)
	_, err = r.Bytes("first")
	require.NoError(t, err)
	_, err = r.Bytes("second")
	require.Error(t, err)
}

func TestUint64RoundTrip(t *testing.T) {
	for _, n := range []uint64{0, 1, 255, 256, 1 << 40} {
		enc := EncodeUint64(n)
		v, err := Decode(enc)
		require.NoError(t, err)
		r := NewListReader([]*Value{v})
		got, err := r.Uint64("n")
		require.NoError(t, err)
		require.Equal(t, n, got)
	}
}
