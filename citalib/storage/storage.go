// Package storage implements the position-indexed storage scheme the
// system-governance contracts use to emulate their solidity counterparts'
// storage layout: a scalar at position P stores a single
// 256-bit value, or for byte strings, a packed length in the low byte of
// slot P with the payload chained through hash(P), hash(P)+1, ...; an array
// stores its length at P and element i at hash(P)+i; a map stores entry k
// at hash(serialize(k) ‖ P), with nested arrays/maps composing by treating
// the derived slot as a new position.
//
// Grounded byte-for-byte on
// original_source/chain/core/src/native/storage.rs, reproduced as a direct
// generalized Go port (storage_test.go covers short and long byte strings,
// uint64/address scalars, arrays and maps).
package storage

import (
	"encoding/binary"

	"github.com/citahub/cita-sub003/citalib/common"
)

// Accessor is the narrow storage seam every native contract's position
// scheme is built over — the same role EVM's Ext.storage_at/set_storage
// play for bytecode, but addressed by Hash positions
// instead of stack-supplied keys.
type Accessor interface {
	GetStorage(position common.Hash) common.Hash
	SetStorage(position common.Hash, value common.Hash)
}

// Scalar reads/writes a single value (fixed 256-bit word or a variable
// length byte string) at a fixed position.
type Scalar struct {
	acc Accessor
	pos common.Hash
}

func NewScalar(acc Accessor, pos common.Hash) Scalar { return Scalar{acc: acc, pos: pos} }

func (s Scalar) GetHash() common.Hash { return s.acc.GetStorage(s.pos) }
func (s Scalar) SetHash(v common.Hash) { s.acc.SetStorage(s.pos, v) }

func (s Scalar) GetUint64() uint64 {
	h := s.GetHash()
	return binary.BigEndian.Uint64(h[common.HashLength-8:])
}

func (s Scalar) SetUint64(n uint64) {
	var h common.Hash
	binary.BigEndian.PutUint64(h[common.HashLength-8:], n)
	s.SetHash(h)
}

func (s Scalar) GetAddress() common.Address {
	h := s.GetHash()
	return common.BytesToAddress(h[common.HashLength-common.AddressLength:])
}

func (s Scalar) SetAddress(a common.Address) {
	s.SetHash(common.BytesToHash(a[:]))
}

// GetBytes decodes a packed-length byte string: low byte of the slot holds
// 2*len if len<32 (payload inline in the remaining 31 bytes), or 2*len+1 if
// len>=32 (payload chained through hash(P), hash(P)+1, ...).
func (s Scalar) GetBytes() []byte {
	slot := s.GetHash()
	lowByte := slot[common.HashLength-1]
	if lowByte%2 == 0 {
		length := int(lowByte) / 2
		return append([]byte(nil), slot[:length]...)
	}
	length := (int(lowByte) - 1) / 2
	out := make([]byte, 0, length)
	chunkPos := common.CryptHash(s.pos[:])
	for len(out) < length {
		chunk := s.acc.GetStorage(chunkPos)
		remain := length - len(out)
		if remain >= common.HashLength {
			out = append(out, chunk[:]...)
		} else {
			out = append(out, chunk[:remain]...)
		}
		chunkPos = chunkPos.Add(1)
	}
	return out
}

// SetBytes encodes with the same packed-length convention GetBytes decodes.
func (s Scalar) SetBytes(b []byte) {
	length := len(b)
	if length < 32 {
		var slot common.Hash
		copy(slot[:], b)
		slot[common.HashLength-1] = byte(2 * length)
		s.SetHash(slot)
		return
	}
	var slot common.Hash
	slot[common.HashLength-1] = byte(2*length + 1)
	s.SetHash(slot)
	chunkPos := common.CryptHash(s.pos[:])
	for off := 0; off < length; off += common.HashLength {
		var chunk common.Hash
		end := off + common.HashLength
		if end > length {
			end = length
		}
		copy(chunk[:], b[off:end])
		s.acc.SetStorage(chunkPos, chunk)
		chunkPos = chunkPos.Add(1)
	}
}

// Array stores its length at P and element i at hash(P)+i.
type Array struct {
	acc Accessor
	pos common.Hash
}

func NewArray(acc Accessor, pos common.Hash) Array { return Array{acc: acc, pos: pos} }

func (a Array) Len() uint64 { return NewScalar(a.acc, a.pos).GetUint64() }

func (a Array) setLen(n uint64) { NewScalar(a.acc, a.pos).SetUint64(n) }

func (a Array) elemPos(i uint64) common.Hash {
	base := common.CryptHash(a.pos[:])
	return base.Add(i)
}

func (a Array) Get(i uint64) common.Hash { return a.acc.GetStorage(a.elemPos(i)) }
func (a Array) Set(i uint64, v common.Hash) { a.acc.SetStorage(a.elemPos(i), v) }

// Elem returns a Scalar positioned at element i, so an array of byte
// strings or nested composites can be built by treating the element slot
// as a new position.
func (a Array) Elem(i uint64) Scalar { return NewScalar(a.acc, a.elemPos(i)) }

func (a Array) Push(v common.Hash) {
	n := a.Len()
	a.Set(n, v)
	a.setLen(n + 1)
}

// Map stores entry k at hash(serialize(k) ‖ P).
type Map struct {
	acc Accessor
	pos common.Hash
}

func NewMap(acc Accessor, pos common.Hash) Map { return Map{acc: acc, pos: pos} }

func (m Map) entryPos(key []byte) common.Hash {
	return common.CryptHash(key, m.pos[:])
}

func (m Map) Get(key []byte) common.Hash { return m.acc.GetStorage(m.entryPos(key)) }
func (m Map) Set(key []byte, v common.Hash) { m.acc.SetStorage(m.entryPos(key), v) }

// Entry returns a Scalar for composing nested structures at a map entry.
func (m Map) Entry(key []byte) Scalar { return NewScalar(m.acc, m.entryPos(key)) }

// SerializeUint64 is the canonical 8-byte big-endian key serialization used
// by height-indexed and numeric-keyed maps.
func SerializeUint64(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}
