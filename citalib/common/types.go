// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package common holds the fixed-width primitive types shared by every
// layer of the execution core: addresses, hashes and the handful of other
// byte-array widths the wire formats and cryptographic primitives need.
package common

import (
	"encoding/hex"
	"fmt"
)

const (
	AddressLength = 20
	HashLength    = 32
)

// Address is a 160-bit account identifier.
type Address [AddressLength]byte

func BytesToAddress(b []byte) (a Address) {
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

func (a Address) Bytes() []byte  { return a[:] }
func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }
func (a Address) IsZero() bool   { return a == Address{} }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	*a = BytesToAddress(hexDecode(text))
	return nil
}

// Hash is a 256-bit content digest: the hash type used for trie nodes,
// transaction/block identity, and storage slot keys.
type Hash [HashLength]byte

func BytesToHash(b []byte) (h Hash) {
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// BigEndianHash packs a uint64 into the low 8 bytes of a Hash, matching the
// height-indexed system-contract convention (H256::from(u64)).
func BigEndianHash(n uint64) (h Hash) {
	for i := 0; i < 8; i++ {
		h[HashLength-1-i] = byte(n >> (8 * i))
	}
	return h
}

func (h Hash) Bytes() []byte   { return h[:] }
func (h Hash) String() string  { return "0x" + hex.EncodeToString(h[:]) }
func (h Hash) IsZero() bool    { return h == Hash{} }
func (h Hash) Big() uint64Like { return bytesToUint64(h[HashLength-8:]) }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(text []byte) error {
	*h = BytesToHash(hexDecode(text))
	return nil
}

// hexDecode strips an optional 0x prefix and decodes hex text; malformed
// input decodes as all-zero rather than erroring, matching BytesToHash's
// own no-error contract.
func hexDecode(text []byte) []byte {
	s := string(text)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

type uint64Like = uint64

func bytesToUint64(b []byte) uint64 {
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	return n
}

// Add returns h+n, treating h as a big-endian 256-bit integer (used for the
// array/scalar long-string chunk chaining in citalib/storage, where
// successive chunks live at hash(P), hash(P)+1, ...).
func (h Hash) Add(n uint64) Hash {
	var out Hash
	copy(out[:], h[:])
	carry := n
	for i := HashLength - 1; i >= 0 && carry > 0; i-- {
		sum := uint64(out[i]) + carry
		out[i] = byte(sum)
		carry = sum >> 8
	}
	return out
}

func HexToHash(s string) Hash {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid hex hash %q: %v", s, err))
	}
	return BytesToHash(b)
}
