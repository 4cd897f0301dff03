// Package syscontract provides the shared height-indexed versioned storage
// every system-governance contract builds on: "the outer map
// is a height -> JSON-encoded snapshot; a read at height H returns the
// record at the largest key ≤ H; a write inserts under the current height
// and also persists a 32-byte hash into the caller's storage slot H so that
// the state root encodes the upgrade." Generalized from the per-contract
// BTreeMap<u64, Option<String>> pattern in
// original_source/cita-executor/core/src/rs_contracts/contracts/admin.rs
// into one shared type every contract uses instead of hand-rolling its own
// height->snapshot map.
package syscontract

import (
	"encoding/json"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/storage"
	"github.com/google/btree"
)

// Accessor is a byte-blob persistence seam: JSON blobs under arbitrary byte
// keys. VersionedStore itself persists through storage.Accessor;
// ScalarBytesAccessor below implements this interface over one.
type Accessor interface {
	GetBytes(key []byte) ([]byte, bool)
	SetBytes(key []byte, value []byte)
}

// heightRecord is the ordered-tree item: height -> raw JSON payload.
type heightRecord struct {
	height  uint64
	payload []byte
}

func lessHeight(a, b heightRecord) bool { return a.height < b.height }

// VersionedStore is one system contract's entire mutation history, indexed
// by the block height the write happened at. It is held in memory (backed
// by github.com/google/btree for the "largest key ≤ H" binary search) and
// mirrored into the account's persistent storage via position-indexed
// storage.Scalar/Array so that it survives process restarts and
// participates in the state root.
type VersionedStore struct {
	tree *btree.BTreeG[heightRecord]
	pos  common.Hash // base storage position for persistence
	acc  storage.Accessor
}

// NewVersionedStore creates a store rooted at the given storage position.
// The tree is rebuilt from persistent storage lazily by Load.
func NewVersionedStore(acc storage.Accessor, pos common.Hash) *VersionedStore {
	return &VersionedStore{tree: btree.NewG[heightRecord](16, lessHeight), pos: pos, acc: acc}
}

// heightsArray is the persistent index of written heights (an Array at
// pos), and payloadMap stores each height's JSON blob (a Map at pos,
// keyed by the 8-byte big-endian height) — this is the on-chain mirror of
// the in-memory btree.
func (v *VersionedStore) heightsArray() storage.Array { return storage.NewArray(v.acc, v.pos) }
func (v *VersionedStore) payloadMap() storage.Map {
	return storage.NewMap(v.acc, common.CryptHash(v.pos[:], []byte("payloads")))
}

// Load replays the persistent heights index into the in-memory tree; call
// once after construction, before any Read/Write, so historical reads
// after a restart see prior writes.
func (v *VersionedStore) Load() {
	arr := v.heightsArray()
	n := arr.Len()
	pm := v.payloadMap()
	for i := uint64(0); i < n; i++ {
		h := arr.Get(i).Big()
		blob := pm.Entry(storage.SerializeUint64(h)).GetBytes()
		if len(blob) > 0 {
			v.tree.ReplaceOrInsert(heightRecord{height: h, payload: blob})
		}
	}
}

// WriteRaw persists value (already JSON-encoded) under height, updating
// both the in-memory tree and the persistent mirror, and writes the
// 32-byte content hash of value into the caller's storage slot keyed by
// height, "so that the state root encodes the upgrade".
func (v *VersionedStore) WriteRaw(height uint64, value []byte) {
	v.tree.ReplaceOrInsert(heightRecord{height: height, payload: value})
	pm := v.payloadMap()
	entry := pm.Entry(storage.SerializeUint64(height))
	entry.SetBytes(value)
	v.heightsArray().Push(common.BigEndianHash(height))
	v.acc.SetStorage(common.BigEndianHash(height), common.CryptHash(value))
}

// Write marshals v as JSON and delegates to WriteRaw.
func (v *VersionedStore) Write(height uint64, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	v.WriteRaw(height, b)
	return nil
}

// ReadRaw returns the JSON payload at the largest written height ≤ h, and
// whether any record exists at or before h.
func (v *VersionedStore) ReadRaw(h uint64) ([]byte, bool) {
	var found *heightRecord
	v.tree.DescendLessOrEqual(heightRecord{height: h}, func(item heightRecord) bool {
		rec := item
		found = &rec
		return false
	})
	if found == nil {
		return nil, false
	}
	return found.payload, true
}

// Read unmarshals the payload at the largest written height ≤ h into out.
func (v *VersionedStore) Read(h uint64, out any) (bool, error) {
	raw, ok := v.ReadRaw(h)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// ScalarBytesAccessor implements Accessor over a storage.Accessor, storing
// each blob as a Scalar byte string at hash(key), without pulling in the
// full Scalar API at call sites.
type ScalarBytesAccessor struct {
	Acc storage.Accessor
}

func (s ScalarBytesAccessor) GetBytes(key []byte) ([]byte, bool) {
	pos := common.CryptHash(key)
	sc := storage.NewScalar(s.Acc, pos)
	b := sc.GetBytes()
	return b, len(b) > 0
}

func (s ScalarBytesAccessor) SetBytes(key []byte, value []byte) {
	pos := common.CryptHash(key)
	storage.NewScalar(s.Acc, pos).SetBytes(value)
}
