package snapshotsync

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// ChunkStore persists and retrieves snappy-compressed chunk blobs by the
// hash of their compressed form. DirStore is the on-disk layout: one
// directory, one MANIFEST file, chunk files named by hex hash.
type ChunkStore interface {
	PutChunk(raw []byte) (common.Hash, error)
	GetChunk(hash common.Hash) ([]byte, error)
	PutManifest(m *Manifest) error
	GetManifest() (*Manifest, error)
}

// DirStore is the ChunkStore grounded on spec's on-disk layout: a single
// directory holding MANIFEST plus one file per chunk, named by the hex hash
// of its (compressed) contents.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) *DirStore { return &DirStore{dir: dir} }

func (d *DirStore) chunkPath(hash common.Hash) string {
	return filepath.Join(d.dir, hash.String()[2:])
}

// PutChunk compresses raw and writes it under the hash of the compressed
// bytes, returning that hash for the manifest to record.
func (d *DirStore) PutChunk(raw []byte) (common.Hash, error) {
	compressed := snappy.Encode(nil, raw)
	hash := common.CryptHash(compressed)
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return common.Hash{}, err
	}
	if err := os.WriteFile(d.chunkPath(hash), compressed, 0o644); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// GetChunk reads and decompresses the chunk named by hash, verifying its
// compressed form actually hashes to the name it was stored under.
func (d *DirStore) GetChunk(hash common.Hash) ([]byte, error) {
	compressed, err := os.ReadFile(d.chunkPath(hash))
	if err != nil {
		return nil, err
	}
	if common.CryptHash(compressed) != hash {
		return nil, fmt.Errorf("snapshotsync: chunk %s failed content hash check", hash)
	}
	return snappy.Decode(nil, compressed)
}

func (d *DirStore) manifestPath() string { return filepath.Join(d.dir, "MANIFEST") }

// PutManifest zstd-compresses the manifest before writing it: unlike chunk
// bodies (snappy, per spec's on-disk layout), the manifest is pure hash
// lists, which zstd's dictionary-free mode flattens noticeably better than
// snappy does.
func (d *DirStore) PutManifest(m *Manifest) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return err
	}
	defer enc.Close()
	return os.WriteFile(d.manifestPath(), enc.EncodeAll(m.Encode(), nil), 0o644)
}

func (d *DirStore) GetManifest() (*Manifest, error) {
	compressed, err := os.ReadFile(d.manifestPath())
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, err
	}
	return DecodeManifest(data)
}
