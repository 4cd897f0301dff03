// Package snapshotsync builds and restores state/chain snapshots: a
// MANIFEST naming a set of content-addressed chunk files, one covering
// accounts as of a state root, the other covering a contiguous run of
// blocks. Shaped after turbo/snapshotsync's polling-loop-with-outstanding-set
// idiom (WaitForDownloader's ticker-driven completion tracking), adapted
// from a torrent-based segment downloader down to manifest+chunk-files:
// there is no peer-to-peer transport here, just a directory of files and a
// mutex-serialized apply loop.
package snapshotsync

import (
	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/citahub/cita-sub003/citalib/rlp"
)

// Manifest is the root record of a snapshot: the chunk hashes that make it
// up, plus enough chain metadata to verify a restoration reproduced the
// right state.
type Manifest struct {
	StateHashes []common.Hash
	BlockHashes []common.Hash
	StateRoot   common.Hash
	BlockNumber uint64
	BlockHash   common.Hash
}

func (m *Manifest) Encode() []byte {
	stateHashes := make([][]byte, len(m.StateHashes))
	for i, h := range m.StateHashes {
		stateHashes[i] = rlp.EncodeBytes(h[:])
	}
	blockHashes := make([][]byte, len(m.BlockHashes))
	for i, h := range m.BlockHashes {
		blockHashes[i] = rlp.EncodeBytes(h[:])
	}
	return rlp.EncodeList(
		rlp.EncodeList(stateHashes...),
		rlp.EncodeList(blockHashes...),
		rlp.EncodeBytes(m.StateRoot[:]),
		rlp.EncodeUint64(m.BlockNumber),
		rlp.EncodeBytes(m.BlockHash[:]),
	)
}

func DecodeManifest(data []byte) (*Manifest, error) {
	items, err := rlp.DecodeList(data)
	if err != nil {
		return nil, err
	}
	r := rlp.NewListReader(items)
	stateItems, err := r.List("state_hashes")
	if err != nil {
		return nil, err
	}
	stateHashes := make([]common.Hash, len(stateItems))
	for i, it := range stateItems {
		if it.IsList || len(it.Bytes) != common.HashLength {
			return nil, &rlp.DecodeError{Kind: rlp.KindBadWidth, Msg: "state_hash"}
		}
		stateHashes[i] = common.BytesToHash(it.Bytes)
	}
	blockItems, err := r.List("block_hashes")
	if err != nil {
		return nil, err
	}
	blockHashes := make([]common.Hash, len(blockItems))
	for i, it := range blockItems {
		if it.IsList || len(it.Bytes) != common.HashLength {
			return nil, &rlp.DecodeError{Kind: rlp.KindBadWidth, Msg: "block_hash"}
		}
		blockHashes[i] = common.BytesToHash(it.Bytes)
	}
	stateRootB, err := r.FixedBytes("state_root", common.HashLength)
	if err != nil {
		return nil, err
	}
	blockNumber, err := r.Uint64("block_number")
	if err != nil {
		return nil, err
	}
	blockHashB, err := r.FixedBytes("block_hash", common.HashLength)
	if err != nil {
		return nil, err
	}
	return &Manifest{
		StateHashes: stateHashes,
		BlockHashes: blockHashes,
		StateRoot:   common.BytesToHash(stateRootB),
		BlockNumber: blockNumber,
		BlockHash:   common.BytesToHash(blockHashB),
	}, nil
}
