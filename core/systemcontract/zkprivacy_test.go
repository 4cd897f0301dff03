package systemcontract

import (
	"testing"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/stretchr/testify/require"
)

type memAccessor struct{ m map[common.Hash]common.Hash }

func newMemAccessor() *memAccessor { return &memAccessor{m: make(map[common.Hash]common.Hash)} }

func (a *memAccessor) GetStorage(p common.Hash) common.Hash    { return a.m[p] }
func (a *memAccessor) SetStorage(p common.Hash, v common.Hash) { a.m[p] = v }

func proof(nullifier, output common.Hash, anchor common.Hash) ShieldedProof {
	return ShieldedProof{
		Inputs:     []common.Hash{nullifier},
		Outputs:    []common.Hash{output},
		AnchorRoot: anchor,
		ProofBytes: []byte{0x01},
	}
}

func TestZkPrivacyShieldRejectsEmptyProof(t *testing.T) {
	z := NewZkPrivacy(newMemAccessor(), nil)
	require.False(t, z.Shield(ShieldedProof{Outputs: []common.Hash{common.BigEndianHash(1)}}))
	require.False(t, z.Shield(ShieldedProof{ProofBytes: []byte{0x01}}))
}

func TestZkPrivacyShieldAgainstCurrentRoot(t *testing.T) {
	z := NewZkPrivacy(newMemAccessor(), nil)
	require.True(t, z.Root().IsZero())

	p := proof(common.BigEndianHash(100), common.BigEndianHash(200), z.Root())
	require.True(t, z.Shield(p))
	require.Equal(t, uint64(1), z.CoinCount())
	require.True(t, z.IsSpent(common.BigEndianHash(100)))
	require.False(t, z.Root().IsZero())
}

func TestZkPrivacyRejectsDoubleSpend(t *testing.T) {
	z := NewZkPrivacy(newMemAccessor(), nil)
	nullifier := common.BigEndianHash(1)
	require.True(t, z.Shield(proof(nullifier, common.BigEndianHash(2), z.Root())))
	require.False(t, z.Shield(proof(nullifier, common.BigEndianHash(3), z.Root())))
	require.Equal(t, uint64(1), z.CoinCount())
}

func TestZkPrivacyAcceptsRecentAnchor(t *testing.T) {
	z := NewZkPrivacy(newMemAccessor(), nil)
	staleRoot := z.Root()
	require.True(t, z.Shield(proof(common.BigEndianHash(1), common.BigEndianHash(10), staleRoot)))
	// staleRoot is no longer the current root, but it's in the recent window.
	require.True(t, z.Shield(proof(common.BigEndianHash(2), common.BigEndianHash(11), staleRoot)))
}

func TestZkPrivacyRejectsUnknownAnchor(t *testing.T) {
	z := NewZkPrivacy(newMemAccessor(), nil)
	require.False(t, z.Shield(proof(common.BigEndianHash(1), common.BigEndianHash(10), common.BigEndianHash(999))))
}

type stubVerifier struct{ ok bool }

func (v stubVerifier) Verify(ShieldedProof, common.Hash) bool { return v.ok }

func TestZkPrivacyUsesInjectedVerifier(t *testing.T) {
	z := NewZkPrivacy(newMemAccessor(), stubVerifier{ok: false})
	require.False(t, z.Shield(proof(common.BigEndianHash(1), common.BigEndianHash(2), z.Root())))

	z2 := NewZkPrivacy(newMemAccessor(), stubVerifier{ok: true})
	require.True(t, z2.Shield(ShieldedProof{Inputs: []common.Hash{common.BigEndianHash(5)}, Outputs: []common.Hash{common.BigEndianHash(6)}}))
}
