package systemcontract

import (
	"testing"

	"github.com/citahub/cita-sub003/citalib/common"
	"github.com/stretchr/testify/require"
)

func selGetAdminInput() []byte { return selGetAdmin[:] }

func TestRegistryDispatchRoutesToAdmin(t *testing.T) {
	genesisAdmin := common.BytesToAddress([]byte{1})
	admin := NewAdmin(newMemAccessor(), genesisAdmin)
	reg := &Registry{Admin: admin}

	require.True(t, reg.IsNative(AdminAddress))
	out, ok, err := reg.Dispatch(0, common.Address{}, AdminAddress, selGetAdminInput())
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, genesisAdmin, common.BytesToAddress(out[12:]))
}

func TestRegistryDispatchUnknownAddressFallsThrough(t *testing.T) {
	reg := &Registry{}
	_, ok, err := reg.Dispatch(0, common.Address{}, common.BytesToAddress([]byte{0x99}), nil)
	require.False(t, ok)
	require.NoError(t, err)
}

func TestRegistryDispatchUnboundContractErrors(t *testing.T) {
	reg := &Registry{}
	_, ok, err := reg.Dispatch(0, common.Address{}, AdminAddress, selGetAdminInput())
	require.True(t, ok)
	require.Error(t, err)
}

func TestRegistryZkPrivacyAndCrossChainRouteWithoutPanicking(t *testing.T) {
	zk := NewZkPrivacy(newMemAccessor(), nil)
	cc := NewCrossChainVerify(newMemAccessor(), nil)
	reg := &Registry{ZkPrivacy: zk, CrossChainVerify: cc}
	require.True(t, reg.IsNative(ZkPrivacyAddress))
	_, ok, err := reg.Dispatch(0, common.Address{}, ZkPrivacyAddress, selShield[:])
	require.True(t, ok)
	require.NoError(t, err)

	require.True(t, reg.IsNative(CrossChainVerifyAddress))
	_, ok, err = reg.Dispatch(0, common.Address{}, CrossChainVerifyAddress, selVerifyTxProof[:])
	require.True(t, ok)
	require.NoError(t, err)
}
