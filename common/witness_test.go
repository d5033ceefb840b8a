package common

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func richTestUpdate(t *testing.T) *AccountUpdate {
	t.Helper()
	u := newTestUpdate(0)
	u.Label = "rich"
	u.Body.BalanceChange = NewBalanceChange(big.NewInt(-250))
	u.Body.IncrementNonce = true
	u.Body.UseFullCommitment = true
	u.Body.CallData = "77"
	u.Body.Events.Push(Event{"1", "2"})
	u.Body.Actions.Push(Event{"3"})
	u.Body.Update.AppState[3] = Set(BigIntStr("99"))
	u.Body.Update.Delegate = Set(testKey(5))
	u.Body.Update.ZkappURI = Set("https://example.com/zkapp")
	u.Body.Update.TokenSymbol = Set("ZK")
	u.Body.Update.VerificationKey = Set(VerificationKey{
		Data: HexBytes{0xde, 0xad}, Hash: "12345",
	})
	u.Body.Update.Timing = Set(Timing{
		InitialMinimumBalance: "1000",
		CliffTime:             10,
		CliffAmount:           "500",
		VestingPeriod:         2,
		VestingIncrement:      "50",
	})
	u.Body.Preconditions.Account.RequireNonce(4)
	u.Body.Preconditions.Account.Balance = Check(ClosedInterval[BigIntStr]{Lower: "100", Upper: "200"})
	u.Body.Preconditions.Network.GlobalSlotSinceGenesis =
		Check(ClosedInterval[uint32]{Lower: 1, Upper: 1000})
	u.FinalizeSignature(EmptySignature)

	child := newTestUpdate(1)
	require.NoError(t, u.Approve(child, AnyChildren{}))
	return u
}

func TestFieldsRoundTrip(t *testing.T) {
	u := richTestUpdate(t)

	elems, err := ToFields(u)
	require.NoError(t, err)
	aux := ToAuxiliary(u)

	rebuilt, err := FromFields(elems, aux)
	require.NoError(t, err)

	assert.Equal(t, u.ID(), rebuilt.ID())
	assert.Equal(t, u.Label, rebuilt.Label)
	assert.Equal(t, u.Body.PublicKey, rebuilt.Body.PublicKey)
	assert.True(t, u.Body.TokenID.Equal(rebuilt.Body.TokenID))
	assert.Equal(t, u.Body.BalanceChange, rebuilt.Body.BalanceChange)
	assert.Equal(t, u.Body.Update.ZkappURI, rebuilt.Body.Update.ZkappURI)
	assert.Equal(t, u.Body.Update.TokenSymbol, rebuilt.Body.Update.TokenSymbol)
	assert.Equal(t, u.Body.Update.VerificationKey.Value.Data,
		rebuilt.Body.Update.VerificationKey.Value.Data)
	assert.Equal(t, u.Body.Events, rebuilt.Body.Events)
	assert.Equal(t, u.Body.Actions, rebuilt.Body.Actions)
	assert.Equal(t, u.Body.Preconditions, rebuilt.Body.Preconditions)
	require.NotNil(t, rebuilt.Authorization)
	assert.NotNil(t, rebuilt.Authorization.Signature)
	require.Len(t, rebuilt.Children.Updates, 1)
	assert.Equal(t, u.Children.Updates[0].ID(), rebuilt.Children.Updates[0].ID())

	// the rebuilt node commits to the same body
	want, err := u.Hash()
	require.NoError(t, err)
	got, err := rebuilt.Hash()
	require.NoError(t, err)
	assert.Equal(t, 0, want.Cmp(got))
}

func TestFromFieldsRejectsShortEncoding(t *testing.T) {
	u := newTestUpdate(0)
	elems, err := ToFields(u)
	require.NoError(t, err)

	_, err = FromFields(elems[:len(elems)-1], ToAuxiliary(u))
	assert.Error(t, err)
}

func TestFromFieldsRejectsTrailingElements(t *testing.T) {
	u := newTestUpdate(0)
	elems, err := ToFields(u)
	require.NoError(t, err)

	elems = append(elems, big.NewInt(0))
	_, err = FromFields(elems, ToAuxiliary(u))
	assert.Error(t, err)
}

func TestToAuxiliaryIsSnapshot(t *testing.T) {
	u := newTestUpdate(0)
	child := newTestUpdate(1)
	require.NoError(t, u.Approve(child, AnyChildren{}))

	aux := ToAuxiliary(u)
	child.Body.IncrementNonce = true

	require.Len(t, aux.Children, 1)
	assert.False(t, aux.Children[0].Body.IncrementNonce)
}
