package common

import (
	"math/big"
	"testing"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceChange(t *testing.T) {
	pos := NewBalanceChange(big.NewInt(100))
	assert.Equal(t, SgnPositive, pos.Sgn)
	v, err := pos.BigInt()
	require.NoError(t, err)
	assert.Equal(t, int64(100), v.Int64())

	neg := NewBalanceChange(big.NewInt(-100))
	assert.Equal(t, SgnNegative, neg.Sgn)
	v, err = neg.BigInt()
	require.NoError(t, err)
	assert.Equal(t, int64(-100), v.Int64())

	sum, err := pos.AddSigned(big.NewInt(-150))
	require.NoError(t, err)
	v, err = sum.BigInt()
	require.NoError(t, err)
	assert.Equal(t, int64(-50), v.Int64())

	_, err = BalanceChange{Magnitude: "1", Sgn: "Sideways"}.BigInt()
	assert.Error(t, err)
}

func TestNewAccountUpdateDefaults(t *testing.T) {
	u := newTestUpdate(0)
	assert.False(t, u.IsDummy())
	assert.Nil(t, u.Authorization)
	assert.IsType(t, LazyNone{}, u.Lazy)
	assert.Equal(t, CallsWitness, u.Children.CallsType)
	assert.True(t, u.Body.Caller.IsDefault())
	assert.False(t, u.Body.AuthorizationKind.IsSigned)
	assert.False(t, u.Body.AuthorizationKind.IsProved)
	assert.NotZero(t, u.ID())
}

func TestUpdateIDsUnique(t *testing.T) {
	a := newTestUpdate(0)
	b := newTestUpdate(0)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestCloneIsDeepAndPreservesIDs(t *testing.T) {
	u := newTestUpdate(0)
	child := newTestUpdate(1)
	require.NoError(t, u.Approve(child, AnyChildren{}))
	u.Body.Update.AppState[0] = Set(BigIntStr("42"))
	u.SetLazySignature(nil)

	clone := u.Clone()
	assert.Equal(t, u.ID(), clone.ID())
	require.Len(t, clone.Children.Updates, 1)
	assert.Equal(t, child.ID(), clone.Children.Updates[0].ID())
	assert.Equal(t, clone.ID(), clone.Children.Updates[0].Parent().ID())

	clone.Body.Update.AppState[0] = Set(BigIntStr("43"))
	assert.Equal(t, BigIntStr("42"), u.Body.Update.AppState[0].Value)

	// clones keep pending intents
	assert.IsType(t, LazySignature{}, clone.Lazy)
}

func TestSetLazySignatureFlags(t *testing.T) {
	u := newTestUpdate(0)
	var sk babyjub.PrivateKey
	u.SetLazySignature(&sk)
	assert.True(t, u.Body.AuthorizationKind.IsSigned)
	assert.False(t, u.Body.AuthorizationKind.IsProved)

	u.SetLazyProof(LazyProof{ContractClass: "Token", MethodName: "mint"})
	assert.False(t, u.Body.AuthorizationKind.IsSigned)
	assert.True(t, u.Body.AuthorizationKind.IsProved)
	assert.Nil(t, u.Authorization)
}

func TestFinalizeClearsIntent(t *testing.T) {
	u := newTestUpdate(0)
	u.SetLazySignature(nil)
	u.FinalizeSignature(EmptySignature)
	require.NotNil(t, u.Authorization)
	assert.NotNil(t, u.Authorization.Signature)
	assert.IsType(t, LazyNone{}, u.Lazy)

	// reopening drops the finalized credential
	u.SetLazySignature(nil)
	assert.Nil(t, u.Authorization)
}

func TestApproveMovesOwnership(t *testing.T) {
	a := newTestUpdate(0)
	b := newTestUpdate(1)
	child := newTestUpdate(2)

	require.NoError(t, a.Approve(child, AnyChildren{}))
	assert.Equal(t, a.ID(), child.Parent().ID())
	assert.Len(t, a.Children.Updates, 1)

	require.NoError(t, b.Approve(child, AnyChildren{}))
	assert.Equal(t, b.ID(), child.Parent().ID())
	assert.Len(t, a.Children.Updates, 0)
	assert.Len(t, b.Children.Updates, 1)
}

func TestAppendMovesFromForest(t *testing.T) {
	f1 := NewForest()
	f2 := NewForest()
	u := newTestUpdate(0)
	f1.Append(u)
	f2.Append(u)
	assert.Len(t, f1.Updates, 0)
	assert.Len(t, f2.Updates, 1)
}

func TestApproveClearsDelegateFlag(t *testing.T) {
	parent := newTestUpdate(0)
	parent.IsDelegateCall = true
	require.NoError(t, parent.Approve(newTestUpdate(1), AnyChildren{}))
	assert.False(t, parent.IsDelegateCall)
}

func TestNoChildrenLayout(t *testing.T) {
	parent := newTestUpdate(0)
	child := newTestUpdate(1)
	require.NoError(t, parent.Approve(child, NoChildren{}))

	assert.Equal(t, CallsEquals, child.Children.CallsType)
	_, err := HashChildren(child, true)
	assert.NoError(t, err)

	// attaching a grandchild violates the pinned empty hash
	require.NoError(t, child.Approve(newTestUpdate(2), AnyChildren{}))
	_, err = HashChildren(child, true)
	require.Error(t, err)
	assert.ErrorIs(t, Unwrap(err), ErrChildrenHashMismatch)
}

func TestStaticChildrenLayout(t *testing.T) {
	parent := newTestUpdate(0)
	child := newTestUpdate(1)
	grandchild := newTestUpdate(2)
	require.NoError(t, child.Approve(grandchild, AnyChildren{}))

	require.NoError(t, parent.Approve(child, StaticChildren{AnyChildren{}}))
	assert.Equal(t, CallsEquals, child.Children.CallsType)
	require.NotNil(t, child.Children.Equals)

	_, err := HashChildren(child, true)
	assert.NoError(t, err)

	grandchild.Body.IncrementNonce = true
	_, err = HashChildren(child, true)
	require.Error(t, err)
	assert.ErrorIs(t, Unwrap(err), ErrChildrenHashMismatch)
}

func TestStaticChildrenArityMismatch(t *testing.T) {
	parent := newTestUpdate(0)
	child := newTestUpdate(1)
	err := parent.Approve(child, StaticChildren{AnyChildren{}, AnyChildren{}})
	assert.Error(t, err)
}

func TestNoDelegationLayout(t *testing.T) {
	parent := newTestUpdate(0)
	child := newTestUpdate(1)
	child.IsDelegateCall = true
	require.NoError(t, parent.Approve(child, NoDelegation{}))
	assert.False(t, child.IsDelegateCall)
	assert.Equal(t, CallsWitness, child.Children.CallsType)
}

func TestBodyHashCoversAuthorizationKind(t *testing.T) {
	u := newTestUpdate(0)
	before, err := u.Hash()
	require.NoError(t, err)
	u.SetLazySignature(nil)
	after, err := u.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, 0, before.Cmp(after))
}

func TestBodyHashIgnoresCallDepth(t *testing.T) {
	u := newTestUpdate(0)
	before, err := u.Hash()
	require.NoError(t, err)
	u.Body.CallDepth = 3
	after, err := u.Hash()
	require.NoError(t, err)
	assert.Equal(t, 0, before.Cmp(after))
}
