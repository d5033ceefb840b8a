package common

import (
	"encoding/binary"
	"testing"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(i int) PublicKey {
	var sk babyjub.PrivateKey
	binary.BigEndian.PutUint64(sk[24:], uint64(i+1))
	return PublicKeyFromPrivate(&sk)
}

func newTestUpdate(i int) *AccountUpdate {
	return NewAccountUpdate(testKey(i), DefaultTokenID)
}

func TestEmptyForestHash(t *testing.T) {
	f := NewForest()
	h, err := f.Hash(false)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Cmp(EmptyForestHash()))

	// returned value is a copy; mutating it must not poison the cache
	h.SetInt64(0)
	assert.NotEqual(t, 0, EmptyForestHash().Sign())
}

func TestSingleNodeForestHash(t *testing.T) {
	u := newTestUpdate(0)
	f := NewForest()
	f.Append(u)

	got, err := f.Hash(false)
	require.NoError(t, err)

	bodyHash, err := u.Hash()
	require.NoError(t, err)
	nodeHash, err := HashFields(PrefixNode, bodyHash, EmptyForestHash())
	require.NoError(t, err)
	want, err := HashFields(PrefixCons, nodeHash, EmptyForestHash())
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(want))
}

func TestForestHashOrderMatters(t *testing.T) {
	a := NewForest()
	a.Append(newTestUpdate(0))
	a.Append(newTestUpdate(1))

	b := NewForest()
	b.Append(newTestUpdate(1))
	b.Append(newTestUpdate(0))

	ha, err := a.Hash(false)
	require.NoError(t, err)
	hb, err := b.Hash(false)
	require.NoError(t, err)
	assert.NotEqual(t, 0, ha.Cmp(hb))
}

func TestDummyContributesNothing(t *testing.T) {
	f := NewForest()
	f.Append(newTestUpdate(0))
	withoutDummy, err := f.Hash(false)
	require.NoError(t, err)

	f.Append(NewAccountUpdate(EmptyPublicKey, DefaultTokenID))
	withDummy, err := f.Hash(false)
	require.NoError(t, err)
	assert.Equal(t, 0, withoutDummy.Cmp(withDummy))
}

func TestFlatListAssignsCallDepths(t *testing.T) {
	root := newTestUpdate(0)
	child := newTestUpdate(1)
	grandchild := newTestUpdate(2)
	require.NoError(t, root.Approve(child, AnyChildren{}))
	require.NoError(t, child.Approve(grandchild, AnyChildren{}))

	f := NewForest()
	f.Append(root)
	sibling := newTestUpdate(3)
	f.Append(sibling)

	flat := f.FlatList()
	require.Len(t, flat, 4)
	assert.Equal(t, root.ID(), flat[0].ID())
	assert.Equal(t, 0, flat[0].Body.CallDepth)
	assert.Equal(t, child.ID(), flat[1].ID())
	assert.Equal(t, 1, flat[1].Body.CallDepth)
	assert.Equal(t, grandchild.ID(), flat[2].ID())
	assert.Equal(t, 2, flat[2].Body.CallDepth)
	assert.Equal(t, sibling.ID(), flat[3].ID())
	assert.Equal(t, 0, flat[3].Body.CallDepth)
}

func TestFlatListDropsDummies(t *testing.T) {
	dummy := NewAccountUpdate(EmptyPublicKey, DefaultTokenID)
	child := newTestUpdate(0)
	require.NoError(t, dummy.Approve(child, AnyChildren{}))

	f := NewForest()
	f.Append(dummy)

	flat := f.FlatList()
	require.Len(t, flat, 1)
	assert.Equal(t, child.ID(), flat[0].ID())
	// children of a dropped dummy keep the dummy's depth
	assert.Equal(t, 0, flat[0].Body.CallDepth)
}

func TestHashChildrenEqualsChecked(t *testing.T) {
	parent := newTestUpdate(0)
	child := newTestUpdate(1)
	require.NoError(t, parent.Approve(child, AnyChildren{}))

	pinned, err := HashChildrenBase(parent)
	require.NoError(t, err)
	parent.Children.CallsType = CallsEquals
	parent.Children.Equals = pinned

	_, err = HashChildren(parent, true)
	assert.NoError(t, err)

	// mutate the subtree after pinning
	child.Body.IncrementNonce = true
	_, err = HashChildren(parent, true)
	require.Error(t, err)
	assert.ErrorIs(t, Unwrap(err), ErrChildrenHashMismatch)

	// unchecked mode computes without asserting
	_, err = HashChildren(parent, false)
	assert.NoError(t, err)
}

func TestAddCallers(t *testing.T) {
	root := newTestUpdate(0)
	child := newTestUpdate(1)
	delegate := newTestUpdate(2)
	require.NoError(t, root.Approve(child, AnyChildren{}))
	require.NoError(t, child.Approve(delegate, AnyChildren{}))
	delegate.IsDelegateCall = true

	f := NewForest()
	f.Append(root)
	AddCallers(f)

	assert.True(t, root.Body.Caller.IsDefault())

	rootDerived := Token{TokenOwner: root.Body.PublicKey, ParentTokenID: root.Body.TokenID}.ID()
	assert.True(t, child.Body.Caller.Equal(rootDerived))

	// a delegate call runs in its parent's context
	assert.True(t, delegate.Body.Caller.Equal(rootDerived))
}

func TestComputeCallerContext(t *testing.T) {
	root := newTestUpdate(0)
	child := newTestUpdate(1)
	require.NoError(t, root.Approve(child, AnyChildren{}))

	f := NewForest()
	f.Append(root)
	AddCallers(f)

	ctx := ComputeCallerContext(child)
	assert.True(t, ctx.Caller.Equal(child.Body.Caller))

	rootCtx := ComputeCallerContext(root)
	assert.True(t, rootCtx.Self.IsDefault())
	assert.True(t, rootCtx.Caller.IsDefault())
}

func TestForEachPredecessor(t *testing.T) {
	root := newTestUpdate(0)
	child := newTestUpdate(1)
	require.NoError(t, root.Approve(child, AnyChildren{}))
	sibling := newTestUpdate(2)

	f := NewForest()
	f.Append(root)
	f.Append(sibling)

	var seen []uint64
	found := f.ForEachPredecessor(sibling, func(u *AccountUpdate) {
		seen = append(seen, u.ID())
	})
	require.True(t, found)
	assert.Equal(t, []uint64{root.ID(), child.ID()}, seen)

	detached := newTestUpdate(3)
	assert.False(t, f.ForEachPredecessor(detached, func(*AccountUpdate) {}))
}

func TestForestCloneIndependent(t *testing.T) {
	root := newTestUpdate(0)
	child := newTestUpdate(1)
	require.NoError(t, root.Approve(child, AnyChildren{}))
	f := NewForest()
	f.Append(root)

	clone := f.Clone()
	require.Len(t, clone.Updates, 1)
	assert.Equal(t, root.ID(), clone.Updates[0].ID())

	clone.Updates[0].Body.IncrementNonce = true
	assert.False(t, root.Body.IncrementNonce)

	h1, err := f.Hash(false)
	require.NoError(t, err)
	h2, err := clone.Hash(false)
	require.NoError(t, err)
	assert.NotEqual(t, 0, h1.Cmp(h2))
}
