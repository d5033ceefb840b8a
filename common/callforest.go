package common

import (
	"math/big"
	"sync"
)

// Forest is an owned, ordered list of root account updates. It is the unit
// the commitment and traversal algorithms operate on.
type Forest struct {
	Updates []*AccountUpdate
}

// NewForest returns an empty forest
func NewForest() *Forest {
	return &Forest{}
}

// Append attaches an update as a new root, unlinking it from any prior owner
func (f *Forest) Append(u *AccountUpdate) {
	u.Unlink()
	u.forest = f
	f.Updates = append(f.Updates, u)
}

// Clone deep-copies the forest; node ids are preserved
func (f *Forest) Clone() *Forest {
	out := NewForest()
	for _, u := range f.Updates {
		clone := u.Clone()
		clone.forest = out
		out.Updates = append(out.Updates, clone)
	}
	return out
}

var (
	emptyForestOnce sync.Once
	emptyForestHash *big.Int
)

// EmptyForestHash is the fixed commitment of "no children", the base case of
// the forest fold
func EmptyForestHash() *big.Int {
	emptyForestOnce.Do(func() {
		emptyForestHash = MustHashFields(PrefixEmptyForest)
	})
	return new(big.Int).Set(emptyForestHash)
}

// hashForestList folds a sibling list into its commitment. Siblings are
// consumed in reverse so the fold builds the same cons-list the circuit
// walks front to back. Dummy nodes contribute nothing, but through a select
// rather than a branch: the constrained version must do the same amount of
// hashing regardless of which nodes are dummies.
func hashForestList(updates []*AccountUpdate, checked bool) (*big.Int, error) {
	acc := EmptyForestHash()
	for i := len(updates) - 1; i >= 0; i-- {
		u := updates[i]
		bodyHash, err := u.Hash()
		if err != nil {
			return nil, err
		}
		childrenHash, err := HashChildren(u, checked)
		if err != nil {
			return nil, err
		}
		nodeHash, err := HashFields(PrefixNode, bodyHash, childrenHash)
		if err != nil {
			return nil, err
		}
		consHash, err := HashFields(PrefixCons, nodeHash, acc)
		if err != nil {
			return nil, err
		}
		acc = Select(u.IsDummy(), acc, consHash)
	}
	return acc, nil
}

// HashChildrenBase computes the commitment of a node's children directly,
// ignoring the calls-type policy
func HashChildrenBase(au *AccountUpdate) (*big.Int, error) {
	return hashForestList(au.Children.Updates, false)
}

// HashChildren returns the children commitment under the node's calls-type
// policy. In checked mode an Equals policy whose pinned hash no longer
// matches the actual children fails with ErrChildrenHashMismatch; outside
// checked mode the computed value is returned and the pin is trusted later,
// which mirrors how a witness crosses the constrained boundary.
func HashChildren(au *AccountUpdate, checked bool) (*big.Int, error) {
	switch au.Children.CallsType {
	case CallsEquals:
		computed, err := hashForestList(au.Children.Updates, checked)
		if err != nil {
			return nil, err
		}
		if checked && au.Children.Equals != nil && computed.Cmp(au.Children.Equals) != 0 {
			return nil, Wrap(ErrChildrenHashMismatch)
		}
		return computed, nil
	case CallsWitness:
		// computed out of circuit and injected unconstrained
		return hashForestList(au.Children.Updates, false)
	default:
		return hashForestList(au.Children.Updates, checked)
	}
}

// Hash folds the whole forest into its commitment, the value that becomes
// (part of) the circuit public input
func (f *Forest) Hash(checked bool) (*big.Int, error) {
	return hashForestList(f.Updates, checked)
}

// FlatList is the depth-first pre-order flattening of the forest: every
// visited node gets its CallDepth assigned, and dummy nodes are dropped.
// This is the representation submitted on the wire.
func (f *Forest) FlatList() []*AccountUpdate {
	var out []*AccountUpdate
	for _, u := range f.Updates {
		out = flattenInto(out, u, 0)
	}
	return out
}

func flattenInto(out []*AccountUpdate, u *AccountUpdate, depth int) []*AccountUpdate {
	if !u.IsDummy() {
		u.Body.CallDepth = depth
		out = append(out, u)
		depth++
	}
	for _, child := range u.Children.Updates {
		out = flattenInto(out, child, depth)
	}
	return out
}

// ForEach visits every node of the forest in pre-order, dummies included
func (f *Forest) ForEach(fn func(*AccountUpdate)) {
	for _, u := range f.Updates {
		forEach(u, fn)
	}
}

func forEach(u *AccountUpdate, fn func(*AccountUpdate)) {
	fn(u)
	for _, child := range u.Children.Updates {
		forEach(child, fn)
	}
}

// CallerContext is the pair of token ids an update executes under: Self is
// the token id the update's own children are called with, Caller is who
// called the update
type CallerContext struct {
	Self   TokenID
	Caller TokenID
}

// DefaultCallerContext is the root context: both ids are the default token
func DefaultCallerContext() CallerContext {
	return CallerContext{Self: DefaultTokenID, Caller: DefaultTokenID}
}

// AddCallers assigns every node's caller token id top-down. A delegate call
// runs in its parent's context, so it inherits the parent's caller and keeps
// the parent's self id; any other node becomes a context of its own, with
// its derived token id as the new self.
func AddCallers(f *Forest) {
	for _, u := range f.Updates {
		addCallers(u, DefaultCallerContext())
	}
}

func addCallers(u *AccountUpdate, ctx CallerContext) {
	child := applyCallerContext(u, ctx)
	for _, c := range u.Children.Updates {
		addCallers(c, child)
	}
}

// applyCallerContext sets u's caller from ctx and returns the context u's
// children run in
func applyCallerContext(u *AccountUpdate, ctx CallerContext) CallerContext {
	if u.IsDelegateCall {
		u.Body.Caller = ctx.Caller
		return ctx
	}
	u.Body.Caller = ctx.Self
	derived := Token{TokenOwner: u.Body.PublicKey, ParentTokenID: u.Body.TokenID}.ID()
	return CallerContext{Self: derived, Caller: ctx.Self}
}

// ComputeCallerContext rebuilds the context a single node executes in by
// walking its parent links once, instead of re-running AddCallers over the
// whole forest
func ComputeCallerContext(u *AccountUpdate) CallerContext {
	var chain []*AccountUpdate
	for p := u.Parent(); p != nil; p = p.Parent() {
		chain = append(chain, p)
	}
	ctx := DefaultCallerContext()
	for i := len(chain) - 1; i >= 0; i-- {
		ctx = callerContextAfter(chain[i], ctx)
	}
	return ctx
}

// callerContextAfter is applyCallerContext without the mutation
func callerContextAfter(u *AccountUpdate, ctx CallerContext) CallerContext {
	if u.IsDelegateCall {
		return ctx
	}
	derived := Token{TokenOwner: u.Body.PublicKey, ParentTokenID: u.Body.TokenID}.ID()
	return CallerContext{Self: derived, Caller: ctx.Self}
}

// ForEachPredecessor invokes fn on every node visited strictly before target
// in pre-order, matching the target by id. It returns true when the target
// was found.
func (f *Forest) ForEachPredecessor(target *AccountUpdate, fn func(*AccountUpdate)) bool {
	for _, u := range f.Updates {
		if found := forEachBefore(u, target.ID(), fn); found {
			return true
		}
	}
	return false
}

func forEachBefore(u *AccountUpdate, targetID uint64, fn func(*AccountUpdate)) bool {
	if u.ID() == targetID {
		return true
	}
	fn(u)
	for _, child := range u.Children.Updates {
		if found := forEachBefore(child, targetID, fn); found {
			return true
		}
	}
	return false
}
