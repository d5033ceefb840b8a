package common

import (
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/mitchellh/copystructure"
)

// BalanceChange is a signed magnitude: how much the update credits (Positive)
// or debits (Negative) the account
type BalanceChange struct {
	Magnitude BigIntStr `json:"magnitude"`
	Sgn       string    `json:"sgn"`
}

// SgnPositive and SgnNegative are the two recognized signs
const (
	SgnPositive = "Positive"
	SgnNegative = "Negative"
)

// ZeroBalanceChange credits nothing
func ZeroBalanceChange() BalanceChange {
	return BalanceChange{Magnitude: "0", Sgn: SgnPositive}
}

// NewBalanceChange builds a BalanceChange from a signed amount
func NewBalanceChange(amount *big.Int) BalanceChange {
	if amount.Sign() < 0 {
		return BalanceChange{Magnitude: NewBigIntStr(new(big.Int).Neg(amount)), Sgn: SgnNegative}
	}
	return BalanceChange{Magnitude: NewBigIntStr(amount), Sgn: SgnPositive}
}

// BigInt returns the signed amount
func (b BalanceChange) BigInt() (*big.Int, error) {
	if b.Sgn != SgnPositive && b.Sgn != SgnNegative {
		return nil, Wrap(fmt.Errorf("invalid balance change sign %q", b.Sgn))
	}
	m, err := b.Magnitude.BigInt()
	if err != nil {
		return nil, err
	}
	if m.Sign() < 0 {
		return nil, Wrap(fmt.Errorf("balance change magnitude must be non-negative"))
	}
	if b.Sgn == SgnNegative {
		return new(big.Int).Neg(m), nil
	}
	return m, nil
}

// AddSigned accumulates a signed amount into the balance change
func (b BalanceChange) AddSigned(amount *big.Int) (BalanceChange, error) {
	cur, err := b.BigInt()
	if err != nil {
		return BalanceChange{}, err
	}
	return NewBalanceChange(new(big.Int).Add(cur, amount)), nil
}

func (b BalanceChange) fields() ([]*big.Int, error) {
	m, err := b.Magnitude.BigInt()
	if err != nil {
		return nil, err
	}
	return []*big.Int{m, BoolToField(b.Sgn == SgnNegative)}, nil
}

// AuthorizationKind declares, inside the commitment, how the node intends to
// be authorized
type AuthorizationKind struct {
	IsSigned            bool      `json:"isSigned"`
	IsProved            bool      `json:"isProved"`
	VerificationKeyHash BigIntStr `json:"verificationKeyHash"`
}

// Body is the static description of one account update's intended effect.
// It is immutable by convention once authorization is finalized.
type Body struct {
	PublicKey         PublicKey         `json:"publicKey"`
	TokenID           TokenID           `json:"tokenId"`
	Update            Update            `json:"update"`
	BalanceChange     BalanceChange     `json:"balanceChange"`
	IncrementNonce    bool              `json:"incrementNonce"`
	Events            Events            `json:"events"`
	Actions           Events            `json:"actions"`
	CallData          BigIntStr         `json:"callData"`
	CallDepth         int               `json:"callDepth"`
	Preconditions     Preconditions     `json:"preconditions"`
	UseFullCommitment bool              `json:"useFullCommitment"`
	Caller            TokenID           `json:"caller"`
	AuthorizationKind AuthorizationKind `json:"authorizationKind"`
}

// NewBody returns a Body with every delta kept and every precondition ignored
func NewBody(pk PublicKey, tokenID TokenID) Body {
	return Body{
		PublicKey:         pk,
		TokenID:           tokenID,
		Update:            NewUpdate(),
		BalanceChange:     ZeroBalanceChange(),
		Events:            Events{},
		Actions:           Events{},
		CallData:          "0",
		Preconditions:     NewPreconditions(),
		Caller:            DefaultTokenID,
		AuthorizationKind: AuthorizationKind{VerificationKeyHash: "0"},
	}
}

// Authorization is the finalized credential of a node. At most one of
// Signature/Proof is set; both nil means authorized by nothing.
type Authorization struct {
	Signature *Signature `json:"signature,omitempty"`
	Proof     HexBytes   `json:"proof,omitempty"`
}

// LazyAuthorization is a pending authorization intent, resolved by the
// authorization pipeline. Exactly one of the three variants below implements
// it; a node never carries both a finalized Authorization and a lazy intent.
type LazyAuthorization interface {
	lazyAuthKind() string
}

// LazyNone marks a node that needs no credential
type LazyNone struct{}

// LazySignature marks a node that must be signed. PrivateKey may be nil, in
// which case the signing pass resolves the key from its caller-supplied set.
type LazySignature struct {
	PrivateKey *babyjub.PrivateKey
}

// LazyProof marks a node that must be proved by a compiled method
type LazyProof struct {
	MethodName     string
	Args           []*big.Int
	PreviousProofs []HexBytes
	ContractClass  string
	MemoizedValues []*big.Int
	Blinding       *big.Int
}

func (LazyNone) lazyAuthKind() string      { return "none" }
func (LazySignature) lazyAuthKind() string { return "signature" }
func (LazyProof) lazyAuthKind() string     { return "proof" }

// CallsType controls how a node's children commitment is handled inside a
// constrained computation
type CallsType int

const (
	// CallsNone leaves the commitment fully computed in-circuit
	CallsNone CallsType = iota
	// CallsWitness injects the commitment as an unconstrained witness; the
	// circuit trusts the prover for the children's shape
	CallsWitness
	// CallsEquals computes the commitment and asserts it equals a pinned hash
	CallsEquals
)

// Children is the owned, ordered list of child updates plus the commitment
// policy for them
type Children struct {
	CallsType CallsType
	Equals    *big.Int // pinned hash, only meaningful for CallsEquals
	Updates   []*AccountUpdate
}

// AccountUpdate is one node of the transaction's call forest: a proposed
// state change to a single account, plus its authorization slot and owned
// children. Nodes are compared by id, never structurally, so two identical
// dummies stay independently addressable.
type AccountUpdate struct {
	Body           Body
	Authorization  *Authorization
	Lazy           LazyAuthorization
	IsDelegateCall bool
	Children       Children
	Label          string

	// relation only: ownership is the parent's Children.Updates list (or the
	// top-level Forest); this back-reference exists for traversal
	parent *AccountUpdate
	forest *Forest

	id uint64
}

var updateIDCounter uint64

func nextUpdateID() uint64 {
	return atomic.AddUint64(&updateIDCounter, 1)
}

// NewAccountUpdate builds a default update for the given account: no deltas,
// no preconditions, no authorization intent
func NewAccountUpdate(pk PublicKey, tokenID TokenID) *AccountUpdate {
	return &AccountUpdate{
		Body:     NewBody(pk, tokenID),
		Lazy:     LazyNone{},
		Children: Children{CallsType: CallsWitness},
		id:       nextUpdateID(),
	}
}

// ID is the process-unique identity tag of the node. It is not serialized.
func (au *AccountUpdate) ID() uint64 {
	return au.id
}

// Parent returns the owning parent, or nil for roots
func (au *AccountUpdate) Parent() *AccountUpdate {
	return au.parent
}

// IsDummy reports whether the node is addressed to the placeholder key and
// is therefore inert
func (au *AccountUpdate) IsDummy() bool {
	return au.Body.PublicKey.IsEmpty()
}

// Clone deep-copies the node and its subtree. Ids are preserved: a clone is
// a value snapshot of the same logical nodes, used by the authorization
// pipeline so the pending forest stays reusable.
func (au *AccountUpdate) Clone() *AccountUpdate {
	bodyCopy, err := copystructure.Copy(au.Body)
	if err != nil {
		// Body contains only plain data; copystructure cannot fail on it
		panic(err)
	}
	clone := &AccountUpdate{
		Body:           bodyCopy.(Body),
		Lazy:           au.Lazy,
		IsDelegateCall: au.IsDelegateCall,
		Label:          au.Label,
		id:             au.id,
		Children: Children{
			CallsType: au.Children.CallsType,
			Updates:   make([]*AccountUpdate, 0, len(au.Children.Updates)),
		},
	}
	if au.Children.Equals != nil {
		clone.Children.Equals = new(big.Int).Set(au.Children.Equals)
	}
	if au.Authorization != nil {
		authCopy := *au.Authorization
		if au.Authorization.Signature != nil {
			sig := *au.Authorization.Signature
			authCopy.Signature = &sig
		}
		if au.Authorization.Proof != nil {
			authCopy.Proof = append(HexBytes{}, au.Authorization.Proof...)
		}
		clone.Authorization = &authCopy
	}
	for _, child := range au.Children.Updates {
		childClone := child.Clone()
		childClone.parent = clone
		clone.Children.Updates = append(clone.Children.Updates, childClone)
	}
	return clone
}

// SetLazySignature records a pending signature intent, reopening any
// finalized authorization
func (au *AccountUpdate) SetLazySignature(sk *babyjub.PrivateKey) {
	au.Authorization = nil
	au.Lazy = LazySignature{PrivateKey: sk}
	au.Body.AuthorizationKind.IsSigned = true
	au.Body.AuthorizationKind.IsProved = false
}

// SetLazyProof records a pending proof intent, reopening any finalized
// authorization
func (au *AccountUpdate) SetLazyProof(lp LazyProof) {
	au.Authorization = nil
	au.Lazy = lp
	au.Body.AuthorizationKind.IsSigned = false
	au.Body.AuthorizationKind.IsProved = true
}

// FinalizeSignature closes the pipeline for this node with a signature
func (au *AccountUpdate) FinalizeSignature(sig Signature) {
	au.Authorization = &Authorization{Signature: &sig}
	au.Lazy = LazyNone{}
}

// FinalizeProof closes the pipeline for this node with a proof artifact
func (au *AccountUpdate) FinalizeProof(proof HexBytes) {
	au.Authorization = &Authorization{Proof: proof}
	au.Lazy = LazyNone{}
}

// Unlink removes the node from whichever list currently owns it, found by id
// equality. No-op when the node is not attached anywhere.
func (au *AccountUpdate) Unlink() {
	if au.parent != nil {
		au.parent.Children.Updates = removeByID(au.parent.Children.Updates, au.id)
		au.parent = nil
	}
	if au.forest != nil {
		au.forest.Updates = removeByID(au.forest.Updates, au.id)
		au.forest = nil
	}
}

func removeByID(list []*AccountUpdate, id uint64) []*AccountUpdate {
	for i, u := range list {
		if u.id == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// AccountUpdatesLayout is the recursive descriptor of how much of a child's
// subtree shape a constrained computation pins down. A static circuit cannot
// branch on a variable-size structure, so the layout trades flexibility
// against provability of shape.
type AccountUpdatesLayout interface {
	isLayout()
}

// NoChildren pins the child to the empty-forest hash
type NoChildren struct{}

// AnyChildren supplies the children commitment as an unconstrained witness
type AnyChildren struct{}

// NoDelegation is AnyChildren plus forcing IsDelegateCall=false on the child
type NoDelegation struct{}

// StaticChildren pins an exact ordered shape, one sub-layout per child
type StaticChildren []AccountUpdatesLayout

func (NoChildren) isLayout()     {}
func (AnyChildren) isLayout()    {}
func (NoDelegation) isLayout()   {}
func (StaticChildren) isLayout() {}

// Approve attaches child as an owned child of au, unlinking it from any prior
// owner first, and constrains the child's own children per layout. It also
// clears au's delegate-call flag: an approving update acts on its own behalf.
func (au *AccountUpdate) Approve(child *AccountUpdate, layout AccountUpdatesLayout) error {
	child.Unlink()
	child.parent = au
	au.Children.Updates = append(au.Children.Updates, child)
	au.IsDelegateCall = false
	return applyLayout(child, layout)
}

func applyLayout(au *AccountUpdate, layout AccountUpdatesLayout) error {
	switch l := layout.(type) {
	case NoChildren:
		au.Children.CallsType = CallsEquals
		au.Children.Equals = EmptyForestHash()
	case AnyChildren:
		au.Children.CallsType = CallsWitness
	case NoDelegation:
		au.Children.CallsType = CallsWitness
		au.IsDelegateCall = false
	case StaticChildren:
		if len(l) != len(au.Children.Updates) {
			return Wrap(fmt.Errorf("layout expects %d children, node has %d",
				len(l), len(au.Children.Updates)))
		}
		for i, sub := range l {
			if err := applyLayout(au.Children.Updates[i], sub); err != nil {
				return err
			}
		}
		pinned, err := HashChildrenBase(au)
		if err != nil {
			return err
		}
		au.Children.CallsType = CallsEquals
		au.Children.Equals = pinned
	default:
		return Wrap(fmt.Errorf("unknown account updates layout %T", layout))
	}
	return nil
}

// fields returns the ordered field elements of the body, the exact sequence
// committed by Hash and crossed through the constrained-computation boundary
func (b Body) fields() ([]*big.Int, error) {
	sign, y := b.PublicKey.Fields()
	out := []*big.Int{sign, y, b.TokenID.BigInt()}

	balance, err := b.BalanceChange.fields()
	if err != nil {
		return nil, err
	}
	out = append(out, balance...)

	update, err := b.Update.fields()
	if err != nil {
		return nil, err
	}
	out = append(out, update...)

	eventsHash, err := b.Events.Hash(PrefixEvents)
	if err != nil {
		return nil, err
	}
	actionsHash, err := b.Actions.Hash(PrefixActions)
	if err != nil {
		return nil, err
	}
	callData, err := b.CallData.FieldElement()
	if err != nil {
		return nil, err
	}
	out = append(out, eventsHash, actionsHash, callData)

	preconditions, err := b.Preconditions.fields()
	if err != nil {
		return nil, err
	}
	out = append(out, preconditions...)

	vkHash, err := b.AuthorizationKind.VerificationKeyHash.FieldElement()
	if err != nil {
		return nil, err
	}
	out = append(out,
		BoolToField(b.UseFullCommitment),
		BoolToField(b.IncrementNonce),
		BoolToField(b.AuthorizationKind.IsSigned),
		BoolToField(b.AuthorizationKind.IsProved),
		vkHash,
		b.Caller.BigInt(),
	)
	return out, nil
}

// Hash commits to the node's body
func (au *AccountUpdate) Hash() (*big.Int, error) {
	elems, err := au.Body.fields()
	if err != nil {
		return nil, err
	}
	return HashFields(PrefixBody, elems...)
}
