package common

import (
	"fmt"
	"math/big"
)

// Auxiliary is the out-of-field remainder of an account update: everything
// FromFields needs to reconstruct the node that the field encoding carries
// only as a hash (raw event data, strings, verifier bytes) or not at all
// (tree position, authorization artifacts). Lazy intents are excluded; they
// may hold private keys.
type Auxiliary struct {
	ID             uint64
	Label          string
	CallDepth      int
	IsDelegateCall bool
	Events         Events
	Actions        Events
	ZkappURI       string
	VKData         HexBytes
	CallsType      CallsType
	Equals         *big.Int
	Children       []*AccountUpdate
	Authorization  *Authorization
}

// ToFields returns the ordered field elements of the node's body, the exact
// sequence absorbed by Hash
func ToFields(au *AccountUpdate) ([]*big.Int, error) {
	return au.Body.fields()
}

// ToAuxiliary captures the node's out-of-field remainder. Children are
// cloned so the auxiliary value is a stable snapshot.
func ToAuxiliary(au *AccountUpdate) Auxiliary {
	aux := Auxiliary{
		ID:             au.ID(),
		Label:          au.Label,
		CallDepth:      au.Body.CallDepth,
		IsDelegateCall: au.IsDelegateCall,
		Events:         append(Events{}, au.Body.Events...),
		Actions:        append(Events{}, au.Body.Actions...),
		ZkappURI:       au.Body.Update.ZkappURI.Value,
		VKData:         append(HexBytes{}, au.Body.Update.VerificationKey.Value.Data...),
		CallsType:      au.Children.CallsType,
	}
	if au.Children.Equals != nil {
		aux.Equals = new(big.Int).Set(au.Children.Equals)
	}
	if au.Authorization != nil {
		auth := *au.Authorization
		aux.Authorization = &auth
	}
	for _, child := range au.Children.Updates {
		aux.Children = append(aux.Children, child.Clone())
	}
	return aux
}

// fieldReader consumes a field-element sequence in encoding order
type fieldReader struct {
	elems []*big.Int
	pos   int
	short bool
}

func (r *fieldReader) next() *big.Int {
	if r.pos >= len(r.elems) {
		r.short = true
		return big.NewInt(0)
	}
	v := r.elems[r.pos]
	r.pos++
	return v
}

func (r *fieldReader) nextBool() bool {
	return r.next().Sign() != 0
}

func (r *fieldReader) nextUint32() uint32 {
	return uint32(r.next().Uint64())
}

func (r *fieldReader) nextStr() BigIntStr {
	return NewBigIntStr(r.next())
}

func (r *fieldReader) finish() error {
	if r.short {
		return Wrap(fmt.Errorf("field encoding too short: needed more than %d elements", len(r.elems)))
	}
	if r.pos != len(r.elems) {
		return Wrap(fmt.Errorf("field encoding too long: %d trailing elements", len(r.elems)-r.pos))
	}
	return nil
}

// FromFields rebuilds an account update from its field encoding plus the
// auxiliary remainder, the inverse of the ToFields/ToAuxiliary split
func FromFields(elems []*big.Int, aux Auxiliary) (*AccountUpdate, error) {
	r := &fieldReader{elems: elems}
	var body Body

	body.PublicKey = PublicKeyFromFields(r.next(), r.next())
	tokenID, err := NewTokenID(r.next())
	if err != nil {
		return nil, err
	}
	body.TokenID = tokenID

	magnitude := r.nextStr()
	negative := r.nextBool()
	body.BalanceChange = BalanceChange{Magnitude: magnitude, Sgn: SgnPositive}
	if negative {
		body.BalanceChange.Sgn = SgnNegative
	}

	update, err := updateFromFields(r, aux)
	if err != nil {
		return nil, err
	}
	body.Update = update

	r.next() // events commitment, raw data comes from aux
	r.next() // actions commitment
	body.Events = append(Events{}, aux.Events...)
	body.Actions = append(Events{}, aux.Actions...)
	body.CallData = r.nextStr()

	body.Preconditions, err = preconditionsFromFields(r)
	if err != nil {
		return nil, err
	}

	body.UseFullCommitment = r.nextBool()
	body.IncrementNonce = r.nextBool()
	body.AuthorizationKind.IsSigned = r.nextBool()
	body.AuthorizationKind.IsProved = r.nextBool()
	body.AuthorizationKind.VerificationKeyHash = r.nextStr()
	caller, err := NewTokenID(r.next())
	if err != nil {
		return nil, err
	}
	body.Caller = caller
	if err := r.finish(); err != nil {
		return nil, err
	}

	body.CallDepth = aux.CallDepth
	node := &AccountUpdate{
		Body:           body,
		Lazy:           LazyNone{},
		IsDelegateCall: aux.IsDelegateCall,
		Label:          aux.Label,
		Children:       Children{CallsType: aux.CallsType},
		id:             aux.ID,
	}
	if aux.Equals != nil {
		node.Children.Equals = new(big.Int).Set(aux.Equals)
	}
	if aux.Authorization != nil {
		auth := *aux.Authorization
		node.Authorization = &auth
	}
	for _, child := range aux.Children {
		clone := child.Clone()
		clone.parent = node
		node.Children.Updates = append(node.Children.Updates, clone)
	}
	return node, nil
}

func updateFromFields(r *fieldReader, aux Auxiliary) (Update, error) {
	var u Update
	for i := range u.AppState {
		u.AppState[i] = SetOrKeep[BigIntStr]{IsSome: r.nextBool(), Value: r.nextStr()}
	}
	u.Delegate = SetOrKeep[PublicKey]{IsSome: r.nextBool(),
		Value: PublicKeyFromFields(r.next(), r.next())}
	u.VerificationKey = SetOrKeep[VerificationKey]{IsSome: r.nextBool(),
		Value: VerificationKey{Data: append(HexBytes{}, aux.VKData...), Hash: r.nextStr()}}

	permsSome := r.nextBool()
	var perms Permissions
	for _, slot := range []*AuthRequired{
		&perms.EditState, &perms.Send, &perms.Receive,
		&perms.SetDelegate, &perms.SetPermissions, &perms.SetVerificationKey,
		&perms.SetZkappURI, &perms.EditActionState, &perms.SetTokenSymbol,
		&perms.IncrementNonce, &perms.SetVotingFor,
	} {
		parsed, err := authRequiredFromField(r.next())
		if err != nil {
			return Update{}, err
		}
		*slot = parsed
	}
	u.Permissions = SetOrKeep[Permissions]{IsSome: permsSome, Value: perms}

	uriSome := r.nextBool()
	r.next() // URI commitment, raw string comes from aux
	u.ZkappURI = SetOrKeep[string]{IsSome: uriSome, Value: aux.ZkappURI}

	symbolSome := r.nextBool()
	u.TokenSymbol = SetOrKeep[string]{IsSome: symbolSome,
		Value: string(r.next().Bytes())}

	timingSome := r.nextBool()
	u.Timing = SetOrKeep[Timing]{IsSome: timingSome, Value: Timing{
		InitialMinimumBalance: r.nextStr(),
		CliffTime:             r.nextUint32(),
		CliffAmount:           r.nextStr(),
		VestingPeriod:         r.nextUint32(),
		VestingIncrement:      r.nextStr(),
	}}
	u.VotingFor = SetOrKeep[BigIntStr]{IsSome: r.nextBool(), Value: r.nextStr()}
	return u, nil
}

func bigIntervalFromFields(r *fieldReader) OrIgnore[ClosedInterval[BigIntStr]] {
	return OrIgnore[ClosedInterval[BigIntStr]]{IsSome: r.nextBool(),
		Value: ClosedInterval[BigIntStr]{Lower: r.nextStr(), Upper: r.nextStr()}}
}

func uint32IntervalFromFields(r *fieldReader) OrIgnore[ClosedInterval[uint32]] {
	return OrIgnore[ClosedInterval[uint32]]{IsSome: r.nextBool(),
		Value: ClosedInterval[uint32]{Lower: r.nextUint32(), Upper: r.nextUint32()}}
}

func preconditionsFromFields(r *fieldReader) (Preconditions, error) {
	var p Preconditions

	p.Network.SnarkedLedgerHash = OrIgnore[BigIntStr]{IsSome: r.nextBool(), Value: r.nextStr()}
	p.Network.BlockchainLength = uint32IntervalFromFields(r)
	p.Network.MinWindowDensity = uint32IntervalFromFields(r)
	p.Network.TotalCurrency = bigIntervalFromFields(r)
	p.Network.GlobalSlotSinceGenesis = uint32IntervalFromFields(r)

	p.Account.Balance = bigIntervalFromFields(r)
	nonceSome := r.nextBool()
	lower, err := NonceFromBigInt(r.next())
	if err != nil {
		return Preconditions{}, err
	}
	upper, err := NonceFromBigInt(r.next())
	if err != nil {
		return Preconditions{}, err
	}
	p.Account.Nonce = OrIgnore[ClosedInterval[Nonce]]{IsSome: nonceSome,
		Value: ClosedInterval[Nonce]{Lower: lower, Upper: upper}}
	p.Account.ReceiptChainHash = OrIgnore[BigIntStr]{IsSome: r.nextBool(), Value: r.nextStr()}
	p.Account.Delegate = OrIgnore[PublicKey]{IsSome: r.nextBool(),
		Value: PublicKeyFromFields(r.next(), r.next())}
	for i := range p.Account.State {
		p.Account.State[i] = OrIgnore[BigIntStr]{IsSome: r.nextBool(), Value: r.nextStr()}
	}
	p.Account.ActionState = OrIgnore[BigIntStr]{IsSome: r.nextBool(), Value: r.nextStr()}
	p.Account.ProvedState = OrIgnore[bool]{IsSome: r.nextBool(), Value: r.nextBool()}
	p.Account.IsNew = OrIgnore[bool]{IsSome: r.nextBool(), Value: r.nextBool()}
	return p, nil
}
