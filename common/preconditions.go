package common

import (
	"fmt"
	"math/big"
)

// OrIgnore is a precondition slot: when IsSome is false the constraint is
// skipped. The carried value must still be well typed because it is hashed
// as a dummy.
type OrIgnore[T any] struct {
	IsSome bool `json:"isSome"`
	Value  T    `json:"value"`
}

// Check builds an active precondition
func Check[T any](v T) OrIgnore[T] {
	return OrIgnore[T]{IsSome: true, Value: v}
}

// Ignore builds an inactive precondition carrying the given dummy
func Ignore[T any](dummy T) OrIgnore[T] {
	return OrIgnore[T]{Value: dummy}
}

// ClosedInterval is an inclusive [Lower, Upper] bound; equality constraints
// set Lower == Upper
type ClosedInterval[T any] struct {
	Lower T `json:"lower"`
	Upper T `json:"upper"`
}

// Equals builds the interval that only the given value satisfies
func Equals[T any](v T) ClosedInterval[T] {
	return ClosedInterval[T]{Lower: v, Upper: v}
}

// uint64Interval is the full-range dummy for unsigned interval preconditions
func uint64Interval() ClosedInterval[BigIntStr] {
	return ClosedInterval[BigIntStr]{Lower: "0", Upper: "18446744073709551615"}
}

func uint32Interval() ClosedInterval[uint32] {
	return ClosedInterval[uint32]{Lower: 0, Upper: ^uint32(0)}
}

// NetworkPreconditions constrain the protocol state the transaction may be
// applied under
type NetworkPreconditions struct {
	SnarkedLedgerHash      OrIgnore[BigIntStr]                 `json:"snarkedLedgerHash"`
	BlockchainLength       OrIgnore[ClosedInterval[uint32]]    `json:"blockchainLength"`
	MinWindowDensity       OrIgnore[ClosedInterval[uint32]]    `json:"minWindowDensity"`
	TotalCurrency          OrIgnore[ClosedInterval[BigIntStr]] `json:"totalCurrency"`
	GlobalSlotSinceGenesis OrIgnore[ClosedInterval[uint32]]    `json:"globalSlotSinceGenesis"`
}

// NewNetworkPreconditions ignores every network constraint
func NewNetworkPreconditions() NetworkPreconditions {
	return NetworkPreconditions{
		SnarkedLedgerHash:      Ignore(BigIntStr("0")),
		BlockchainLength:       Ignore(uint32Interval()),
		MinWindowDensity:       Ignore(uint32Interval()),
		TotalCurrency:          Ignore(uint64Interval()),
		GlobalSlotSinceGenesis: Ignore(uint32Interval()),
	}
}

func uint32IntervalFields(isSome bool, iv ClosedInterval[uint32]) []*big.Int {
	return []*big.Int{
		BoolToField(isSome),
		new(big.Int).SetUint64(uint64(iv.Lower)),
		new(big.Int).SetUint64(uint64(iv.Upper)),
	}
}

func bigIntervalFields(isSome bool, iv ClosedInterval[BigIntStr]) ([]*big.Int, error) {
	lower, err := iv.Lower.BigInt()
	if err != nil {
		return nil, err
	}
	upper, err := iv.Upper.BigInt()
	if err != nil {
		return nil, err
	}
	return []*big.Int{BoolToField(isSome), lower, upper}, nil
}

func (n NetworkPreconditions) fields() ([]*big.Int, error) {
	slh, err := n.SnarkedLedgerHash.Value.FieldElement()
	if err != nil {
		return nil, err
	}
	out := []*big.Int{BoolToField(n.SnarkedLedgerHash.IsSome), slh}
	out = append(out, uint32IntervalFields(n.BlockchainLength.IsSome, n.BlockchainLength.Value)...)
	out = append(out, uint32IntervalFields(n.MinWindowDensity.IsSome, n.MinWindowDensity.Value)...)
	tc, err := bigIntervalFields(n.TotalCurrency.IsSome, n.TotalCurrency.Value)
	if err != nil {
		return nil, err
	}
	out = append(out, tc...)
	out = append(out, uint32IntervalFields(n.GlobalSlotSinceGenesis.IsSome, n.GlobalSlotSinceGenesis.Value)...)
	return out, nil
}

// AccountPreconditions constrain the current state of the account the update
// touches
type AccountPreconditions struct {
	Balance          OrIgnore[ClosedInterval[BigIntStr]] `json:"balance"`
	Nonce            OrIgnore[ClosedInterval[Nonce]]     `json:"nonce"`
	ReceiptChainHash OrIgnore[BigIntStr]                 `json:"receiptChainHash"`
	Delegate         OrIgnore[PublicKey]                 `json:"delegate"`
	State            [8]OrIgnore[BigIntStr]              `json:"state"`
	ActionState      OrIgnore[BigIntStr]                 `json:"actionState"`
	ProvedState      OrIgnore[bool]                      `json:"provedState"`
	IsNew            OrIgnore[bool]                      `json:"isNew"`
}

// NewAccountPreconditions ignores every account constraint
func NewAccountPreconditions() AccountPreconditions {
	p := AccountPreconditions{
		Balance:          Ignore(uint64Interval()),
		Nonce:            Ignore(ClosedInterval[Nonce]{Lower: 0, Upper: MaxNonceValue}),
		ReceiptChainHash: Ignore(BigIntStr("0")),
		Delegate:         Ignore(EmptyPublicKey),
		ActionState:      Ignore(BigIntStr("0")),
	}
	for i := range p.State {
		p.State[i] = Ignore(BigIntStr("0"))
	}
	return p
}

// RequireNonce pins the nonce to exactly n
func (p *AccountPreconditions) RequireNonce(n Nonce) {
	p.Nonce = Check(Equals(n))
}

func (p AccountPreconditions) fields() ([]*big.Int, error) {
	balance, err := bigIntervalFields(p.Balance.IsSome, p.Balance.Value)
	if err != nil {
		return nil, err
	}
	out := balance
	if p.Nonce.Value.Lower > MaxNonceValue || p.Nonce.Value.Upper > MaxNonceValue {
		return nil, Wrap(fmt.Errorf("%w in nonce precondition", ErrNonceOverflow))
	}
	out = append(out, BoolToField(p.Nonce.IsSome),
		p.Nonce.Value.Lower.BigInt(), p.Nonce.Value.Upper.BigInt())
	rch, err := p.ReceiptChainHash.Value.FieldElement()
	if err != nil {
		return nil, err
	}
	out = append(out, BoolToField(p.ReceiptChainHash.IsSome), rch)
	sign, y := p.Delegate.Value.Fields()
	out = append(out, BoolToField(p.Delegate.IsSome), sign, y)
	for i := range p.State {
		v, err := p.State[i].Value.FieldElement()
		if err != nil {
			return nil, err
		}
		out = append(out, BoolToField(p.State[i].IsSome), v)
	}
	as, err := p.ActionState.Value.FieldElement()
	if err != nil {
		return nil, err
	}
	out = append(out, BoolToField(p.ActionState.IsSome), as)
	out = append(out, BoolToField(p.ProvedState.IsSome), BoolToField(p.ProvedState.Value))
	out = append(out, BoolToField(p.IsNew.IsSome), BoolToField(p.IsNew.Value))
	return out, nil
}

// Preconditions groups the network and account constraints of one update
type Preconditions struct {
	Network NetworkPreconditions `json:"network"`
	Account AccountPreconditions `json:"account"`
}

// NewPreconditions ignores everything
func NewPreconditions() Preconditions {
	return Preconditions{
		Network: NewNetworkPreconditions(),
		Account: NewAccountPreconditions(),
	}
}

func (p Preconditions) fields() ([]*big.Int, error) {
	network, err := p.Network.fields()
	if err != nil {
		return nil, err
	}
	account, err := p.Account.fields()
	if err != nil {
		return nil, err
	}
	return append(network, account...), nil
}
