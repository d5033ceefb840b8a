package common

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// SetOrKeep is a per-field delta: when IsSome is false the field keeps its
// on-chain value. Value must still be well typed when kept because it is
// hashed as a dummy.
type SetOrKeep[T any] struct {
	IsSome bool `json:"isSome"`
	Value  T    `json:"value"`
}

// Set builds a SetOrKeep that overwrites the on-chain value
func Set[T any](v T) SetOrKeep[T] {
	return SetOrKeep[T]{IsSome: true, Value: v}
}

// Keep builds a SetOrKeep that leaves the on-chain value unchanged; the
// carried dummy is the zero value
func Keep[T any]() SetOrKeep[T] {
	return SetOrKeep[T]{}
}

// AuthRequired is the permission policy for one kind of account
// modification. Exactly five values are recognized.
type AuthRequired string

const (
	// AuthNone means any authorization, including none, is accepted
	AuthNone AuthRequired = "None"
	// AuthEither accepts a signature or a proof
	AuthEither AuthRequired = "Either"
	// AuthProof requires a proof
	AuthProof AuthRequired = "Proof"
	// AuthSignature requires a signature
	AuthSignature AuthRequired = "Signature"
	// AuthImpossible rejects every authorization; the controlled field is frozen
	AuthImpossible AuthRequired = "Impossible"
)

// AuthRequiredFromString parses the five recognized permission values
func AuthRequiredFromString(s string) (AuthRequired, error) {
	switch AuthRequired(s) {
	case AuthNone, AuthEither, AuthProof, AuthSignature, AuthImpossible:
		return AuthRequired(s), nil
	}
	return "", Wrap(fmt.Errorf("%w: %q", ErrInvalidAuthRequired, s))
}

// Field encodes the permission as a small field element
func (a AuthRequired) Field() *big.Int {
	switch a {
	case AuthNone:
		return big.NewInt(0)
	case AuthEither:
		return big.NewInt(1)
	case AuthProof:
		return big.NewInt(2)
	case AuthSignature:
		return big.NewInt(3)
	case AuthImpossible:
		return big.NewInt(4)
	}
	// unreachable for values built through AuthRequiredFromString
	return big.NewInt(4)
}

func authRequiredFromField(v *big.Int) (AuthRequired, error) {
	switch v.Int64() {
	case 0:
		return AuthNone, nil
	case 1:
		return AuthEither, nil
	case 2:
		return AuthProof, nil
	case 3:
		return AuthSignature, nil
	case 4:
		return AuthImpossible, nil
	}
	return "", Wrap(fmt.Errorf("%w: field value %s", ErrInvalidAuthRequired, v))
}

// UnmarshalJSON rejects strings outside the five recognized values
func (a *AuthRequired) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return Wrap(err)
	}
	parsed, err := AuthRequiredFromString(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Permissions is the per-account policy table: which authorization kind may
// perform each kind of modification.
type Permissions struct {
	EditState          AuthRequired `json:"editState"`
	Send               AuthRequired `json:"send"`
	Receive            AuthRequired `json:"receive"`
	SetDelegate        AuthRequired `json:"setDelegate"`
	SetPermissions     AuthRequired `json:"setPermissions"`
	SetVerificationKey AuthRequired `json:"setVerificationKey"`
	SetZkappURI        AuthRequired `json:"setZkappUri"`
	EditActionState    AuthRequired `json:"editActionState"`
	SetTokenSymbol     AuthRequired `json:"setTokenSymbol"`
	IncrementNonce     AuthRequired `json:"incrementNonce"`
	SetVotingFor       AuthRequired `json:"setVotingFor"`
}

// DefaultPermissions is the policy a plain user account starts with:
// signature-gated writes, open receive
func DefaultPermissions() Permissions {
	return Permissions{
		EditState:          AuthProof,
		Send:               AuthSignature,
		Receive:            AuthNone,
		SetDelegate:        AuthSignature,
		SetPermissions:     AuthSignature,
		SetVerificationKey: AuthSignature,
		SetZkappURI:        AuthSignature,
		EditActionState:    AuthProof,
		SetTokenSymbol:     AuthSignature,
		IncrementNonce:     AuthSignature,
		SetVotingFor:       AuthSignature,
	}
}

func (p Permissions) fields() []*big.Int {
	return []*big.Int{
		p.EditState.Field(), p.Send.Field(), p.Receive.Field(),
		p.SetDelegate.Field(), p.SetPermissions.Field(), p.SetVerificationKey.Field(),
		p.SetZkappURI.Field(), p.EditActionState.Field(), p.SetTokenSymbol.Field(),
		p.IncrementNonce.Field(), p.SetVotingFor.Field(),
	}
}

// Timing describes a vesting schedule for an account balance
type Timing struct {
	InitialMinimumBalance BigIntStr `json:"initialMinimumBalance"`
	CliffTime             uint32    `json:"cliffTime"`
	CliffAmount           BigIntStr `json:"cliffAmount"`
	VestingPeriod         uint32    `json:"vestingPeriod"`
	VestingIncrement      BigIntStr `json:"vestingIncrement"`
}

func (t Timing) fields() ([]*big.Int, error) {
	imb, err := t.InitialMinimumBalance.BigInt()
	if err != nil {
		return nil, err
	}
	ca, err := t.CliffAmount.BigInt()
	if err != nil {
		return nil, err
	}
	vi, err := t.VestingIncrement.BigInt()
	if err != nil {
		return nil, err
	}
	return []*big.Int{
		imb, new(big.Int).SetUint64(uint64(t.CliffTime)), ca,
		new(big.Int).SetUint64(uint64(t.VestingPeriod)), vi,
	}, nil
}

// VerificationKey pairs the raw verifier data with its field commitment. Only
// the hash enters commitments; the data travels as auxiliary bytes.
type VerificationKey struct {
	Data HexBytes  `json:"data"`
	Hash BigIntStr `json:"hash"`
}

// Update is the set-or-keep delta an account update applies to its account
type Update struct {
	AppState        [8]SetOrKeep[BigIntStr]    `json:"appState"`
	Delegate        SetOrKeep[PublicKey]       `json:"delegate"`
	VerificationKey SetOrKeep[VerificationKey] `json:"verificationKey"`
	Permissions     SetOrKeep[Permissions]     `json:"permissions"`
	ZkappURI        SetOrKeep[string]          `json:"zkappUri"`
	TokenSymbol     SetOrKeep[string]          `json:"tokenSymbol"`
	Timing          SetOrKeep[Timing]          `json:"timing"`
	VotingFor       SetOrKeep[BigIntStr]       `json:"votingFor"`
}

// NewUpdate returns an Update that keeps every field, with well-typed dummies
func NewUpdate() Update {
	u := Update{}
	for i := range u.AppState {
		u.AppState[i] = SetOrKeep[BigIntStr]{Value: "0"}
	}
	u.Delegate = SetOrKeep[PublicKey]{Value: EmptyPublicKey}
	u.VerificationKey = SetOrKeep[VerificationKey]{Value: VerificationKey{Data: HexBytes{}, Hash: "0"}}
	u.Permissions = SetOrKeep[Permissions]{Value: DefaultPermissions()}
	u.Timing = SetOrKeep[Timing]{Value: Timing{
		InitialMinimumBalance: "0", CliffAmount: "0", VestingIncrement: "0",
	}}
	u.VotingFor = SetOrKeep[BigIntStr]{Value: "0"}
	return u
}

// maxTokenSymbolLen bounds the symbol so its bytes pack into one field element
const maxTokenSymbolLen = 6

func tokenSymbolToField(symbol string) (*big.Int, error) {
	if len(symbol) > maxTokenSymbolLen {
		return nil, Wrap(fmt.Errorf("%w: token symbol longer than %d bytes", ErrNumOverflow, maxTokenSymbolLen))
	}
	return new(big.Int).SetBytes([]byte(symbol)), nil
}

// zkappURIField commits to the URI string; kept fields hash the empty string
func zkappURIField(uri string) *big.Int {
	data := []byte(uri)
	elems := make([]*big.Int, 0, len(data)/31+1)
	for start := 0; start < len(data); start += 31 {
		end := start + 31
		if end > len(data) {
			end = len(data)
		}
		elems = append(elems, new(big.Int).SetBytes(data[start:end]))
	}
	return MustHashFields(PrefixEvent, elems...)
}

func (u Update) fields() ([]*big.Int, error) {
	out := make([]*big.Int, 0, 44)
	for i := range u.AppState {
		v, err := u.AppState[i].Value.FieldElement()
		if err != nil {
			return nil, err
		}
		out = append(out, BoolToField(u.AppState[i].IsSome), v)
	}
	sign, y := u.Delegate.Value.Fields()
	out = append(out, BoolToField(u.Delegate.IsSome), sign, y)
	vkHash, err := u.VerificationKey.Value.Hash.FieldElement()
	if err != nil {
		return nil, err
	}
	out = append(out, BoolToField(u.VerificationKey.IsSome), vkHash)
	out = append(out, BoolToField(u.Permissions.IsSome))
	out = append(out, u.Permissions.Value.fields()...)
	out = append(out, BoolToField(u.ZkappURI.IsSome), zkappURIField(u.ZkappURI.Value))
	symbol, err := tokenSymbolToField(u.TokenSymbol.Value)
	if err != nil {
		return nil, err
	}
	out = append(out, BoolToField(u.TokenSymbol.IsSome), symbol)
	timingFields, err := u.Timing.Value.fields()
	if err != nil {
		return nil, err
	}
	out = append(out, BoolToField(u.Timing.IsSome))
	out = append(out, timingFields...)
	votingFor, err := u.VotingFor.Value.FieldElement()
	if err != nil {
		return nil, err
	}
	out = append(out, BoolToField(u.VotingFor.IsSome), votingFor)
	return out, nil
}
