package common

import (
	"encoding/json"
	"math/big"
)

// TokenID is the identifier of a custom token: a field element derived from
// the owning account. The default token has the fixed well-known id 1.
type TokenID struct {
	v *big.Int
}

// DefaultTokenID is the id of the base token every account holds
var DefaultTokenID = TokenID{v: big.NewInt(1)}

// NewTokenID builds a TokenID from a field element
func NewTokenID(v *big.Int) (TokenID, error) {
	if err := CheckInField(v); err != nil {
		return TokenID{}, err
	}
	return TokenID{v: new(big.Int).Set(v)}, nil
}

// BigInt returns the field element of the id
func (t TokenID) BigInt() *big.Int {
	if t.v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(t.v)
}

// Equal compares two token ids by value
func (t TokenID) Equal(other TokenID) bool {
	return t.BigInt().Cmp(other.BigInt()) == 0
}

// IsDefault returns true for the base token id
func (t TokenID) IsDefault() bool {
	return t.Equal(DefaultTokenID)
}

// MarshalJSON implements json.Marshaler
func (t TokenID) MarshalJSON() ([]byte, error) {
	return json.Marshal(NewBigIntStr(t.BigInt()))
}

// UnmarshalJSON implements json.Unmarshaler
func (t *TokenID) UnmarshalJSON(data []byte) error {
	var s BigIntStr
	if err := json.Unmarshal(data, &s); err != nil {
		return Wrap(err)
	}
	v, err := s.FieldElement()
	if err != nil {
		return err
	}
	t.v = v
	return nil
}

// Token is a pure derived descriptor of a custom token: the owner account
// under a parent token. It is never stored; its id is recomputed on demand.
type Token struct {
	TokenOwner    PublicKey `json:"tokenOwner"`
	ParentTokenID TokenID   `json:"parentTokenId"`
}

// NewToken builds the descriptor of the token owned by the given account
// under the default token
func NewToken(owner PublicKey) Token {
	return Token{TokenOwner: owner, ParentTokenID: DefaultTokenID}
}

// ID derives the token id: hash(owner public key, parent token id)
func (t Token) ID() TokenID {
	sign, y := t.TokenOwner.Fields()
	id := MustHashFields(PrefixDeriveToken, sign, y, t.ParentTokenID.BigInt())
	return TokenID{v: id}
}
