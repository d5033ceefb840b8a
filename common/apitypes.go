package common

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// BigIntStr is the JSON representation of a field element or amount: a
// base-10 string. Using strings avoids precision loss in clients that parse
// JSON numbers as floats.
type BigIntStr string

// NewBigIntStr creates a BigIntStr from a *big.Int
func NewBigIntStr(v *big.Int) BigIntStr {
	if v == nil {
		return "0"
	}
	return BigIntStr(v.String())
}

// UnmarshalJSON accepts only the canonical non-negative decimal form of an
// in-field value, so malformed or out-of-range inputs fail at the wire
// boundary instead of later at hash time
func (s *BigIntStr) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return Wrap(err)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 || raw != v.String() {
		return Wrap(fmt.Errorf("invalid decimal integer %q", raw))
	}
	if err := CheckInField(v); err != nil {
		return err
	}
	*s = BigIntStr(raw)
	return nil
}

// BigInt parses the decimal string, rejecting anything that is not a plain
// base-10 integer
func (s BigIntStr) BigInt() (*big.Int, error) {
	v, ok := new(big.Int).SetString(string(s), 10)
	if !ok {
		return nil, Wrap(fmt.Errorf("invalid decimal integer %q", string(s)))
	}
	return v, nil
}

// FieldElement parses the decimal string and additionally checks field
// membership
func (s BigIntStr) FieldElement() (*big.Int, error) {
	v, err := s.BigInt()
	if err != nil {
		return nil, err
	}
	if err := CheckInField(v); err != nil {
		return nil, err
	}
	return v, nil
}

// HexBytes is a byte blob (signature, verification key, memo) serialized as
// 0x-prefixed hex in JSON
type HexBytes []byte

// MarshalJSON implements json.Marshaler
func (b HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hexutil.Encode(b))
}

// UnmarshalJSON implements json.Unmarshaler
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return Wrap(err)
	}
	decoded, err := hexutil.Decode(s)
	if err != nil {
		return Wrap(err)
	}
	*b = decoded
	return nil
}
