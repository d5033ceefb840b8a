package common

import (
	"encoding/binary"
	"encoding/json"
	"math/big"
)

const (
	// MaxNonceValue is the maximum value that an account Nonce can have
	// (40 bits: MaxNonceValue=2**40-1)
	MaxNonceValue = 0xffffffffff
)

// Nonce represents the nonce value in a uint64, which has the method Bytes
// that returns a byte array of length 5 (40 bits).
type Nonce uint64

// UnmarshalJSON rejects nonces above MaxNonceValue at the wire boundary
func (n *Nonce) UnmarshalJSON(data []byte) error {
	var v uint64
	if err := json.Unmarshal(data, &v); err != nil {
		return Wrap(err)
	}
	if v > MaxNonceValue {
		return Wrap(ErrNonceOverflow)
	}
	*n = Nonce(v)
	return nil
}

// Bytes returns a byte array of length 5 representing the Nonce
func (n Nonce) Bytes() ([5]byte, error) {
	if n > MaxNonceValue {
		return [5]byte{}, Wrap(ErrNonceOverflow)
	}
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], uint64(n))
	var b [5]byte
	copy(b[:], nonceBytes[3:])
	return b, nil
}

// BigInt returns the *big.Int representation of the Nonce
func (n Nonce) BigInt() *big.Int {
	return new(big.Int).SetUint64(uint64(n))
}

// NonceFromBigInt builds a Nonce from a *big.Int, failing on overflow
func NonceFromBigInt(v *big.Int) (Nonce, error) {
	if !v.IsUint64() || v.Uint64() > MaxNonceValue {
		return 0, Wrap(ErrNonceOverflow)
	}
	return Nonce(v.Uint64()), nil
}
