package common

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/constants"
	"github.com/iden3/go-iden3-crypto/poseidon"
	cryptoUtils "github.com/iden3/go-iden3-crypto/utils"
)

// Domain separation prefixes. Every commitment in the transaction layer is a
// Poseidon hash whose first input is one of these constants, so hashes of
// different kinds of data can never collide. The prefix strings are part of
// the wire protocol and must not change.
const (
	PrefixBody        = "ZkappBody"
	PrefixNode        = "ZkappNode"
	PrefixCons        = "ZkappCons"
	PrefixEmptyForest = "ZkappEmptyForest"
	PrefixFeePayer    = "ZkappFeePayer"
	PrefixMemo        = "ZkappMemo"
	PrefixFullCommit  = "ZkappFullCommit"
	PrefixDeriveToken = "ZkappDeriveTokenId"
	PrefixEvent       = "ZkappEvent"
	PrefixEvents      = "ZkappEvents"
	PrefixActions     = "ZkappActions"
	PrefixAccount     = "ZkappAccount"
	PrefixAccountKey  = "ZkappAccountKey"
)

// hashChunkSize is the maximum number of field elements folded into a single
// Poseidon permutation. Longer inputs are absorbed in chunks with the running
// digest carried as the first input of the next permutation.
const hashChunkSize = 6

// PrefixToField maps a domain prefix to its field element representation
// (big-endian bytes of the ASCII string, always below the modulus for the
// short prefixes used here).
func PrefixToField(prefix string) *big.Int {
	v := new(big.Int).SetBytes([]byte(prefix))
	return v.Mod(v, constants.Q)
}

// HashFields absorbs the given field elements under a domain prefix and
// returns the Poseidon digest. It is the single hashing primitive of the
// transaction layer; in-circuit code recomputes the same chunked absorption.
func HashFields(prefix string, elems ...*big.Int) (*big.Int, error) {
	acc := PrefixToField(prefix)
	for start := 0; ; start += hashChunkSize - 1 {
		end := start + hashChunkSize - 1
		if end > len(elems) {
			end = len(elems)
		}
		inputs := make([]*big.Int, 0, hashChunkSize)
		inputs = append(inputs, acc)
		inputs = append(inputs, elems[start:end]...)
		h, err := poseidon.Hash(inputs)
		if err != nil {
			return nil, Wrap(fmt.Errorf("poseidon hash failed: %w", err))
		}
		acc = h
		if end == len(elems) {
			break
		}
	}
	return acc, nil
}

// MustHashFields is HashFields for callers that pass only in-field inputs,
// where the hash cannot fail.
func MustHashFields(prefix string, elems ...*big.Int) *big.Int {
	h, err := HashFields(prefix, elems...)
	if err != nil {
		panic(err)
	}
	return h
}

// Select returns x when sel is true and y otherwise, computed as
// sel*x + (1-sel)*y over the field so that the same arithmetic runs
// inside a constrained computation. Both arguments are always evaluated.
func Select(sel bool, x, y *big.Int) *big.Int {
	b := big.NewInt(0)
	if sel {
		b = big.NewInt(1)
	}
	notB := new(big.Int).Sub(big.NewInt(1), b)
	r := new(big.Int).Mul(b, x)
	r.Add(r, notB.Mul(notB, y))
	return r.Mod(r, constants.Q)
}

// BoolToField maps a boolean to 0/1
func BoolToField(b bool) *big.Int {
	if b {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}

// CheckInField returns ErrNotInFF when the value does not fit the field
func CheckInField(v *big.Int) error {
	if v == nil || !cryptoUtils.CheckBigIntInField(v) {
		return Wrap(ErrNotInFF)
	}
	return nil
}
