package common

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/babyjub"
)

// Account is the on-chain state of one (public key, token) pair: the value
// stored in the ledger leaf. String-valued zkApp fields (URI) are stored as
// their field commitment only, like the chain does.
type Account struct {
	PublicKey           PublicKey
	TokenID             TokenID
	Balance             *big.Int // max of 192 bits used
	Nonce               Nonce    // max of 40 bits used
	Delegate            PublicKey
	AppState            [8]*big.Int
	ActionState         *big.Int
	VerificationKeyHash *big.Int
	ReceiptChainHash    *big.Int
	VotingFor           *big.Int
	ZkappURIHash        *big.Int
	TokenSymbol         string
	Permissions         Permissions
	Timing              Timing
	ProvedState         bool
}

const (
	// NLeafElems is the number of 32-byte words in a packed account leaf
	NLeafElems = 22

	// maxBalanceBytes is the maximum bytes the Balance *big.Int can use
	maxBalanceBytes = 24
)

// NewAccount returns the state a fresh account starts with
func NewAccount(pk PublicKey, tokenID TokenID) *Account {
	a := &Account{
		PublicKey:           pk,
		TokenID:             tokenID,
		Balance:             big.NewInt(0),
		Delegate:            pk,
		ActionState:         big.NewInt(0),
		VerificationKeyHash: big.NewInt(0),
		ReceiptChainHash:    big.NewInt(0),
		VotingFor:           big.NewInt(0),
		ZkappURIHash:        big.NewInt(0),
		Permissions:         DefaultPermissions(),
		Timing: Timing{
			InitialMinimumBalance: "0", CliffAmount: "0", VestingIncrement: "0",
		},
	}
	for i := range a.AppState {
		a.AppState[i] = big.NewInt(0)
	}
	return a
}

// LeafKey derives the ledger key of the account from its (public key, token)
// pair
func (a *Account) LeafKey() *big.Int {
	sign, y := a.PublicKey.Fields()
	return MustHashFields(PrefixAccountKey, sign, y, a.TokenID.BigInt())
}

// Bytes packs the account into fixed 32-byte words so the leaf can be parsed
// back without a length prefix. Layout:
//
//	word  0: [10]=pk sign, [11]=proved state, [12]=delegate sign,
//	         [14:20]=token symbol, [27:32]=nonce
//	word  1: balance (right aligned, max 24 bytes)
//	word  2: public key y
//	word  3: token id
//	word  4: delegate y
//	words 5..12: app state slots
//	word 13: action state
//	word 14: verification key hash
//	word 15: receipt chain hash
//	word 16: voting for
//	word 17: zkapp uri hash
//	word 18: [13:17]=cliff time, [17:21]=vesting period,
//	         permissions one byte per slot at [21:32]
//	word 19: timing initial minimum balance (max 24 bytes)
//	word 20: timing cliff amount (max 24 bytes)
//	word 21: timing vesting increment (max 24 bytes)
//
// Every word stays below the field modulus so the words double as Poseidon
// inputs.
func (a *Account) Bytes() ([32 * NLeafElems]byte, error) {
	var b [32 * NLeafElems]byte

	if a.Nonce > MaxNonceValue {
		return b, Wrap(fmt.Errorf("%w in account nonce", ErrNonceOverflow))
	}
	if len(a.Balance.Bytes()) > maxBalanceBytes {
		return b, Wrap(fmt.Errorf("%w in account balance", ErrNumOverflow))
	}
	if len(a.TokenSymbol) > maxTokenSymbolLen {
		return b, Wrap(fmt.Errorf("%w: token symbol longer than %d bytes",
			ErrNumOverflow, maxTokenSymbolLen))
	}

	pkSign, pkY := babyjub.UnpackSignY(babyjub.PublicKeyComp(a.PublicKey))
	delegateSign, delegateY := babyjub.UnpackSignY(babyjub.PublicKeyComp(a.Delegate))
	if pkSign {
		b[10] = 1
	}
	if a.ProvedState {
		b[11] = 1
	}
	if delegateSign {
		b[12] = 1
	}
	copy(b[14:14+len(a.TokenSymbol)], a.TokenSymbol)
	nonceBytes, err := a.Nonce.Bytes()
	if err != nil {
		return b, err
	}
	copy(b[27:32], nonceBytes[:])

	balanceBytes := a.Balance.Bytes()
	copy(b[64-len(balanceBytes):64], balanceBytes)
	if err := CheckInField(pkY); err != nil {
		return b, err
	}
	yBytes := pkY.Bytes()
	copy(b[96-len(yBytes):96], yBytes)
	tidBytes := a.TokenID.BigInt().Bytes()
	copy(b[128-len(tidBytes):128], tidBytes)
	if err := CheckInField(delegateY); err != nil {
		return b, err
	}
	dyBytes := delegateY.Bytes()
	copy(b[160-len(dyBytes):160], dyBytes)

	fieldWords := make([]*big.Int, 0, 13)
	fieldWords = append(fieldWords, a.AppState[:]...)
	fieldWords = append(fieldWords, a.ActionState, a.VerificationKeyHash,
		a.ReceiptChainHash, a.VotingFor, a.ZkappURIHash)
	for i, w := range fieldWords {
		if err := CheckInField(w); err != nil {
			return b, err
		}
		wBytes := w.Bytes()
		end := 32 * (6 + i)
		copy(b[end-len(wBytes):end], wBytes)
	}

	binary.BigEndian.PutUint32(b[32*18+13:32*18+17], a.Timing.CliffTime)
	binary.BigEndian.PutUint32(b[32*18+17:32*18+21], a.Timing.VestingPeriod)
	perms := a.Permissions.fields()
	for i, p := range perms {
		b[32*18+21+i] = byte(p.Uint64())
	}

	timingAmounts := []BigIntStr{a.Timing.InitialMinimumBalance,
		a.Timing.CliffAmount, a.Timing.VestingIncrement}
	for i, amount := range timingAmounts {
		v, err := amount.BigInt()
		if err != nil {
			return b, err
		}
		vBytes := v.Bytes()
		if len(vBytes) > maxBalanceBytes {
			return b, Wrap(fmt.Errorf("%w in account timing", ErrNumOverflow))
		}
		end := 32 * (20 + i)
		copy(b[end-len(vBytes):end], vBytes)
	}
	return b, nil
}

// AccountFromBytes parses a packed account leaf
func AccountFromBytes(b [32 * NLeafElems]byte) (*Account, error) {
	a := &Account{
		ProvedState: b[11] == 1,
		TokenSymbol: string(bytes.TrimRight(b[14:20], "\x00")),
	}

	var nonceBytes [8]byte
	copy(nonceBytes[3:], b[27:32])
	a.Nonce = Nonce(binary.BigEndian.Uint64(nonceBytes[:]))

	a.Balance = new(big.Int).SetBytes(b[40:64])
	if !bytes.Equal(b[32:40], make([]byte, 8)) {
		return nil, Wrap(fmt.Errorf("%w in account balance", ErrNumOverflow))
	}

	y := new(big.Int).SetBytes(b[64:96])
	if err := CheckInField(y); err != nil {
		return nil, err
	}
	a.PublicKey = PublicKeyFromFields(BoolToField(b[10] == 1), y)

	tokenID, err := NewTokenID(new(big.Int).SetBytes(b[96:128]))
	if err != nil {
		return nil, err
	}
	a.TokenID = tokenID

	dy := new(big.Int).SetBytes(b[128:160])
	if err := CheckInField(dy); err != nil {
		return nil, err
	}
	a.Delegate = PublicKeyFromFields(BoolToField(b[12] == 1), dy)

	fieldWords := make([]*big.Int, 13)
	for i := range fieldWords {
		w := new(big.Int).SetBytes(b[32*(5+i) : 32*(6+i)])
		if err := CheckInField(w); err != nil {
			return nil, err
		}
		fieldWords[i] = w
	}
	copy(a.AppState[:], fieldWords[:8])
	a.ActionState = fieldWords[8]
	a.VerificationKeyHash = fieldWords[9]
	a.ReceiptChainHash = fieldWords[10]
	a.VotingFor = fieldWords[11]
	a.ZkappURIHash = fieldWords[12]

	permSlots := []*AuthRequired{
		&a.Permissions.EditState, &a.Permissions.Send, &a.Permissions.Receive,
		&a.Permissions.SetDelegate, &a.Permissions.SetPermissions,
		&a.Permissions.SetVerificationKey, &a.Permissions.SetZkappURI,
		&a.Permissions.EditActionState, &a.Permissions.SetTokenSymbol,
		&a.Permissions.IncrementNonce, &a.Permissions.SetVotingFor,
	}
	for i, slot := range permSlots {
		parsed, err := authRequiredFromField(big.NewInt(int64(b[32*18+21+i])))
		if err != nil {
			return nil, err
		}
		*slot = parsed
	}

	a.Timing.CliffTime = binary.BigEndian.Uint32(b[32*18+13 : 32*18+17])
	a.Timing.VestingPeriod = binary.BigEndian.Uint32(b[32*18+17 : 32*18+21])
	a.Timing.InitialMinimumBalance = NewBigIntStr(new(big.Int).SetBytes(b[32*19 : 32*20]))
	a.Timing.CliffAmount = NewBigIntStr(new(big.Int).SetBytes(b[32*20 : 32*21]))
	a.Timing.VestingIncrement = NewBigIntStr(new(big.Int).SetBytes(b[32*21 : 32*22]))
	return a, nil
}

// BigInts returns the packed words as field elements, in a way that each
// 32-byte word maps to exactly one element
func (a *Account) BigInts() ([NLeafElems]*big.Int, error) {
	e := [NLeafElems]*big.Int{}
	b, err := a.Bytes()
	if err != nil {
		return e, err
	}
	for i := range e {
		e[i] = new(big.Int).SetBytes(b[32*i : 32*(i+1)])
	}
	return e, nil
}

// HashValue is the Poseidon commitment of the account leaf
func (a *Account) HashValue() (*big.Int, error) {
	e, err := a.BigInts()
	if err != nil {
		return nil, err
	}
	return HashFields(PrefixAccount, e[:]...)
}
