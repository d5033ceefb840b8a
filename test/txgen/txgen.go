// Package txgen generates deterministic users and zkapp commands for tests.
// Keys are derived from a fixed seed so test vectors stay stable across runs.
package txgen

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"zkapp-node/common"
	"zkapp-node/txbuilder"

	"github.com/iden3/go-iden3-crypto/babyjub"
)

// User is a test identity with its key pair
type User struct {
	SK *babyjub.PrivateKey
	PK common.PublicKey
}

// NewUser derives the i-th deterministic test user
func NewUser(i int) *User {
	seed := sha256.Sum256([]byte(fmt.Sprintf("zkapp-node-test-user-%d", i)))
	var sk babyjub.PrivateKey
	copy(sk[:], seed[:])
	return &User{
		SK: &sk,
		PK: common.PublicKeyFromPrivate(&sk),
	}
}

// NewUsers derives the first n deterministic test users
func NewUsers(n int) []*User {
	users := make([]*User, n)
	for i := range users {
		users[i] = NewUser(i)
	}
	return users
}

// Ledger is an in-memory AccountReader over a plain map, for tests that do
// not need the merkle tree
type Ledger struct {
	accounts map[string]*common.Account
}

// NewLedger returns an empty test ledger
func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]*common.Account)}
}

func ledgerKey(pk common.PublicKey, tokenID common.TokenID) string {
	return fmt.Sprintf("%x/%s", pk[:], tokenID.BigInt())
}

// Set stores an account, replacing any previous state
func (l *Ledger) Set(a *common.Account) {
	l.accounts[ledgerKey(a.PublicKey, a.TokenID)] = a
}

// CreateAccount adds a fresh account with the given balance and nonce
func (l *Ledger) CreateAccount(u *User, balance *big.Int, nonce common.Nonce) *common.Account {
	a := common.NewAccount(u.PK, common.DefaultTokenID)
	a.Balance = balance
	a.Nonce = nonce
	l.Set(a)
	return a
}

// GetAccount implements txbuilder.AccountReader
func (l *Ledger) GetAccount(pk common.PublicKey, tokenID common.TokenID) (*common.Account, error) {
	a, ok := l.accounts[ledgerKey(pk, tokenID)]
	if !ok {
		return nil, common.Wrap(fmt.Errorf("account %s not in test ledger", pk))
	}
	return a, nil
}

// Payment builds a signed-intent payment command: from pays fee and amount,
// to receives amount. Nonces are not resolved and signatures are not
// finalized; callers run the pipeline themselves.
func Payment(from, to *User, amount, fee *big.Int, nonce common.Nonce) (*common.ZkappCommand, error) {
	feePayer := common.NewFeePayer(from.PK, fee, nonce)
	feePayer.SetLazySignature(from.SK)
	b := txbuilder.NewBuilder(feePayer)

	sender, err := b.NewUpdate(from.PK, common.DefaultTokenID)
	if err != nil {
		return nil, err
	}
	if err := sender.SubBalance(amount); err != nil {
		return nil, err
	}
	sender.Body.IncrementNonce = true
	sender.SetLazySignature(from.SK)

	receiver, err := b.NewUpdate(to.PK, common.DefaultTokenID)
	if err != nil {
		return nil, err
	}
	if err := receiver.AddBalance(amount); err != nil {
		return nil, err
	}

	return b.Finish(), nil
}

// NestedCall builds a command whose forest has one root with a child, the
// smallest shape that exercises call depth, approval and caller context
func NestedCall(root, child *User, fee *big.Int, nonce common.Nonce) (*common.ZkappCommand, error) {
	feePayer := common.NewFeePayer(root.PK, fee, nonce)
	feePayer.SetLazySignature(root.SK)
	b := txbuilder.NewBuilder(feePayer)

	parent, err := b.NewUpdate(root.PK, common.DefaultTokenID)
	if err != nil {
		return nil, err
	}
	parent.SetLazySignature(root.SK)

	err = b.InScope(parent, func() error {
		inner, err := b.NewUpdate(child.PK, common.DefaultTokenID)
		if err != nil {
			return err
		}
		inner.SetLazySignature(child.SK)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b.Finish(), nil
}
