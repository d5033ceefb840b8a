package common

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAgainst(t *testing.T) {
	a := NewAccount(testKey(0), DefaultTokenID)
	a.Balance = big.NewInt(150)
	a.Nonce = 3

	p := NewAccountPreconditions()
	assert.NoError(t, p.CheckAgainst(a, false))

	p.Balance = Check(ClosedInterval[BigIntStr]{Lower: "100", Upper: "200"})
	assert.NoError(t, p.CheckAgainst(a, false))

	p.Balance = Check(ClosedInterval[BigIntStr]{Lower: "200", Upper: "300"})
	err := p.CheckAgainst(a, false)
	require.Error(t, err)
	assert.ErrorIs(t, Unwrap(err), ErrPreconditionFailed)
}

func TestCheckAgainstNonce(t *testing.T) {
	a := NewAccount(testKey(0), DefaultTokenID)
	a.Nonce = 5

	p := NewAccountPreconditions()
	p.RequireNonce(5)
	assert.NoError(t, p.CheckAgainst(a, false))

	p.RequireNonce(6)
	err := p.CheckAgainst(a, false)
	require.Error(t, err)
	assert.ErrorIs(t, Unwrap(err), ErrPreconditionFailed)
}

func TestCheckAgainstIsNew(t *testing.T) {
	a := NewAccount(testKey(0), DefaultTokenID)
	p := NewAccountPreconditions()
	p.IsNew = Check(true)
	assert.NoError(t, p.CheckAgainst(a, true))
	assert.Error(t, p.CheckAgainst(a, false))
}

func TestCheckAgainstDelegate(t *testing.T) {
	a := NewAccount(testKey(0), DefaultTokenID)
	p := NewAccountPreconditions()
	p.Delegate = Check(testKey(0))
	assert.NoError(t, p.CheckAgainst(a, false))
	p.Delegate = Check(testKey(1))
	assert.Error(t, p.CheckAgainst(a, false))
}

func TestUpdateApplyTo(t *testing.T) {
	a := NewAccount(testKey(0), DefaultTokenID)

	u := NewUpdate()
	u.AppState[2] = Set(BigIntStr("55"))
	u.Delegate = Set(testKey(1))
	u.TokenSymbol = Set("ZK")
	u.VotingFor = Set(BigIntStr("88"))

	require.NoError(t, u.ApplyTo(a))
	assert.Equal(t, int64(55), a.AppState[2].Int64())
	assert.Equal(t, testKey(1), a.Delegate)
	assert.Equal(t, "ZK", a.TokenSymbol)
	assert.Equal(t, int64(88), a.VotingFor.Int64())

	// kept fields stay untouched
	assert.Equal(t, int64(0), a.AppState[0].Int64())
}

func TestApplyBalanceChange(t *testing.T) {
	a := NewAccount(testKey(0), DefaultTokenID)
	a.Balance = big.NewInt(100)

	require.NoError(t, a.ApplyBalanceChange(NewBalanceChange(big.NewInt(50))))
	assert.Equal(t, int64(150), a.Balance.Int64())

	require.NoError(t, a.ApplyBalanceChange(NewBalanceChange(big.NewInt(-150))))
	assert.Equal(t, int64(0), a.Balance.Int64())

	err := a.ApplyBalanceChange(NewBalanceChange(big.NewInt(-1)))
	require.Error(t, err)
	assert.ErrorIs(t, Unwrap(err), ErrInsufficientBalance)
	assert.Equal(t, int64(0), a.Balance.Int64())
}
