package common

import (
	"fmt"
	"math/big"
)

// CheckAgainst verifies the account preconditions against the account's
// current state. isNew tells whether the account was created by this very
// transaction.
func (p AccountPreconditions) CheckAgainst(a *Account, isNew bool) error {
	if p.Balance.IsSome {
		if err := checkBigInterval("balance", p.Balance.Value, a.Balance); err != nil {
			return err
		}
	}
	if p.Nonce.IsSome {
		if a.Nonce < p.Nonce.Value.Lower || a.Nonce > p.Nonce.Value.Upper {
			return Wrap(fmt.Errorf("%w: nonce %d outside [%d, %d]",
				ErrPreconditionFailed, a.Nonce, p.Nonce.Value.Lower, p.Nonce.Value.Upper))
		}
	}
	if p.ReceiptChainHash.IsSome {
		if err := checkFieldEquals("receipt chain hash", p.ReceiptChainHash.Value,
			a.ReceiptChainHash); err != nil {
			return err
		}
	}
	if p.Delegate.IsSome && p.Delegate.Value != a.Delegate {
		return Wrap(fmt.Errorf("%w: delegate is %s, expected %s",
			ErrPreconditionFailed, a.Delegate, p.Delegate.Value))
	}
	for i := range p.State {
		if !p.State[i].IsSome {
			continue
		}
		if err := checkFieldEquals(fmt.Sprintf("app state %d", i),
			p.State[i].Value, a.AppState[i]); err != nil {
			return err
		}
	}
	if p.ActionState.IsSome {
		if err := checkFieldEquals("action state", p.ActionState.Value,
			a.ActionState); err != nil {
			return err
		}
	}
	if p.ProvedState.IsSome && p.ProvedState.Value != a.ProvedState {
		return Wrap(fmt.Errorf("%w: proved state is %v",
			ErrPreconditionFailed, a.ProvedState))
	}
	if p.IsNew.IsSome && p.IsNew.Value != isNew {
		return Wrap(fmt.Errorf("%w: account newness is %v",
			ErrPreconditionFailed, isNew))
	}
	return nil
}

func checkBigInterval(name string, iv ClosedInterval[BigIntStr], v *big.Int) error {
	lower, err := iv.Lower.BigInt()
	if err != nil {
		return err
	}
	upper, err := iv.Upper.BigInt()
	if err != nil {
		return err
	}
	if v.Cmp(lower) < 0 || v.Cmp(upper) > 0 {
		return Wrap(fmt.Errorf("%w: %s %s outside [%s, %s]",
			ErrPreconditionFailed, name, v, lower, upper))
	}
	return nil
}

func checkFieldEquals(name string, want BigIntStr, got *big.Int) error {
	w, err := want.FieldElement()
	if err != nil {
		return err
	}
	if w.Cmp(got) != 0 {
		return Wrap(fmt.Errorf("%w: %s is %s, expected %s",
			ErrPreconditionFailed, name, got, w))
	}
	return nil
}

// ApplyTo writes the update's set deltas into the account; kept fields are
// untouched
func (u Update) ApplyTo(a *Account) error {
	for i := range u.AppState {
		if !u.AppState[i].IsSome {
			continue
		}
		v, err := u.AppState[i].Value.FieldElement()
		if err != nil {
			return err
		}
		a.AppState[i] = v
	}
	if u.Delegate.IsSome {
		a.Delegate = u.Delegate.Value
	}
	if u.VerificationKey.IsSome {
		vkHash, err := u.VerificationKey.Value.Hash.FieldElement()
		if err != nil {
			return err
		}
		a.VerificationKeyHash = vkHash
	}
	if u.Permissions.IsSome {
		a.Permissions = u.Permissions.Value
	}
	if u.ZkappURI.IsSome {
		a.ZkappURIHash = zkappURIField(u.ZkappURI.Value)
	}
	if u.TokenSymbol.IsSome {
		a.TokenSymbol = u.TokenSymbol.Value
	}
	if u.Timing.IsSome {
		a.Timing = u.Timing.Value
	}
	if u.VotingFor.IsSome {
		votingFor, err := u.VotingFor.Value.FieldElement()
		if err != nil {
			return err
		}
		a.VotingFor = votingFor
	}
	return nil
}

// ApplyBalanceChange moves the account balance by the signed amount, failing
// when the result would be negative
func (a *Account) ApplyBalanceChange(bc BalanceChange) error {
	delta, err := bc.BigInt()
	if err != nil {
		return err
	}
	next := new(big.Int).Add(a.Balance, delta)
	if next.Sign() < 0 {
		return Wrap(fmt.Errorf("%w: balance %s, change %s",
			ErrInsufficientBalance, a.Balance, delta))
	}
	a.Balance = next
	return nil
}
