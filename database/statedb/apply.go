package statedb

import (
	"fmt"
	"math/big"

	"zkapp-node/common"
)

// ApplyCommand applies a zkapp command to the ledger: the fee payer pays and
// pre-increments its nonce, then every account update in forest order checks
// its preconditions and writes its effects. Accounts touched for the first
// time are created on the fly. The whole command is applied against the
// in-memory tree; a failing update leaves earlier writes in place, so callers
// that need atomicity apply against a throwaway copy first.
func (s *StateDB) ApplyCommand(cmd *common.ZkappCommand) error {
	feePayer, err := s.GetAccount(cmd.FeePayer.Body.PublicKey, common.DefaultTokenID)
	if err != nil {
		return err
	}
	if feePayer.Nonce != cmd.FeePayer.Body.Nonce {
		return common.Wrap(fmt.Errorf("%w: fee payer nonce %d, expected %d",
			common.ErrPreconditionFailed, feePayer.Nonce, cmd.FeePayer.Body.Nonce))
	}
	fee, err := cmd.FeePayer.Body.Fee.BigInt()
	if err != nil {
		return err
	}
	if err := feePayer.ApplyBalanceChange(
		common.NewBalanceChange(new(big.Int).Neg(fee))); err != nil {
		return err
	}
	feePayer.Nonce++
	if _, err := s.UpdateAccount(feePayer); err != nil {
		return err
	}

	for _, u := range cmd.AccountUpdates.FlatList() {
		if err := s.applyUpdate(u); err != nil {
			return err
		}
	}
	return nil
}

func (s *StateDB) applyUpdate(u *common.AccountUpdate) error {
	isNew := false
	account, err := s.GetAccount(u.Body.PublicKey, u.Body.TokenID)
	if common.Unwrap(err) == ErrAccountNotFound {
		isNew = true
		account = common.NewAccount(u.Body.PublicKey, u.Body.TokenID)
	} else if err != nil {
		return err
	}

	if err := u.Body.Preconditions.Account.CheckAgainst(account, isNew); err != nil {
		return err
	}
	if err := account.ApplyBalanceChange(u.Body.BalanceChange); err != nil {
		return err
	}
	if u.Body.IncrementNonce {
		account.Nonce++
	}
	if err := u.Body.Update.ApplyTo(account); err != nil {
		return err
	}
	if u.Body.AuthorizationKind.IsProved {
		account.ProvedState = true
	}

	if isNew {
		_, err = s.CreateAccount(account)
	} else {
		_, err = s.UpdateAccount(account)
	}
	return err
}
