package txbuilder

import (
	"zkapp-node/common"
)

// ResolveNonce derives the nonce a single update must claim: the account's
// on-chain nonce, plus one if the account is also the fee payer on the
// default token (a fee payer always pre-increments), plus one per strict
// predecessor in forest order that increments the same (public key, token)
// pair's nonce.
func ResolveNonce(cmd *common.ZkappCommand, target *common.AccountUpdate,
	reader AccountReader) (common.Nonce, error) {
	account, err := reader.GetAccount(target.Body.PublicKey, target.Body.TokenID)
	if err != nil {
		return 0, err
	}
	nonce := account.Nonce
	if target.Body.TokenID.IsDefault() &&
		target.Body.PublicKey == cmd.FeePayer.Body.PublicKey {
		nonce++
	}
	cmd.AccountUpdates.ForEachPredecessor(target, func(u *common.AccountUpdate) {
		if u.Body.IncrementNonce &&
			u.Body.PublicKey == target.Body.PublicKey &&
			u.Body.TokenID.Equal(target.Body.TokenID) {
			nonce++
		}
	})
	return nonce, nil
}

// ResolveNonces assigns the fee payer's nonce from the ledger and pins a
// nonce precondition on every update that increments its account's nonce.
// It must run after the forest is final and before authorization: signing
// commits to the preconditions set here.
func ResolveNonces(cmd *common.ZkappCommand, reader AccountReader) error {
	feePayerAccount, err := reader.GetAccount(cmd.FeePayer.Body.PublicKey, common.DefaultTokenID)
	if err != nil {
		return err
	}
	cmd.FeePayer.Body.Nonce = feePayerAccount.Nonce

	for _, u := range cmd.AccountUpdates.FlatList() {
		if !u.Body.IncrementNonce {
			continue
		}
		nonce, err := ResolveNonce(cmd, u, reader)
		if err != nil {
			return err
		}
		u.Body.Preconditions.Account.RequireNonce(nonce)
	}
	return nil
}
