package common

import "math/big"

// AddBalance credits the update's balance change
func (au *AccountUpdate) AddBalance(amount *big.Int) error {
	bc, err := au.Body.BalanceChange.AddSigned(amount)
	if err != nil {
		return err
	}
	au.Body.BalanceChange = bc
	return nil
}

// SubBalance debits the update's balance change
func (au *AccountUpdate) SubBalance(amount *big.Int) error {
	return au.AddBalance(new(big.Int).Neg(amount))
}

// TokenOps is the token-scoped view of an update: the token the update's
// account owns, together with the update itself as the approving parent of
// any transfers on that token.
type TokenOps struct {
	Token Token
	Owner *AccountUpdate
}

// Token returns the token owned by this update's account
func (au *AccountUpdate) Token() TokenOps {
	return TokenOps{
		Token: Token{TokenOwner: au.Body.PublicKey, ParentTokenID: au.Body.TokenID},
		Owner: au,
	}
}

// ID is the derived id of the owned token
func (t TokenOps) ID() TokenID {
	return t.Token.ID()
}

// child builds a default update for the counterparty on this token, approved
// by the owner
func (t TokenOps) child(pk PublicKey) (*AccountUpdate, error) {
	u := NewAccountUpdate(pk, t.ID())
	if err := t.Owner.Approve(u, AnyChildren{}); err != nil {
		return nil, err
	}
	return u, nil
}

// Mint credits amount of the owned token to the given account. Minting needs
// only the owner's approval, so the child itself carries no authorization.
func (t TokenOps) Mint(to PublicKey, amount *big.Int) (*AccountUpdate, error) {
	u, err := t.child(to)
	if err != nil {
		return nil, err
	}
	if err := u.AddBalance(amount); err != nil {
		return nil, err
	}
	return u, nil
}

// Burn debits amount of the owned token from the given account. A burn is an
// irreversible debit, so it binds to the full transaction commitment and
// requests the holder's signature; binding only the node would allow replay
// under different sibling updates.
func (t TokenOps) Burn(from PublicKey, amount *big.Int) (*AccountUpdate, error) {
	u, err := t.child(from)
	if err != nil {
		return nil, err
	}
	if err := u.SubBalance(amount); err != nil {
		return nil, err
	}
	u.Body.UseFullCommitment = true
	u.SetLazySignature(nil)
	return u, nil
}

// Send moves amount of the owned token between two accounts, returning the
// sender and receiver updates. The sender side is a debit and is bound like
// a burn; the receiver side needs no authorization of its own.
func (t TokenOps) Send(from, to PublicKey, amount *big.Int) (*AccountUpdate, *AccountUpdate, error) {
	sender, err := t.child(from)
	if err != nil {
		return nil, nil, err
	}
	if err := sender.SubBalance(amount); err != nil {
		return nil, nil, err
	}
	sender.Body.UseFullCommitment = true
	sender.SetLazySignature(nil)

	receiver, err := t.child(to)
	if err != nil {
		return nil, nil, err
	}
	if err := receiver.AddBalance(amount); err != nil {
		return nil, nil, err
	}
	return sender, receiver, nil
}
