// Package txbuilder assembles zkapp commands: scoped construction of the
// account-update forest, nonce resolution against the ledger, and the
// authorization pipeline turning pending intents into signatures and proofs.
package txbuilder

import (
	"zkapp-node/common"
)

// AccountReader is the ledger view the builder needs: current on-chain state
// per (public key, token) pair
type AccountReader interface {
	GetAccount(pk common.PublicKey, tokenID common.TokenID) (*common.Account, error)
}

// Builder accumulates one pending transaction. The call-context stack mirrors
// nested contract calls: updates added inside a scope become children of the
// scoped update, updates added outside become forest roots.
type Builder struct {
	command   *common.ZkappCommand
	callStack []*common.AccountUpdate
}

// NewBuilder starts a pending transaction around a fee payer
func NewBuilder(feePayer common.FeePayer) *Builder {
	return &Builder{command: common.NewZkappCommand(feePayer)}
}

// Command returns the pending transaction being built
func (b *Builder) Command() *common.ZkappCommand {
	return b.command
}

// CurrentCaller is the update whose scope is active, or nil at top level
func (b *Builder) CurrentCaller() *common.AccountUpdate {
	if len(b.callStack) == 0 {
		return nil
	}
	return b.callStack[len(b.callStack)-1]
}

// Add attaches an update to the active scope: as a child of the current
// caller, or as a forest root at top level
func (b *Builder) Add(u *common.AccountUpdate) error {
	if caller := b.CurrentCaller(); caller != nil {
		return caller.Approve(u, common.AnyChildren{})
	}
	b.command.AccountUpdates.Append(u)
	return nil
}

// NewUpdate builds a default update for the account and attaches it to the
// active scope
func (b *Builder) NewUpdate(pk common.PublicKey, tokenID common.TokenID) (*common.AccountUpdate, error) {
	u := common.NewAccountUpdate(pk, tokenID)
	if err := b.Add(u); err != nil {
		return nil, err
	}
	return u, nil
}

// InScope runs fn with u as the current caller. The previous context is
// restored on exit even when fn panics, so nested scopes always unwind to
// exactly the state they entered with.
func (b *Builder) InScope(u *common.AccountUpdate, fn func() error) error {
	b.callStack = append(b.callStack, u)
	defer func() {
		b.callStack = b.callStack[:len(b.callStack)-1]
	}()
	return fn()
}

// Finish recomputes the caller token ids over the finished forest and
// returns the command
func (b *Builder) Finish() *common.ZkappCommand {
	common.AddCallers(b.command.AccountUpdates)
	return b.command
}
