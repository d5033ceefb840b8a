package txbuilder_test

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"zkapp-node/common"
	"zkapp-node/database/statedb"
	"zkapp-node/prover"
	"zkapp-node/test/txgen"
	"zkapp-node/txbuilder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPaymentPipeline runs a payment through the whole flow: build, resolve
// nonces against the ledger, sign, prove (placeholder) and apply.
func TestPaymentPipeline(t *testing.T) {
	users := txgen.NewUsers(2)
	sdb, err := statedb.NewStateDB()
	require.NoError(t, err)

	sender := common.NewAccount(users[0].PK, common.DefaultTokenID)
	sender.Balance = big.NewInt(1000000)
	_, err = sdb.CreateAccount(sender)
	require.NoError(t, err)

	cmd, err := txgen.Payment(users[0], users[1], big.NewInt(500), big.NewInt(10), 0)
	require.NoError(t, err)
	require.NoError(t, txbuilder.ResolveNonces(cmd, sdb))

	signed, err := txbuilder.AddMissingSignatures(cmd, nil)
	require.NoError(t, err)
	final, err := txbuilder.AddMissingProofs(context.Background(), signed,
		prover.NewRegistry(), prover.NewSession(), txbuilder.ProofConfig{})
	require.NoError(t, err)

	// the finished command survives the wire unchanged
	data, err := json.Marshal(final)
	require.NoError(t, err)
	var parsed common.ZkappCommand
	require.NoError(t, json.Unmarshal(data, &parsed))
	wantID, err := final.FullCommitment()
	require.NoError(t, err)
	gotID, err := parsed.FullCommitment()
	require.NoError(t, err)
	assert.Equal(t, 0, wantID.Cmp(gotID))

	require.NoError(t, sdb.ApplyCommand(final))

	senderAfter, err := sdb.GetAccount(users[0].PK, common.DefaultTokenID)
	require.NoError(t, err)
	assert.Equal(t, 0, big.NewInt(999490).Cmp(senderAfter.Balance))
	assert.Equal(t, common.Nonce(2), senderAfter.Nonce)

	receiverAfter, err := sdb.GetAccount(users[1].PK, common.DefaultTokenID)
	require.NoError(t, err)
	assert.Equal(t, 0, big.NewInt(500).Cmp(receiverAfter.Balance))
}

func TestNestedCallPipeline(t *testing.T) {
	users := txgen.NewUsers(2)
	sdb, err := statedb.NewStateDB()
	require.NoError(t, err)

	root := common.NewAccount(users[0].PK, common.DefaultTokenID)
	root.Balance = big.NewInt(1000)
	_, err = sdb.CreateAccount(root)
	require.NoError(t, err)

	cmd, err := txgen.NestedCall(users[0], users[1], big.NewInt(10), 0)
	require.NoError(t, err)
	require.NoError(t, txbuilder.ResolveNonces(cmd, sdb))

	signed, err := txbuilder.AddMissingSignatures(cmd, nil)
	require.NoError(t, err)

	flat := signed.AccountUpdates.FlatList()
	require.Len(t, flat, 2)
	assert.Equal(t, 0, flat[0].Body.CallDepth)
	assert.Equal(t, 1, flat[1].Body.CallDepth)
	derived := common.Token{
		TokenOwner:    users[0].PK,
		ParentTokenID: common.DefaultTokenID,
	}.ID()
	assert.True(t, flat[1].Body.Caller.Equal(derived))

	require.NoError(t, sdb.ApplyCommand(signed))
	rootAfter, err := sdb.GetAccount(users[0].PK, common.DefaultTokenID)
	require.NoError(t, err)
	assert.Equal(t, 0, big.NewInt(990).Cmp(rootAfter.Balance))
	assert.Equal(t, common.Nonce(1), rootAfter.Nonce)
}
