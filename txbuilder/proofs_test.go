package txbuilder

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"zkapp-node/common"
	"zkapp-node/prover"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func provableCommand(t *testing.T) *common.ZkappCommand {
	t.Helper()
	b := NewBuilder(common.NewFeePayer(testPK(0), big.NewInt(10), 0))
	u, err := b.NewUpdate(testPK(1), common.DefaultTokenID)
	require.NoError(t, err)
	u.SetLazyProof(common.LazyProof{
		ContractClass: "Token",
		MethodName:    "mint",
		Args:          []*big.Int{big.NewInt(500)},
	})
	return b.Finish()
}

func TestAddMissingProofsPlaceholder(t *testing.T) {
	cmd := provableCommand(t)

	out, err := AddMissingProofs(context.Background(), cmd, prover.NewRegistry(),
		prover.NewSession(), ProofConfig{ProofsEnabled: false})
	require.NoError(t, err)

	u := out.AccountUpdates.FlatList()[0]
	require.NotNil(t, u.Authorization)
	want, err := json.Marshal(prover.PlaceholderProof())
	require.NoError(t, err)
	assert.Equal(t, common.HexBytes(want), u.Authorization.Proof)

	// the pending command is untouched
	_, isProof := cmd.AccountUpdates.FlatList()[0].Lazy.(common.LazyProof)
	assert.True(t, isProof)
}

func TestAddMissingProofsMockClient(t *testing.T) {
	cmd := provableCommand(t)
	registry := prover.NewRegistry()
	registry.Register(prover.Method{
		ContractClass: "Token",
		Name:          "mint",
		Client:        &prover.MockClient{},
	})

	out, err := AddMissingProofs(context.Background(), cmd, registry,
		prover.NewSession(), ProofConfig{ProofsEnabled: true})
	require.NoError(t, err)

	u := out.AccountUpdates.FlatList()[0]
	require.NotNil(t, u.Authorization)
	var proof prover.Proof
	require.NoError(t, json.Unmarshal(u.Authorization.Proof, &proof))
	assert.Equal(t, "mock", proof.Protocol)
	_, isNone := u.Lazy.(common.LazyNone)
	assert.True(t, isNone)
}

func TestAddMissingProofsUnknownMethod(t *testing.T) {
	cmd := provableCommand(t)

	_, err := AddMissingProofs(context.Background(), cmd, prover.NewRegistry(),
		prover.NewSession(), ProofConfig{ProofsEnabled: true})
	assert.ErrorIs(t, common.Unwrap(err), common.ErrUnknownMethod)
}

func TestAddMissingProofsCancelled(t *testing.T) {
	cmd := provableCommand(t)
	registry := prover.NewRegistry()
	registry.Register(prover.Method{
		ContractClass: "Token",
		Name:          "mint",
		Client:        &prover.MockClient{},
	})

	// a held session plus a cancelled context aborts the pipeline
	session := prover.NewSession()
	require.NoError(t, session.Acquire(context.Background()))
	defer session.Release()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AddMissingProofs(ctx, cmd, registry, session,
		ProofConfig{ProofsEnabled: true})
	assert.True(t, common.IsErrDone(err))
}
