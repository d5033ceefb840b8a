package prover

import (
	"context"
	"testing"
	"time"

	"zkapp-node/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	_, err := r.Lookup("Token", "mint")
	assert.ErrorIs(t, common.Unwrap(err), common.ErrUnknownMethod)

	r.Register(Method{ContractClass: "Token", Name: "mint"})
	_, err = r.Lookup("Token", "mint")
	assert.ErrorIs(t, common.Unwrap(err), common.ErrMissingProver)

	client := &MockClient{}
	r.Register(Method{ContractClass: "Token", Name: "mint", Client: client})
	m, err := r.Lookup("Token", "mint")
	require.NoError(t, err)
	assert.Equal(t, client, m.Client)

	// methods are keyed per contract class
	_, err = r.Lookup("Escrow", "mint")
	assert.ErrorIs(t, common.Unwrap(err), common.ErrUnknownMethod)
}

func TestSessionSerializes(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Acquire(ctx)
	assert.True(t, common.IsErrDone(err))

	s.Release()
	require.NoError(t, s.Acquire(context.Background()))
	s.Release()
}
