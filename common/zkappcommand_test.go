package common

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommand(t *testing.T) *ZkappCommand {
	t.Helper()
	cmd := NewZkappCommand(NewFeePayer(testKey(9), big.NewInt(1000), 7))
	root := newTestUpdate(0)
	child := newTestUpdate(1)
	require.NoError(t, root.Approve(child, AnyChildren{}))
	cmd.AccountUpdates.Append(root)
	cmd.AccountUpdates.Append(newTestUpdate(2))
	require.NoError(t, cmd.SetMemo("hello"))
	AddCallers(cmd.AccountUpdates)
	return cmd
}

func TestSetMemoCap(t *testing.T) {
	cmd := NewZkappCommand(NewFeePayer(testKey(0), big.NewInt(1), 0))
	require.NoError(t, cmd.SetMemo(strings.Repeat("a", MaxMemoLen)))
	assert.Error(t, cmd.SetMemo(strings.Repeat("a", MaxMemoLen+1)))
}

func TestMemoHash(t *testing.T) {
	a := NewZkappCommand(NewFeePayer(testKey(0), big.NewInt(1), 0))
	b := NewZkappCommand(NewFeePayer(testKey(0), big.NewInt(1), 0))
	require.NoError(t, a.SetMemo("x"))
	require.NoError(t, b.SetMemo("y"))
	assert.NotEqual(t, 0, a.MemoHash().Cmp(b.MemoHash()))

	// a memo longer than one 31-byte chunk still hashes
	require.NoError(t, a.SetMemo(strings.Repeat("z", 32)))
	assert.NotNil(t, a.MemoHash())
}

func TestFullCommitmentComposition(t *testing.T) {
	cmd := newTestCommand(t)

	commitment, err := cmd.Commitment()
	require.NoError(t, err)
	feePayerHash, err := cmd.FeePayer.Hash()
	require.NoError(t, err)
	want, err := HashFields(PrefixFullCommit, cmd.MemoHash(), feePayerHash, commitment)
	require.NoError(t, err)

	full, err := cmd.FullCommitment()
	require.NoError(t, err)
	assert.Equal(t, 0, full.Cmp(want))
	assert.NotEqual(t, 0, full.Cmp(commitment))
}

func TestCommitmentIgnoresFeePayer(t *testing.T) {
	cmd := newTestCommand(t)
	before, err := cmd.Commitment()
	require.NoError(t, err)

	cmd.FeePayer.Body.Nonce++
	after, err := cmd.Commitment()
	require.NoError(t, err)
	assert.Equal(t, 0, before.Cmp(after))

	full1, err := cmd.FullCommitment()
	require.NoError(t, err)
	cmd.FeePayer.Body.Nonce++
	full2, err := cmd.FullCommitment()
	require.NoError(t, err)
	assert.NotEqual(t, 0, full1.Cmp(full2))
}

func TestJSONRoundTripIdempotent(t *testing.T) {
	cmd := newTestCommand(t)

	wire1, err := json.Marshal(cmd)
	require.NoError(t, err)

	var parsed ZkappCommand
	require.NoError(t, json.Unmarshal(wire1, &parsed))

	wire2, err := json.Marshal(&parsed)
	require.NoError(t, err)
	assert.JSONEq(t, string(wire1), string(wire2))

	// semantics survive the trip
	want, err := cmd.FullCommitment()
	require.NoError(t, err)
	got, err := parsed.FullCommitment()
	require.NoError(t, err)
	assert.Equal(t, 0, want.Cmp(got))
}

func TestJSONRebuildsTreeShape(t *testing.T) {
	cmd := newTestCommand(t)
	wire, err := json.Marshal(cmd)
	require.NoError(t, err)

	var parsed ZkappCommand
	require.NoError(t, json.Unmarshal(wire, &parsed))

	require.Len(t, parsed.AccountUpdates.Updates, 2)
	root := parsed.AccountUpdates.Updates[0]
	require.Len(t, root.Children.Updates, 1)
	assert.Equal(t, root.ID(), root.Children.Updates[0].Parent().ID())
	assert.Equal(t, CallsWitness, root.Children.CallsType)
	assert.IsType(t, LazyNone{}, root.Lazy)
}

func TestJSONDummiesDropped(t *testing.T) {
	cmd := NewZkappCommand(NewFeePayer(testKey(0), big.NewInt(1), 0))
	cmd.AccountUpdates.Append(NewAccountUpdate(EmptyPublicKey, DefaultTokenID))
	cmd.AccountUpdates.Append(newTestUpdate(1))

	wire, err := json.Marshal(cmd)
	require.NoError(t, err)
	var parsed ZkappCommand
	require.NoError(t, json.Unmarshal(wire, &parsed))
	assert.Len(t, parsed.AccountUpdates.Updates, 1)
}

func TestJSONRejectsUnknownFields(t *testing.T) {
	cmd := newTestCommand(t)
	wire, err := json.Marshal(cmd)
	require.NoError(t, err)

	tampered := strings.Replace(string(wire), `"memo"`, `"sneaky":1,"memo"`, 1)
	var parsed ZkappCommand
	assert.Error(t, json.Unmarshal([]byte(tampered), &parsed))
}

func TestJSONRejectsBadFieldValues(t *testing.T) {
	cmd := newTestCommand(t)
	wire, err := json.Marshal(cmd)
	require.NoError(t, err)

	for _, bad := range []string{
		`"callData":"banana"`,
		`"callData":"007"`,
		`"callData":"-1"`,
		`"callData":"` + strings.Repeat("9", 78) + `"`,
	} {
		tampered := strings.Replace(string(wire), `"callData":"0"`, bad, 1)
		require.NotEqual(t, string(wire), tampered)
		var parsed ZkappCommand
		assert.Error(t, json.Unmarshal([]byte(tampered), &parsed), bad)
	}
}

func TestJSONRejectsNonceOverflow(t *testing.T) {
	cmd := newTestCommand(t)
	wire, err := json.Marshal(cmd)
	require.NoError(t, err)

	tampered := strings.Replace(string(wire), `"nonce":7`, `"nonce":1099511627776`, 1)
	require.NotEqual(t, string(wire), tampered)
	var parsed ZkappCommand
	assert.Error(t, json.Unmarshal([]byte(tampered), &parsed))
}

func TestNilForestCommand(t *testing.T) {
	cmd := ZkappCommand{FeePayer: NewFeePayer(testKey(0), big.NewInt(1), 0)}

	commitment, err := cmd.Commitment()
	require.NoError(t, err)
	assert.Equal(t, 0, commitment.Cmp(EmptyForestHash()))

	wire, err := json.Marshal(&cmd)
	require.NoError(t, err)
	var parsed ZkappCommand
	require.NoError(t, json.Unmarshal(wire, &parsed))
	assert.Empty(t, parsed.AccountUpdates.Updates)

	assert.Empty(t, cmd.Clone().AccountUpdates.Updates)
}

func TestJSONRejectsDepthJump(t *testing.T) {
	cmd := NewZkappCommand(NewFeePayer(testKey(0), big.NewInt(1), 0))
	cmd.AccountUpdates.Append(newTestUpdate(1))
	wire, err := json.Marshal(cmd)
	require.NoError(t, err)

	tampered := strings.Replace(string(wire), `"callDepth":0`, `"callDepth":2`, 1)
	require.NotEqual(t, string(wire), tampered)
	var parsed ZkappCommand
	assert.Error(t, json.Unmarshal([]byte(tampered), &parsed))
}

func TestJSONRejectsLongMemo(t *testing.T) {
	cmd := NewZkappCommand(NewFeePayer(testKey(0), big.NewInt(1), 0))
	wire, err := json.Marshal(cmd)
	require.NoError(t, err)

	tampered := strings.Replace(string(wire), `"memo":""`,
		`"memo":"`+strings.Repeat("a", MaxMemoLen+1)+`"`, 1)
	require.NotEqual(t, string(wire), tampered)
	var parsed ZkappCommand
	assert.Error(t, json.Unmarshal([]byte(tampered), &parsed))
}

func TestCloneCommand(t *testing.T) {
	cmd := newTestCommand(t)
	clone := cmd.Clone()

	clone.FeePayer.Body.Nonce++
	clone.AccountUpdates.Updates[0].Body.IncrementNonce = true

	assert.NotEqual(t, cmd.FeePayer.Body.Nonce, clone.FeePayer.Body.Nonce)
	assert.False(t, cmd.AccountUpdates.Updates[0].Body.IncrementNonce)
}

func TestPrettyPrint(t *testing.T) {
	cmd := newTestCommand(t)
	out := cmd.PrettyPrint()
	assert.Contains(t, out, "feePayer")
	// kept set-or-keep wrappers are elided
	assert.NotContains(t, out, "isSome")
}
