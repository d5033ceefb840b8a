package commanddb

import (
	"encoding/binary"
	"math/big"
	"os"
	"testing"
	"time"

	"zkapp-node/common"
	"zkapp-node/database"
	"zkapp-node/log"
	"zkapp-node/test"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var commandDB *CommandDB

func TestMain(m *testing.M) {
	db, err := database.InitTestSQLDB()
	if err != nil {
		panic(err)
	}
	apiConnCon := database.NewAPIConnectionController(1, time.Second)
	commandDB = NewCommandDB(db, db, 1000, 24*time.Hour, apiConnCon)
	test.WipeDB(commandDB.DB())
	result := m.Run()
	if err := db.Close(); err != nil {
		log.Error("Error closing the command DB:", err)
	}
	os.Exit(result)
}

func testKey(i int) common.PublicKey {
	var sk babyjub.PrivateKey
	binary.BigEndian.PutUint64(sk[24:], uint64(i+1))
	return common.PublicKeyFromPrivate(&sk)
}

// testCommand builds a minimal payment-shaped command; distinct nonces give
// distinct command ids
func testCommand(nonce common.Nonce) *common.ZkappCommand {
	cmd := common.NewZkappCommand(common.NewFeePayer(testKey(0), big.NewInt(10), nonce))
	sender := common.NewAccountUpdate(testKey(0), common.DefaultTokenID)
	sender.Body.BalanceChange = common.NewBalanceChange(big.NewInt(-50))
	sender.Body.IncrementNonce = true
	cmd.AccountUpdates.Append(sender)
	receiver := common.NewAccountUpdate(testKey(1), common.DefaultTokenID)
	receiver.Body.BalanceChange = common.NewBalanceChange(big.NewInt(50))
	cmd.AccountUpdates.Append(receiver)
	if err := cmd.SetMemo("test payment"); err != nil {
		panic(err)
	}
	return cmd
}

func commandID(t *testing.T, cmd *common.ZkappCommand) []byte {
	id, err := cmd.FullCommitment()
	require.NoError(t, err)
	return id.Bytes()
}

func TestAddAndGetCommand(t *testing.T) {
	test.WipeDB(commandDB.DB())

	cmd := testCommand(0)
	require.NoError(t, commandDB.AddCommandTest(cmd))

	pc, err := commandDB.GetCommand(commandID(t, cmd))
	require.NoError(t, err)
	assert.Equal(t, StatePending, pc.State)
	assert.Equal(t, common.Nonce(0), pc.Nonce)
	assert.Equal(t, 0, big.NewInt(10).Cmp(pc.Fee))
	assert.Equal(t, "test payment", pc.Memo)
	assert.Nil(t, pc.Info)

	parsed, err := pc.ZkappCommand()
	require.NoError(t, err)
	assert.Equal(t, commandID(t, cmd), commandID(t, parsed))
}

func TestGetPendingCommands(t *testing.T) {
	test.WipeDB(commandDB.DB())

	for nonce := common.Nonce(0); nonce < 3; nonce++ {
		require.NoError(t, commandDB.AddCommandTest(testCommand(nonce)))
	}

	pending, err := commandDB.GetPendingCommands()
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i := 1; i < len(pending); i++ {
		assert.Less(t, pending[i-1].ItemID, pending[i].ItemID)
	}

	require.NoError(t, commandDB.SetState(pending[0].CommandID, StateApplied, ""))
	pending, err = commandDB.GetPendingCommands()
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestSetState(t *testing.T) {
	test.WipeDB(commandDB.DB())

	cmd := testCommand(0)
	require.NoError(t, commandDB.AddCommandTest(cmd))
	id := commandID(t, cmd)

	require.NoError(t, commandDB.SetState(id, StateInvalid, "nonce mismatch"))
	pc, err := commandDB.GetCommand(id)
	require.NoError(t, err)
	assert.Equal(t, StateInvalid, pc.State)
	require.NotNil(t, pc.Info)
	assert.Equal(t, "nonce mismatch", *pc.Info)

	err = commandDB.SetState([]byte{0xde, 0xad}, StateApplied, "")
	assert.Error(t, err)
}

func TestPurge(t *testing.T) {
	test.WipeDB(commandDB.DB())

	// zero ttl makes every non-pending command purgeable immediately
	purgeDB := NewCommandDB(commandDB.DB(), commandDB.DB(), 1000, 0, nil)

	applied := testCommand(0)
	invalid := testCommand(1)
	pending := testCommand(2)
	for _, cmd := range []*common.ZkappCommand{applied, invalid, pending} {
		require.NoError(t, commandDB.AddCommandTest(cmd))
	}
	require.NoError(t, commandDB.SetState(commandID(t, applied), StateApplied, ""))
	require.NoError(t, commandDB.SetState(commandID(t, invalid), StateInvalid, "rejected"))

	// with the regular 24h ttl nothing is old enough yet
	n, err := commandDB.Purge()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = purgeDB.Purge()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	remaining, err := commandDB.GetPendingCommands()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, commandID(t, pending), remaining[0].CommandID)
}

func TestAddCommandAPIPoolFull(t *testing.T) {
	test.WipeDB(commandDB.DB())

	apiConnCon := database.NewAPIConnectionController(1, time.Second)
	smallDB := NewCommandDB(commandDB.DB(), commandDB.DB(), 1, 24*time.Hour, apiConnCon)

	require.NoError(t, smallDB.AddCommandAPI(testCommand(0), "127.0.0.1"))
	err := smallDB.AddCommandAPI(testCommand(1), "127.0.0.1")
	assert.ErrorIs(t, common.Unwrap(err), ErrPoolFull)

	pc, err := smallDB.GetCommandAPI(commandID(t, testCommand(0)))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", pc.ClientIP)

	page, err := smallDB.GetCommandsAPI(0, 20)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}
