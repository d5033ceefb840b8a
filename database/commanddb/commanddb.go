/*
Package commanddb stores the pending zkapp commands received through the api
and keeps them until they are applied to the ledger or invalidated.

This package is split in two files: commanddb.go holds the constructor and
the functions used by the node itself; apiqueries.go holds the functions used
by the api, whose queries go through a semaphore restricting the maximum
concurrent connections to the database.
*/
package commanddb

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"zkapp-node/common"
	"zkapp-node/database"

	"github.com/jmoiron/sqlx"
	"github.com/russross/meddler"
)

var (
	// ErrPoolFull is returned when the pool is at maxCommands capacity
	ErrPoolFull = fmt.Errorf("the pool is at full capacity. More commands are not accepted currently")
)

// CommandState is the lifecycle state of a pooled command
type CommandState string

const (
	// StatePending means the command waits to be applied
	StatePending CommandState = "pend"
	// StateApplied means the command was applied to the ledger
	StateApplied CommandState = "appl"
	// StateInvalid means the command was rejected and is kept only for
	// the safety period
	StateInvalid CommandState = "invl"
)

// PoolCommand is the database view of one pending zkapp command. The full
// wire JSON is kept verbatim; the indexed columns are denormalized from it.
type PoolCommand struct {
	ItemID    int64        `meddler:"item_id,pk"`
	CommandID []byte       `meddler:"command_id"`
	FeePayer  []byte       `meddler:"fee_payer"`
	Nonce     common.Nonce `meddler:"nonce"`
	Fee       *big.Int     `meddler:"fee,bigint"`
	Memo      string       `meddler:"memo"`
	State     CommandState `meddler:"state"`
	Info      *string      `meddler:"info"`
	Command   []byte       `meddler:"command"`
	ClientIP  string       `meddler:"client_ip"`
	Timestamp time.Time    `meddler:"timestamp"`
}

// ZkappCommand parses the stored wire JSON back into the domain type
func (pc *PoolCommand) ZkappCommand() (*common.ZkappCommand, error) {
	var cmd common.ZkappCommand
	if err := json.Unmarshal(pc.Command, &cmd); err != nil {
		return nil, common.Wrap(err)
	}
	return &cmd, nil
}

// CommandDB stores the pending commands received by the api
type CommandDB struct {
	dbRead      *sqlx.DB
	dbWrite     *sqlx.DB
	maxCommands uint32
	ttl         time.Duration
	apiConnCon  *database.APIConnectionController
}

// NewCommandDB creates a CommandDB. maxCommands limits how many pending
// commands the pool accepts; ttl is how long a non-pending command is kept
// before purge.
func NewCommandDB(dbRead, dbWrite *sqlx.DB, maxCommands uint32, ttl time.Duration,
	apiConnCon *database.APIConnectionController) *CommandDB {
	return &CommandDB{
		dbRead:      dbRead,
		dbWrite:     dbWrite,
		maxCommands: maxCommands,
		ttl:         ttl,
		apiConnCon:  apiConnCon,
	}
}

// DB returns a pointer to the write DB. This method should be used only for
// internal testing purposes.
func (c *CommandDB) DB() *sqlx.DB {
	return c.dbWrite
}

// newPoolCommand denormalizes the command into its database view
func newPoolCommand(cmd *common.ZkappCommand, clientIP string) (*PoolCommand, error) {
	commandID, err := cmd.FullCommitment()
	if err != nil {
		return nil, err
	}
	fee, err := cmd.FeePayer.Body.Fee.BigInt()
	if err != nil {
		return nil, err
	}
	wire, err := json.Marshal(cmd)
	if err != nil {
		return nil, common.Wrap(err)
	}
	feePayer := cmd.FeePayer.Body.PublicKey
	return &PoolCommand{
		CommandID: commandID.Bytes(),
		FeePayer:  feePayer[:],
		Nonce:     cmd.FeePayer.Body.Nonce,
		Fee:       fee,
		Memo:      cmd.Memo,
		State:     StatePending,
		Command:   wire,
		ClientIP:  clientIP,
		Timestamp: time.Now().UTC(),
	}, nil
}

// AddCommandTest inserts a command into the pool without the capacity check.
// This is useful for test purposes.
func (c *CommandDB) AddCommandTest(cmd *common.ZkappCommand) error {
	return c.addCommand(cmd, "", false)
}

func (c *CommandDB) addCommand(cmd *common.ZkappCommand, clientIP string, checkPoolIsFull bool) error {
	if checkPoolIsFull {
		full, err := c.isFull()
		if err != nil {
			return err
		}
		if full {
			return common.Wrap(ErrPoolFull)
		}
	}
	pc, err := newPoolCommand(cmd, clientIP)
	if err != nil {
		return err
	}
	return common.Wrap(meddler.Insert(c.dbWrite, "command_pool", pc))
}

func (c *CommandDB) isFull() (bool, error) {
	row := c.dbRead.QueryRow(
		`SELECT COUNT(*) FROM command_pool WHERE state = $1;`, StatePending)
	var n uint32
	if err := row.Scan(&n); err != nil {
		return false, common.Wrap(err)
	}
	return n >= c.maxCommands, nil
}

// GetCommand retrieves a command by its id
func (c *CommandDB) GetCommand(commandID []byte) (*PoolCommand, error) {
	pc := &PoolCommand{}
	err := meddler.QueryRow(c.dbRead, pc,
		`SELECT * FROM command_pool WHERE command_id = $1;`, commandID)
	return pc, common.Wrap(err)
}

// GetPendingCommands returns the pending commands in arrival order
func (c *CommandDB) GetPendingCommands() ([]PoolCommand, error) {
	var commands []*PoolCommand
	err := meddler.QueryAll(c.dbRead, &commands,
		`SELECT * FROM command_pool WHERE state = $1 ORDER BY item_id;`, StatePending)
	if err != nil {
		return nil, common.Wrap(err)
	}
	out := make([]PoolCommand, len(commands))
	for i, pc := range commands {
		out[i] = *pc
	}
	return out, nil
}

// SetState moves a command to a new lifecycle state, recording the reason
// when one is given
func (c *CommandDB) SetState(commandID []byte, state CommandState, info string) error {
	var infoPtr *string
	if info != "" {
		infoPtr = &info
	}
	res, err := c.dbWrite.Exec(
		`UPDATE command_pool SET state = $1, info = $2 WHERE command_id = $3;`,
		state, infoPtr, commandID)
	if err != nil {
		return common.Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.Wrap(err)
	}
	if n == 0 {
		return common.Wrap(fmt.Errorf("command %x not found in pool", commandID))
	}
	return nil
}

// Purge deletes applied and invalid commands older than the configured ttl,
// returning how many rows were removed
func (c *CommandDB) Purge() (int64, error) {
	res, err := c.dbWrite.Exec(
		`DELETE FROM command_pool
		WHERE state != $1 AND timestamp < $2;`,
		StatePending, time.Now().UTC().Add(-c.ttl))
	if err != nil {
		return 0, common.Wrap(err)
	}
	n, err := res.RowsAffected()
	return n, common.Wrap(err)
}
