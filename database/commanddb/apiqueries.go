package commanddb

import (
	"zkapp-node/common"

	"github.com/russross/meddler"
)

// AddCommandAPI inserts a command received through the api, rejecting it
// when the pool is at capacity
func (c *CommandDB) AddCommandAPI(cmd *common.ZkappCommand, clientIP string) error {
	cancel, err := c.apiConnCon.Acquire()
	defer cancel()
	if err != nil {
		return common.Wrap(err)
	}
	defer c.apiConnCon.Release()
	return c.addCommand(cmd, clientIP, true)
}

// GetCommandAPI retrieves a command by its id for the api
func (c *CommandDB) GetCommandAPI(commandID []byte) (*PoolCommand, error) {
	cancel, err := c.apiConnCon.Acquire()
	defer cancel()
	if err != nil {
		return nil, common.Wrap(err)
	}
	defer c.apiConnCon.Release()
	return c.GetCommand(commandID)
}

// GetCommandsAPI returns a page of pool commands for the api, keyed by
// item_id
func (c *CommandDB) GetCommandsAPI(fromItem int64, limit uint) ([]PoolCommand, error) {
	cancel, err := c.apiConnCon.Acquire()
	defer cancel()
	if err != nil {
		return nil, common.Wrap(err)
	}
	defer c.apiConnCon.Release()

	var commands []*PoolCommand
	err = meddler.QueryAll(c.dbRead, &commands,
		`SELECT * FROM command_pool WHERE item_id >= $1 ORDER BY item_id LIMIT $2;`,
		fromItem, limit)
	if err != nil {
		return nil, common.Wrap(err)
	}
	out := make([]PoolCommand, len(commands))
	for i, pc := range commands {
		out[i] = *pc
	}
	return out, nil
}
