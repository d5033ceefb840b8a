package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"zkapp-node/common"
	"zkapp-node/database/commanddb"
	"zkapp-node/log"
	"zkapp-node/metric"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/hermeznetwork/tracerr"
)

const (
	defaultLimit = 20
	maxLimit     = 2049
)

type errorMsg struct {
	Message string `json:"message"`
}

func retBadReq(err error, c *gin.Context) {
	log.Debugw("api bad request", "err", err)
	c.JSON(http.StatusBadRequest, errorMsg{Message: err.Error()})
}

func retSQLErr(err error, c *gin.Context) {
	log.Warnw("api sql error", "err", err)
	errMsg := tracerr.Unwrap(err)
	if errors.Is(errMsg, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, errorMsg{Message: errMsg.Error()})
	} else if errors.Is(errMsg, commanddb.ErrPoolFull) {
		c.JSON(http.StatusTooManyRequests, errorMsg{Message: errMsg.Error()})
	} else {
		c.JSON(http.StatusInternalServerError, errorMsg{Message: errMsg.Error()})
	}
}

func (a *API) noRoute(c *gin.Context) {
	c.JSON(http.StatusNotFound, errorMsg{Message: "endpoint not found"})
}

func (a *API) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "UP",
		"version": a.version,
	})
}

// postCommand parses a zkapp command from the request body and stores it in
// the pool. The wire parser is strict: unknown fields and malformed trees
// are rejected here, before the command reaches the pool.
func (a *API) postCommand(c *gin.Context) {
	var cmd common.ZkappCommand
	if err := json.NewDecoder(c.Request.Body).Decode(&cmd); err != nil {
		retBadReq(err, c)
		metric.RejectedCommands.Inc()
		return
	}
	if err := a.commandDB.AddCommandAPI(&cmd, c.ClientIP()); err != nil {
		retSQLErr(err, c)
		metric.RejectedCommands.Inc()
		return
	}
	metric.ReceivedCommands.Inc()
	commandID, err := cmd.FullCommitment()
	if err != nil {
		retSQLErr(err, c)
		return
	}
	c.JSON(http.StatusOK, hexutil.Encode(commandID.Bytes()))
}

func (a *API) getCommand(c *gin.Context) {
	commandID, err := hexutil.Decode(c.Param("id"))
	if err != nil {
		retBadReq(err, c)
		return
	}
	cmd, err := a.commandDB.GetCommandAPI(commandID)
	if err != nil {
		retSQLErr(err, c)
		return
	}
	c.JSON(http.StatusOK, newCommandView(cmd))
}

func (a *API) getCommands(c *gin.Context) {
	fromItem, limit, err := parsePagination(c)
	if err != nil {
		retBadReq(err, c)
		return
	}
	cmds, err := a.commandDB.GetCommandsAPI(fromItem, limit)
	if err != nil {
		retSQLErr(err, c)
		return
	}
	views := make([]commandView, len(cmds))
	for i := range cmds {
		views[i] = *newCommandView(&cmds[i])
	}
	c.JSON(http.StatusOK, gin.H{"commands": views})
}

// getAccount returns the ledger account of the given public key. The token
// is selected with the tokenId query parameter and defaults to the base
// token.
func (a *API) getAccount(c *gin.Context) {
	var pk common.PublicKey
	if err := pk.UnmarshalJSON([]byte(strconv.Quote(c.Param("publicKey")))); err != nil {
		retBadReq(err, c)
		return
	}
	tokenID := common.DefaultTokenID
	if s := c.Query("tokenId"); s != "" {
		if err := tokenID.UnmarshalJSON([]byte(strconv.Quote(s))); err != nil {
			retBadReq(err, c)
			return
		}
	}
	account, err := a.stateDB.GetAccount(pk, tokenID)
	if err != nil {
		retBadReq(err, c)
		return
	}
	c.JSON(http.StatusOK, newAccountView(account))
}

// accountView is the api representation of a ledger account
type accountView struct {
	PublicKey   common.PublicKey   `json:"publicKey"`
	TokenID     common.TokenID     `json:"tokenId"`
	Balance     common.BigIntStr   `json:"balance"`
	Nonce       common.Nonce       `json:"nonce"`
	Delegate    common.PublicKey   `json:"delegate"`
	AppState    [8]string          `json:"appState"`
	TokenSymbol string             `json:"tokenSymbol"`
	ProvedState bool               `json:"provedState"`
	Permissions common.Permissions `json:"permissions"`
}

func newAccountView(a *common.Account) *accountView {
	v := &accountView{
		PublicKey:   a.PublicKey,
		TokenID:     a.TokenID,
		Balance:     common.NewBigIntStr(a.Balance),
		Nonce:       a.Nonce,
		Delegate:    a.Delegate,
		TokenSymbol: a.TokenSymbol,
		ProvedState: a.ProvedState,
		Permissions: a.Permissions,
	}
	for i, s := range a.AppState {
		v.AppState[i] = s.String()
	}
	return v
}

func (a *API) getState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"root": common.NewBigIntStr(a.stateDB.Root()),
	})
}

func parsePagination(c *gin.Context) (int64, uint, error) {
	fromItem := int64(0)
	if s := c.Query("fromItem"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			return 0, 0, tracerr.Wrap(errors.New("fromItem must be a non negative integer"))
		}
		fromItem = v
	}
	limit := uint(defaultLimit)
	if s := c.Query("limit"); s != "" {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil || v == 0 || v >= maxLimit {
			return 0, 0, tracerr.Wrap(errors.New("limit out of range"))
		}
		limit = uint(v)
	}
	return fromItem, limit, nil
}

// commandView is the api representation of a pooled command
type commandView struct {
	ItemID    int64                  `json:"itemId"`
	CommandID string                 `json:"id"`
	FeePayer  string                 `json:"feePayer"`
	Nonce     common.Nonce           `json:"nonce"`
	Fee       common.BigIntStr       `json:"fee"`
	Memo      string                 `json:"memo"`
	State     commanddb.CommandState `json:"state"`
	Info      *string                `json:"info"`
	Command   json.RawMessage        `json:"command"`
}

func newCommandView(pc *commanddb.PoolCommand) *commandView {
	return &commandView{
		ItemID:    pc.ItemID,
		CommandID: hexutil.Encode(pc.CommandID),
		FeePayer:  hexutil.Encode(pc.FeePayer),
		Nonce:     pc.Nonce,
		Fee:       common.NewBigIntStr(pc.Fee),
		Memo:      pc.Memo,
		State:     pc.State,
		Info:      pc.Info,
		Command:   json.RawMessage(pc.Command),
	}
}
