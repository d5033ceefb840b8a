package api

import (
	"errors"

	"zkapp-node/database/commanddb"
	"zkapp-node/database/statedb"

	"github.com/gin-gonic/gin"
	"github.com/hermeznetwork/tracerr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API serves HTTP requests to allow external interaction with the zkapp node
type API struct {
	commandDB *commanddb.CommandDB
	stateDB   *statedb.StateDB
	version   string
}

// Config wraps the parameters needed to start the API
type Config struct {
	Version   string
	Server    *gin.Engine
	CommandDB *commanddb.CommandDB
	StateDB   *statedb.StateDB
}

// NewAPI sets the endpoints and the appropriate handlers, but doesn't start
// the server
func NewAPI(setup Config) (*API, error) {
	if setup.CommandDB == nil {
		return nil, tracerr.Wrap(errors.New("cannot serve command endpoints without CommandDB"))
	}
	if setup.StateDB == nil {
		return nil, tracerr.Wrap(errors.New("cannot serve account endpoints without StateDB"))
	}

	a := &API{
		commandDB: setup.CommandDB,
		stateDB:   setup.StateDB,
		version:   setup.Version,
	}

	setup.Server.NoRoute(a.noRoute)

	v1 := setup.Server.Group("/v1")

	v1.GET("/health", a.getHealth)

	// Command pool
	v1.POST("/commands", a.postCommand)
	v1.GET("/commands", a.getCommands)
	v1.GET("/commands/:id", a.getCommand)

	// Ledger
	v1.GET("/accounts/:publicKey", a.getAccount)
	v1.GET("/state", a.getState)

	setup.Server.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		prometheus.DefaultGatherer, promhttp.HandlerOpts{})))

	return a, nil
}
