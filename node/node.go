/*
Package node does the initialization of all the required objects to run the
zkapp node: the SQL command pool, the in-memory ledger, the proof server
client and the http API.

The Node contains goroutines that run in the background or that periodically
perform tasks. One of them periodically pulls pending commands from the pool
and applies them to the ledger; another purges old non-pending commands.
*/
package node

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"zkapp-node/api"
	"zkapp-node/common"
	"zkapp-node/config"
	dbUtils "zkapp-node/database"
	"zkapp-node/database/commanddb"
	"zkapp-node/database/statedb"
	"zkapp-node/log"
	"zkapp-node/metric"
	"zkapp-node/prover"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
)

const applyInterval = 500 * time.Millisecond

// Node is the zkapp node
type Node struct {
	cfg *config.Config

	sqlConnRead  *sqlx.DB
	sqlConnWrite *sqlx.DB
	commandDB    *commanddb.CommandDB
	stateDB      *statedb.StateDB

	proverClient prover.Client

	server *http.Server

	ctx    context.Context
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewNode creates a Node from the loaded configuration
func NewNode(cfg *config.Config, version string) (*Node, error) {
	// Stablish DB connection
	dbWrite, err := dbUtils.InitSQLDB(
		cfg.PostgreSQL.PortWrite,
		cfg.PostgreSQL.HostWrite,
		cfg.PostgreSQL.UserWrite,
		cfg.PostgreSQL.PasswordWrite,
		cfg.PostgreSQL.NameWrite,
	)
	if err != nil {
		return nil, common.Wrap(fmt.Errorf("dbUtils.InitSQLDB: %w", err))
	}
	var dbRead *sqlx.DB
	if cfg.PostgreSQL.HostRead == cfg.PostgreSQL.HostWrite &&
		cfg.PostgreSQL.PortRead == cfg.PostgreSQL.PortWrite {
		dbRead = dbWrite
	} else {
		dbRead, err = dbUtils.InitSQLDB(
			cfg.PostgreSQL.PortRead,
			cfg.PostgreSQL.HostRead,
			cfg.PostgreSQL.UserRead,
			cfg.PostgreSQL.PasswordRead,
			cfg.PostgreSQL.NameRead,
		)
		if err != nil {
			return nil, common.Wrap(fmt.Errorf("dbUtils.InitSQLDB: %w", err))
		}
	}
	apiConnCon := dbUtils.NewAPIConnectionController(
		cfg.API.MaxSQLConnections,
		cfg.API.SQLConnectionTimeout.Duration,
	)
	commandDB := commanddb.NewCommandDB(dbRead, dbWrite,
		cfg.Pool.MaxCommands, cfg.Pool.TTL.Duration, apiConnCon)

	stateDB, err := statedb.NewStateDB()
	if err != nil {
		return nil, common.Wrap(err)
	}

	var proverClient prover.Client
	if cfg.Prover.ProofsEnabled {
		proverClient = prover.NewProofServerClient(cfg.Prover.URL,
			cfg.Prover.PollInterval.Duration)
	} else {
		proverClient = &prover.MockClient{}
	}

	registerMetrics()

	engine := gin.New()
	engine.Use(gin.Recovery())
	if _, err := api.NewAPI(api.Config{
		Version:   version,
		Server:    engine,
		CommandDB: commandDB,
		StateDB:   stateDB,
	}); err != nil {
		return nil, common.Wrap(err)
	}
	server := &http.Server{
		Addr:           cfg.API.Address,
		Handler:        engine,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:          cfg,
		sqlConnRead:  dbRead,
		sqlConnWrite: dbWrite,
		commandDB:    commandDB,
		stateDB:      stateDB,
		proverClient: proverClient,
		server:       server,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// CommandDB exposes the command pool, mainly for tests and tooling
func (n *Node) CommandDB() *commanddb.CommandDB {
	return n.commandDB
}

// StateDB exposes the ledger, mainly for tests and tooling
func (n *Node) StateDB() *statedb.StateDB {
	return n.stateDB
}

// Start runs the http API, the command applier and the pool purger
func (n *Node) Start() {
	log.Infow("Starting node...", "addr", n.cfg.API.Address)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.server.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			log.Fatalf("api server: %v", err)
		}
	}()

	n.wg.Add(1)
	go n.applyLoop()

	n.wg.Add(1)
	go n.purgeLoop()

	if n.cfg.Prover.ProofsEnabled {
		n.wg.Add(1)
		go n.waitProverReady()
	}
}

// waitProverReady blocks until the configured proof server accepts inputs,
// so a misconfigured prover URL surfaces in the logs at startup
func (n *Node) waitProverReady() {
	defer n.wg.Done()
	if err := n.proverClient.WaitReady(n.ctx); err != nil {
		if !common.IsErrDone(err) {
			log.Errorw("proof server not ready", "url", n.cfg.Prover.URL, "err", err)
		}
		return
	}
	log.Infow("proof server ready", "url", n.cfg.Prover.URL)
}

// Stop shuts down the API server and the background loops
func (n *Node) Stop() {
	log.Infow("Stopping node...")
	n.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := n.server.Shutdown(ctx); err != nil {
		log.Errorw("api server shutdown", "err", err)
	}
	n.wg.Wait()
	if n.sqlConnRead != n.sqlConnWrite {
		if err := n.sqlConnRead.Close(); err != nil {
			log.Errorw("closing read db", "err", err)
		}
	}
	if err := n.sqlConnWrite.Close(); err != nil {
		log.Errorw("closing write db", "err", err)
	}
}

// applyLoop pulls pending commands from the pool in arrival order and
// applies them to the ledger. A command that fails to apply is marked
// invalid with the failure reason and does not stop the loop.
func (n *Node) applyLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(applyInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			pending, err := n.commandDB.GetPendingCommands()
			if err != nil {
				log.Errorw("getting pending commands", "err", err)
				continue
			}
			for i := range pending {
				n.applyCommand(&pending[i])
			}
			if len(pending) > 0 {
				if count, err := n.stateDB.AccountCount(); err == nil {
					metric.LedgerAccounts.Set(float64(count))
				}
			}
		}
	}
}

func (n *Node) applyCommand(pc *commanddb.PoolCommand) {
	cmd, err := pc.ZkappCommand()
	if err == nil {
		err = n.stateDB.ApplyCommand(cmd)
	}
	if err != nil {
		metric.InvalidCommands.Inc()
		log.Warnw("command failed to apply",
			"id", fmt.Sprintf("%x", pc.CommandID), "err", err)
		if err := n.commandDB.SetState(pc.CommandID,
			commanddb.StateInvalid, err.Error()); err != nil {
			log.Errorw("marking command invalid", "err", err)
		}
		return
	}
	metric.AppliedCommands.Inc()
	if err := n.commandDB.SetState(pc.CommandID,
		commanddb.StateApplied, ""); err != nil {
		log.Errorw("marking command applied", "err", err)
	}
}

func (n *Node) purgeLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.Pool.PurgeInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			purged, err := n.commandDB.Purge()
			if err != nil {
				log.Errorw("purging command pool", "err", err)
				continue
			}
			metric.PurgedCommands.Set(float64(purged))
		}
	}
}

func registerMetrics() {
	prometheus.MustRegister(
		metric.ReceivedCommands,
		metric.RejectedCommands,
		metric.AppliedCommands,
		metric.InvalidCommands,
		metric.PurgedCommands,
		metric.LedgerAccounts,
		metric.WaitServerProof,
	)
}
