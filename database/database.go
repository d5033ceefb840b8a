// Package database provides the SQL connection tooling shared by the
// Postgres-backed stores: connection setup, schema migrations and the
// connection limiter used by API queries.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"zkapp-node/common"
	"zkapp-node/log"

	"github.com/gobuffalo/packr/v2"
	"github.com/jmoiron/sqlx"

	// driver for postgres DB
	_ "github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/russross/meddler"
	"golang.org/x/sync/semaphore"
)

func init() {
	meddler.Register("bigint", BigIntMeddler{})
}

// InitSQLDB opens the postgres connection and brings the schema up to date
func InitSQLDB(port int, host, user, password, name string) (*sqlx.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, name)
	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		return nil, common.Wrap(err)
	}
	if err := MigrationsUp(db.DB); err != nil {
		return nil, common.Wrap(err)
	}
	return db, nil
}

// InitTestSQLDB connects to the postgres instance used by tests, configured
// through the standard PG* environment variables with local defaults
func InitTestSQLDB() (*sqlx.DB, error) {
	host := envOr("PGHOST", "localhost")
	port, err := strconv.Atoi(envOr("PGPORT", "5432"))
	if err != nil {
		return nil, common.Wrap(err)
	}
	user := envOr("PGUSER", "zkappnode")
	password := envOr("PGPASSWORD", "zkappnode")
	name := envOr("PGDATABASE", "zkappnode_test")
	return InitSQLDB(port, host, user, password, name)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var migrations = &migrate.PackrMigrationSource{
	Box: packr.New("zkapp-node-migrations", "./migrations"),
}

// MigrationsUp applies the pending migrations
func MigrationsUp(db *sql.DB) error {
	n, err := migrate.Exec(db, "postgres", migrations, migrate.Up)
	if err != nil {
		return common.Wrap(err)
	}
	log.Infow("database migrations applied", "n", n)
	return nil
}

// MigrationsDown reverts n migrations, or all of them when n is 0
func MigrationsDown(db *sql.DB, n int) error {
	applied, err := migrate.ExecMax(db, "postgres", migrations, migrate.Down, n)
	if err != nil {
		return common.Wrap(err)
	}
	log.Infow("database migrations reverted", "n", applied)
	return nil
}

// BigIntMeddler stores *big.Int columns as decimal strings
type BigIntMeddler struct{}

// PreRead is called before a Scan operation
func (b BigIntMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	ptr := new(string)
	return ptr, nil
}

// PostRead is called after a Scan operation
func (b BigIntMeddler) PostRead(fieldPtr, scanTarget interface{}) error {
	ptr, ok := scanTarget.(*string)
	if !ok {
		return common.Wrap(fmt.Errorf("scanTarget is not *string"))
	}
	field, ok := fieldPtr.(**big.Int)
	if !ok {
		return common.Wrap(fmt.Errorf("fieldPtr is not **big.Int"))
	}
	v, success := new(big.Int).SetString(*ptr, 10)
	if !success {
		return common.Wrap(fmt.Errorf("big.Int decode error: %q", *ptr))
	}
	*field = v
	return nil
}

// PreWrite is called before an Insert or Update operation
func (b BigIntMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	v, ok := field.(*big.Int)
	if !ok {
		return nil, common.Wrap(fmt.Errorf("field is not *big.Int"))
	}
	return v.String(), nil
}

// APIConnectionController is used to limit the SQL open connections used by
// the API
type APIConnectionController struct {
	smphr   *semaphore.Weighted
	timeout time.Duration
}

// NewAPIConnectionController initialize APIConnectionController
func NewAPIConnectionController(maxConnections int, timeout time.Duration) *APIConnectionController {
	return &APIConnectionController{
		smphr:   semaphore.NewWeighted(int64(maxConnections)),
		timeout: timeout,
	}
}

// Acquire reserves one connection slot, waiting at most the configured
// timeout
func (acc *APIConnectionController) Acquire() (context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(context.Background(), acc.timeout)
	return cancel, common.Wrap(acc.smphr.Acquire(ctx, 1))
}

// Release frees one connection slot
func (acc *APIConnectionController) Release() {
	acc.smphr.Release(1)
}
