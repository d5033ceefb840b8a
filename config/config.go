// Package config loads the node configuration: compiled-in defaults, then a
// toml file, then environment variable overrides, validated as a whole.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"github.com/go-playground/validator"
	"github.com/joho/godotenv"
)

// Duration is a time.Duration with toml text parsing
type Duration struct {
	time.Duration
}

// UnmarshalText unmarshals a duration string like "300ms" or "2m"
func (d *Duration) UnmarshalText(data []byte) error {
	duration, err := time.ParseDuration(string(data))
	if err != nil {
		return err
	}
	d.Duration = duration
	return nil
}

// DefaultValues is the default configuration, overridden by the file and the
// environment
const DefaultValues = `
[API]
Address = "localhost:8086"
MaxSQLConnections = 100
SQLConnectionTimeout = "2s"

[Log]
Level = "info"
Outputs = ["stdout"]

[PostgreSQL]
PortWrite = 5432
HostWrite = "localhost"
UserWrite = "zkappnode"
PasswordWrite = "zkappnode"
NameWrite = "zkappnode"

[Pool]
MaxCommands = 1000000
TTL = "24h"
PurgeInterval = "10m"

[Prover]
ProofsEnabled = false
URL = "http://localhost:3000"
PollInterval = "1s"

[StateDB]
Keep = 256
`

// Config is the whole node configuration
type Config struct {
	API struct {
		// Address where the API listens
		Address string `toml:"Address" env:"ZKAPPNODE_API_ADDRESS" validate:"required"`
		// MaxSQLConnections is the maximum amount of API queries that
		// can hold a SQL connection concurrently
		MaxSQLConnections int `toml:"MaxSQLConnections" env:"ZKAPPNODE_API_MAXSQLCONNECTIONS" validate:"required"`
		// SQLConnectionTimeout is how long an API query waits for a
		// free SQL connection slot
		SQLConnectionTimeout Duration `toml:"SQLConnectionTimeout"`
	} `toml:"API" validate:"required"`
	Log struct {
		Level   string   `toml:"Level" env:"ZKAPPNODE_LOG_LEVEL" validate:"required"`
		Outputs []string `toml:"Outputs" env:"ZKAPPNODE_LOG_OUTPUTS" envSeparator:","`
	} `toml:"Log"`
	PostgreSQL struct {
		// Port of the PostgreSQL write server
		PortWrite int `toml:"PortWrite" env:"ZKAPPNODE_POSTGRESQL_PORTWRITE" validate:"required"`
		// Host of the PostgreSQL write server
		HostWrite string `toml:"HostWrite" env:"ZKAPPNODE_POSTGRESQL_HOSTWRITE" validate:"required"`
		// User of the PostgreSQL write server
		UserWrite string `toml:"UserWrite" env:"ZKAPPNODE_POSTGRESQL_USERWRITE" validate:"required"`
		// Password of the PostgreSQL write server
		PasswordWrite string `toml:"PasswordWrite" env:"ZKAPPNODE_POSTGRESQL_PASSWORDWRITE" validate:"required"`
		// Name of the PostgreSQL write server database
		NameWrite string `toml:"NameWrite" env:"ZKAPPNODE_POSTGRESQL_NAMEWRITE" validate:"required"`
		// Port of the PostgreSQL read server; defaults to the write
		// server when empty
		PortRead int `toml:"PortRead" env:"ZKAPPNODE_POSTGRESQL_PORTREAD"`
		// Host of the PostgreSQL read server
		HostRead string `toml:"HostRead" env:"ZKAPPNODE_POSTGRESQL_HOSTREAD"`
		// User of the PostgreSQL read server
		UserRead string `toml:"UserRead" env:"ZKAPPNODE_POSTGRESQL_USERREAD"`
		// Password of the PostgreSQL read server
		PasswordRead string `toml:"PasswordRead" env:"ZKAPPNODE_POSTGRESQL_PASSWORDREAD"`
		// Name of the PostgreSQL read server database
		NameRead string `toml:"NameRead" env:"ZKAPPNODE_POSTGRESQL_NAMEREAD"`
	} `toml:"PostgreSQL" validate:"required"`
	Pool struct {
		// MaxCommands is the maximum amount of pending commands the
		// pool accepts
		MaxCommands uint32 `toml:"MaxCommands" env:"ZKAPPNODE_POOL_MAXCOMMANDS" validate:"required"`
		// TTL is how long applied and invalid commands stay in the
		// pool before purge
		TTL Duration `toml:"TTL"`
		// PurgeInterval is how often the purger runs
		PurgeInterval Duration `toml:"PurgeInterval"`
	} `toml:"Pool" validate:"required"`
	Prover struct {
		// ProofsEnabled substitutes placeholder proofs when false
		ProofsEnabled bool `toml:"ProofsEnabled" env:"ZKAPPNODE_PROVER_PROOFSENABLED"`
		// URL of the proof server
		URL string `toml:"URL" env:"ZKAPPNODE_PROVER_URL" validate:"required"`
		// PollInterval between proof server status queries
		PollInterval Duration `toml:"PollInterval"`
	} `toml:"Prover" validate:"required"`
	StateDB struct {
		// Keep is reserved for checkpointed ledgers; the in-memory
		// ledger ignores it
		Keep int `toml:"Keep" env:"ZKAPPNODE_STATEDB_KEEP"`
	} `toml:"StateDB"`
}

func loadDefault(defaultValues string, cfg interface{}) error {
	if _, err := toml.Decode(defaultValues, cfg); err != nil {
		return err
	}
	return nil
}

func loadFile(path string, cfg interface{}) error {
	bs, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	cfgToml := string(bs)
	if _, err := toml.Decode(cfgToml, cfg); err != nil {
		return err
	}
	return nil
}

func loadEnv(cfg interface{}) error {
	if err := env.Parse(cfg); err != nil {
		return err
	}
	return nil
}

// LoadConfig layers the configuration sources into cfg: defaults, then the
// file at filePath when given, then environment variables
func LoadConfig(filePath string, defaultValues string, cfg interface{}) error {
	if err := loadDefault(defaultValues, cfg); err != nil {
		return fmt.Errorf("error loading default configuration: %w", err)
	}
	var errLoadFile error
	if filePath != "" {
		errLoadFile = loadFile(filePath, cfg)
	}
	errLoadEnv := loadEnv(cfg)
	if errLoadFile != nil {
		return fmt.Errorf("error loading configuration file: %w", errLoadFile)
	}
	if errLoadEnv != nil {
		return fmt.Errorf("error loading environment variables: %w", errLoadEnv)
	}
	return nil
}

// Load reads the node configuration. A .env file next to the process is
// picked up before env overrides are applied; missing .env is not an error.
func Load(filePath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}
	var cfg Config
	if err := LoadConfig(filePath, DefaultValues, &cfg); err != nil {
		return nil, err
	}
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("error validating configuration file: %w", err)
	}
	if cfg.PostgreSQL.HostRead == "" {
		cfg.PostgreSQL.PortRead = cfg.PostgreSQL.PortWrite
		cfg.PostgreSQL.HostRead = cfg.PostgreSQL.HostWrite
		cfg.PostgreSQL.UserRead = cfg.PostgreSQL.UserWrite
		cfg.PostgreSQL.PasswordRead = cfg.PostgreSQL.PasswordWrite
		cfg.PostgreSQL.NameRead = cfg.PostgreSQL.NameWrite
	}
	return &cfg, nil
}
