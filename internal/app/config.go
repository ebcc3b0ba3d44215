package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"qe2ee/internal/domain"
)

// Store backends.
const (
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// EnvPrefix prefixes every environment fallback.
const EnvPrefix = "QE2EE_"

// Config holds runtime wiring options.
type Config struct {
	Home       string // file store root, e.g. $HOME/.qe2ee
	Passphrase string // derives the pickling key
	UserID     string
	DeviceID   string

	Store         string // file, redis or postgres
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresDSN   string

	LogLevel        string
	LogJSON         bool
	ProtocolVersion int
}

// ApplyEnv fills every unset field from QE2EE_<NAME>.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, name string) {
		if *dst == "" {
			if v, ok := lookup(EnvPrefix + name); ok {
				*dst = v
			}
		}
	}
	str(&c.Home, "HOME")
	str(&c.Passphrase, "PASSPHRASE")
	str(&c.UserID, "USER")
	str(&c.DeviceID, "DEVICE")
	str(&c.Store, "STORE")
	str(&c.RedisAddr, "REDIS_ADDR")
	str(&c.RedisPassword, "REDIS_PASSWORD")
	str(&c.PostgresDSN, "POSTGRES_DSN")
	str(&c.LogLevel, "LOG_LEVEL")

	if v, ok := lookup(EnvPrefix + "REDIS_DB"); ok && c.RedisDB == 0 {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREDIS_DB: %w", EnvPrefix, err)
		}
		c.RedisDB = n
	}
	if v, ok := lookup(EnvPrefix + "LOG_JSON"); ok && !c.LogJSON {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sLOG_JSON: %w", EnvPrefix, err)
		}
		c.LogJSON = b
	}
	if v, ok := lookup(EnvPrefix + "PROTOCOL_VERSION"); ok && c.ProtocolVersion == 0 {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPROTOCOL_VERSION: %w", EnvPrefix, err)
		}
		c.ProtocolVersion = n
	}
	return nil
}

// Defaults fills values that have a sensible fallback.
func (c *Config) Defaults() error {
	if c.Store == "" {
		c.Store = StoreFile
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.Home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		c.Home = filepath.Join(dir, ".qe2ee")
	}
	return nil
}

// Validate checks the fields an account needs.
func (c Config) Validate() error {
	var errs []error
	if c.Passphrase == "" {
		errs = append(errs, errors.New("passphrase required (-p or QE2EE_PASSPHRASE)"))
	}
	if c.UserID == "" || c.DeviceID == "" {
		errs = append(errs, errors.New("user and device required (--user, --device)"))
	}
	switch c.Store {
	case StoreFile:
	case StoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis store needs --redis-addr"))
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres store needs --postgres-dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if c.ProtocolVersion < int(domain.ProtocolLegacy) || c.ProtocolVersion > int(domain.ProtocolV1) {
		errs = append(errs, fmt.Errorf("unsupported protocol version %d", c.ProtocolVersion))
	}
	return errors.Join(errs...)
}
