// Package config loads schedulerd's runtime configuration (spec §6
// "Configuration"), following the teacher's Config+Validate convention:
// every field is overridable from the environment, with sane defaults
// filled in by Validate.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// Config holds every option named in spec §6, plus the handful of
// connection strings the excluded external collaborators (Storage, GIS,
// Queue Store) require in this deployment.
type Config struct {
	GRPCPort int

	QueueStoreAddress string
	StorageDSN        string
	GISAddress        string

	DefaultTaskTTL       time.Duration
	MaxDeadheadDuration  time.Duration
	MinPadBlockSeconds   int
	TaskPopTimeout       time.Duration

	MetricsAddr string
	Verbose     bool
}

// Validate fills in defaults for zero-valued fields and rejects impossible
// configurations.
func (c *Config) Validate() error {
	if c.GRPCPort == 0 {
		c.GRPCPort = 8443
	}
	if c.QueueStoreAddress == "" {
		return errors.New("queue store address is required")
	}
	if c.StorageDSN == "" {
		return errors.New("storage dsn is required")
	}
	if c.GISAddress == "" {
		return errors.New("gis address is required")
	}
	if c.DefaultTaskTTL <= 0 {
		c.DefaultTaskTTL = 24 * time.Hour
	}
	if c.MaxDeadheadDuration <= 0 {
		c.MaxDeadheadDuration = 2 * time.Hour
	}
	if c.MinPadBlockSeconds <= 0 {
		c.MinPadBlockSeconds = 60
	}
	if c.TaskPopTimeout <= 0 {
		c.TaskPopTimeout = 5 * time.Second
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}
	return nil
}

// FromEnv builds a Config by reading the environment, falling back to the
// same defaults Validate fills in. The three service addresses have no
// default, so FromEnv fails validation when any of them is unset.
func FromEnv() (*Config, error) {
	c := &Config{
		GRPCPort:            getenvInt("GRPC_PORT", 8443),
		QueueStoreAddress:   os.Getenv("QUEUE_STORE_ADDRESS"),
		StorageDSN:          os.Getenv("STORAGE_ADDRESS"),
		GISAddress:          os.Getenv("GIS_ADDRESS"),
		DefaultTaskTTL:      getenvDuration("DEFAULT_TASK_TTL", 24*time.Hour),
		MaxDeadheadDuration: getenvDuration("MAX_DEADHEAD_DURATION", 2*time.Hour),
		MinPadBlockSeconds:  getenvInt("MIN_PAD_BLOCK_SECONDS", 60),
		TaskPopTimeout:      getenvDuration("TASK_POP_TIMEOUT", 5*time.Second),
		MetricsAddr:         getenv("METRICS_ADDR", ":9090"),
		Verbose:             getenvBool("VERBOSE", false),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// BindFlags registers pflag overrides for every FromEnv-derived setting,
// each defaulting to the value already read from the environment, so that
// `schedulerd --grpc-port 9443` takes precedence over GRPC_PORT. Call
// before flag.Parse(). BindFlags does not validate; cmd/schedulerd calls
// Validate again after parsing.
func (c *Config) BindFlags(flag *pflag.FlagSet) {
	flag.IntVar(&c.GRPCPort, "grpc-port", c.GRPCPort, "grpc listen port (env: GRPC_PORT)")
	flag.StringVar(&c.QueueStoreAddress, "queue-store-address", c.QueueStoreAddress, "redis queue store address (env: QUEUE_STORE_ADDRESS)")
	flag.StringVar(&c.StorageDSN, "storage-address", c.StorageDSN, "postgres dsn (env: STORAGE_ADDRESS)")
	flag.StringVar(&c.GISAddress, "gis-address", c.GISAddress, "gis routing service base url (env: GIS_ADDRESS)")
	flag.DurationVar(&c.DefaultTaskTTL, "default-task-ttl", c.DefaultTaskTTL, "task record ttl (env: DEFAULT_TASK_TTL)")
	flag.DurationVar(&c.MaxDeadheadDuration, "max-deadhead-duration", c.MaxDeadheadDuration, "max single-leg deadhead duration (env: MAX_DEADHEAD_DURATION)")
	flag.IntVar(&c.MinPadBlockSeconds, "min-pad-block-seconds", c.MinPadBlockSeconds, "minimum pad occupancy block (env: MIN_PAD_BLOCK_SECONDS)")
	flag.DurationVar(&c.TaskPopTimeout, "task-pop-timeout", c.TaskPopTimeout, "blocking pop timeout against the queue store (env: TASK_POP_TIMEOUT)")
	flag.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "prometheus metrics listen address (env: METRICS_ADDR)")
	flag.BoolVar(&c.Verbose, "verbose", c.Verbose, "verbose mode - show debug logs (env: VERBOSE)")
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
