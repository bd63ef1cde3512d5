package configuration

import "time"

// IngesterConfiguration is the top level config for the ingester service and
// for marketctl, loaded from yaml via viper.
type IngesterConfiguration struct {
	// Connection details for the price store
	Postgres PostgresConfig
	// Connection details for the task queue backing store
	Redis RedisConfig
	// Port on which prometheus metrics are served
	MetricsPort uint16
	// Pipeline tuning
	Pipeline PipelineConfig
}

type PostgresConfig struct {
	// Keyed libpq connection parameters (host, port, user, password, dbname, sslmode)
	Connection map[string]string
}

type RedisConfig struct {
	Addr     string
	Password string
	Db       int
	PoolSize int
}

type PipelineConfig struct {
	// Name of the queue that fetch/map/dispatch tasks are consumed from
	IngestQueue string
	// Name of the queue that upsert tasks are consumed from
	WriteQueue string
	// Maximum number of mapped rows dispatched per db_write task
	BatchSize int
	// Number of concurrent workers per queue
	IngestWorkers int
	WriteWorkers  int
	// How often idle workers poll for new tasks
	PollInterval time.Duration
	// Total execution attempts before a task is dead-lettered
	MaxTaskAttempts int
	// Base delay before a failed task becomes due for retry; scaled by attempt count
	RetryBackoff time.Duration
	// Maximum in-place retries for transient database errors within a task
	MaxDatabaseAttempts int
	// Cap in seconds for the database retry backoff
	MaxDatabaseBackoff int
}
