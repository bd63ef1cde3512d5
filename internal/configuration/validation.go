package configuration

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Validate checks the configuration for values that would make the service
// misbehave at runtime.  All problems are reported together.
func (c *IngesterConfiguration) Validate() error {
	var result *multierror.Error

	if len(c.Postgres.Connection) == 0 {
		result = multierror.Append(result, errors.New("postgres.connection must be provided"))
	}
	if c.Redis.Addr == "" {
		result = multierror.Append(result, errors.New("redis.addr must be provided"))
	}
	if c.Pipeline.IngestQueue == "" {
		result = multierror.Append(result, errors.New("pipeline.ingestQueue must be provided"))
	}
	if c.Pipeline.WriteQueue == "" {
		result = multierror.Append(result, errors.New("pipeline.writeQueue must be provided"))
	}
	if c.Pipeline.BatchSize <= 0 {
		result = multierror.Append(result, errors.New("pipeline.batchSize must be positive"))
	}
	if c.Pipeline.MaxTaskAttempts <= 0 {
		result = multierror.Append(result, errors.New("pipeline.maxTaskAttempts must be positive"))
	}
	if c.Pipeline.IngestWorkers <= 0 || c.Pipeline.WriteWorkers <= 0 {
		result = multierror.Append(result, errors.New("pipeline worker counts must be positive"))
	}

	return result.ErrorOrNil()
}
