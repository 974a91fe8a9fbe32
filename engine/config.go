package engine

import "time"

// Config tunes the batch engine. Zero values fall back to defaults in
// NewEngine.
type Config struct {
	// MaxConcurrentContainers bounds how many containers are mutated
	// simultaneously.
	MaxConcurrentContainers int

	// SubBatchSize is the number of operations per document-API call.
	SubBatchSize int

	// SubBatchPause is the fixed delay between sub-batches on the same
	// container.
	SubBatchPause time.Duration

	// StaggerDelay spaces container start times so the run does not
	// burst at time zero. Container i waits i * StaggerDelay.
	StaggerDelay time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	// Permanent errors are never retried.
	RetryAttempts int

	// RetryDelay is the initial backoff, doubling per retry.
	RetryDelay time.Duration

	// CallTimeout bounds each individual document-API call.
	CallTimeout time.Duration
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentContainers: 3,
		SubBatchSize:            3,
		SubBatchPause:           200 * time.Millisecond,
		StaggerDelay:            500 * time.Millisecond,
		RetryAttempts:           2,
		RetryDelay:              time.Second,
		CallTimeout:             30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrentContainers <= 0 {
		c.MaxConcurrentContainers = d.MaxConcurrentContainers
	}
	if c.SubBatchSize <= 0 {
		c.SubBatchSize = d.SubBatchSize
	}
	if c.SubBatchPause < 0 {
		c.SubBatchPause = d.SubBatchPause
	}
	if c.StaggerDelay < 0 {
		c.StaggerDelay = d.StaggerDelay
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = d.RetryAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	return c
}
