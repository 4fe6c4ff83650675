package llm

import "time"

// Config controls queue behavior.
type Config struct {
	// Concurrency control
	MaxConcurrent int // Total concurrent LLM requests

	// Queue sizes
	ForegroundQueueSize int // Learner-waiting turn calls (small, rarely queues)
	PrecacheQueueSize   int // Dual pre-cache calls (larger buffer)

	// Timeouts
	ForegroundTimeout time.Duration
	PrecacheTimeout   time.Duration
}

// DefaultConfig returns sensible defaults. Timeout matches spec §6's
// 120s LLM call contract.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrent:       2,
		ForegroundQueueSize: 20,
		PrecacheQueueSize:   100,
		ForegroundTimeout:   120 * time.Second,
		PrecacheTimeout:     120 * time.Second,
	}
}
