package ingest

import (
	"time"

	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
)

type Config struct {
	// SoftTimeout marks an extractor stage slow; HardTimeout cancels it.
	SoftTimeout time.Duration
	HardTimeout time.Duration
	// MaxAttempts bounds runs of one extractor stage, first try included.
	MaxAttempts  int
	RetryBackoff time.Duration
	// StaleAfter is how long an in-flight job may sit untouched before the
	// sweep gives up on it. Defaults to twice HardTimeout.
	StaleAfter time.Duration
	SweepBatch int
	// Scope is the duplicate search scope applied to every requester.
	Scope courses.ScopeMode
	// DecisionTimeout bounds every course write, inline after a user
	// decision or in a worker.
	DecisionTimeout time.Duration
	// AbandonAfter is how long a job may sit in CREATING_COURSE before the
	// sweep fails it. Defaults to four times DecisionTimeout, and never less
	// than StaleAfter.
	AbandonAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		SoftTimeout:     20 * time.Second,
		HardTimeout:     60 * time.Second,
		MaxAttempts:     3,
		RetryBackoff:    time.Second,
		SweepBatch:      100,
		Scope:           courses.ScopeInstitution,
		DecisionTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HardTimeout <= 0 {
		c.HardTimeout = def.HardTimeout
	}
	if c.SoftTimeout <= 0 || c.SoftTimeout >= c.HardTimeout {
		c.SoftTimeout = c.HardTimeout / 3
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 2 * c.HardTimeout
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = def.SweepBatch
	}
	if c.Scope == "" {
		c.Scope = def.Scope
	}
	if c.DecisionTimeout <= 0 {
		c.DecisionTimeout = def.DecisionTimeout
	}
	if c.AbandonAfter <= 0 {
		c.AbandonAfter = 4 * c.DecisionTimeout
	}
	if c.AbandonAfter < c.StaleAfter {
		c.AbandonAfter = c.StaleAfter
	}
	return c
}
