// Package config holds the core's own in-process option shape and the
// common/per-component merge it performs before a worker's constructor
// runs. The YAML-file-reading, CLI-flag-merging external driver is out
// of scope; this package only owns what the core itself needs.
package config

import (
	"fmt"
	"time"

	"dario.cat/mergo"
)

// Options is the engine-wide configuration the Scheduler is built from.
type Options struct {
	GraceTime     time.Duration
	MaxGameTime   time.Duration
	Parallelism   int
	TemporaryBase string
	Common        map[string]any
}

// Validate rejects configurations that would make the engine behave
// unsafely or nonsensically. GraceTime of zero is accepted — it is a
// documented boundary case (quiescence fires on the very first idle
// tick), not an error. MaxGameTime of zero is likewise accepted: it
// means unlimited, not instant timeout.
func (o Options) Validate() error {
	if o.Parallelism <= 0 {
		return fmt.Errorf("config: parallelism must be positive, got %d", o.Parallelism)
	}
	if o.MaxGameTime < 0 {
		return fmt.Errorf("config: max game time must not be negative")
	}
	if o.TemporaryBase == "" {
		return fmt.Errorf("config: temporary base directory must be set")
	}
	return nil
}

// Merge combines common into specific, with specific's own keys taking
// precedence, per the engine's "common < per-component" option
// precedence rule. Neither input is mutated.
func Merge(common, specific map[string]any) (map[string]any, error) {
	merged := make(map[string]any, len(common)+len(specific))
	for k, v := range common {
		merged[k] = v
	}
	if err := mergo.Merge(&merged, specific, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("config: merge: %w", err)
	}
	return merged, nil
}
