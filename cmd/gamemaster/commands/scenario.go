package commands

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oakmoor/cairn/internal/config"
)

// scenario is the shape of the YAML document gamemaster reads: a worked
// example of how the excluded external driver would assemble
// internal/config.Options and a set of seed facts before calling into
// the core (SPEC_FULL.md §6).
type scenario struct {
	EngineVersion string           `yaml:"engine_version"`
	GraceTime     string           `yaml:"grace_time"`
	MaxGameTime   string           `yaml:"max_game_time"`
	Parallelism   int              `yaml:"parallelism"`
	TemporaryBase string           `yaml:"temporary_base"`
	Common        map[string]any   `yaml:"common"`
	SeedFacts     []scenarioFact   `yaml:"seed_facts"`
}

type scenarioFact struct {
	Type   string         `yaml:"type"`
	Groups []string       `yaml:"groups"`
	Fields map[string]any `yaml:"fields"`
}

func loadScenario(path string) (*scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gamemaster: read scenario %s: %w", path, err)
	}
	var sc scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("gamemaster: parse scenario %s: %w", path, err)
	}
	return &sc, nil
}

// options converts the YAML scenario into internal/config.Options,
// applying grace-time/temp-dir overrides from the run command's flags
// when supplied.
func (sc *scenario) options(graceOverride string, tempOverride string) (config.Options, error) {
	graceTime := sc.GraceTime
	if graceOverride != "" {
		graceTime = graceOverride
	}
	gt, err := time.ParseDuration(orDefault(graceTime, "5s"))
	if err != nil {
		return config.Options{}, fmt.Errorf("gamemaster: grace_time: %w", err)
	}

	mt, err := time.ParseDuration(orDefault(sc.MaxGameTime, "0s"))
	if err != nil {
		return config.Options{}, fmt.Errorf("gamemaster: max_game_time: %w", err)
	}

	tempBase := sc.TemporaryBase
	if tempOverride != "" {
		tempBase = tempOverride
	}
	if tempBase == "" {
		tempBase = os.TempDir()
	}

	parallelism := sc.Parallelism
	if parallelism <= 0 {
		parallelism = 4
	}

	opts := config.Options{
		GraceTime:     gt,
		MaxGameTime:   mt,
		Parallelism:   parallelism,
		TemporaryBase: tempBase,
		Common:        sc.Common,
	}
	return opts, opts.Validate()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
