package world

import (
	"fmt"

	"toolsync.ai/internal/sim/pickup"
	"toolsync.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID         string
	TickRateHz int
	Seed       int64

	// Chance (per mille) that an ownership request is silently lost.
	OwnershipFailPermille int

	Tools []ToolConfig
}

type ToolConfig struct {
	ID    string
	Proxy pickup.Config
}

// ConfigFromTuning builds a WorldConfig from a loaded tuning file.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	cfg := WorldConfig{
		ID:                    id,
		TickRateHz:            t.TickRateHz,
		Seed:                  t.Seed,
		OwnershipFailPermille: t.OwnershipFailPermille,
	}
	for _, tool := range t.Tools {
		cfg.Tools = append(cfg.Tools, ToolConfig{ID: tool.ID, Proxy: tool.Config()})
	}
	return cfg
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.OwnershipFailPermille < 0 {
		c.OwnershipFailPermille = 0
	}
	if c.OwnershipFailPermille > 1000 {
		c.OwnershipFailPermille = 1000
	}
}

func (c WorldConfig) validate() error {
	if len(c.Tools) == 0 {
		return fmt.Errorf("world %s: no tools", c.ID)
	}
	seen := map[string]bool{}
	for _, t := range c.Tools {
		if t.ID == "" {
			return fmt.Errorf("world %s: tool with empty id", c.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("world %s: duplicate tool %s", c.ID, t.ID)
		}
		seen[t.ID] = true
		if err := t.Proxy.Validate(); err != nil {
			return fmt.Errorf("tool %s: %w", t.ID, err)
		}
	}
	return nil
}
