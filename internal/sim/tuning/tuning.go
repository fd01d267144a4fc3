package tuning

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"toolsync.ai/internal/sim/pickup"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int   `yaml:"tick_rate_hz"`
	Seed       int64 `yaml:"seed"`

	// Chance (per mille) that a single ownership request is silently lost.
	OwnershipFailPermille int `yaml:"ownership_fail_permille"`

	Tools []Tool `yaml:"tools"`
}

// Tool mirrors pickup.Config with durations in seconds.
type Tool struct {
	ID              string  `yaml:"id"`
	EnsureOwnership *bool   `yaml:"ensure_ownership"`
	DroppedRespawn  *bool   `yaml:"dropped_respawn"`
	DroppedTimeoutS float64 `yaml:"dropped_timeout_s"`
	FullyAutoFire   bool    `yaml:"fully_auto_fire"`
	CooldownS       float64 `yaml:"cooldown_s"`
	QueueWindowS    float64 `yaml:"queue_window_s"`
}

func Defaults() Tuning {
	d := pickup.DefaultConfig()
	on := true
	return Tuning{
		ProtocolVersion: "1.0",
		TickRateHz:      20,
		Seed:            1337,
		Tools: []Tool{{
			ID:              "blaster",
			EnsureOwnership: &on,
			DroppedRespawn:  &on,
			DroppedTimeoutS: d.DroppedTimeout.Seconds(),
			FullyAutoFire:   d.FullyAutoFire,
			CooldownS:       d.Cooldown.Seconds(),
			QueueWindowS:    d.QueueWindow.Seconds(),
		}},
	}
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) applyDefaults() {
	if t.TickRateHz <= 0 {
		t.TickRateHz = 20
	}
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = "1.0"
	}
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz out of range: %d", t.TickRateHz)
	}
	if t.OwnershipFailPermille < 0 || t.OwnershipFailPermille > 1000 {
		return fmt.Errorf("ownership_fail_permille out of range: %d", t.OwnershipFailPermille)
	}
	if len(t.Tools) == 0 {
		return fmt.Errorf("no tools configured")
	}
	seen := map[string]bool{}
	for i, tool := range t.Tools {
		id := strings.TrimSpace(tool.ID)
		if id == "" {
			return fmt.Errorf("tools[%d]: empty id", i)
		}
		if seen[id] {
			return fmt.Errorf("tools[%d]: duplicate id %q", i, id)
		}
		seen[id] = true
		if err := tool.Config().Validate(); err != nil {
			return fmt.Errorf("tools[%d] %s: %w", i, id, err)
		}
	}
	return nil
}

// Config converts the YAML entry. Missing booleans take the pickup defaults.
func (t Tool) Config() pickup.Config {
	def := pickup.DefaultConfig()
	cfg := pickup.Config{
		EnsureOwnership: def.EnsureOwnership,
		DroppedRespawn:  def.DroppedRespawn,
		DroppedTimeout:  seconds(t.DroppedTimeoutS),
		FullyAutoFire:   t.FullyAutoFire,
		Cooldown:        seconds(t.CooldownS),
		QueueWindow:     seconds(t.QueueWindowS),
	}
	if t.EnsureOwnership != nil {
		cfg.EnsureOwnership = *t.EnsureOwnership
	}
	if t.DroppedRespawn != nil {
		cfg.DroppedRespawn = *t.DroppedRespawn
	}
	return cfg
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

func (t Tuning) TickInterval() time.Duration {
	if t.TickRateHz <= 0 {
		return time.Second / 20
	}
	return time.Second / time.Duration(t.TickRateHz)
}
