package tuning

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ServerEnv holds process settings that may come from the environment.
// Command-line flags that were set explicitly take precedence.
type ServerEnv struct {
	Addr         string `env:"TOOLSYNC_ADDR"          envDefault:":8080"`
	DataDir      string `env:"TOOLSYNC_DATA_DIR"      envDefault:"./data"`
	TuningPath   string `env:"TOOLSYNC_TUNING"        envDefault:"./configs/tuning.yaml"`
	DisableDB    bool   `env:"TOOLSYNC_DISABLE_DB"`
	IndexBackend string `env:"TOOLSYNC_INDEX_BACKEND" envDefault:"sqlite"`
	WorldID      string `env:"TOOLSYNC_WORLD_ID"      envDefault:"world_1"`
	EnableAdmin  bool   `env:"TOOLSYNC_ENABLE_ADMIN"  envDefault:"true"`
	RedisURL     string `env:"TOOLSYNC_REDIS_URL"`
}

func ParseServerEnv() (ServerEnv, error) {
	var e ServerEnv
	if err := env.Parse(&e); err != nil {
		return e, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}
