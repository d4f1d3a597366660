package incident

import (
	"time"

	"github.com/wp-autohealer/engine/internal/domain"
)

// Config holds the engine's closed set of tunables, documented with env
// tags even though nothing parses those tags. internal/config loads
// MAX_FIX_ATTEMPTS via Viper; MAX_PLAYBOOK_TIER and VERIFY_TIMEOUT are not
// read from the environment, and MaxTier and VerifyTimeout are set by the
// caller that builds the Engine.
type Config struct {
	MaxFixAttempts int           `env:"MAX_FIX_ATTEMPTS" default:"15"`
	MaxTier        string        `env:"MAX_PLAYBOOK_TIER" default:"T6"`
	VerifyTimeout  time.Duration `env:"VERIFY_TIMEOUT" default:"30s"`
}

func DefaultConfig() Config {
	return Config{
		MaxFixAttempts: domain.MaxFixAttempts,
		MaxTier:        "T6",
		VerifyTimeout:  30 * time.Second,
	}
}
