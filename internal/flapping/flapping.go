// Package flapping implements the per-site sliding-window incident
// admission control: a site raising incidents faster than the
// configured rate is refused new admissions and, past a second threshold,
// escalated to a human.
package flapping

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wp-autohealer/engine/internal/metrics"
)

// Config holds the controller's three tunables.
type Config struct {
	Window           time.Duration
	MaxIncidents     int
	EscalationExcess int // added to MaxIncidents to get the escalation threshold
}

const (
	DefaultWindow           = 10 * time.Minute
	DefaultMaxIncidents     = 5
	DefaultEscalationExcess = 2
)

// DefaultConfig returns the documented defaults. The escalation threshold
// is named "window+2" elsewhere; read in context (it must exceed
// max-incidents to mean anything) this is max-incidents+2, recorded as an
// open-question decision.
func DefaultConfig() Config {
	return Config{Window: DefaultWindow, MaxIncidents: DefaultMaxIncidents, EscalationExcess: DefaultEscalationExcess}
}

func (c Config) escalationThreshold() int {
	return c.MaxIncidents + c.EscalationExcess
}

// Decision is the result of canCreateIncident.
type Decision struct {
	Allowed bool
	Reason  string
}

// recordScript atomically trims a site's window and appends the new
// timestamp using a Lua-scripted distributed lock idiom so trim+add+count
// cannot interleave with a concurrent caller.
var recordScript = redis.NewScript(`
	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	redis.call("ZADD", KEYS[1], ARGV[2], ARGV[3])
	redis.call("EXPIRE", KEYS[1], ARGV[4])
	return redis.call("ZCARD", KEYS[1])
`)

// trimAndCountScript is used by canCreateIncident, which must not record a
// new incident — only observe the current window.
var trimAndCountScript = redis.NewScript(`
	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	return redis.call("ZCARD", KEYS[1])
`)

const keyPrefix = "flapping:site:"

// Controller is the Redis-backed flapping controller. A nil *redis.Client
// is rejected by NewController; callers needing an in-process store for
// tests use github.com/alicebob/miniredis/v2.
type Controller struct {
	client  *redis.Client
	cfg     Config
	metrics *metrics.FlappingMetrics
}

func NewController(client *redis.Client, cfg Config, m *metrics.FlappingMetrics) (*Controller, error) {
	if client == nil {
		return nil, fmt.Errorf("flapping: redis client is required")
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxIncidents <= 0 {
		cfg.MaxIncidents = DefaultMaxIncidents
	}
	if cfg.EscalationExcess <= 0 {
		cfg.EscalationExcess = DefaultEscalationExcess
	}
	return &Controller{client: client, cfg: cfg, metrics: m}, nil
}

// CanCreateIncident reports whether site is currently admitting new
// incidents, without recording one.
func (c *Controller) CanCreateIncident(ctx context.Context, site string) (Decision, error) {
	count, err := c.windowCount(ctx, site)
	if err != nil {
		return Decision{}, err
	}

	if count >= int64(c.cfg.MaxIncidents) {
		if c.metrics != nil {
			c.metrics.RecordRejection(site)
		}
		return Decision{Allowed: false, Reason: "site is flapping"}, nil
	}
	return Decision{Allowed: true}, nil
}

func (c *Controller) windowCount(ctx context.Context, site string) (int64, error) {
	cutoff := time.Now().Add(-c.cfg.Window).UnixMilli()
	result, err := trimAndCountScript.Run(ctx, c.client, []string{c.key(site)}, cutoff).Result()
	if err != nil {
		return 0, fmt.Errorf("flapping: window count for %s: %w", site, err)
	}
	return toInt64(result), nil
}

// RecordIncident pushes a new timestamp for site, evicting entries that
// fell out of the window first. Returns whether the site is now flapping
// and whether it has crossed the escalation threshold.
func (c *Controller) RecordIncident(ctx context.Context, site, incidentID string) (flapping bool, escalate bool, err error) {
	now := time.Now()
	cutoff := now.Add(-c.cfg.Window).UnixMilli()

	result, runErr := recordScript.Run(ctx, c.client, []string{c.key(site)},
		cutoff, now.UnixMilli(), incidentID, int(c.cfg.Window/time.Second)+60,
	).Result()
	if runErr != nil {
		return false, false, fmt.Errorf("flapping: record incident for %s: %w", site, runErr)
	}

	count := toInt64(result)
	flapping = count >= int64(c.cfg.MaxIncidents)
	escalate = count >= int64(c.cfg.escalationThreshold())

	if flapping && c.metrics != nil {
		c.metrics.RecordRejection(site)
	}
	return flapping, escalate, nil
}

// ResetSite clears a site's window entirely (admin tooling and tests).
func (c *Controller) ResetSite(ctx context.Context, site string) error {
	if err := c.client.Del(ctx, c.key(site)).Err(); err != nil {
		return fmt.Errorf("flapping: reset %s: %w", site, err)
	}
	return nil
}

func (c *Controller) key(site string) string {
	return keyPrefix + site
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	default:
		return 0
	}
}
