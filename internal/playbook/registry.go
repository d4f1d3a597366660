package playbook

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/wp-autohealer/engine/internal/domain"
)

// Registry indexes playbooks by name and by tier: a plain map-based
// catalogue with Register/lookup and a warning (not an error) on a bad
// registration.
type Registry struct {
	mu     sync.Mutex
	byName map[string]Playbook
	byTier map[Tier][]Playbook
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byName: make(map[string]Playbook),
		byTier: make(map[Tier][]Playbook),
		logger: logger,
	}
}

// Register indexes p by name and by tier. A duplicate name is rejected
// with a warning — the existing registration is kept.
func (r *Registry) Register(p Playbook) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.byName[name]; exists {
		r.logger.Warn("playbook: duplicate registration ignored", "name", name)
		return
	}

	r.byName[name] = p
	r.byTier[p.Tier()] = append(r.byTier[p.Tier()], p)
	sort.SliceStable(r.byTier[p.Tier()], func(i, j int) bool {
		return r.byTier[p.Tier()][i].Priority() < r.byTier[p.Tier()][j].Priority()
	})
}

// ForTier returns tier's playbooks in ascending priority order
// (CRITICAL < HIGH < MEDIUM < LOW).
func (r *Registry) ForTier(t Tier) []Playbook {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Playbook, len(r.byTier[t]))
	copy(out, r.byTier[t])
	return out
}

// ByName looks up a playbook by its registered name.
func (r *Registry) ByName(name string) (Playbook, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byName[name]
	return p, ok
}

// Applicable returns every registered playbook whose CanApply agrees,
// optionally restricted to one tier, sorted by (tier, priority). A
// playbook whose CanApply panics is logged and skipped rather than
// propagating.
func (r *Registry) Applicable(ctx context.Context, fc domain.FixContext, evidence []domain.EvidenceItem, tier *Tier) []Playbook {
	r.mu.Lock()
	var candidates []Playbook
	if tier != nil {
		candidates = append(candidates, r.byTier[*tier]...)
	} else {
		for _, t := range tierOrder {
			candidates = append(candidates, r.byTier[t]...)
		}
	}
	r.mu.Unlock()

	out := make([]Playbook, 0, len(candidates))
	for _, p := range candidates {
		if r.safeCanApply(ctx, p, fc, evidence) {
			out = append(out, p)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := tierIndex(out[i].Tier()), tierIndex(out[j].Tier())
		if ti != tj {
			return ti < tj
		}
		return out[i].Priority() < out[j].Priority()
	})
	return out
}

func (r *Registry) safeCanApply(ctx context.Context, p Playbook, fc domain.FixContext, evidence []domain.EvidenceItem) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("playbook: canApply panicked, skipping", "name", p.Name(), "panic", rec)
			ok = false
		}
	}()
	return p.CanApply(ctx, fc, evidence)
}
