package playbook

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overlay is a site-specific tuning document layered on top of the default
// catalogue, loaded the same way internal/config reads its own YAML. It
// never adds playbooks — only narrows or retunes what NewDefaultRegistry
// already registered.
type Overlay struct {
	// Disabled lists playbook names (Playbook.Name()) to drop from the
	// catalogue entirely; CanApply is never consulted for them again.
	Disabled []string `yaml:"disabled_playbooks"`

	// TierPriority overrides a playbook's Priority ordering within its
	// tier without touching the playbook's own Priority() method: a
	// lower number sorts earlier. Unlisted playbooks keep their
	// registered order relative to each other.
	TierPriority map[string]int `yaml:"tier_priority_overrides"`
}

// LoadOverlayFile reads an Overlay from a YAML file. A missing file is not
// an error — it means no site-specific tuning exists, and the default
// catalogue applies unmodified.
func LoadOverlayFile(path string) (*Overlay, error) {
	if path == "" {
		return &Overlay{}, nil
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Overlay{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("playbook: reading overlay file: %w", err)
	}

	var o Overlay
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("playbook: parsing overlay file: %w", err)
	}
	return &o, nil
}

// Apply removes every disabled playbook from r and reorders each affected
// tier's priority queue according to TierPriority overrides. It mutates r
// in place and is meant to run once, right after NewDefaultRegistry.
func (o *Overlay) Apply(r *Registry) {
	if o == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range o.Disabled {
		p, ok := r.byName[name]
		if !ok {
			continue
		}
		delete(r.byName, name)
		r.byTier[p.Tier()] = removePlaybook(r.byTier[p.Tier()], name)
	}

	if len(o.TierPriority) == 0 {
		return
	}
	for tier, playbooks := range r.byTier {
		r.byTier[tier] = sortByOverride(playbooks, o.TierPriority)
	}
}

func removePlaybook(list []Playbook, name string) []Playbook {
	out := list[:0]
	for _, p := range list {
		if p.Name() != name {
			out = append(out, p)
		}
	}
	return out
}

func sortByOverride(list []Playbook, overrides map[string]int) []Playbook {
	rank := func(p Playbook) int {
		if v, ok := overrides[p.Name()]; ok {
			return v
		}
		return int(p.Priority())
	}
	out := make([]Playbook, len(list))
	copy(out, list)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && rank(out[j]) < rank(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
