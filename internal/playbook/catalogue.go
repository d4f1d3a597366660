package playbook

import "log/slog"

// NewDefaultRegistry builds and populates a Registry with every concrete
// playbook this repo ships: one constructor assembles the whole catalogue
// rather than leaving call sites to remember every Register call. base
// supplies the shared collaborators (executor, backup sink,
// evidence sink, metrics, logger); verify is the site health probe the
// plugin-conflict and theme-switch playbooks run after each change.
func NewDefaultRegistry(base Base, verify VerificationProbe, logger *slog.Logger) *Registry {
	reg := NewRegistry(logger)

	reg.Register(NewCoreIntegrity(base))
	reg.Register(NewDBConnection(base))
	reg.Register(NewDBTableRepair(base, ""))
	reg.Register(NewDiskCleanup(base))
	reg.Register(NewMemoryLimit(base, ""))
	reg.Register(NewPHPError(base))
	reg.Register(NewPluginConflict(base, verify))
	reg.Register(NewThemeSwitch(base, verify))
	reg.Register(NewWebServer(base, ""))
	reg.Register(NewWPConfigValidation(base))

	return reg
}
