package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wp-autohealer/engine/internal/domain"
	"github.com/wp-autohealer/engine/internal/playbook"
)

func newDryRunCommand() *cobra.Command {
	var (
		sitePath    string
		wpPath      string
		domainFl    string
		symptom     string
		overlayPath string
	)

	cmd := &cobra.Command{
		Use:   "dry-run",
		Short: "Show which playbooks would be attempted for a symptom, without touching a server",
		Long:  "Builds a synthetic evidence item from the given free-text symptom and runs it through the playbook catalogue's applicability scan, printing every playbook that would be attempted, in the tier/priority order the engine would try them. No SSH session is opened.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sitePath == "" || symptom == "" {
				return fmt.Errorf("--site-path and --symptom are required")
			}
			if wpPath == "" {
				wpPath = sitePath
			}

			fc := domain.FixContext{
				IncidentID:    "dry-run-" + uuid.NewString(),
				SiteID:        "dry-run-site",
				ServerID:      "dry-run-server",
				SitePath:      sitePath,
				WPPath:        wpPath,
				Domain:        domainFl,
				CorrelationID: uuid.NewString(),
				TraceID:       uuid.NewString(),
			}
			evidence := []domain.EvidenceItem{
				domain.NewEvidenceItem(domain.EvidenceLog, "operator-supplied symptom", symptom, nil, time.Now()),
			}

			overlay, err := playbook.LoadOverlayFile(overlayPath)
			if err != nil {
				return fmt.Errorf("loading playbook overlay: %w", err)
			}

			registry := playbook.NewDefaultRegistry(playbook.Base{}, noopProbe{}, nil)
			overlay.Apply(registry)
			applicable := registry.Applicable(context.Background(), fc, evidence, nil)

			if len(applicable) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no playbook in the catalogue applies to this symptom; the engine would escalate directly from OBSERVABILITY")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d playbook(s) would be attempted, in this order:\n", len(applicable))
			for i, p := range applicable {
				hypothesis := p.GetHypothesis(context.Background(), fc, evidence)
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. [%s/%s] %-24s %s\n    hypothesis: %s\n", i+1, p.Tier(), p.Priority(), p.Name(), p.Description(), hypothesis)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sitePath, "site-path", "", "path to the WordPress site on disk (required)")
	cmd.Flags().StringVar(&wpPath, "wp-path", "", "path passed to wp-cli as --path (defaults to --site-path)")
	cmd.Flags().StringVar(&domainFl, "domain", "", "the site's public domain")
	cmd.Flags().StringVar(&symptom, "symptom", "", "free-text description of the observed symptom (required)")
	cmd.Flags().StringVar(&overlayPath, "playbook-overlay", "", "path to a YAML file disabling playbooks or overriding tier priority for this site (optional)")

	return cmd
}

// noopProbe satisfies playbook.VerificationProbe for playbooks whose
// CanApply never calls Probe during a dry run; Apply is never invoked.
type noopProbe struct{}

func (noopProbe) Probe(context.Context, string) (int, error) { return 0, nil }
