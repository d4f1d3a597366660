package playbook

import (
	"strings"

	"github.com/wp-autohealer/engine/internal/domain"
)

// evidenceContains reports whether any evidence item's content or
// description contains one of the needles (case-insensitive). Every
// representative playbook's CanApply narrows on symptoms this way rather
// than always returning true, keeping tier execution conservative.
func evidenceContains(evidence []domain.EvidenceItem, needles ...string) bool {
	for _, item := range evidence {
		haystack := strings.ToLower(item.Content + " " + item.Description)
		for _, n := range needles {
			if strings.Contains(haystack, strings.ToLower(n)) {
				return true
			}
		}
	}
	return false
}
