package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/medconsensus-server/internal/domain"
)

// NoDataDescription is the description of a result without any usable evidence.
const NoDataDescription = "no data"

var severityTemplates = map[domain.Severity]string{
	domain.SeveritySevere:   "Severe interaction risk reported by %s (confidence %d%%). Avoid this combination unless a clinician has approved it.",
	domain.SeverityModerate: "Moderate interaction risk reported by %s (confidence %d%%). Monitoring or dose adjustment may be needed.",
	domain.SeverityMinor:    "Minor interaction risk reported by %s (confidence %d%%). Usually manageable, stay alert for side effects.",
	domain.SeveritySafe:     "No clinically significant interaction reported by %s (confidence %d%%).",
	domain.SeverityUnknown:  "Interaction risk could not be determined from %s (confidence %d%%).",
}

// DescribeConsensus renders the deterministic explanation of a consensus.
// Provider names are deduplicated and sorted; placeholder sources are omitted.
func DescribeConsensus(severity domain.Severity, providers []string, confidence int) string {
	names := ContributorNames(providers)
	if len(names) == 0 {
		return NoDataDescription
	}
	tmpl, ok := severityTemplates[severity]
	if !ok {
		tmpl = severityTemplates[domain.SeverityUnknown]
	}
	return fmt.Sprintf(tmpl, joinNames(names), confidence)
}

// ContributorNames returns the sorted, deduplicated, non-placeholder provider names.
func ContributorNames(providers []string) []string {
	seen := make(map[string]struct{}, len(providers))
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		p = strings.TrimSpace(p)
		if p == "" || strings.EqualFold(p, domain.ProviderNoData) {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// joinNames renders "A", "A and B", "A, B and C".
func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}
