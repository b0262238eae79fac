package service

import (
	"strings"
	"time"

	"github.com/medconsensus-server/internal/domain"
)

// HighRiskConfidence is the fixed confidence of a high-risk table verdict.
const HighRiskConfidence = 95

// HighRiskWarning prefixes every high-risk table description.
const HighRiskWarning = "HIGH-RISK COMBINATION"

// HighRiskRule describes one dangerous class-level combination.
type HighRiskRule struct {
	ClassTerms         []string
	InteractsWithTerms []string
	Description        string
}

// DefaultHighRiskRules is the curated table of combinations that must never be diluted.
var DefaultHighRiskRules = []HighRiskRule{
	{
		ClassTerms:         []string{"xanax", "alprazolam", "valium", "diazepam", "ativan", "lorazepam", "klonopin", "clonazepam", "benzodiazepine"},
		InteractsWithTerms: []string{"alcohol", "wine", "beer", "vodka", "whiskey", "liquor", "ethanol"},
		Description:        "Benzodiazepines combined with alcohol can cause profound sedation, respiratory depression and death.",
	},
	{
		ClassTerms:         []string{"oxycodone", "hydrocodone", "morphine", "fentanyl", "codeine", "tramadol", "methadone", "opioid"},
		InteractsWithTerms: []string{"xanax", "alprazolam", "valium", "diazepam", "ativan", "lorazepam", "klonopin", "clonazepam", "benzodiazepine"},
		Description:        "Opioids combined with benzodiazepines carry a boxed warning for respiratory depression, coma and death.",
	},
	{
		ClassTerms:         []string{"oxycodone", "hydrocodone", "morphine", "fentanyl", "codeine", "tramadol", "methadone", "opioid"},
		InteractsWithTerms: []string{"alcohol", "wine", "beer", "vodka", "whiskey", "liquor", "ethanol"},
		Description:        "Opioids combined with alcohol can cause fatal respiratory depression.",
	},
	{
		ClassTerms:         []string{"phenelzine", "nardil", "tranylcypromine", "parnate", "isocarboxazid", "selegiline", "maoi"},
		InteractsWithTerms: []string{"fluoxetine", "prozac", "sertraline", "zoloft", "paroxetine", "citalopram", "escitalopram", "venlafaxine", "duloxetine", "tramadol", "st. john", "st john"},
		Description:        "MAO inhibitors combined with serotonergic drugs can cause life-threatening serotonin syndrome.",
	},
	{
		ClassTerms:         []string{"warfarin", "coumadin", "jantoven"},
		InteractsWithTerms: []string{"aspirin", "ibuprofen", "naproxen", "advil", "motrin", "aleve"},
		Description:        "Warfarin combined with NSAIDs or aspirin markedly increases the risk of serious bleeding.",
	},
	{
		ClassTerms:         []string{"sildenafil", "viagra", "tadalafil", "cialis", "vardenafil"},
		InteractsWithTerms: []string{"nitroglycerin", "isosorbide", "nitrate"},
		Description:        "PDE5 inhibitors combined with nitrates can cause severe, potentially fatal hypotension.",
	},
}

// HighRiskChecker matches medication pairs against the high-risk table.
type HighRiskChecker struct {
	rules []HighRiskRule
	now   func() time.Time
}

// NewHighRiskChecker creates a checker over rules; nil uses DefaultHighRiskRules.
func NewHighRiskChecker(rules []HighRiskRule) *HighRiskChecker {
	if rules == nil {
		rules = DefaultHighRiskRules
	}
	return &HighRiskChecker{rules: rules, now: time.Now}
}

// Check returns the fixed severe verdict for a matching pair, or nil.
func (h *HighRiskChecker) Check(med1, med2 string) *domain.InteractionResult {
	a := strings.ToLower(med1)
	b := strings.ToLower(med2)
	for _, rule := range h.rules {
		if !rule.matches(a, b) && !rule.matches(b, a) {
			continue
		}
		desc := HighRiskWarning + ": " + rule.Description
		return &domain.InteractionResult{
			Medications: []string{med1, med2},
			Severity:    domain.SeveritySevere,
			Description: desc,
			Sources: []domain.RawSourceSignal{{
				Provider:    domain.ProviderHighRiskTable,
				Severity:    domain.SeveritySevere,
				Description: rule.Description,
			}},
			ConfidenceScore: HighRiskConfidence,
			AIValidated:     false,
			CheckedAt:       h.now().UTC(),
		}
	}
	return nil
}

func (r HighRiskRule) matches(class, other string) bool {
	return containsAny(class, r.ClassTerms) && containsAny(other, r.InteractsWithTerms)
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
