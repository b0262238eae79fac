package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/medconsensus-server/internal/domain"
)

// FDALabelClient reads the drug_interactions section of openFDA drug labels.
type FDALabelClient struct {
	httpClient
}

// NewFDALabelClient creates a new openFDA drug label client
func NewFDALabelClient(config domain.ProviderConfig) *FDALabelClient {
	return &FDALabelClient{
		httpClient: newHTTPClient(domain.ProviderFDALabel, config, "https://api.fda.gov"),
	}
}

type fdaLabelResponse struct {
	Results []struct {
		DrugInteractions  []string `json:"drug_interactions"`
		Contraindications []string `json:"contraindications"`
		BoxedWarning      []string `json:"boxed_warning"`
	} `json:"results"`
}

// labelKeywords maps label wording onto severity, most severe first.
var labelKeywords = []struct {
	severity domain.Severity
	terms    []string
}{
	{domain.SeveritySevere, []string{"contraindicated", "do not use", "fatal", "life-threatening", "avoid concomitant", "avoid use", "serious"}},
	{domain.SeverityModerate, []string{"monitor", "caution", "dose adjustment", "reduce the dose", "increase the risk", "increased risk"}},
	{domain.SeverityMinor, []string{"may increase", "may decrease", "minor", "slight"}},
}

// FetchSignal looks up the label of each medication and reports the first one
// whose interaction sections mention the other medication.
func (c *FDALabelClient) FetchSignal(ctx context.Context, med1, med2 string) (*domain.RawSourceSignal, error) {
	for _, pair := range [][2]string{{med1, med2}, {med2, med1}} {
		sections, err := c.labelSections(ctx, pair[0])
		if err != nil {
			return nil, err
		}
		if signal := labelSignal(sections, pair[1]); signal != nil {
			return signal, nil
		}
	}
	return nil, nil
}

func (c *FDALabelClient) labelSections(ctx context.Context, med string) ([]string, error) {
	med = strings.TrimSpace(med)
	if med == "" {
		return nil, nil
	}
	params := url.Values{
		"search": {fmt.Sprintf(`openfda.generic_name:"%s" openfda.brand_name:"%s"`, med, med)},
		"limit":  {"1"},
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	body, err := c.get(ctx, "/drug/label.json", params)
	if errors.Is(err, ErrNoRecord) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch label for %s: %w", med, err)
	}

	var parsed fdaLabelResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse openFDA label: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, nil
	}

	r := parsed.Results[0]
	sections := make([]string, 0, len(r.BoxedWarning)+len(r.Contraindications)+len(r.DrugInteractions))
	sections = append(sections, r.BoxedWarning...)
	sections = append(sections, r.Contraindications...)
	sections = append(sections, r.DrugInteractions...)
	return sections, nil
}

// labelSignal extracts the sentence mentioning other and grades its wording.
func labelSignal(sections []string, other string) *domain.RawSourceSignal {
	needle := strings.ToLower(strings.TrimSpace(other))
	if needle == "" {
		return nil
	}
	for _, section := range sections {
		for _, sentence := range splitSentences(section) {
			lower := strings.ToLower(sentence)
			if !strings.Contains(lower, needle) {
				continue
			}
			return &domain.RawSourceSignal{
				Provider:    domain.ProviderFDALabel,
				Severity:    gradeLabelText(lower),
				Description: describeEvidence(sentence, 400),
			}
		}
	}
	return nil
}

func gradeLabelText(lower string) domain.Severity {
	for _, k := range labelKeywords {
		for _, term := range k.terms {
			if strings.Contains(lower, term) {
				return k.severity
			}
		}
	}
	return domain.SeverityMinor
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == ';' || r == '\n'
	})
}
