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

// SupplementClient queries a supplement and herbal interaction database exposing a JSON API.
type SupplementClient struct {
	httpClient
}

// NewSupplementClient creates a new supplement interaction client
func NewSupplementClient(config domain.ProviderConfig) *SupplementClient {
	c := &SupplementClient{
		httpClient: newHTTPClient(domain.ProviderSupplementDB, config, ""),
	}
	c.bearer = true
	return c
}

type supplementResponse struct {
	Interactions []struct {
		Severity      string `json:"severity"`
		Description   string `json:"description"`
		EvidenceLevel string `json:"evidence_level"`
		Reliable      *bool  `json:"reliable"`
	} `json:"interactions"`
}

// evidenceConfidence maps graded evidence levels onto a 0-100 confidence.
var evidenceConfidence = map[string]int{
	"A": 90,
	"B": 70,
	"C": 50,
	"D": 30,
}

// FetchSignal reports the most severe interaction listed for the pair.
func (c *SupplementClient) FetchSignal(ctx context.Context, med1, med2 string) (*domain.RawSourceSignal, error) {
	body, err := c.get(ctx, "/interactions", url.Values{"drug1": {med1}, "drug2": {med2}})
	if errors.Is(err, ErrNoRecord) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query supplement interactions: %w", err)
	}

	var parsed supplementResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse supplement interactions: %w", err)
	}
	if len(parsed.Interactions) == 0 {
		return nil, nil
	}

	best := -1
	worst := domain.SeverityUnknown
	for i, in := range parsed.Interactions {
		sev, _ := domain.ParseSeverity(in.Severity)
		if best < 0 || sev.MoreSevereThan(worst) {
			best = i
			worst = sev
		}
	}

	chosen := parsed.Interactions[best]
	signal := &domain.RawSourceSignal{
		Provider:       domain.ProviderSupplementDB,
		Severity:       worst,
		Description:    describeEvidence(chosen.Description, 400),
		IsReliableHint: chosen.Reliable,
	}
	if conf, ok := evidenceConfidence[strings.ToUpper(strings.TrimSpace(chosen.EvidenceLevel))]; ok {
		signal.Confidence = &conf
	}
	return signal, nil
}
