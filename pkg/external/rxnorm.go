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

// RxNormClient queries the NLM RxNav REST API for curated drug-drug interactions.
type RxNormClient struct {
	httpClient
}

// NewRxNormClient creates a new RxNorm API client
func NewRxNormClient(config domain.ProviderConfig) *RxNormClient {
	return &RxNormClient{
		httpClient: newHTTPClient(domain.ProviderRxNorm, config, "https://rxnav.nlm.nih.gov/REST"),
	}
}

// rxcuiResponse is the response of /rxcui.json
type rxcuiResponse struct {
	IDGroup struct {
		RxNormID []string `json:"rxnormId"`
	} `json:"idGroup"`
}

// rxInteractionResponse is the response of /interaction/list.json
type rxInteractionResponse struct {
	FullInteractionTypeGroup []struct {
		SourceName          string `json:"sourceName"`
		FullInteractionType []struct {
			InteractionPair []struct {
				Severity    string `json:"severity"`
				Description string `json:"description"`
			} `json:"interactionPair"`
		} `json:"fullInteractionType"`
	} `json:"fullInteractionTypeGroup"`
}

// FetchSignal resolves both names to RxCUIs and reports the most severe listed interaction.
func (c *RxNormClient) FetchSignal(ctx context.Context, med1, med2 string) (*domain.RawSourceSignal, error) {
	cui1, err := c.lookupRxCUI(ctx, med1)
	if err != nil {
		return nil, err
	}
	cui2, err := c.lookupRxCUI(ctx, med2)
	if err != nil {
		return nil, err
	}
	if cui1 == "" || cui2 == "" {
		return nil, nil
	}

	body, err := c.get(ctx, "/interaction/list.json", url.Values{"rxcuis": {cui1 + " " + cui2}})
	if errors.Is(err, ErrNoRecord) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}

	var parsed rxInteractionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse RxNorm interactions: %w", err)
	}
	return rxNormSignal(parsed), nil
}

func (c *RxNormClient) lookupRxCUI(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	body, err := c.get(ctx, "/rxcui.json", url.Values{"name": {name}, "search": {"2"}})
	if errors.Is(err, ErrNoRecord) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up RxCUI for %s: %w", name, err)
	}

	var parsed rxcuiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse RxCUI response: %w", err)
	}
	if len(parsed.IDGroup.RxNormID) == 0 {
		return "", nil
	}
	return parsed.IDGroup.RxNormID[0], nil
}

func rxNormSignal(parsed rxInteractionResponse) *domain.RawSourceSignal {
	worst := domain.SeverityUnknown
	description := ""
	found := false
	for _, group := range parsed.FullInteractionTypeGroup {
		for _, kind := range group.FullInteractionType {
			for _, pair := range kind.InteractionPair {
				sev, err := domain.ParseSeverity(pair.Severity)
				if err != nil || sev == domain.SeverityUnknown {
					// RxNav reports "N/A" for DrugBank pairs; a listed pair is at least moderate.
					sev = domain.SeverityModerate
				}
				if !found || sev.MoreSevereThan(worst) {
					description = pair.Description
				}
				found = true
				worst = domain.MostSevere(worst, sev)
			}
		}
	}

	if !found {
		return &domain.RawSourceSignal{
			Provider:    domain.ProviderRxNorm,
			Severity:    domain.SeverityUnknown,
			Description: "No interaction found in RxNorm",
		}
	}

	return &domain.RawSourceSignal{
		Provider:    domain.ProviderRxNorm,
		Severity:    worst,
		Description: describeEvidence(description, 400),
	}
}
