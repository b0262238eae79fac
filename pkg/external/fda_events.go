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

const topReactions = 5

// FDAEventsClient summarises openFDA adverse event reports (FAERS) that list both medications.
type FDAEventsClient struct {
	httpClient
}

// NewFDAEventsClient creates a new openFDA adverse events client
func NewFDAEventsClient(config domain.ProviderConfig) *FDAEventsClient {
	return &FDAEventsClient{
		httpClient: newHTTPClient(domain.ProviderFDAEvents, config, "https://api.fda.gov"),
	}
}

type fdaEventTotalResponse struct {
	Meta struct {
		Results struct {
			Total int `json:"total"`
		} `json:"results"`
	} `json:"meta"`
}

type fdaEventCountResponse struct {
	Results []struct {
		Term  string `json:"term"`
		Count int    `json:"count"`
	} `json:"results"`
}

// FetchSignal reports event totals, serious counts and the most common reactions.
func (c *FDAEventsClient) FetchSignal(ctx context.Context, med1, med2 string) (*domain.RawSourceSignal, error) {
	stats, err := c.FetchStats(ctx, med1, med2)
	if err != nil {
		return nil, err
	}
	if stats == nil || stats.TotalEvents == 0 {
		return nil, nil
	}

	severity := domain.ClassifyEvents(*stats)
	desc := fmt.Sprintf("%d adverse event reports list both medications, %d of them serious (%.1f%%).",
		stats.TotalEvents, stats.SeriousEvents, stats.SeriousPercentage()*100)
	if len(stats.CommonReactions) > 0 {
		desc += " Most reported reactions: " + strings.ToLower(strings.Join(stats.CommonReactions, ", ")) + "."
	}

	return &domain.RawSourceSignal{
		Provider:    domain.ProviderFDAEvents,
		Severity:    severity,
		Description: desc,
		EventData:   stats,
	}, nil
}

// FetchStats returns the raw adverse event statistics for the pair, nil when none exist.
func (c *FDAEventsClient) FetchStats(ctx context.Context, med1, med2 string) (*domain.EventStats, error) {
	query := fmt.Sprintf(`patient.drug.medicinalproduct:"%s" AND patient.drug.medicinalproduct:"%s"`,
		strings.ToUpper(strings.TrimSpace(med1)), strings.ToUpper(strings.TrimSpace(med2)))

	total, err := c.total(ctx, query)
	if err != nil || total == 0 {
		return nil, err
	}
	serious, err := c.total(ctx, query+" AND serious:1")
	if err != nil {
		return nil, err
	}
	reactions, err := c.reactions(ctx, query)
	if err != nil {
		return nil, err
	}

	stats := domain.EventStats{
		TotalEvents:     total,
		SeriousEvents:   serious,
		CommonReactions: reactions,
	}.Normalized()
	return &stats, nil
}

func (c *FDAEventsClient) total(ctx context.Context, query string) (int, error) {
	body, err := c.get(ctx, "/drug/event.json", c.params(query, url.Values{"limit": {"1"}}))
	if errors.Is(err, ErrNoRecord) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count adverse events: %w", err)
	}

	var parsed fdaEventTotalResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse adverse event totals: %w", err)
	}
	return parsed.Meta.Results.Total, nil
}

func (c *FDAEventsClient) reactions(ctx context.Context, query string) ([]string, error) {
	body, err := c.get(ctx, "/drug/event.json", c.params(query, url.Values{
		"count": {"patient.reaction.reactionmeddrapt.exact"},
		"limit": {fmt.Sprint(topReactions)},
	}))
	if errors.Is(err, ErrNoRecord) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to count reactions: %w", err)
	}

	var parsed fdaEventCountResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse reaction counts: %w", err)
	}
	reactions := make([]string, 0, topReactions)
	for _, r := range parsed.Results {
		if len(reactions) == topReactions {
			break
		}
		reactions = append(reactions, r.Term)
	}
	return reactions, nil
}

func (c *FDAEventsClient) params(query string, extra url.Values) url.Values {
	params := url.Values{"search": {query}}
	for k, v := range extra {
		params[k] = v
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	return params
}
