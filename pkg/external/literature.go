package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/medconsensus-server/internal/domain"
)

// LiteratureClient asks a literature analysis service to summarise published
// evidence for a medication pair.
type LiteratureClient struct {
	httpClient
}

// NewLiteratureClient creates a new literature analysis client
func NewLiteratureClient(config domain.ProviderConfig) *LiteratureClient {
	c := &LiteratureClient{
		httpClient: newHTTPClient(domain.ProviderLiterature, config, ""),
	}
	c.bearer = true
	return c
}

// LiteratureAnalysis is the canonical payload of the literature service.
type LiteratureAnalysis struct {
	Severity   string   `json:"severity"`
	Summary    string   `json:"summary"`
	Confidence *int     `json:"confidence,omitempty"`
	Citations  []string `json:"citations,omitempty"`
}

type literatureRequest struct {
	Medications []string `json:"medications"`
}

var (
	fencedJSON    = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareJSON      = regexp.MustCompile(`(?s)\{.*"severity".*\}`)
	severityWord  = regexp.MustCompile(`(?i)severity\W{0,5}(severe|major|high|contraindicated|moderate|medium|minor|mild|low|safe|none)\b`)
	pmidReference = regexp.MustCompile(`PMID:?\s*\d+`)
)

// FetchSignal requests an analysis and recovers whatever fields the response shape allows.
func (c *LiteratureClient) FetchSignal(ctx context.Context, med1, med2 string) (*domain.RawSourceSignal, error) {
	body, err := c.postJSON(ctx, "/analyze", literatureRequest{Medications: []string{med1, med2}})
	if errors.Is(err, ErrNoRecord) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to request literature analysis: %w", err)
	}

	analysis, err := ParseLiteratureResponse(body)
	if err != nil {
		return nil, err
	}

	severity, _ := domain.ParseSeverity(analysis.Severity)
	return &domain.RawSourceSignal{
		Provider:    domain.ProviderLiterature,
		Severity:    severity,
		Description: describeEvidence(analysis.Summary, 600),
		Confidence:  analysis.Confidence,
		Citations:   analysis.Citations,
	}, nil
}

// ParseLiteratureResponse decodes the canonical shape first, then falls back to
// chat-style envelopes, JSON embedded in text and finally a severity keyword scan.
func ParseLiteratureResponse(body []byte) (*LiteratureAnalysis, error) {
	var direct LiteratureAnalysis
	if err := json.Unmarshal(body, &direct); err == nil && direct.Severity != "" {
		return &direct, nil
	}

	text := extractText(body)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("literature response has no recognizable content")
	}

	for _, re := range []*regexp.Regexp{fencedJSON, bareJSON} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := m[len(m)-1]
		var embedded LiteratureAnalysis
		if err := json.Unmarshal([]byte(candidate), &embedded); err == nil && embedded.Severity != "" {
			if embedded.Summary == "" {
				embedded.Summary = strings.TrimSpace(re.ReplaceAllString(text, ""))
			}
			return &embedded, nil
		}
	}

	analysis := &LiteratureAnalysis{Summary: strings.TrimSpace(text)}
	if m := severityWord.FindStringSubmatch(text); m != nil {
		analysis.Severity = strings.ToLower(m[1])
	}
	analysis.Citations = pmidReference.FindAllString(text, -1)
	return analysis, nil
}

// extractText pulls free text out of the envelopes literature services commonly use.
func extractText(body []byte) string {
	var envelope struct {
		Summary  string `json:"summary"`
		Text     string `json:"text"`
		Content  string `json:"content"`
		Analysis string `json:"analysis"`
		Choices  []struct {
			Text    string `json:"text"`
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		var s string
		if json.Unmarshal(body, &s) == nil {
			return s
		}
		return string(body)
	}

	for _, choice := range envelope.Choices {
		if choice.Message.Content != "" {
			return choice.Message.Content
		}
		if choice.Text != "" {
			return choice.Text
		}
	}
	for _, candidate := range []string{envelope.Content, envelope.Text, envelope.Analysis, envelope.Summary} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}
