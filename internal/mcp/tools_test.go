package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medconsensus-server/internal/config"
	"github.com/medconsensus-server/internal/domain"
	"github.com/medconsensus-server/internal/feedback"
	"github.com/medconsensus-server/internal/service"
)

type stubProvider struct {
	name     string
	severity domain.Severity
}

func (p stubProvider) Name() string           { return p.name }
func (p stubProvider) Timeout() time.Duration { return time.Second }
func (p stubProvider) FetchSignal(_ context.Context, med1, med2 string) (*domain.RawSourceSignal, error) {
	return &domain.RawSourceSignal{
		Provider:    p.name,
		Severity:    p.severity,
		Description: "Combining " + med1 + " with " + med2 + " raises plasma levels.",
	}, nil
}

func newTestLiteServer(t *testing.T) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	cfg := config.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()

	server, err := NewLiteServer(cfg,
		WithLogger(logger),
		WithProviders(
			stubProvider{name: domain.ProviderRxNorm, severity: domain.SeveritySevere},
			stubProvider{name: domain.ProviderFDALabel, severity: domain.SeveritySevere},
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })
	return server
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func decodeResult[T any](t *testing.T, res *mcp.CallToolResult) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &v))
	return v
}

func TestNewServerRequiresEngine(t *testing.T) {
	_, err := NewServer(ServerDeps{}, logrus.New())
	assert.Error(t, err)
}

func TestCheckInteractionTool(t *testing.T) {
	tools := newTestLiteServer(t).Tools()
	ctx := context.Background()

	tests := []struct {
		name        string
		medications []string
		wantErr     bool
		severity    domain.Severity
		key         string
	}{
		{"pair", []string{"Simvastatin", "Clarithromycin"}, false, domain.SeveritySevere, "clarithromycin|simvastatin"},
		{"triple", []string{"Simvastatin", "Clarithromycin", "Amlodipine"}, false, domain.SeveritySevere, "amlodipine|clarithromycin|simvastatin"},
		{"single", []string{"Simvastatin"}, true, "", ""},
		{"four", []string{"a", "b", "c", "d"}, true, "", ""},
		{"duplicate", []string{"Simvastatin", "SIMVASTATIN"}, true, "", ""},
		{"blank", []string{"Simvastatin", "  "}, true, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _, err := tools.CheckInteraction(ctx, nil, MedicationsInput{Medications: tt.medications})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			result := decodeResult[domain.InteractionResult](t, res)
			assert.Equal(t, tt.severity, result.Severity)
			assert.Equal(t, tt.key, result.Key)
		})
	}
}

func TestCheckCombinationsTool(t *testing.T) {
	tools := newTestLiteServer(t).Tools()
	ctx := context.Background()

	res, _, err := tools.CheckCombinations(ctx, nil, MedicationsInput{Medications: []string{"Warfarin", "Aspirin", "Ginkgo"}})
	require.NoError(t, err)

	out := decodeResult[struct {
		Count   int                        `json:"count"`
		Results []domain.CombinationResult `json:"results"`
	}](t, res)
	assert.Equal(t, 7, out.Count)
	assert.Len(t, out.Results, 7)

	stats := decodeResult[service.SessionCacheStats](t, mustResult(t)(tools.CacheStats(ctx, nil, EmptyInput{})))
	assert.Greater(t, stats.Entries, 0)

	res, _, err = tools.ClearCache(ctx, nil, EmptyInput{})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "cleared")

	_, _, err = tools.CheckCombinations(ctx, nil, MedicationsInput{})
	assert.Error(t, err)
}

func TestEvaluateSignalsTool(t *testing.T) {
	tools := newTestLiteServer(t).Tools()

	res, _, err := tools.EvaluateSignals(context.Background(), nil, EvaluateInput{
		Signals: []domain.RawSourceSignal{
			{Provider: domain.ProviderRxNorm, Severity: domain.SeverityModerate, Description: "Additive sedation reported."},
			{Provider: "Herbal DB", Severity: domain.SeverityUnknown, Description: "No interaction found"},
		},
	})
	require.NoError(t, err)

	out := decodeResult[struct {
		Evaluation service.Evaluation `json:"evaluation"`
		Rejected   []struct {
			Index  int               `json:"index"`
			Reason service.Rejection `json:"reason"`
		} `json:"rejected"`
	}](t, res)
	assert.Equal(t, domain.SeverityModerate, out.Evaluation.Result.Severity)
	require.Len(t, out.Rejected, 1)
	assert.Equal(t, 1, out.Rejected[0].Index)
	assert.Equal(t, service.RejectNegation, out.Rejected[0].Reason)

	_, _, err = tools.EvaluateSignals(context.Background(), nil, EvaluateInput{
		Signals: []domain.RawSourceSignal{{Provider: "X", Severity: "fatal"}},
	})
	assert.Error(t, err)
}

func TestFeedbackTools(t *testing.T) {
	tools := newTestLiteServer(t).Tools()
	ctx := context.Background()

	res, _, err := tools.SubmitFeedback(ctx, nil, FeedbackInput{
		Medications:       []string{"Warfarin", "Ibuprofen"},
		Context:           "elderly",
		SuggestedSeverity: "Moderate",
		UserSeverity:      "moderate",
	})
	require.NoError(t, err)
	saved := decodeResult[feedback.Feedback](t, res)
	assert.Equal(t, "ibuprofen|warfarin", saved.InteractionKey)
	assert.True(t, saved.UserAgreed)

	_, _, err = tools.SubmitFeedback(ctx, nil, FeedbackInput{
		Medications:       []string{"Warfarin", "Ibuprofen"},
		SuggestedSeverity: "moderate",
		UserSeverity:      "deadly",
	})
	assert.Error(t, err)

	res, _, err = tools.GetFeedback(ctx, nil, FeedbackLookupInput{Medications: []string{"ibuprofen", "warfarin"}, Context: "elderly"})
	require.NoError(t, err)
	assert.Equal(t, saved.ID, decodeResult[feedback.Feedback](t, res).ID)

	res, _, err = tools.GetFeedback(ctx, nil, FeedbackLookupInput{Medications: []string{"ibuprofen", "warfarin"}})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "No feedback recorded")

	res, _, err = tools.ListFeedback(ctx, nil, FeedbackListInput{Limit: 1000})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"total": 1`)

	res, _, err = tools.ExportFeedback(ctx, nil, EmptyInput{})
	require.NoError(t, err)
	path := decodeResult[map[string]string](t, res)["path"]
	require.FileExists(t, path)

	res, _, err = tools.ImportFeedback(ctx, nil, FeedbackFileInput{Path: path})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"imported": 0, "skipped": 1}, decodeResult[map[string]int](t, res))

	_, _, err = tools.ImportFeedback(ctx, nil, FeedbackFileInput{})
	assert.Error(t, err)
}

func TestFeedbackToolsWithoutStore(t *testing.T) {
	engine, err := service.NewEngine(service.EngineDeps{}, domain.EngineConfig{}, logrus.New())
	require.NoError(t, err)
	tools := NewTools(engine, nil, t.TempDir(), logrus.New())

	_, _, err = tools.ListFeedback(context.Background(), nil, FeedbackListInput{})
	assert.ErrorIs(t, err, errNoFeedbackStore)
}

func TestRunRejectsUnknownTransport(t *testing.T) {
	server := newTestLiteServer(t)
	err := server.Run(context.Background(), "websocket", 0)
	assert.ErrorContains(t, err, "unsupported transport")
}

func mustResult(t *testing.T) func(*mcp.CallToolResult, any, error) *mcp.CallToolResult {
	return func(res *mcp.CallToolResult, _ any, err error) *mcp.CallToolResult {
		require.NoError(t, err)
		return res
	}
}
