package external

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medconsensus-server/internal/domain"
)

func testProviderConfig(url string) domain.ProviderConfig {
	return domain.ProviderConfig{
		Enabled:   true,
		BaseURL:   url,
		Timeout:   5 * time.Second,
		RateLimit: 1000,
	}
}

func TestRxNormClient_FetchSignal(t *testing.T) {
	tests := []struct {
		name             string
		interactionsJSON string
		expectedSeverity domain.Severity
		expectedDesc     string
	}{
		{
			name: "most severe pair wins",
			interactionsJSON: `{"fullInteractionTypeGroup":[{"sourceName":"ONCHigh","fullInteractionType":[{"interactionPair":[
				{"severity":"N/A","description":"Warfarin may increase bleeding."},
				{"severity":"high","description":"Concomitant use is contraindicated."}]}]}]}`,
			expectedSeverity: domain.SeveritySevere,
			expectedDesc:     "Concomitant use is contraindicated.",
		},
		{
			name:             "no interactions listed",
			interactionsJSON: `{"nlmDisclaimer":"..."}`,
			expectedSeverity: domain.SeverityUnknown,
			expectedDesc:     "No interaction found in RxNorm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				switch r.URL.Path {
				case "/rxcui.json":
					fmt.Fprintf(w, `{"idGroup":{"rxnormId":["%d"]}}`, len(r.URL.Query().Get("name")))
				case "/interaction/list.json":
					assert.Equal(t, "8 7", r.URL.Query().Get("rxcuis"))
					fmt.Fprint(w, tt.interactionsJSON)
				default:
					w.WriteHeader(http.StatusNotFound)
				}
			}))
			defer server.Close()

			client := NewRxNormClient(testProviderConfig(server.URL))
			signal, err := client.FetchSignal(context.Background(), "Warfarin", "Aspirin")
			require.NoError(t, err)
			require.NotNil(t, signal)
			assert.Equal(t, domain.ProviderRxNorm, signal.Provider)
			assert.Equal(t, tt.expectedSeverity, signal.Severity)
			assert.Equal(t, tt.expectedDesc, signal.Description)
		})
	}
}

func TestRxNormClient_UnknownDrug(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"idGroup":{}}`)
	}))
	defer server.Close()

	signal, err := NewRxNormClient(testProviderConfig(server.URL)).FetchSignal(context.Background(), "Notadrug", "Aspirin")
	require.NoError(t, err)
	assert.Nil(t, signal)
}

func TestRxNormClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewRxNormClient(testProviderConfig(server.URL)).FetchSignal(context.Background(), "Warfarin", "Aspirin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestFDALabelClient_FetchSignal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		search := r.URL.Query().Get("search")
		switch {
		case strings.Contains(search, `"Simvastatin"`):
			fmt.Fprint(w, `{"results":[{"drug_interactions":["Strong CYP3A4 inhibitors raise simvastatin exposure. Use with clarithromycin is contraindicated; risk of myopathy."]}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewFDALabelClient(testProviderConfig(server.URL))

	t.Run("Label_Of_Second_Medication", func(t *testing.T) {
		signal, err := client.FetchSignal(context.Background(), "Clarithromycin", "Simvastatin")
		require.NoError(t, err)
		require.NotNil(t, signal)
		assert.Equal(t, domain.SeveritySevere, signal.Severity)
		assert.Contains(t, signal.Description, "clarithromycin is contraindicated")
	})

	t.Run("No_Mention", func(t *testing.T) {
		signal, err := client.FetchSignal(context.Background(), "Simvastatin", "Ibuprofen")
		require.NoError(t, err)
		assert.Nil(t, signal)
	})
}

func TestGradeLabelText(t *testing.T) {
	assert.Equal(t, domain.SeveritySevere, gradeLabelText("coadministration is contraindicated"))
	assert.Equal(t, domain.SeverityModerate, gradeLabelText("monitor inr closely"))
	assert.Equal(t, domain.SeverityMinor, gradeLabelText("may increase absorption"))
	assert.Equal(t, domain.SeverityMinor, gradeLabelText("mentioned without grading"))
}

func TestFDAEventsClient_FetchSignal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("count") != "":
			fmt.Fprint(w, `{"results":[{"term":"HAEMORRHAGE","count":40},{"term":"NAUSEA","count":12}]}`)
		case strings.Contains(q.Get("search"), "serious:1"):
			fmt.Fprint(w, `{"meta":{"results":{"total":30}}}`)
		default:
			fmt.Fprint(w, `{"meta":{"results":{"total":250}}}`)
		}
	}))
	defer server.Close()

	signal, err := NewFDAEventsClient(testProviderConfig(server.URL)).FetchSignal(context.Background(), "warfarin", "aspirin")
	require.NoError(t, err)
	require.NotNil(t, signal)
	assert.Equal(t, domain.ProviderFDAEvents, signal.Provider)
	assert.Equal(t, domain.SeveritySevere, signal.Severity)
	require.NotNil(t, signal.EventData)
	assert.Equal(t, 250, signal.EventData.TotalEvents)
	assert.Equal(t, 30, signal.EventData.SeriousEvents)
	assert.Equal(t, []string{"HAEMORRHAGE", "NAUSEA"}, signal.EventData.CommonReactions)
	assert.Contains(t, signal.Description, "250 adverse event reports")
}

func TestFDAEventsClient_NoReports(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":"NOT_FOUND"}}`)
	}))
	defer server.Close()

	signal, err := NewFDAEventsClient(testProviderConfig(server.URL)).FetchSignal(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Nil(t, signal)
}

func TestSupplementClient_FetchSignal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "St. John's Wort", r.URL.Query().Get("drug1"))
		fmt.Fprint(w, `{"interactions":[
			{"severity":"minor","description":"Mild GI upset","evidence_level":"C"},
			{"severity":"major","description":"Induces CYP3A4 and lowers drug levels","evidence_level":"A","reliable":true}]}`)
	}))
	defer server.Close()

	cfg := testProviderConfig(server.URL)
	cfg.APIKey = "secret"
	signal, err := NewSupplementClient(cfg).FetchSignal(context.Background(), "St. John's Wort", "Cyclosporine")
	require.NoError(t, err)
	require.NotNil(t, signal)
	assert.Equal(t, domain.SeveritySevere, signal.Severity)
	assert.Equal(t, "Induces CYP3A4 and lowers drug levels", signal.Description)
	require.NotNil(t, signal.Confidence)
	assert.Equal(t, 90, *signal.Confidence)
	require.NotNil(t, signal.IsReliableHint)
	assert.True(t, *signal.IsReliableHint)
}

func TestLiteratureClient_FetchSignal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/analyze", r.URL.Path)
		fmt.Fprint(w, `{"severity":"moderate","summary":"Two cohort studies report additive QT prolongation.","confidence":75,"citations":["PMID:111"]}`)
	}))
	defer server.Close()

	signal, err := NewLiteratureClient(testProviderConfig(server.URL)).FetchSignal(context.Background(), "Citalopram", "Ondansetron")
	require.NoError(t, err)
	require.NotNil(t, signal)
	assert.Equal(t, domain.ProviderLiterature, signal.Provider)
	assert.Equal(t, domain.SeverityModerate, signal.Severity)
	assert.Equal(t, 75, *signal.Confidence)
	assert.Equal(t, []string{"PMID:111"}, signal.Citations)
}

func TestParseLiteratureResponse(t *testing.T) {
	tests := []struct {
		name             string
		body             string
		expectedSeverity string
		expectedCites    int
		expectError      bool
	}{
		{
			name:             "canonical shape",
			body:             `{"severity":"severe","summary":"fatal cases reported"}`,
			expectedSeverity: "severe",
		},
		{
			name:             "chat envelope with fenced json",
			body:             `{"choices":[{"message":{"content":"Here you go:\n` + "```json\\n{\\\"severity\\\":\\\"minor\\\",\\\"summary\\\":\\\"small effect\\\",\\\"citations\\\":[\\\"PMID:1\\\",\\\"PMID:2\\\"]}\\n```" + `"}}]}`,
			expectedSeverity: "minor",
			expectedCites:    2,
		},
		{
			name:             "free text with severity keyword",
			body:             `{"text":"Overall severity: Moderate. See PMID: 12345 and PMID:678."}`,
			expectedSeverity: "moderate",
			expectedCites:    2,
		},
		{
			name:             "plain text body",
			body:             `Severity - high; case reports only`,
			expectedSeverity: "high",
		},
		{
			name:        "empty envelope",
			body:        `{"choices":[]}`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis, err := ParseLiteratureResponse([]byte(tt.body))
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedSeverity, analysis.Severity)
			assert.Len(t, analysis.Citations, tt.expectedCites)
		})
	}
}

func TestDescribeEvidence(t *testing.T) {
	assert.Equal(t, "short text", describeEvidence("  short \n text ", 50))
	long := strings.Repeat("word ", 30)
	got := describeEvidence(long, 20)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), 23)
}
