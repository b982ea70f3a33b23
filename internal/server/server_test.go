package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aqi-advisory/internal/chromemdb"
	"aqi-advisory/internal/config"
	"aqi-advisory/internal/embedding/embeddingtest"
	"aqi-advisory/internal/models"
	"aqi-advisory/internal/rag"
)

type fakeSearcher struct {
	docs    []string
	err     error
	panics  bool
	queries []string
	ks      []int
}

func (f *fakeSearcher) Search(_ context.Context, query string, k int) ([]string, error) {
	if f.panics {
		panic("boom")
	}
	f.queries = append(f.queries, query)
	f.ks = append(f.ks, k)
	return f.docs, f.err
}

func newTestRouter(s Searcher, cfg *config.ServerConfig) http.Handler {
	return NewRouter(NewHandler(s, 4), cfg)
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	for name, s := range map[string]Searcher{
		"nil retriever":    nil,
		"unready":          &rag.Retriever{},
		"ready (fake one)": &fakeSearcher{},
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestRouter(s, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, http.StatusOK, rec.Code)
			var resp models.HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, "healthy", resp.Status)
			assert.Equal(t, "Air Quality Health Advisory API is running", resp.Message)
		})
	}
}

func TestAnalyzeModerate(t *testing.T) {
	s := &fakeSearcher{docs: []string{"Health implications: people may notice mild irritation. Nothing else."}}
	rec := post(t, newTestRouter(s, nil), `{"city":"Delhi","aqi":75,"user_profile":"general"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp models.AdvisoryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Delhi", resp.City)
	assert.Equal(t, 75, resp.AQI)
	assert.Equal(t, "Moderate", resp.Category)
	assert.Equal(t, "🟡", resp.Icon)
	assert.Equal(t, "Optional: N95 mask for sensitive individuals during prolonged outdoor activities.", resp.MaskRecommendation)
	assert.True(t, strings.HasPrefix(resp.HealthImplications, "Health implications"), resp.HealthImplications)

	require.Len(t, s.queries, 1)
	assert.Equal(t, "AQI 75 Moderate health advisory for general profile", s.queries[0])
	assert.Equal(t, []int{4}, s.ks)
}

func TestAnalyzeDefaults(t *testing.T) {
	s := &fakeSearcher{}
	rec := post(t, newTestRouter(s, nil), `{"aqi":"180"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.AdvisoryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Unknown", resp.City)
	assert.Equal(t, 180, resp.AQI)
	assert.Equal(t, "Unhealthy", resp.Category)
	assert.NotEmpty(t, resp.HealthImplications)
	assert.Equal(t, "Individuals with general should take extra precautions.", resp.SensitiveGroups)
	assert.Equal(t, "AQI 180 Unhealthy health advisory for general profile", s.queries[0])
}

func TestAnalyzeValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"aqi above range", `{"aqi":600}`, "AQI must be between 0 and 500"},
		{"aqi below range", `{"aqi":-1}`, "AQI must be between 0 and 500"},
		{"huge aqi", `{"aqi":1e30}`, "AQI must be between 0 and 500"},
		{"unknown profile", `{"aqi":100,"user_profile":"martian"}`, "Invalid user profile"},
		{"profile not a string", `{"aqi":100,"user_profile":7}`, "Invalid user profile"},
		{"empty object", `{}`, "No data provided"},
		{"empty body", ``, "No data provided"},
		{"malformed json", `{"aqi":`, "No data provided"},
		{"array body", `[1,2]`, "No data provided"},
		{"null body", `null`, "No data provided"},
		{"trailing text", `{"aqi":75} not json at all`, "No data provided"},
		{"trailing object", `{"aqi":75}{"aqi":1}`, "No data provided"},
		{"trailing brace", `{"aqi":75}}`, "No data provided"},
		{"huge aqi string", `{"aqi":"99999999999999999999"}`, "AQI must be between 0 and 500"},
		{"huge negative aqi string", `{"aqi":"-99999999999999999999"}`, "AQI must be between 0 and 500"},
		{"fractional aqi string", `{"aqi":"75.5"}`, "AQI must be an integer"},
		{"aqi word", `{"aqi":"high"}`, "AQI must be an integer"},
		{"aqi bool", `{"aqi":true}`, "AQI must be an integer"},
		{"aqi null", `{"aqi":null}`, "AQI must be an integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSearcher{}
			rec := post(t, newTestRouter(s, nil), tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decodeError(t, rec))
			assert.Empty(t, s.queries, "validation failures must not reach the index")
		})
	}
}

func TestParseAdvisoryRequestCoercion(t *testing.T) {
	tests := []struct {
		body string
		aqi  int
	}{
		{`{"aqi":75.9}`, 75},
		{`{"aqi":-0.5}`, 0},
		{`{"aqi":" 42 "}`, 42},
		{`{"aqi":500}`, 500},
		{`{"city":"Pune"}`, 0},
		{"{\"aqi\":75}\n\t ", 75},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			req, err := ParseAdvisoryRequest([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.aqi, req.AQI)
		})
	}

	req, err := ParseAdvisoryRequest([]byte(`{"city":12,"aqi":10,"user_profile":"heart disease"}`))
	require.NoError(t, err)
	assert.Equal(t, "12", req.City)
	assert.Equal(t, "heart disease", req.UserProfile)
}

func TestAnalyzeIndexNotReady(t *testing.T) {
	for name, s := range map[string]Searcher{
		"nil":            nil,
		"nil pointer":    (*rag.Retriever)(nil),
		"zero retriever": &rag.Retriever{},
		"wrapped":        &fakeSearcher{err: errors.Join(errors.New("store"), rag.ErrIndexNotReady)},
	} {
		t.Run(name, func(t *testing.T) {
			rec := post(t, newTestRouter(s, nil), `{"aqi":75}`)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, "Vector database not initialized", decodeError(t, rec))
		})
	}
}

func TestAnalyzeSearchError(t *testing.T) {
	rec := post(t, newTestRouter(&fakeSearcher{err: errors.New("embedding service unavailable")}, nil), `{"aqi":75}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "embedding service unavailable", decodeError(t, rec))
}

func TestAnalyzePanicRecovered(t *testing.T) {
	rec := post(t, newTestRouter(&fakeSearcher{panics: true}, nil), `{"aqi":75}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "boom", decodeError(t, rec))
}

func TestCORS(t *testing.T) {
	h := newTestRouter(&fakeSearcher{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:8501")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	preflight := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	preflight.Header.Set("Origin", "http://localhost:8501")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, preflight)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	limit := 1
	h := newTestRouter(&fakeSearcher{}, &config.ServerConfig{RateLimit: &limit})

	assert.Equal(t, http.StatusOK, post(t, h, `{"aqi":10}`).Code)

	rec := post(t, h, `{"aqi":10}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests", decodeError(t, rec))

	// /health is not limited.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", decodeError(t, rec))
}

const guidelines = `Health implications of unhealthy air include coughing, throat irritation and reduced lung function. Effects are stronger with longer exposure.

People with asthma should keep quick-relief inhalers nearby and avoid strenuous outdoor exertion when AQI exceeds 150. Respiratory symptoms may worsen quickly.

Outdoor exercise should be moved indoors or rescheduled to times when pollution is lower.

Protective measures include running air purifiers, keeping windows closed and wearing an N95 mask outside.
`

func TestAnalyzeEndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "health_guidelines.txt")
	require.NoError(t, os.WriteFile(path, []byte(guidelines), 0o644))

	ragCfg := config.RAGConfig{
		GuidelinesPath: path,
		ChunkSize:      200,
		ChunkOverlap:   20,
		TopK:           4,
		IndexPath:      filepath.Join(dir, "health_db"),
		Collection:     "health_guidelines",
	}
	embedder := embeddingtest.New(64)
	store, err := chromemdb.NewVectorDBManager(chromemdb.Options{
		Path:       ragCfg.IndexPath,
		Collection: ragCfg.Collection,
	}, embedder)
	require.NoError(t, err)

	retriever, err := rag.NewIndexer(store, embedder, ragCfg).Initialize(context.Background())
	require.NoError(t, err)

	rec := post(t, NewRouter(NewHandler(retriever, ragCfg.TopK), nil), `{"city":"Delhi","aqi":175,"user_profile":"asthma"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.AdvisoryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Unhealthy", resp.Category)
	assert.Equal(t, "🔴", resp.Icon)
	assert.Contains(t, resp.SensitiveGroups, "asthma")
	assert.Contains(t, strings.ToLower(resp.OutdoorActivities), "outdoor")
	assert.Contains(t, strings.ToLower(resp.ProtectiveMeasures), "protective")
	for _, field := range []string{
		resp.HealthImplications, resp.GeneralAdvice, resp.SensitiveGroups,
		resp.OutdoorActivities, resp.ProtectiveMeasures, resp.MaskRecommendation,
	} {
		assert.NotEmpty(t, field)
	}

	// Same request, same answer.
	again := post(t, NewRouter(NewHandler(retriever, ragCfg.TopK), nil), `{"city":"Delhi","aqi":175,"user_profile":"asthma"}`)
	var resp2 models.AdvisoryResponse
	require.NoError(t, json.NewDecoder(again.Body).Decode(&resp2))
	assert.Equal(t, resp, resp2)
}

func TestRunReturnsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := &http.Server{Addr: ln.Addr().String(), Handler: http.NotFoundHandler()}
	err = Run(context.Background(), srv, time.Second)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to serve on "+ln.Addr().String())
}

func TestRunShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	assert.NoError(t, Run(ctx, srv, time.Second))
}
