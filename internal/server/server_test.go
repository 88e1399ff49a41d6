package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/haroldofalcao/optinutri/internal/catalog"
	"github.com/haroldofalcao/optinutri/internal/history"
	"github.com/haroldofalcao/optinutri/internal/model"
	"github.com/haroldofalcao/optinutri/internal/optimizer"
	"github.com/haroldofalcao/optinutri/internal/solver"
	"github.com/haroldofalcao/optinutri/internal/solver/solvertest"
	"github.com/haroldofalcao/optinutri/pkg/optimization"
)

const optimizeBody = `{"constraints":{"kcal_min":1000,"kcal_max":2000,"protein_min":0,"protein_max":1000,"volume_max":2000,"max_bags":3}}`

func testFormulas() []optimization.Formula {
	return []optimization.Formula{
		{ID: "f1", Name: "Formula 1", VolumeML: 500, Kcal: 500, ProteinGL: 50, BaseCost: 100, EmulsionType: "SMOF", Via: "Central"},
		{ID: "f2", Name: "Formula 2", VolumeML: 1000, Kcal: 800, ProteinGL: 40, BaseCost: 150, EmulsionType: "TCL", Via: "Peripheral"},
		{ID: "f3", Name: "Hidden", VolumeML: 100, Kcal: 110, BaseCost: 40, EmulsionType: "Omega-3", Via: "Central", Hidden: true},
	}
}

type testServer struct {
	handler http.Handler
	solver  *solvertest.Exhaustive
	store   history.Store
}

func newTestServer(t *testing.T, cfg *Config, store history.Store) testServer {
	t.Helper()
	cat, err := catalog.New(testFormulas())
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	s := &solvertest.Exhaustive{}
	opt, err := optimizer.New(zap.NewNop(), cat.Formulas(), s)
	if err != nil {
		t.Fatalf("optimizer.New() error = %v", err)
	}
	if store == nil {
		store = history.NewMemoryStore(10)
	}
	if cfg == nil {
		cfg = defaultConfig()
	}
	return testServer{
		handler: NewHandler(zap.NewNop(), opt, cat, store, cfg),
		solver:  s,
		store:   store,
	}
}

func (ts testServer) do(method, target, body, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(HeaderUser, user)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) optimization.Result {
	t.Helper()
	var result optimization.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode result: %v (%s)", err, rec.Body.String())
	}
	return result
}

func TestOptimizeEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(http.MethodPost, "/api/optimize", optimizeBody, "alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON content type, got %q", ct)
	}
	if rec.Header().Get(HeaderCache) != "MISS" {
		t.Fatalf("expected cache miss on first call")
	}
	if rec.Header().Get(HeaderHistoryID) == "" {
		t.Fatalf("expected history id header")
	}

	result := decodeResult(t, rec)
	if result.Status != optimization.StatusOptimal {
		t.Fatalf("expected Optimal, got %s (%s)", result.Status, result.Message)
	}
	if result.TotalCost == nil || *result.TotalCost != 200 {
		t.Fatalf("expected total cost 200, got %v", result.TotalCost)
	}
	if len(result.SelectedBags) != 1 || result.SelectedBags[0].FormulaID != "f1" || result.SelectedBags[0].Quantity != 2 {
		t.Fatalf("expected two bags of f1, got %+v", result.SelectedBags)
	}
}

func TestOptimizeServesIdenticalRequestsFromCache(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	first := ts.do(http.MethodPost, "/api/optimize", optimizeBody, "alice")
	calls := ts.solver.Calls()
	second := ts.do(http.MethodPost, "/api/optimize", optimizeBody, "alice")

	if second.Header().Get(HeaderCache) != "HIT" {
		t.Fatalf("expected cache hit on identical request")
	}
	if ts.solver.Calls() != calls {
		t.Fatalf("cache hit should not invoke the solver, calls went from %d to %d", calls, ts.solver.Calls())
	}
	if !reflect.DeepEqual(decodeResult(t, first).SelectedBags, decodeResult(t, second).SelectedBags) {
		t.Fatalf("cached result differs from the original")
	}
	if d := decodeResult(t, second).Duration; d != 0 {
		t.Fatalf("cache hit should not report the original solve time, got %v", d)
	}
	if strings.Contains(second.Body.String(), "duration_ns") {
		t.Fatalf("cache hit should omit duration_ns: %s", second.Body.String())
	}

	entries, err := ts.store.List(context.Background(), "alice", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected both calls in history, got %d", len(entries))
	}
	if entries[0].Result.Duration != 0 {
		t.Fatalf("history of a cache hit should not carry a solve time, got %v", entries[0].Result.Duration)
	}
}

func TestOptimizeDoesNotCachePartialAnalysis(t *testing.T) {
	cat, err := catalog.New(testFormulas())
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}

	// While broken, every call after the first of a request fails, so the
	// main solve reports infeasible and the range analysis faults.
	var broken atomic.Bool
	var calls atomic.Int64
	inner := &solvertest.Exhaustive{}
	s := solver.Func(func(ctx context.Context, m *model.Model) (solver.Response, error) {
		if calls.Add(1) > 1 && broken.Load() {
			return solver.Response{}, errors.New("backend unavailable")
		}
		return inner.Solve(ctx, m)
	})
	opt, err := optimizer.New(zap.NewNop(), cat.Formulas(), s)
	if err != nil {
		t.Fatalf("optimizer.New() error = %v", err)
	}
	store := history.NewMemoryStore(10)
	ts := testServer{
		handler: NewHandler(zap.NewNop(), opt, cat, store, defaultConfig()),
		store:   store,
	}
	body := `{"constraints":{"kcal_min":2000,"kcal_max":3000,"protein_min":0,"protein_max":1000,"volume_max":5000,"max_bags":1}}`

	broken.Store(true)
	rec := ts.do(http.MethodPost, "/api/optimize", body, "")
	result := decodeResult(t, rec)
	if result.Status != optimization.StatusInfeasible || !result.Partial || len(result.ViolationDetails) != 0 {
		t.Fatalf("expected a partial infeasible result, got %s partial=%v %+v", result.Status, result.Partial, result.ViolationDetails)
	}

	broken.Store(false)
	calls.Store(0)
	rec = ts.do(http.MethodPost, "/api/optimize", body, "")
	if rec.Header().Get(HeaderCache) != "MISS" {
		t.Fatalf("a partial result must not be served from cache")
	}
	result = decodeResult(t, rec)
	v, ok := result.Violation(optimization.ConstraintKcalMin)
	if result.Partial || !ok || v.ActualMax != 800 {
		t.Fatalf("expected a complete analysis once the backend recovers, got partial=%v %+v", result.Partial, result.ViolationDetails)
	}

	if rec := ts.do(http.MethodPost, "/api/optimize", body, ""); rec.Header().Get(HeaderCache) != "HIT" {
		t.Fatalf("a complete infeasible result should be cached")
	}
}

func TestCacheable(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		ctx    context.Context
		result optimization.Result
		want   bool
	}{
		{"optimal", context.Background(), optimization.Result{Status: optimization.StatusOptimal}, true},
		{"complete infeasible", context.Background(), optimization.InfeasibleResult("x", nil), true},
		{"partial infeasible", context.Background(), optimization.Result{Status: optimization.StatusInfeasible, Partial: true}, false},
		{"error", context.Background(), optimization.ErrorResult("x"), false},
		{"request cancelled", cancelled, optimization.Result{Status: optimization.StatusOptimal}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cacheable(tt.ctx, tt.result); got != tt.want {
				t.Errorf("cacheable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOptimizeDoesNotCacheErrors(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	body := `{"constraints":{"kcal_min":0,"kcal_max":0,"protein_min":0,"protein_max":0,"volume_max":0}}`

	for i := 0; i < 2; i++ {
		rec := ts.do(http.MethodPost, "/api/optimize", body, "")
		if rec.Header().Get(HeaderCache) != "MISS" {
			t.Fatalf("call %d: error results should not be cached", i)
		}
		result := decodeResult(t, rec)
		if result.Status != optimization.StatusError || !strings.Contains(result.Message, "volume_max") {
			t.Fatalf("call %d: expected validation error, got %s %q", i, result.Status, result.Message)
		}
	}
	if ts.solver.Calls() != 0 {
		t.Fatalf("validation failures must not reach the solver")
	}
}

func TestOptimizeRejectsBadRequests(t *testing.T) {
	small := defaultConfig()
	small.SetUploadSizeBytes(16)

	tests := []struct {
		name   string
		cfg    *Config
		method string
		body   string
		status int
	}{
		{name: "wrong method", method: http.MethodGet, status: http.StatusMethodNotAllowed},
		{name: "malformed json", method: http.MethodPost, body: `{"constraints":`, status: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, body: `{"budget":10}`, status: http.StatusBadRequest},
		{name: "body too large", cfg: small, method: http.MethodPost, body: optimizeBody, status: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.cfg, nil)
			rec := ts.do(tt.method, "/api/optimize", tt.body, "")
			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if ts.solver.Calls() != 0 {
				t.Fatalf("rejected requests must not reach the solver")
			}
		})
	}
}

func TestOptimizeRateLimit(t *testing.T) {
	cfg := defaultConfig()
	cfg.RateLimit = 0.001
	cfg.Burst = 1
	ts := newTestServer(t, cfg, nil)

	if rec := ts.do(http.MethodPost, "/api/optimize", optimizeBody, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	rec := ts.do(http.MethodPost, "/api/optimize", optimizeBody, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	if payload["error"] == "" {
		t.Fatalf("expected error message in payload")
	}
}

type failingStore struct {
	history.Store
}

func (failingStore) Save(context.Context, history.Entry) (string, error) {
	return "", errors.New("store unavailable")
}

func TestOptimizeSurvivesHistoryFailure(t *testing.T) {
	ts := newTestServer(t, nil, failingStore{})

	rec := ts.do(http.MethodPost, "/api/optimize", optimizeBody, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when history fails, got %d", rec.Code)
	}
	if rec.Header().Get(HeaderHistoryID) != "" {
		t.Fatalf("no history id expected when saving fails")
	}
	if decodeResult(t, rec).Status != optimization.StatusOptimal {
		t.Fatalf("expected the result despite the history failure")
	}
}

func TestFormulasEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	tests := []struct {
		target string
		want   []string
	}{
		{target: "/api/formulas", want: []string{"f1", "f2"}},
		{target: "/api/formulas?via=Central", want: []string{"f1"}},
		{target: "/api/formulas?emulsion=TCL&via=All", want: []string{"f2"}},
		{target: "/api/formulas?emulsion=MCT", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := ts.do(http.MethodGet, tt.target, "", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			var resp formulasResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			ids := make([]string, 0, len(resp.Formulas))
			for _, f := range resp.Formulas {
				ids = append(ids, f.ID)
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, ids)
			}
			if !reflect.DeepEqual(resp.EmulsionTypes, []string{"SMOF", "TCL"}) {
				t.Fatalf("unexpected emulsion types %v", resp.EmulsionTypes)
			}
			if !reflect.DeepEqual(resp.Routes, []string{"Central", "Peripheral"}) {
				t.Fatalf("unexpected routes %v", resp.Routes)
			}
		})
	}

	if rec := ts.do(http.MethodPost, "/api/formulas", "", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	first := ts.do(http.MethodPost, "/api/optimize", optimizeBody, "bob")
	ts.do(http.MethodPost, "/api/optimize", optimizeBody, "bob")
	ts.do(http.MethodPost, "/api/optimize", optimizeBody, "carol")

	rec := ts.do(http.MethodGet, "/api/history?user=bob&limit=1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp historyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode history: %v", err)
	}
	if resp.User != "bob" || len(resp.Entries) != 1 {
		t.Fatalf("expected one entry for bob, got %s/%d", resp.User, len(resp.Entries))
	}
	if resp.Entries[0].Result.Status != optimization.StatusOptimal {
		t.Fatalf("expected saved result, got %+v", resp.Entries[0].Result)
	}

	if rec := ts.do(http.MethodGet, "/api/history?limit=abc", "", "bob"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid limit, got %d", rec.Code)
	}

	id := first.Header().Get(HeaderHistoryID)
	if rec := ts.do(http.MethodDelete, "/api/history/"+id, "", "carol"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting another user's entry, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodDelete, "/api/history/"+id, "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting as anonymous, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodDelete, "/api/history/"+id, "", "bob"); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 deleting %s, got %d", id, rec.Code)
	}
	if rec := ts.do(http.MethodDelete, "/api/history/"+id, "", "bob"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting twice, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodDelete, "/api/history/", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing id, got %d", rec.Code)
	}

	if rec := ts.do(http.MethodDelete, "/api/history", "", "bob"); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 clearing history, got %d", rec.Code)
	}
	bob, _ := ts.store.List(context.Background(), "bob", 0)
	carol, _ := ts.store.List(context.Background(), "carol", 0)
	if len(bob) != 0 || len(carol) != 1 {
		t.Fatalf("clear should only affect bob, got bob=%d carol=%d", len(bob), len(carol))
	}

	if rec := ts.do(http.MethodPut, "/api/history", "", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestVersionEndpoint(t *testing.T) {
	cfg := defaultConfig()
	cfg.Version = " 1.0.0 "
	ts := newTestServer(t, cfg, nil)

	rec := ts.do(http.MethodGet, "/api/version", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode version: %v", err)
	}
	if payload["version"] != "1.0.0" {
		t.Fatalf("expected version 1.0.0, got %q", payload["version"])
	}
}

func TestRequestUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/history?user=query", nil)
	if got := requestUser(req); got != "query" {
		t.Fatalf("expected query user, got %q", got)
	}
	req.Header.Set(HeaderUser, "header")
	if got := requestUser(req); got != "header" {
		t.Fatalf("header should win, got %q", got)
	}
	if got := requestUser(httptest.NewRequest(http.MethodGet, "/", nil)); got != "anonymous" {
		t.Fatalf("expected anonymous default, got %q", got)
	}
}
