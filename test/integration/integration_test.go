package integration

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/haroldofalcao/optinutri/internal/catalog"
	"github.com/haroldofalcao/optinutri/internal/config"
	"github.com/haroldofalcao/optinutri/internal/history"
	"github.com/haroldofalcao/optinutri/internal/optimizer"
	"github.com/haroldofalcao/optinutri/internal/server"
	"github.com/haroldofalcao/optinutri/internal/solver/solvertest"
	"github.com/haroldofalcao/optinutri/pkg/optimization"
	"github.com/haroldofalcao/optinutri/pkg/output"
)

const exampleConfig = "../../optinutri.yaml.example"

// realisticRequest asks for 1000-2500 kcal and 40-150 g protein in at most
// three bags and 3 L.
func realisticRequest() optimizer.Request {
	return optimizer.Request{
		Constraints: optimization.Constraints{
			KcalMin:    1000,
			KcalMax:    2500,
			ProteinMin: 40,
			ProteinMax: 150,
			VolumeMax:  3000,
			MaxBags:    3,
		},
	}
}

// setup builds the optimizer exactly as main() does, with the reference
// solver in place of the native one.
func setup(t *testing.T) (*config.Configuration, *catalog.Catalog, *optimizer.Optimizer) {
	t.Helper()

	conf, err := config.LoadConfiguration(exampleConfig)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default() error = %v", err)
	}

	opt, err := optimizer.New(zap.NewNop(), cat.Formulas(), &solvertest.Exhaustive{},
		optimizer.WithTolerances(optimizer.Tolerances{
			Nutrient:   conf.Optimizer.NutrientTolerance,
			Count:      conf.Optimizer.CountTolerance,
			BagEpsilon: conf.Optimizer.BagEpsilon,
		}),
		optimizer.WithSolveTimeout(conf.Optimizer.SolverTimeLimit),
	)
	if err != nil {
		t.Fatalf("optimizer.New() error = %v", err)
	}
	return conf, cat, opt
}

func TestEndToEndOptimization(t *testing.T) {
	_, _, opt := setup(t)

	result := opt.Optimize(context.Background(), realisticRequest())
	if result.Status != optimization.StatusOptimal {
		t.Fatalf("expected Optimal, got %s: %s", result.Status, result.Message)
	}
	if result.TotalCost == nil || *result.TotalCost != 55.2 {
		t.Fatalf("expected total cost 55.2, got %v", result.TotalCost)
	}
	if len(result.SelectedBags) != 1 || result.SelectedBags[0].FormulaID != "EN004" {
		t.Fatalf("expected a single EN004 bag, got %+v", result.SelectedBags)
	}
	if !result.ConstraintsMet.All() {
		t.Fatalf("expected all constraints met, got %+v", result.ConstraintsMet)
	}
}

func TestEndToEndFilters(t *testing.T) {
	_, cat, opt := setup(t)

	req := realisticRequest()
	req.ViaFilter = "Central"
	req.EmulsionFilter = "SMOF"

	result := opt.Optimize(context.Background(), req)
	if result.Status != optimization.StatusOptimal {
		t.Fatalf("expected Optimal, got %s: %s", result.Status, result.Message)
	}
	for _, bag := range result.SelectedBags {
		f, ok := cat.Lookup(bag.FormulaID)
		if !ok {
			t.Fatalf("selected formula %s is not in the catalog", bag.FormulaID)
		}
		if f.Via != "Central" || f.EmulsionType != "SMOF" {
			t.Errorf("formula %s escaped the filters (%s/%s)", f.ID, f.EmulsionType, f.Via)
		}
	}
}

func TestEndToEndInfeasible(t *testing.T) {
	_, _, opt := setup(t)

	result := opt.Optimize(context.Background(), optimizer.Request{
		Constraints: optimization.Constraints{
			KcalMin:    5000,
			KcalMax:    6000,
			ProteinMin: 200,
			ProteinMax: 300,
			VolumeMax:  1000,
		},
		SelectedIDs: []string{"EN001", "EN003"},
	})
	if result.Status != optimization.StatusInfeasible {
		t.Fatalf("expected Infeasible, got %s", result.Status)
	}
	if result.TotalCost != nil || len(result.SelectedBags) != 0 {
		t.Fatalf("infeasible result must not carry a prescription")
	}
	if _, ok := result.Violation(optimization.ConstraintKcalMin); !ok {
		t.Fatalf("expected a calorie floor violation, got %+v", result.ViolationDetails)
	}
}

func TestOutputFormats(t *testing.T) {
	_, _, opt := setup(t)
	result := opt.Optimize(context.Background(), realisticRequest())

	var pretty bytes.Buffer
	output.WritePretty(&pretty, result)
	if !strings.Contains(pretty.String(), "EN004") || !strings.Contains(pretty.String(), "Total cost: R$55.20") {
		t.Errorf("pretty output missing the prescription:\n%s", pretty.String())
	}

	records, err := csv.NewReader(strings.NewReader(output.CsvString(result))).ReadAll()
	if err != nil {
		t.Fatalf("CSV output does not parse: %v", err)
	}
	if len(records) != len(result.SelectedBags)+2 {
		t.Fatalf("expected header, %d bags and totals, got %d records", len(result.SelectedBags), len(records))
	}
	for i, bag := range result.SelectedBags {
		if records[i+1][0] != bag.FormulaID {
			t.Errorf("CSV row %d is %s, expected %s", i+1, records[i+1][0], bag.FormulaID)
		}
	}

	data, err := output.JSONString(result)
	if err != nil {
		t.Fatalf("JSONString() error = %v", err)
	}
	var decoded optimization.Result
	if err := json.Unmarshal([]byte(data), &decoded); err != nil {
		t.Fatalf("JSON output does not decode: %v", err)
	}
	if decoded.Status != result.Status || *decoded.TotalCost != *result.TotalCost {
		t.Errorf("JSON round trip changed the result")
	}
}

func TestServerRoundTrip(t *testing.T) {
	conf, cat, opt := setup(t)

	serverConf, err := server.FromSettings(conf.Server)
	if err != nil {
		t.Fatalf("FromSettings() error = %v", err)
	}
	store, err := history.New(context.Background(), zap.NewNop(), conf.History)
	if err != nil {
		t.Fatalf("history.New() error = %v", err)
	}

	ts := httptest.NewServer(server.NewHandler(zap.NewNop(), opt, cat, store, serverConf))
	defer ts.Close()

	body, err := json.Marshal(realisticRequest())
	if err != nil {
		t.Fatalf("failed to encode request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/optimize", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(server.HeaderUser, "ward-7")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /api/optimize failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result optimization.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Status != optimization.StatusOptimal {
		t.Fatalf("expected Optimal over HTTP, got %s", result.Status)
	}

	entries, err := store.List(context.Background(), "ward-7", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Result.Status != optimization.StatusOptimal {
		t.Fatalf("expected the call in history, got %+v", entries)
	}
	if entries[0].ID != resp.Header.Get(server.HeaderHistoryID) {
		t.Fatalf("history id header %q does not match entry %q", resp.Header.Get(server.HeaderHistoryID), entries[0].ID)
	}
}
