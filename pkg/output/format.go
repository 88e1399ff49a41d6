// Package output provides utilities for formatting and displaying optimization results.
package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/haroldofalcao/optinutri/pkg/format"
	"github.com/haroldofalcao/optinutri/pkg/optimization"
)

// PrettyFormat outputs a human-readable rather than machine-readable table.
func PrettyFormat(result optimization.Result) {
	WritePretty(os.Stdout, result)
}

// WritePretty writes the human-readable rendering of result to w.
func WritePretty(w io.Writer, result optimization.Result) {
	p := message.NewPrinter(language.English)

	_, _ = fmt.Fprintf(w, "--- Optimization result: %s ---\n", result.Status)
	if result.Message != "" {
		_, _ = fmt.Fprintf(w, "%s\n", result.Message)
	}

	if result.Status == optimization.StatusError {
		return
	}

	if len(result.SelectedBags) > 0 {
		_, _ = fmt.Fprintf(w, "Formula | Name | Qty | Unit cost | Total cost | kcal | Protein (g) | Volume (mL) | Via\n")
		_, _ = fmt.Fprintf(w, "_______ | ____ | ___ | _________ | __________ | ____ | ___________ | ___________ | ___\n")
		for _, b := range result.SelectedBags {
			fixed := ""
			if b.Fixed {
				fixed = " (fixed)"
			}
			_, _ = p.Fprintf(w, "%s%s | %s | %d | %s | %s | %.1f | %.2f | %.1f | %s\n",
				b.FormulaID, fixed, b.Name, b.Quantity, format.Currency(b.UnitCost), format.Currency(b.TotalCost),
				b.KcalContribution, b.ProteinContribution, b.VolumeContribution, b.Via)
		}
		_, _ = fmt.Fprintf(w, "\n")
	}

	if result.TotalCost != nil {
		_, _ = fmt.Fprintf(w, "Total cost: %s (%d bags)\n", format.Currency(*result.TotalCost), result.NumBags)
		_, _ = p.Fprintf(w, "Totals: %.1f kcal | %.2f g protein | %.1f mL | %.2f g nitrogen | %.2f g glucose | %.2f g fat\n",
			result.TotalKcal, result.TotalProtein, result.TotalVolume,
			result.TotalNitrogen, result.TotalGlucose, result.TotalFat)
		met := result.ConstraintsMet
		_, _ = fmt.Fprintf(w, "Constraints: kcal_min %s | kcal_max %s | protein_min %s | protein_max %s | volume_max %s | max_bags %s\n",
			mark(met.KcalMin), mark(met.KcalMax), mark(met.ProteinMin), mark(met.ProteinMax), mark(met.VolumeMax), mark(met.MaxBags))
	}

	if len(result.ViolationDetails) > 0 {
		_, _ = fmt.Fprintf(w, "Constraint | Target | Reachable range\n")
		_, _ = fmt.Fprintf(w, "__________ | ______ | _______________\n")
		for _, v := range result.ViolationDetails {
			_, _ = p.Fprintf(w, "%s | %.2f %s | %.2f - %.2f %s\n", v.Constraint, v.Target, v.Unit, v.ActualMin, v.ActualMax, v.Unit)
		}
	}
}

func mark(ok bool) string {
	if ok {
		return "ok"
	}
	return "FAILED"
}

// CsvFormat outputs in comma-separated value format.
func CsvFormat(result optimization.Result) {
	fmt.Print(CsvString(result))
}

// CsvString renders the selected bags as CSV followed by a totals row.
func CsvString(result optimization.Result) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	_ = w.Write([]string{"formula_id", "name", "quantity", "unit_cost", "total_cost", "kcal", "protein_g", "volume_ml", "emulsion_type", "via", "fixed"})
	for _, b := range result.SelectedBags {
		_ = w.Write([]string{
			b.FormulaID,
			b.Name,
			strconv.Itoa(b.Quantity),
			formatFloat(b.UnitCost, 2),
			formatFloat(b.TotalCost, 2),
			formatFloat(b.KcalContribution, 1),
			formatFloat(b.ProteinContribution, 2),
			formatFloat(b.VolumeContribution, 1),
			b.EmulsionType,
			b.Via,
			strconv.FormatBool(b.Fixed),
		})
	}

	totalCost := ""
	if result.TotalCost != nil {
		totalCost = formatFloat(*result.TotalCost, 2)
	}
	_ = w.Write([]string{
		"total",
		string(result.Status),
		strconv.Itoa(result.NumBags),
		"",
		totalCost,
		formatFloat(result.TotalKcal, 1),
		formatFloat(result.TotalProtein, 2),
		formatFloat(result.TotalVolume, 1),
		"",
		"",
		"",
	})
	w.Flush()
	return buf.String()
}

func formatFloat(v float64, places int) string {
	return strconv.FormatFloat(v, 'f', places, 64)
}

// JSONFormat outputs the result as indented JSON.
func JSONFormat(result optimization.Result) error {
	data, err := JSONString(result)
	if err != nil {
		return err
	}
	fmt.Println(data)
	return nil
}

// JSONString renders the result as indented JSON.
func JSONString(result optimization.Result) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data), nil
}
