package analysis

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/miradorstack/mirador-pdm/internal/models"
)

// DefaultSummaryRows is how many top features Summarize lists.
const DefaultSummaryRows = 5

// Summarize renders a report as markdown tables: the sensor ranking, then
// the first rows of the global feature ranking.
func Summarize(report *models.Report, rows int) string {
	if rows <= 0 {
		rows = DefaultSummaryRows
	}
	var b strings.Builder
	b.WriteString("### AUTOMATED ANALYSIS REPORT ###\n\n")

	b.WriteString("--- SENSOR RELIABILITY (Model Accuracy) ---\n")
	ranking := markdownTable(&b, []string{"Sensor", "Sensor_Accuracy"})
	for _, s := range report.Ranking {
		ranking.Append([]string{s.Sensor, formatScore(s.Accuracy)})
	}
	ranking.Render()
	b.WriteString("\n")

	b.WriteString("--- TOP PREDICTIVE FEATURES (Global Weighted Score) ---\n")
	top := markdownTable(&b, []string{"Sensor", "Feature", "Sensor_Accuracy", "Global_Score"})
	for i, r := range report.TopFeatures {
		if i >= rows {
			break
		}
		top.Append([]string{r.Sensor, r.Feature, formatScore(r.SensorAccuracy), formatScore(r.GlobalScore)})
	}
	top.Render()
	return b.String()
}

func markdownTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.SetHeader(header)
	return table
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.6f", v)
}
