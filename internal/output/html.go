package output

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/torosent/linkprobe/internal/measure"
	"github.com/torosent/linkprobe/internal/metrics"
	"github.com/torosent/linkprobe/internal/suite"
	"github.com/torosent/linkprobe/internal/units"
)

// HTMLReportData feeds the report template.
type HTMLReportData struct {
	GeneratedAt string
	Results     []ResultRow
	Skipped     []string
	Stats       metrics.Stats
	Outcomes    []metrics.OutcomeBucket
}

// ResultRow is one test type in the results table.
type ResultRow struct {
	Type    string
	Display string
	Value   float64
}

// GenerateHTMLReport writes a self-contained HTML page with no external assets.
func GenerateHTMLReport(w io.Writer, results suite.Results, stats metrics.Stats, generatedAt time.Time) error {
	data := HTMLReportData{
		GeneratedAt: generatedAt.Format(time.RFC3339),
		Stats:       stats,
		Outcomes:    metrics.FlattenOutcomes(stats.Types),
	}
	for _, t := range measure.AllTestTypes {
		v, ok := results.Get(t)
		if !ok {
			data.Skipped = append(data.Skipped, t.String())
			continue
		}
		data.Results = append(data.Results, ResultRow{Type: t.String(), Display: units.ForTestType(t, v), Value: v})
	}

	if err := reportTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"ms":       func(d time.Duration) string { return d.Round(time.Millisecond).String() },
	"num":      func(f float64) string { return fmt.Sprintf("%.2f", f) },
	"friendly": metrics.FriendlyOutcome,
}).Parse(htmlTemplate))

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Linkprobe Network Test Report</title>
    <style>
        * { box-sizing: border-box; }
        body { margin: 0; padding: 24px; font: 15px/1.5 system-ui, sans-serif; background: #eef2f6; color: #1f2933; }
        main { max-width: 1100px; margin: auto; background: #fff; border-radius: 6px; }
        header { padding: 24px 32px; background: #0f766e; color: #fff; border-radius: 6px 6px 0 0; }
        header h1 { margin: 0 0 4px; font-size: 1.8rem; }
        header p { margin: 0; opacity: .85; font-size: .9rem; }
        section { padding: 8px 32px 24px; }
        section h2 { font-size: 1.25rem; border-bottom: 1px solid #d9e2ec; padding-bottom: 6px; }
        .tiles { display: flex; flex-wrap: wrap; gap: 16px; }
        .tile { flex: 1 1 180px; padding: 16px; background: #f0fdfa; border-top: 3px solid #14b8a6; }
        .tile.skipped { background: #f5f7fa; border-top-color: #9aa5b1; }
        .tile small { display: block; text-transform: uppercase; color: #52606d; }
        .tile strong { font-size: 1.6rem; }
        table { width: 100%; border-collapse: collapse; }
        th, td { padding: 8px 10px; text-align: right; border-bottom: 1px solid #e4e7eb; }
        th:first-child, td:first-child { text-align: left; }
        th { font-size: .8rem; color: #52606d; text-transform: uppercase; }
    </style>
</head>
<body>
<main>
    <header>
        <h1>Network Test Report</h1>
        <p>Generated {{.GeneratedAt}} &middot; {{.Stats.Started}} tests in {{ms .Stats.Duration}}</p>
    </header>
    <section>
        <h2>Results</h2>
        <div class="tiles">
            {{range .Results}}<div class="tile"><small>{{.Type}}</small><strong>{{.Display}}</strong></div>
            {{else}}<div class="tile skipped"><small>Results</small><strong>No Results</strong></div>
            {{end}}
            {{range .Skipped}}<div class="tile skipped"><small>{{.}}</small><strong>&ndash;</strong></div>
            {{end}}
        </div>
    </section>
    {{if .Stats.Types}}
    <section>
        <h2>Breakdown</h2>
        <table>
            <tr><th>Type</th><th>Tasks</th><th>Samples</th><th>Min</th><th>Mean</th><th>P90</th><th>P99</th><th>Max</th></tr>
            {{range .Stats.Types}}<tr><td>{{.Type}}</td><td>{{.Tasks}}</td><td>{{.Samples}}</td><td>{{num .MinValue}}</td><td>{{num .MeanValue}}</td><td>{{num .P90Value}}</td><td>{{num .P99Value}}</td><td>{{num .MaxValue}}</td></tr>
            {{end}}
        </table>
    </section>
    {{end}}
    {{if .Outcomes}}
    <section>
        <h2>Outcomes</h2>
        <table>
            <tr><th>Type</th><th>Outcome</th><th>Count</th></tr>
            {{range .Outcomes}}<tr><td>{{.Type}}</td><td>{{friendly .Outcome}}</td><td>{{.Count}}</td></tr>
            {{end}}
        </table>
    </section>
    {{end}}
</main>
</body>
</html>
`
