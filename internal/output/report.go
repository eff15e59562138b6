package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/linkprobe/internal/config"
	"github.com/torosent/linkprobe/internal/measure"
	"github.com/torosent/linkprobe/internal/metrics"
	"github.com/torosent/linkprobe/internal/suite"
	"github.com/torosent/linkprobe/internal/threshold"
	"github.com/torosent/linkprobe/internal/units"
)

// Report is the serialized form of a finished suite.
type Report struct {
	Results suite.Results     `json:"results" yaml:"results"`
	Display map[string]string `json:"display,omitempty" yaml:"display,omitempty"`
	Metrics metrics.Stats     `json:"metrics" yaml:"metrics"`
}

// NewReport pairs results with their display strings and the metrics stats.
func NewReport(results suite.Results, stats metrics.Stats) Report {
	display := make(map[string]string)
	for _, t := range measure.AllTestTypes {
		if v, ok := results.Get(t); ok {
			display[t.String()] = units.ForTestType(t, v)
		}
	}
	return Report{Results: results, Display: display, Metrics: stats}
}

// Write renders the report in format. An empty format means text.
func Write(w io.Writer, format config.OutputFormat, results suite.Results, stats metrics.Stats) error {
	switch format {
	case "", config.OutputText:
		PrintReport(w, results, stats)
		return nil
	case config.OutputJSON:
		return PrintJSONReport(w, results, stats)
	case config.OutputYAML:
		return PrintYAMLReport(w, results, stats)
	case config.OutputHTML:
		return GenerateHTMLReport(w, results, stats, time.Now())
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, results suite.Results, stats metrics.Stats) {
	fmt.Fprintln(w, "\n--- Network Test Results ---")
	if results.Len() == 0 {
		fmt.Fprintln(w, "No Results")
	}
	for _, t := range measure.AllTestTypes {
		if v, ok := results.Get(t); ok {
			fmt.Fprintf(w, "%-18s %s\n", t.String()+":", units.ForTestType(t, v))
		}
	}

	fmt.Fprintln(w, "\nTasks:")
	fmt.Fprintf(w, "  Started:         %d\n", stats.Started)
	fmt.Fprintf(w, "  Finished:        %d\n", stats.Finished)
	fmt.Fprintf(w, "  Rejected:        %d\n", stats.Rejected)
	fmt.Fprintf(w, "  Duration:        %s\n", stats.Duration.Round(time.Millisecond))

	if len(stats.Types) > 0 {
		fmt.Fprintln(w, "\nBreakdown:")
		for _, ts := range stats.Types {
			fmt.Fprintf(
				w,
				"  - %s: tasks=%d, samples=%d, min=%.2f, mean=%.2f, p99=%.2f, mean duration=%s\n",
				ts.Type,
				ts.Tasks,
				ts.Samples,
				ts.MinValue,
				ts.MeanValue,
				ts.P99Value,
				ts.MeanDuration.Round(time.Millisecond),
			)
		}
	}

	if len(stats.Types) > 0 {
		fmt.Fprintln(w, "\nOutcomes:")
		writeOutcomes(w, stats.Types, "  ")
	}
}

// PrintThresholdResults lists every threshold with its pass or fail mark.
func PrintThresholdResults(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	failed := threshold.Failed(results)
	fmt.Fprintf(w, "\nThresholds: %d passed, %d failed\n", len(results)-failed, failed)
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, results suite.Results, stats metrics.Stats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewReport(results, stats))
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, results suite.Results, stats metrics.Stats) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(NewReport(results, stats)); err != nil {
		return err
	}
	return enc.Close()
}

func writeOutcomes(w io.Writer, types []metrics.TypeStats, indent string) {
	rows := metrics.FlattenOutcomes(types)
	if len(rows) == 0 {
		fmt.Fprintf(w, "%sNone\n", indent)
		return
	}
	for _, row := range rows {
		fmt.Fprintf(
			w,
			"%s%s %s: %d\n",
			indent,
			strings.ToUpper(row.Type),
			metrics.FriendlyOutcome(row.Outcome),
			row.Count,
		)
	}
}
