package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/torosent/tcpcrank/internal/metrics"
)

// Report is the machine-readable summary of a run.
type Report struct {
	RunID         string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Target        string `json:"target,omitempty" yaml:"target,omitempty"`
	metrics.Stats `yaml:",inline"`
	ErrorKinds    []metrics.ErrorBucket `json:"error_kinds,omitempty" yaml:"error_kinds,omitempty"`
}

// NewReport builds a Report from collector stats.
func NewReport(runID, target string, stats metrics.Stats) Report {
	return Report{
		RunID:      runID,
		Target:     target,
		Stats:      stats,
		ErrorKinds: metrics.FlattenErrorKinds(stats.Errors),
	}
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, stats metrics.Stats) {
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	fmt.Fprintf(w, "Sessions:          %d\n", stats.Sessions)
	fmt.Fprintf(w, "  Succeeded:       %d\n", stats.SessionSuccesses)
	fmt.Fprintf(w, "  Failed:          %d\n", stats.SessionFailures)
	fmt.Fprintf(w, "Total Requests:    %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failures)
	fmt.Fprintf(w, "Bytes Sent:        %d\n", stats.BytesSent)
	fmt.Fprintf(w, "Bytes Received:    %d\n", stats.BytesReceived)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)
	fmt.Fprintf(w, "Sessions/sec:      %.2f\n", stats.SessionsPerSec)

	fmt.Fprintln(w, "\nConnect Latency:")
	writeLatency(w, stats.Connect)
	fmt.Fprintln(w, "\nRequest Latency:")
	writeLatency(w, stats.Latency)

	if rows := metrics.FlattenErrorKinds(stats.Errors); len(rows) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, row := range rows {
			fmt.Fprintf(w, "  %s: %d\n", row.Kind, row.Count)
		}
	}
}

func writeLatency(w io.Writer, l metrics.LatencyStats) {
	fmt.Fprintf(w, "  Min:             %s\n", l.Min)
	fmt.Fprintf(w, "  Max:             %s\n", l.Max)
	fmt.Fprintf(w, "  Mean:            %s\n", l.Mean)
	fmt.Fprintf(w, "  P50:             %s\n", l.P50)
	fmt.Fprintf(w, "  P90:             %s\n", l.P90)
	fmt.Fprintf(w, "  P95:             %s\n", l.P95)
	fmt.Fprintf(w, "  P99:             %s\n", l.P99)
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, report Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}
