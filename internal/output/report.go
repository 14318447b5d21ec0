package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rstmdb/rstmload/internal/clientmetrics"
	"github.com/rstmdb/rstmload/internal/metrics"
	"github.com/rstmdb/rstmload/internal/runner"
)

// Banner describes a run before it starts.
type Banner struct {
	Server        string
	TLS           bool
	Machine       string
	Version       uint32
	Instances     int
	Events        int
	Workers       int
	Concurrency   int
	RatePerSecond int
	ArrivalModel  string
}

// PrintBanner outputs the run configuration.
func PrintBanner(w io.Writer, b Banner) {
	fmt.Fprintln(w, "--- rstmdb Load Test ---")
	tls := "off"
	if b.TLS {
		tls = "on"
	}
	fmt.Fprintf(w, "Server:            %s (tls %s)\n", b.Server, tls)
	fmt.Fprintf(w, "Machine:           %s@%d\n", b.Machine, b.Version)
	fmt.Fprintf(w, "Instances:         %d\n", b.Instances)
	fmt.Fprintf(w, "Events/instance:   %d\n", b.Events)
	fmt.Fprintf(w, "Workers:           %d\n", b.Workers)
	fmt.Fprintf(w, "Concurrency:       %d\n", b.Concurrency)
	if b.RatePerSecond > 0 {
		fmt.Fprintf(w, "Rate:              %d ops/s (%s)\n", b.RatePerSecond, b.ArrivalModel)
	} else {
		fmt.Fprintln(w, "Rate:              unlimited")
	}
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, res runner.Result) {
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	fmt.Fprintf(w, "Machine:           %s\n", res.Machine)
	fmt.Fprintf(w, "Duration:          %s\n", res.Summary.Duration.Round(time.Millisecond))

	for _, rep := range res.Reports {
		fmt.Fprintf(w, "\n%s:\n", rep.Operation)
		fmt.Fprintf(w, "  Count:           %d\n", rep.Count)
		fmt.Fprintf(w, "  Errors:          %d\n", rep.Errors)
		fmt.Fprintf(w, "  Throughput:      %.2f ops/s\n", rep.Throughput)
		if l := rep.Latency; l != nil {
			fmt.Fprintf(w, "  Latency (ms):    min %.3f | mean %.3f | p50 %.3f | p90 %.3f | p99 %.3f | max %.3f\n",
				l.Min, l.Mean, l.P50, l.P90, l.P99, l.Max)
		} else {
			fmt.Fprintln(w, "  Latency (ms):    n/a")
		}
		writeErrorCounts(w, rep.ErrorBreakdown, "  ")
	}

	s := res.Summary
	fmt.Fprintln(w, "\n--- Summary ---")
	fmt.Fprintf(w, "Total Operations:  %d\n", s.TotalOperations)
	fmt.Fprintf(w, "Successful:        %d\n", s.Successful)
	fmt.Fprintf(w, "Failed:            %d\n", s.TotalErrors)
	fmt.Fprintf(w, "Throughput:        %.2f ops/s\n", s.Throughput)

	if n := len(res.ConnectionErrors); n > 0 {
		skipped := 0
		for _, ce := range res.ConnectionErrors {
			skipped += ce.Items
		}
		fmt.Fprintf(w, "Connection Errors: %d worker(s), %d instance(s) not attempted\n", n, skipped)
		for _, ce := range res.ConnectionErrors {
			fmt.Fprintf(w, "  - %v\n", ce)
		}
	}
	if res.Wire != (clientmetrics.Snapshot{}) {
		fmt.Fprintf(w, "Wire:              %d frames / %d bytes sent, %d frames / %d bytes received\n",
			res.Wire.FramesSent, res.Wire.BytesSent, res.Wire.FramesReceived, res.Wire.BytesReceived)
	}
}

type jsonConnectionError struct {
	Worker int    `json:"worker"`
	Items  int    `json:"items"`
	Error  string `json:"error"`
}

type jsonWire struct {
	FramesSent     int64 `json:"frames_sent"`
	FramesReceived int64 `json:"frames_received"`
	BytesSent      int64 `json:"bytes_sent"`
	BytesReceived  int64 `json:"bytes_received"`
	Errors         int64 `json:"errors"`
}

type jsonReport struct {
	Machine          string                `json:"machine"`
	Operations       []metrics.Report      `json:"operations"`
	Summary          metrics.Summary       `json:"summary"`
	ConnectionErrors []jsonConnectionError `json:"connection_errors,omitempty"`
	Wire             jsonWire              `json:"wire"`
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, res runner.Result) error {
	doc := jsonReport{
		Machine:    res.Machine,
		Operations: res.Reports,
		Summary:    res.Summary,
		Wire: jsonWire{
			FramesSent:     res.Wire.FramesSent,
			FramesReceived: res.Wire.FramesReceived,
			BytesSent:      res.Wire.BytesSent,
			BytesReceived:  res.Wire.BytesReceived,
			Errors:         res.Wire.Errors,
		},
	}
	for _, ce := range res.ConnectionErrors {
		doc.ConnectionErrors = append(doc.ConnectionErrors, jsonConnectionError{
			Worker: ce.Worker,
			Items:  ce.Items,
			Error:  ce.Err.Error(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func writeErrorCounts(w io.Writer, rows []metrics.ErrorCount, indent string) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(w, "%sErrors by code:\n", indent)
	for _, row := range rows {
		fmt.Fprintf(w, "%s  %s: %d\n", indent, row.Label, row.Count)
	}
}
