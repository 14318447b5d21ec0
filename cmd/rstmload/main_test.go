package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rstmdb/rstmload/internal/config"
	"github.com/rstmdb/rstmload/internal/protocol"
	"github.com/rstmdb/rstmload/internal/rstmtest"
	"github.com/rstmdb/rstmload/internal/runner"
)

func startServer(t *testing.T, opts rstmtest.Options) (host, port string) {
	t.Helper()
	srv, err := rstmtest.NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	host, port, err = net.SplitHostPort(srv.Addr())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	return host, port
}

func TestRunJSONReport(t *testing.T) {
	host, port := startServer(t, rstmtest.Options{Token: "secret"})

	var stdout, stderr bytes.Buffer
	err := run([]string{
		"--host", host, "--port", port, "--token", "secret",
		"--instances", "6", "--events", "2", "--concurrency", "2",
		"--json-output", "--log-level", "error",
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	var doc struct {
		Machine    string `json:"machine"`
		Operations []struct {
			Operation string `json:"operation"`
			Count     int64  `json:"count"`
			Errors    int64  `json:"errors"`
		} `json:"operations"`
		Summary struct {
			TotalOperations int64 `json:"total_operations"`
			TotalErrors     int64 `json:"total_errors"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &doc); err != nil {
		t.Fatalf("stdout is not a JSON report: %v\n%s", err, stdout.String())
	}
	if !strings.HasPrefix(doc.Machine, "loadtest-") {
		t.Errorf("machine = %q", doc.Machine)
	}
	if doc.Summary.TotalOperations != 30 || doc.Summary.TotalErrors != 0 {
		t.Errorf("summary = %+v, want 30 operations without errors", doc.Summary)
	}
	want := map[string]int64{"create_instance": 6, "apply_event": 12, "get_instance": 6, "delete_instance": 6}
	for _, op := range doc.Operations {
		if op.Count != want[op.Operation] {
			t.Errorf("%s count = %d, want %d", op.Operation, op.Count, want[op.Operation])
		}
	}
}

func TestRunTextReportWithOperationFailures(t *testing.T) {
	host, port := startServer(t, rstmtest.Options{
		Fail: func(op protocol.Operation, _ json.RawMessage) protocol.ErrorCode {
			if op == protocol.OpApplyEvent {
				return protocol.CodeInvalidTransition
			}
			return ""
		},
	})

	var stdout, stderr bytes.Buffer
	err := run([]string{
		"--host", host, "--port", port,
		"-n", "2", "-e", "5", "-c", "1",
		"--machine-name", "orders",
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("operation failures must not fail the run: %v", err)
	}
	out := stdout.String()
	for _, want := range []string{"Machine:           orders@1", "Load Test Results", "INVALID_TRANSITION: 2", "Failed:            2"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRunMachineFile(t *testing.T) {
	host, port := startServer(t, rstmtest.Options{})
	dir := t.TempDir()

	good := filepath.Join(dir, "toggle.yaml")
	if err := os.WriteFile(good, []byte(`states: [up, down]
initial: down
transitions:
  - {from: down, event: NEXT, to: up}
  - {from: up, event: NEXT, to: down}
`), 0o600); err != nil {
		t.Fatal(err)
	}
	var stdout bytes.Buffer
	if err := run([]string{"--host", host, "--port", port, "-n", "1", "-e", "3", "--machine-file", good, "--json-output"}, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	bad := filepath.Join(dir, "noevent.yaml")
	if err := os.WriteFile(bad, []byte("states: [a]\ninitial: a\ntransitions: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	err := run([]string{"--host", host, "--port", port, "--machine-file", bad}, &bytes.Buffer{}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "NEXT") {
		t.Fatalf("expected missing NEXT transition error, got %v", err)
	}
}

func TestRunSetupFailure(t *testing.T) {
	host, port := startServer(t, rstmtest.Options{Token: "right"})

	var stdout bytes.Buffer
	err := run([]string{"--host", host, "--port", port, "--token", "wrong", "-n", "1"}, &stdout, &bytes.Buffer{})
	var se *runner.SetupError
	if !errors.As(err, &se) {
		t.Fatalf("expected setup error, got %v", err)
	}
	if strings.Contains(stdout.String(), "Load Test Results") {
		t.Errorf("no report expected after a setup failure:\n%s", stdout.String())
	}
}

func TestRunConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"invalid port", []string{"--port", "0"}},
		{"negative instances", []string{"--instances", "-1"}},
		{"unknown flag", []string{"--bogus"}},
		{"positional argument", []string{"extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := run(tt.args, &bytes.Buffer{}, &bytes.Buffer{}); err == nil {
				t.Fatalf("run(%v) should fail", tt.args)
			}
		})
	}
}

func TestRunHelp(t *testing.T) {
	if err := run([]string{"--help"}, &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
		t.Fatalf("help should not be an error: %v", err)
	}
}

func TestToRunnerArrivalModel(t *testing.T) {
	tests := []struct {
		input config.ArrivalModel
		want  runner.ArrivalModel
	}{
		{config.ArrivalModelUniform, runner.ArrivalModelUniform},
		{config.ArrivalModelPoisson, runner.ArrivalModelPoisson},
		{"POISSON", runner.ArrivalModelPoisson},
		{"unknown", runner.ArrivalModelUniform},
	}

	for _, tt := range tests {
		got := toRunnerArrivalModel(tt.input)
		if got != tt.want {
			t.Errorf("toRunnerArrivalModel(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
