package runner_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/rstmdb/rstmload/internal/auth"
	"github.com/rstmdb/rstmload/internal/metrics"
	"github.com/rstmdb/rstmload/internal/protocol"
	"github.com/rstmdb/rstmload/internal/rstmclient"
	"github.com/rstmdb/rstmload/internal/rstmtest"
	"github.com/rstmdb/rstmload/internal/runner"
)

func sessionDialer(cfg rstmclient.Config) runner.Dialer {
	return runner.DialerFunc(func(ctx context.Context) (runner.Client, error) {
		s, err := rstmclient.DialSession(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

func TestRunnerAgainstServer(t *testing.T) {
	srv, err := rstmtest.NewServer(rstmtest.Options{Token: "load"})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())
	tracer := tp.Tracer("runner-test")

	r := runner.New(runner.Options{
		Dialer: sessionDialer(rstmclient.Config{
			Addr:   srv.Addr(),
			Auth:   auth.NewStaticTokenProvider("load"),
			Tracer: tracer,
		}),
		Instances:   10,
		Events:      3,
		Concurrency: 3,
		Tracer:      tracer,
	})
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !srv.HasMachine(res.Machine, 1) {
		t.Fatalf("machine %s@1 not registered", res.Machine)
	}
	if srv.Instances() != 0 {
		t.Errorf("%d instances left on the server", srv.Instances())
	}
	for op, want := range map[protocol.Operation]int{
		protocol.OpCreateInstance: 10,
		protocol.OpApplyEvent:     30,
		protocol.OpGetInstance:    10,
		protocol.OpDeleteInstance: 10,
		protocol.OpPutMachine:     1,
	} {
		if got := srv.Calls(op); got != want {
			t.Errorf("%s calls = %d, want %d", op, got, want)
		}
	}
	if res.Summary.TotalErrors != 0 {
		t.Errorf("errors = %+v", res.Summary.ErrorBreakdown)
	}
	if res.Summary.Successful != 60 {
		t.Errorf("successful = %d, want 60", res.Summary.Successful)
	}
	if res.Wire.FramesSent == 0 || res.Wire.BytesReceived == 0 {
		t.Errorf("wire metrics not collected: %+v", res.Wire)
	}

	lifecycles := 0
	for _, s := range exporter.GetSpans() {
		if s.Name == "instance lifecycle" {
			lifecycles++
		}
	}
	if lifecycles != 10 {
		t.Errorf("instance lifecycle spans = %d, want 10", lifecycles)
	}
}

func TestRunnerRecordsServerErrorCodes(t *testing.T) {
	srv, err := rstmtest.NewServer(rstmtest.Options{
		Fail: func(op protocol.Operation, _ json.RawMessage) protocol.ErrorCode {
			if op == protocol.OpGetInstance {
				return protocol.CodeInternalError
			}
			return ""
		},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	r := runner.New(runner.Options{
		Dialer:      sessionDialer(rstmclient.Config{Addr: srv.Addr()}),
		Instances:   4,
		Events:      1,
		Concurrency: 2,
	})
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var get metrics.Report
	for _, rep := range res.Reports {
		if rep.Operation == metrics.KindGet.String() {
			get = rep
		}
	}
	if get.Errors != 4 {
		t.Fatalf("get_instance errors = %d, want 4", get.Errors)
	}
	if len(get.ErrorBreakdown) != 1 || get.ErrorBreakdown[0].Label != string(protocol.CodeInternalError) {
		t.Errorf("breakdown = %+v, want %s", get.ErrorBreakdown, protocol.CodeInternalError)
	}
	if get.Latency != nil {
		t.Errorf("latency reported for an all-failed operation: %+v", get.Latency)
	}
	if srv.Instances() != 0 {
		t.Errorf("delete still runs after get fails; %d instances left", srv.Instances())
	}
}

func TestRunnerConnectionRefused(t *testing.T) {
	srv, err := rstmtest.NewServer(rstmtest.Options{})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	addr := srv.Addr()
	srv.Close()

	_, err = runner.New(runner.Options{
		Dialer:    sessionDialer(rstmclient.Config{Addr: addr}),
		Instances: 1,
	}).Run(context.Background())
	var se *runner.SetupError
	if err == nil || !errors.As(err, &se) {
		t.Fatalf("expected setup error, got %v", err)
	}
}
