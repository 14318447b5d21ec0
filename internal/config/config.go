package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 7401
	DefaultInstances      = 100
	DefaultEvents         = 10
	DefaultConcurrency    = 10
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultLogLevel       = "info"
)

type Config struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Token          string        `mapstructure:"token"`
	TLS            TLSConfig     `mapstructure:"tls"`
	Instances      int           `mapstructure:"instances"`
	Events         int           `mapstructure:"events"`
	Concurrency    int           `mapstructure:"concurrency"`
	Workers        int           `mapstructure:"workers"`
	Rate           int           `mapstructure:"rate"`
	Arrival        ArrivalConfig `mapstructure:"arrival"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MachineFile    string        `mapstructure:"machine_file"`
	MachineName    string        `mapstructure:"machine_name"`
	JSONOutput     bool          `mapstructure:"json_output"`
	Dashboard      bool          `mapstructure:"dashboard"`
	LogErrors      bool          `mapstructure:"log_errors"`
	LogLevel       string        `mapstructure:"log_level"`
	Tracing        TracingConfig `mapstructure:"tracing"`
	ConfigFile     string        `mapstructure:"-"`
}

// Addr returns the server address in host:port form.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// EffectiveWorkers is the number of workers the run is partitioned across.
// Zero means one worker per concurrency slot.
func (c Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return c.Concurrency
}

type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Insecure bool   `mapstructure:"insecure"` // skip certificate verification
	CACert   string `mapstructure:"ca_cert"`  // PEM bundle to trust
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`     // OTLP collector host:port
	Protocol    string  `mapstructure:"protocol"`     // "grpc" or "http"
	Insecure    bool    `mapstructure:"insecure"`     // plaintext export
	ServiceName string  `mapstructure:"service_name"` // defaults to OTEL_SERVICE_NAME or rstmload
	SampleRate  float64 `mapstructure:"sample_rate"`  // 0.0 - 1.0
	Propagate   *bool   `mapstructure:"propagate"`    // nil means propagate when enabled
}

// Enabled reports whether an exporter endpoint is configured.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate reports whether trace context is embedded in event payloads.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return true
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.Host) == "" {
		issues = append(issues, "host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		issues = append(issues, fmt.Sprintf("port must be between 1 and 65535, got %d", c.Port))
	}

	if c.Concurrency > 500 {
		fmt.Fprintf(os.Stderr, "WARNING: High concurrency configured (%d sessions). Ensure you have authorization to load the target server.\n", c.Concurrency)
	}
	if c.Rate > 10000 {
		fmt.Fprintf(os.Stderr, "WARNING: High rate limit configured (%d ops/s). Ensure you have authorization to load the target server.\n", c.Rate)
	}

	if c.Instances < 0 {
		issues = append(issues, "instances must be >= 0")
	}
	if c.Events < 0 {
		issues = append(issues, "events must be >= 0")
	}
	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	if c.Workers < 0 {
		issues = append(issues, "workers must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.ConnectTimeout < 0 {
		issues = append(issues, "connect-timeout must be >= 0")
	}
	if c.RequestTimeout < 0 {
		issues = append(issues, "request-timeout must be >= 0")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}

	if !c.TLS.Enabled && strings.TrimSpace(c.TLS.CACert) != "" {
		issues = append(issues, "tls-ca-cert requires tls to be enabled")
	}
	if c.TLS.Insecure {
		fmt.Fprintln(os.Stderr, "WARNING: TLS certificate verification is DISABLED. This should ONLY be used against development servers.")
	}

	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log level %q is not supported", c.LogLevel))
	}

	issues = append(issues, validateArrivalConfig(c.Arrival)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

func validateArrivalConfig(arr ArrivalConfig) []string {
	model := arr.Model
	if model == "" {
		model = ArrivalModelUniform
	}
	switch model {
	case ArrivalModelUniform, ArrivalModelPoisson:
		return nil
	default:
		return []string{fmt.Sprintf("arrival model %q is not supported", model)}
	}
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol %q is not supported (use grpc or http)", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
