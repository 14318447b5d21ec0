package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rstmload",
		Short:         "Load test an rstmdb server",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Connection flags
	flags.String("host", DefaultHost, "Server host")
	flags.Int("port", DefaultPort, "Server port")
	flags.StringP("token", "t", "", "Bearer token for authentication")
	flags.Bool("tls", false, "Connect over TLS")
	flags.BoolP("tls-insecure", "k", false, "Skip TLS certificate verification (implies --tls)")
	flags.String("tls-ca-cert", "", "PEM file with CA certificates to trust")
	flags.Duration("connect-timeout", DefaultConnectTimeout, "Timeout for establishing a session")
	flags.Duration("request-timeout", DefaultRequestTimeout, "Timeout for a single request")

	// Workload flags
	flags.IntP("instances", "n", DefaultInstances, "Total number of instances to create")
	flags.IntP("events", "e", DefaultEvents, "Events to apply per instance")
	flags.IntP("concurrency", "c", DefaultConcurrency, "Maximum concurrent worker sessions")
	flags.Int("workers", 0, "Number of workers to partition instances across (0 means one per concurrency slot)")
	flags.IntP("rate", "r", 0, "Operations per second limit across all workers (0 means unlimited)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model to use when pacing operations (uniform or poisson)")
	flags.String("machine-file", "", "Path to a YAML or JSON machine definition")
	flags.String("machine-name", "", "Machine name to register (default loadtest-<random>)")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.Bool("dashboard", false, "Show live terminal dashboard with metrics")
	flags.Bool("log-errors", false, "Log each failed operation to stderr")
	flags.String("log-level", DefaultLogLevel, "Log level: debug, info, warn or error")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Export spans without TLS")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of instance lifecycles to sample")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("host") {
		val, err := fs.GetString("host")
		if err != nil {
			return err
		}
		cfg.Host = strings.TrimSpace(val)
	}
	if fs.Changed("port") {
		val, err := fs.GetInt("port")
		if err != nil {
			return err
		}
		cfg.Port = val
	}
	if fs.Changed("token") {
		val, err := fs.GetString("token")
		if err != nil {
			return err
		}
		cfg.Token = val
	}
	if fs.Changed("tls") {
		val, err := fs.GetBool("tls")
		if err != nil {
			return err
		}
		cfg.TLS.Enabled = val
	}
	if fs.Changed("tls-insecure") {
		val, err := fs.GetBool("tls-insecure")
		if err != nil {
			return err
		}
		cfg.TLS.Insecure = val
	}
	if fs.Changed("tls-ca-cert") {
		val, err := fs.GetString("tls-ca-cert")
		if err != nil {
			return err
		}
		cfg.TLS.CACert = strings.TrimSpace(val)
	}
	if fs.Changed("connect-timeout") {
		val, err := fs.GetDuration("connect-timeout")
		if err != nil {
			return err
		}
		cfg.ConnectTimeout = val
	}
	if fs.Changed("request-timeout") {
		val, err := fs.GetDuration("request-timeout")
		if err != nil {
			return err
		}
		cfg.RequestTimeout = val
	}
	if fs.Changed("instances") {
		val, err := fs.GetInt("instances")
		if err != nil {
			return err
		}
		cfg.Instances = val
	}
	if fs.Changed("events") {
		val, err := fs.GetInt("events")
		if err != nil {
			return err
		}
		cfg.Events = val
	}
	if fs.Changed("concurrency") {
		val, err := fs.GetInt("concurrency")
		if err != nil {
			return err
		}
		cfg.Concurrency = val
	}
	if fs.Changed("workers") {
		val, err := fs.GetInt("workers")
		if err != nil {
			return err
		}
		cfg.Workers = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("machine-file") {
		val, err := fs.GetString("machine-file")
		if err != nil {
			return err
		}
		cfg.MachineFile = strings.TrimSpace(val)
	}
	if fs.Changed("machine-name") {
		val, err := fs.GetString("machine-name")
		if err != nil {
			return err
		}
		cfg.MachineName = strings.TrimSpace(val)
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}

	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	return nil
}
