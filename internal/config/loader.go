package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Default returns the configuration used when neither flags nor a config
// file override anything.
func Default() *Config {
	return &Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		Instances:      DefaultInstances,
		Events:         DefaultEvents,
		Concurrency:    DefaultConcurrency,
		ConnectTimeout: DefaultConnectTimeout,
		RequestTimeout: DefaultRequestTimeout,
		LogLevel:       DefaultLogLevel,
		Arrival:        ArrivalConfig{Model: ArrivalModelUniform},
		Tracing:        TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// Load parses command-line arguments and configuration files to produce a Config.
// Flags take precedence over config file values.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(extra, " "))
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	if cfg.TLS.Insecure {
		cfg.TLS.Enabled = true
	}
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "host"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("host: %w", err)
		}
		cfg.Host = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "port"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		cfg.Port = val
	}

	if raw, ok := lookupSetting(settings, "token"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("token: %w", err)
		}
		cfg.Token = val
	}

	if raw, ok := lookupSetting(settings, "tls"); ok {
		tls, err := parseTLS(raw)
		if err != nil {
			return fmt.Errorf("tls: %w", err)
		}
		cfg.TLS = tls
	}

	intSettings := []struct {
		keys   []string
		target *int
	}{
		{[]string{"instances"}, &cfg.Instances},
		{[]string{"events", "events_per_instance"}, &cfg.Events},
		{[]string{"concurrency"}, &cfg.Concurrency},
		{[]string{"workers"}, &cfg.Workers},
		{[]string{"rate"}, &cfg.Rate},
	}
	for _, s := range intSettings {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.target = val
		}
	}

	if raw, ok := lookupSetting(settings, "arrival"); ok {
		arrival, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		cfg.Arrival = arrival
	}

	if raw, ok := lookupSetting(settings, "connect_timeout", "connecttimeout", "connect-timeout"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("connect_timeout: %w", err)
		}
		cfg.ConnectTimeout = val
	}

	if raw, ok := lookupSetting(settings, "request_timeout", "requesttimeout", "request-timeout"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
		cfg.RequestTimeout = val
	}

	if raw, ok := lookupSetting(settings, "machine_file", "machinefile", "machine-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("machine_file: %w", err)
		}
		cfg.MachineFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "machine_name", "machinename", "machine-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("machine_name: %w", err)
		}
		cfg.MachineName = strings.TrimSpace(val)
	}

	boolSettings := []struct {
		keys   []string
		target *bool
	}{
		{[]string{"json_output", "jsonoutput", "json-output"}, &cfg.JSONOutput},
		{[]string{"dashboard"}, &cfg.Dashboard},
		{[]string{"log_errors", "logerrors", "log-errors"}, &cfg.LogErrors},
	}
	for _, s := range boolSettings {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.target = val
		}
	}

	if raw, ok := lookupSetting(settings, "log_level", "loglevel", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		cfg.LogLevel = val
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

func parseTLS(value interface{}) (TLSConfig, error) {
	if b, ok := value.(bool); ok {
		return TLSConfig{Enabled: b}, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return TLSConfig{}, err
	}
	var tls TLSConfig
	if raw, ok := lookupSetting(settings, "enabled"); ok {
		if tls.Enabled, err = asBool(raw); err != nil {
			return TLSConfig{}, fmt.Errorf("enabled: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		if tls.Insecure, err = asBool(raw); err != nil {
			return TLSConfig{}, fmt.Errorf("insecure: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "ca_cert", "cacert", "ca-cert"); ok {
		val, err := asString(raw)
		if err != nil {
			return TLSConfig{}, fmt.Errorf("ca_cert: %w", err)
		}
		tls.CACert = strings.TrimSpace(val)
	}
	return tls, nil
}

func parseArrival(value interface{}) (ArrivalConfig, error) {
	if s, ok := value.(string); ok {
		return ArrivalConfig{Model: ArrivalModel(strings.ToLower(strings.TrimSpace(s)))}, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return ArrivalConfig{}, err
	}
	arrival := ArrivalConfig{Model: ArrivalModelUniform}
	if raw, ok := lookupSetting(settings, "model"); ok {
		val, err := asString(raw)
		if err != nil {
			return ArrivalConfig{}, fmt.Errorf("model: %w", err)
		}
		if val != "" {
			arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
		}
	}
	return arrival, nil
}

func applyTracingSettings(t *TracingConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		t.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		if t.Insecure, err = asBool(raw); err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "service_name", "servicename"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		t.ServiceName = val
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate"); ok {
		if t.SampleRate, err = asFloat64(raw); err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = &val
	}
	return nil
}
