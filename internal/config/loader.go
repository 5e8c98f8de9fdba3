package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

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

// Load parses command-line arguments and configuration files to produce a Config.
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

	// If no arguments provided and no config file, show help/usage
	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	settings := cfgViper.AllSettings()

	cfg := &Config{
		Headers:      map[string]string{},
		HoldDuration: 20 * time.Second,
		Levels:       []int{1, 10, 100, 500},
		SettleDelay:  time.Second,
		Cooldown:     5 * time.Second,
		ProbeTimeout: 10 * time.Second,
		SafetyMargin: 5 * time.Second,
		PoolHeadroom: 10,
		ExpectStatus: http.StatusOK,
		ChartOutput:  "latency_distribution.svg",
		ServeAddr:    ":8080",
		ConfigFile:   configPath,
		Tracing: TracingConfig{
			Protocol:    TracingProtocolGRPC,
			ServiceName: "crowdprobe",
			SampleRate:  1.0,
		},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.TargetURL = strings.TrimSpace(cfg.TargetURL)

	// Fallback to environment variable if no target was given
	if cfg.TargetURL == "" {
		if envTarget := os.Getenv("CROWDPROBE_TARGET"); envTarget != "" {
			cfg.TargetURL = strings.TrimSpace(envTarget)
		}
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		if envEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); envEndpoint != "" {
			cfg.Tracing.Endpoint = strings.TrimSpace(envEndpoint)
		}
	}

	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "hold", "hold_duration", "hold-duration"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("hold: %w", err)
		}
		cfg.HoldDuration = dur
	}

	if raw, ok := lookupSetting(settings, "levels", "concurrency_levels", "concurrency-levels"); ok {
		levels, err := asIntSlice(raw)
		if err != nil {
			return fmt.Errorf("levels: %w", err)
		}
		if len(levels) > 0 {
			cfg.Levels = levels
		}
	}

	if raw, ok := lookupSetting(settings, "settle", "settle_delay", "settle-delay"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("settle: %w", err)
		}
		cfg.SettleDelay = dur
	}

	if raw, ok := lookupSetting(settings, "cooldown"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("cooldown: %w", err)
		}
		cfg.Cooldown = dur
	}

	if raw, ok := lookupSetting(settings, "probetimeout", "probe_timeout", "probe-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("probeTimeout: %w", err)
		}
		cfg.ProbeTimeout = dur
	}

	if raw, ok := lookupSetting(settings, "safetymargin", "safety_margin", "safety-margin"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("safetyMargin: %w", err)
		}
		cfg.SafetyMargin = dur
	}

	if raw, ok := lookupSetting(settings, "headroom", "pool_headroom", "pool-headroom"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("headroom: %w", err)
		}
		cfg.PoolHeadroom = val
	}

	if raw, ok := lookupSetting(settings, "proberate", "probe_rate", "probe-rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("probeRate: %w", err)
		}
		cfg.ProbeRate = val
	}

	if raw, ok := lookupSetting(settings, "expectstatus", "expect_status", "expect-status"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("expectStatus: %w", err)
		}
		if val != 0 {
			cfg.ExpectStatus = val
		}
	}

	if raw, ok := lookupSetting(settings, "expectpath", "expect_path", "expect-path"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("expectPath: %w", err)
		}
		cfg.ExpectPath = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "expectvalue", "expect_value", "expect-value"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("expectValue: %w", err)
		}
		cfg.ExpectValue = val
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("jsonOutput: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "chart", "chart_output", "chart-output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("chart: %w", err)
		}
		cfg.ChartOutput = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "htmloutput", "html_output", "html-output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("htmlOutput: %w", err)
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "logerrors", "log_errors", "log-errors"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("logErrors: %w", err)
		}
		cfg.LogErrors = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	return nil
}

// parseTracing merges a tracing section from the config file over the defaults.
func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	if value == nil {
		return base, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	tc := base
	if raw, ok := lookupSetting(entry, "enabled"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("enabled: %w", err)
		}
		tc.Enabled = val
	}
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		if trimmed := strings.ToLower(strings.TrimSpace(val)); trimmed != "" {
			tc.Protocol = TracingProtocol(trimmed)
		}
	}
	if raw, ok := lookupSetting(entry, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			tc.ServiceName = trimmed
		}
	}
	if raw, ok := lookupSetting(entry, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		tc.SampleRate = val
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		tc.Insecure = val
	}
	if raw, ok := lookupSetting(entry, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		tc.Propagate = val
	}
	return tc, nil
}
