package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config describes one sweep: the target under test, the experiment shape,
// and the output surfaces. It is built once by the Loader and handed to the
// sweep controller; nothing mutates it afterwards.
type Config struct {
	TargetURL    string            `mapstructure:"target"`
	HoldDuration time.Duration     `mapstructure:"hold"`
	Levels       []int             `mapstructure:"levels"`
	SettleDelay  time.Duration     `mapstructure:"settle"`
	Cooldown     time.Duration     `mapstructure:"cooldown"`
	ProbeTimeout time.Duration     `mapstructure:"probe_timeout"`
	SafetyMargin time.Duration     `mapstructure:"safety_margin"`
	PoolHeadroom int               `mapstructure:"headroom"`
	ProbeRate    int               `mapstructure:"probe_rate"`
	ExpectStatus int               `mapstructure:"expect_status"`
	ExpectPath   string            `mapstructure:"expect_path"`
	ExpectValue  string            `mapstructure:"expect_value"`
	Headers      map[string]string `mapstructure:"headers"`
	JSONOutput   bool              `mapstructure:"json_output"`
	ChartOutput  string            `mapstructure:"chart_output"`
	HTMLOutput   string            `mapstructure:"html_output"`
	Dashboard    bool              `mapstructure:"dashboard"`
	LogErrors    bool              `mapstructure:"log_errors"`
	Thresholds   []string          `mapstructure:"thresholds"`
	Tracing      TracingConfig     `mapstructure:"tracing"`
	Serve        bool              `mapstructure:"-"`
	ServeAddr    string            `mapstructure:"-"`
	ConfigFile   string            `mapstructure:"-"`
}

type TracingProtocol string

const (
	TracingProtocolGRPC TracingProtocol = "grpc"
	TracingProtocolHTTP TracingProtocol = "http"
)

type TracingConfig struct {
	Enabled     bool            `mapstructure:"enabled"`
	Endpoint    string          `mapstructure:"endpoint"`
	Protocol    TracingProtocol `mapstructure:"protocol"`
	ServiceName string          `mapstructure:"service_name"`
	SampleRate  float64         `mapstructure:"sample_rate"`
	Insecure    bool            `mapstructure:"insecure"`
	Propagate   bool            `mapstructure:"propagate"`
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
	var warnings []string

	if c.Serve {
		if strings.TrimSpace(c.ServeAddr) == "" {
			issues = append(issues, "serve-addr is required in serve mode")
		}
		if len(issues) > 0 {
			return ValidationError{issues: issues}
		}
		return nil
	}

	if strings.TrimSpace(c.TargetURL) == "" {
		issues = append(issues, "target is required (use --help for usage information)")
	}

	if len(c.Levels) == 0 {
		issues = append(issues, "levels must contain at least one concurrency level")
	}
	maxLevel := 0
	for idx, level := range c.Levels {
		if level < 1 {
			issues = append(issues, fmt.Sprintf("levels[%d]: must be >= 1", idx))
		}
		if level > maxLevel {
			maxLevel = level
		}
	}

	// Security warning for high concurrency against a remote target
	if maxLevel > 500 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High concurrency configured (%d simultaneous holds). Ensure you have authorization to test the target system.", maxLevel))
	}

	if len(warnings) > 0 {
		for _, w := range warnings {
			fmt.Fprintln(os.Stderr, w)
		}
	}

	if c.HoldDuration <= 0 {
		issues = append(issues, "hold must be > 0")
	}
	if c.SettleDelay < 0 {
		issues = append(issues, "settle must be >= 0")
	}
	if c.Cooldown < 0 {
		issues = append(issues, "cooldown must be >= 0")
	}
	if c.ProbeTimeout <= 0 {
		issues = append(issues, "probe-timeout must be > 0")
	}
	if c.SafetyMargin < 0 {
		issues = append(issues, "safety-margin must be >= 0")
	}
	if c.PoolHeadroom < 1 {
		issues = append(issues, "headroom must be >= 1 so probes always have a connection beyond the holds")
	}
	if c.ProbeRate < 0 {
		issues = append(issues, "probe-rate must be >= 0")
	}
	if c.ExpectStatus < 100 || c.ExpectStatus > 599 {
		issues = append(issues, "expect-status must be a valid HTTP status code")
	}
	if strings.TrimSpace(c.ExpectValue) != "" && strings.TrimSpace(c.ExpectPath) == "" {
		issues = append(issues, "expect-value requires expect-path")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}

	tracingIssues := validateTracingConfig(c.Tracing)
	if len(tracingIssues) > 0 {
		issues = append(issues, tracingIssues...)
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

func validateTracingConfig(tc TracingConfig) []string {
	var issues []string
	if !tc.Enabled {
		return nil
	}
	switch tc.Protocol {
	case "", TracingProtocolGRPC, TracingProtocolHTTP:
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", tc.Protocol))
	}
	if tc.SampleRate < 0 || tc.SampleRate > 1 {
		issues = append(issues, "tracing: sample_rate must be between 0 and 1")
	}
	if strings.TrimSpace(tc.Endpoint) == "" {
		issues = append(issues, "tracing: endpoint is required when tracing is enabled")
	}
	return issues
}
