package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "crowdprobe",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Experiment shape flags
	flags.String("target", "", "Base URL of the server under test")
	flags.Duration("hold", 20*time.Second, "How long each background hold asks the target to stall (/wait?seconds=...)")
	flags.IntSliceP("levels", "l", []int{1, 10, 100, 500}, "Concurrency levels to sweep, in run order")
	flags.Duration("settle", time.Second, "Pause between launching holds and the first probe")
	flags.Duration("cooldown", 5*time.Second, "Pause between consecutive trials")
	flags.Duration("probe-timeout", 10*time.Second, "Per-probe request timeout")
	flags.Duration("safety-margin", 5*time.Second, "Extra time past the hold duration before the probe loop gives up")
	flags.Int("headroom", 10, "Connection pool capacity beyond the trial's hold count")
	flags.IntP("probe-rate", "r", 0, "Probes per second limit (0 means back-to-back)")

	// Probe expectation flags
	flags.Int("expect-status", http.StatusOK, "Status code a probe must see to count as a success")
	flags.String("expect-path", "", "JSON path in the probe response body to assert on (gjson syntax)")
	flags.String("expect-value", "", "Value the expect-path lookup must equal")
	flags.StringSlice("header", nil, "Additional request header in key=value form")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.String("chart", "latency_distribution.svg", "Write the latency box plot to this file (empty disables)")
	flags.String("html-output", "", "Generate HTML report to the specified file path")
	flags.Bool("dashboard", false, "Show live terminal dashboard while the sweep runs")
	flags.Bool("log-errors", false, "Log each failed probe to stderr")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Pass/fail thresholds (repeatable, e.g., 'probe_latency:avg < 500')")

	// Tracing flags
	flags.Bool("trace", false, "Enable OpenTelemetry tracing")
	flags.String("trace-endpoint", "", "OTLP collector endpoint, e.g. localhost:4317 (or set OTEL_EXPORTER_OTLP_ENDPOINT)")
	flags.String("trace-protocol", string(TracingProtocolGRPC), "OTLP transport: 'grpc' or 'http'")
	flags.String("trace-service", "crowdprobe", "Service name reported on spans")
	flags.Float64("trace-sample-rate", 1.0, "Trace sampling ratio between 0 and 1")
	flags.Bool("trace-insecure", false, "Disable TLS for the OTLP exporter connection")
	flags.Bool("trace-propagate", false, "Inject W3C trace context headers into probe and hold requests")

	// Built-in target server flags
	flags.Bool("serve", false, "Run the built-in /wait + /query target server instead of a sweep")
	flags.String("serve-addr", ":8080", "Listen address for the built-in target server")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("target") {
		val, err := fs.GetString("target")
		if err != nil {
			return err
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}
	if fs.Changed("hold") {
		val, err := fs.GetDuration("hold")
		if err != nil {
			return err
		}
		cfg.HoldDuration = val
	}
	if fs.Changed("levels") {
		val, err := fs.GetIntSlice("levels")
		if err != nil {
			return err
		}
		cfg.Levels = val
	}
	if fs.Changed("settle") {
		val, err := fs.GetDuration("settle")
		if err != nil {
			return err
		}
		cfg.SettleDelay = val
	}
	if fs.Changed("cooldown") {
		val, err := fs.GetDuration("cooldown")
		if err != nil {
			return err
		}
		cfg.Cooldown = val
	}
	if fs.Changed("probe-timeout") {
		val, err := fs.GetDuration("probe-timeout")
		if err != nil {
			return err
		}
		cfg.ProbeTimeout = val
	}
	if fs.Changed("safety-margin") {
		val, err := fs.GetDuration("safety-margin")
		if err != nil {
			return err
		}
		cfg.SafetyMargin = val
	}
	if fs.Changed("headroom") {
		val, err := fs.GetInt("headroom")
		if err != nil {
			return err
		}
		cfg.PoolHeadroom = val
	}
	if fs.Changed("probe-rate") {
		val, err := fs.GetInt("probe-rate")
		if err != nil {
			return err
		}
		cfg.ProbeRate = val
	}
	if fs.Changed("expect-status") {
		val, err := fs.GetInt("expect-status")
		if err != nil {
			return err
		}
		cfg.ExpectStatus = val
	}
	if fs.Changed("expect-path") {
		val, err := fs.GetString("expect-path")
		if err != nil {
			return err
		}
		cfg.ExpectPath = strings.TrimSpace(val)
	}
	if fs.Changed("expect-value") {
		val, err := fs.GetString("expect-value")
		if err != nil {
			return err
		}
		cfg.ExpectValue = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("chart") {
		val, err := fs.GetString("chart")
		if err != nil {
			return err
		}
		cfg.ChartOutput = strings.TrimSpace(val)
	}
	if fs.Changed("html-output") {
		val, err := fs.GetString("html-output")
		if err != nil {
			return err
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
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

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	if fs.Changed("trace") {
		val, err := fs.GetBool("trace")
		if err != nil {
			return err
		}
		cfg.Tracing.Enabled = val
	}
	if fs.Changed("trace-endpoint") {
		val, err := fs.GetString("trace-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("trace-protocol") {
		val, err := fs.GetString("trace-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = TracingProtocol(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("trace-service") {
		val, err := fs.GetString("trace-service")
		if err != nil {
			return err
		}
		cfg.Tracing.ServiceName = strings.TrimSpace(val)
	}
	if fs.Changed("trace-sample-rate") {
		val, err := fs.GetFloat64("trace-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("trace-insecure") {
		val, err := fs.GetBool("trace-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("trace-propagate") {
		val, err := fs.GetBool("trace-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = val
	}

	if fs.Changed("serve") {
		val, err := fs.GetBool("serve")
		if err != nil {
			return err
		}
		cfg.Serve = val
	}
	if fs.Changed("serve-addr") {
		val, err := fs.GetString("serve-addr")
		if err != nil {
			return err
		}
		cfg.ServeAddr = strings.TrimSpace(val)
	}

	return nil
}
