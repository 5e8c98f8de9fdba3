package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crowdprobe/crowdprobe/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	loader := config.NewLoader()

	cfg, err := loader.Load([]string{"--target", "http://localhost:8080"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TargetURL != "http://localhost:8080" {
		t.Errorf("TargetURL = %q, want http://localhost:8080", cfg.TargetURL)
	}
	if cfg.HoldDuration != 20*time.Second {
		t.Errorf("HoldDuration = %s, want 20s", cfg.HoldDuration)
	}
	wantLevels := []int{1, 10, 100, 500}
	if len(cfg.Levels) != len(wantLevels) {
		t.Fatalf("Levels = %v, want %v", cfg.Levels, wantLevels)
	}
	for i, level := range wantLevels {
		if cfg.Levels[i] != level {
			t.Errorf("Levels[%d] = %d, want %d", i, cfg.Levels[i], level)
		}
	}
	if cfg.SettleDelay != time.Second {
		t.Errorf("SettleDelay = %s, want 1s", cfg.SettleDelay)
	}
	if cfg.Cooldown != 5*time.Second {
		t.Errorf("Cooldown = %s, want 5s", cfg.Cooldown)
	}
	if cfg.ProbeTimeout != 10*time.Second {
		t.Errorf("ProbeTimeout = %s, want 10s", cfg.ProbeTimeout)
	}
	if cfg.SafetyMargin != 5*time.Second {
		t.Errorf("SafetyMargin = %s, want 5s", cfg.SafetyMargin)
	}
	if cfg.PoolHeadroom != 10 {
		t.Errorf("PoolHeadroom = %d, want 10", cfg.PoolHeadroom)
	}
	if cfg.ProbeRate != 0 {
		t.Errorf("ProbeRate = %d, want 0", cfg.ProbeRate)
	}
	if cfg.ExpectStatus != 200 {
		t.Errorf("ExpectStatus = %d, want 200", cfg.ExpectStatus)
	}
	if cfg.ChartOutput != "latency_distribution.svg" {
		t.Errorf("ChartOutput = %q, want latency_distribution.svg", cfg.ChartOutput)
	}
	if cfg.JSONOutput {
		t.Errorf("JSONOutput = true, want false")
	}
	if len(cfg.Headers) != 0 {
		t.Errorf("Headers len = %d, want 0", len(cfg.Headers))
	}
}

func TestLoadNoArgsShowsHelp(t *testing.T) {
	loader := config.NewLoader()

	_, err := loader.Load([]string{})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load() error = %v, want ErrHelpRequested", err)
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{
		"target": "https://api.example.com",
		"hold": "30s",
		"levels": [2, 4, 8],
		"settle": 0.5,
		"cooldown": 2,
		"probe_timeout": "5s",
		"headroom": 4,
		"headers": {"X-Env": "staging"},
		"jsonOutput": true
	}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load([]string{"--config", path, "--hold", "25s", "--header", "Authorization=Bearer token"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TargetURL != "https://api.example.com" {
		t.Errorf("TargetURL = %q, want https://api.example.com", cfg.TargetURL)
	}
	if cfg.HoldDuration != 25*time.Second {
		t.Errorf("HoldDuration = %s, want flag override 25s", cfg.HoldDuration)
	}
	if len(cfg.Levels) != 3 || cfg.Levels[0] != 2 || cfg.Levels[1] != 4 || cfg.Levels[2] != 8 {
		t.Errorf("Levels = %v, want [2 4 8]", cfg.Levels)
	}
	if cfg.SettleDelay != 500*time.Millisecond {
		t.Errorf("SettleDelay = %s, want 500ms", cfg.SettleDelay)
	}
	if cfg.Cooldown != 2*time.Second {
		t.Errorf("Cooldown = %s, want 2s", cfg.Cooldown)
	}
	if cfg.ProbeTimeout != 5*time.Second {
		t.Errorf("ProbeTimeout = %s, want 5s", cfg.ProbeTimeout)
	}
	if cfg.PoolHeadroom != 4 {
		t.Errorf("PoolHeadroom = %d, want 4", cfg.PoolHeadroom)
	}
	if cfg.Headers["X-Env"] != "staging" {
		t.Errorf("Headers[X-Env] = %q, want staging", cfg.Headers["X-Env"])
	}
	if cfg.Headers["Authorization"] != "Bearer token" {
		t.Errorf("Headers[Authorization] = %q, want Bearer token", cfg.Headers["Authorization"])
	}
	if !cfg.JSONOutput {
		t.Errorf("JSONOutput = false, want true")
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content, err := yaml.Marshal(map[string]interface{}{
		"target":   "https://service.example.com",
		"hold":     12,
		"levels":   []int{3, 6},
		"cooldown": "250ms",
		"headers":  map[string]string{"X-Env": "staging"},
		"thresholds": []string{
			"probe_latency:avg < 500",
		},
		"tracing": map[string]interface{}{
			"enabled":     true,
			"endpoint":    "collector:4318",
			"protocol":    "http",
			"sample_rate": 0.25,
		},
	})
	if err != nil {
		t.Fatalf("yaml.Marshal() error = %v", err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TargetURL != "https://service.example.com" {
		t.Errorf("TargetURL = %q, want https://service.example.com", cfg.TargetURL)
	}
	if cfg.HoldDuration != 12*time.Second {
		t.Errorf("HoldDuration = %s, want 12s", cfg.HoldDuration)
	}
	if len(cfg.Levels) != 2 || cfg.Levels[0] != 3 || cfg.Levels[1] != 6 {
		t.Errorf("Levels = %v, want [3 6]", cfg.Levels)
	}
	if cfg.Cooldown != 250*time.Millisecond {
		t.Errorf("Cooldown = %s, want 250ms", cfg.Cooldown)
	}
	if cfg.Headers["X-Env"] != "staging" {
		t.Errorf("Headers[X-Env] = %q, want staging", cfg.Headers["X-Env"])
	}
	if len(cfg.Thresholds) != 1 || cfg.Thresholds[0] != "probe_latency:avg < 500" {
		t.Errorf("Thresholds = %v, want the configured expression", cfg.Thresholds)
	}
	if !cfg.Tracing.Enabled {
		t.Errorf("Tracing.Enabled = false, want true")
	}
	if cfg.Tracing.Endpoint != "collector:4318" {
		t.Errorf("Tracing.Endpoint = %q, want collector:4318", cfg.Tracing.Endpoint)
	}
	if cfg.Tracing.Protocol != config.TracingProtocolHTTP {
		t.Errorf("Tracing.Protocol = %q, want http", cfg.Tracing.Protocol)
	}
	if cfg.Tracing.SampleRate != 0.25 {
		t.Errorf("Tracing.SampleRate = %v, want 0.25", cfg.Tracing.SampleRate)
	}
	if cfg.Tracing.ServiceName != "crowdprobe" {
		t.Errorf("Tracing.ServiceName = %q, want default crowdprobe", cfg.Tracing.ServiceName)
	}
}

func TestFlagLevelsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"target":"http://example.com","levels":[2,4]}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load([]string{"--config", path, "--levels", "1,5"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Levels) != 2 || cfg.Levels[0] != 1 || cfg.Levels[1] != 5 {
		t.Errorf("Levels = %v, want [1 5]", cfg.Levels)
	}
}

func TestTargetFromEnvironment(t *testing.T) {
	t.Setenv("CROWDPROBE_TARGET", "http://env.example.com")

	loader := config.NewLoader()
	cfg, err := loader.Load([]string{"--hold", "1s"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TargetURL != "http://env.example.com" {
		t.Errorf("TargetURL = %q, want http://env.example.com", cfg.TargetURL)
	}
}

func TestConfigValidationErrors(t *testing.T) {
	valid := config.Config{
		TargetURL:    "https://example.com",
		HoldDuration: 20 * time.Second,
		Levels:       []int{1, 10},
		ProbeTimeout: 10 * time.Second,
		PoolHeadroom: 10,
		ExpectStatus: 200,
	}

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
	}{
		{
			name:   "missing target",
			mutate: func(c *config.Config) { c.TargetURL = "" },
			want:   []string{"target"},
		},
		{
			name: "bad durations",
			mutate: func(c *config.Config) {
				c.HoldDuration = 0
				c.ProbeTimeout = 0
				c.SettleDelay = -time.Second
				c.Cooldown = -time.Second
			},
			want: []string{"hold", "probe-timeout", "settle", "cooldown"},
		},
		{
			name:   "empty levels",
			mutate: func(c *config.Config) { c.Levels = nil },
			want:   []string{"levels"},
		},
		{
			name:   "non-positive level",
			mutate: func(c *config.Config) { c.Levels = []int{1, 0} },
			want:   []string{"levels[1]"},
		},
		{
			name:   "headroom too small",
			mutate: func(c *config.Config) { c.PoolHeadroom = 0 },
			want:   []string{"headroom"},
		},
		{
			name: "dashboard json conflict",
			mutate: func(c *config.Config) {
				c.Dashboard = true
				c.JSONOutput = true
			},
			want: []string{"mutually exclusive"},
		},
		{
			name:   "expect value without path",
			mutate: func(c *config.Config) { c.ExpectValue = "ok" },
			want:   []string{"expect-path"},
		},
		{
			name: "tracing enabled without endpoint",
			mutate: func(c *config.Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 2
			},
			want: []string{"endpoint", "sample_rate"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			cfg.Levels = append([]int(nil), valid.Levels...)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() error = nil, want error")
			}
			for _, want := range tc.want {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Validate() error %q missing %q", err.Error(), want)
				}
			}
		})
	}
}

func TestConfigValidationOK(t *testing.T) {
	cfg := config.Config{
		TargetURL:    "https://example.com",
		HoldDuration: 20 * time.Second,
		Levels:       []int{1, 10, 100},
		SettleDelay:  time.Second,
		Cooldown:     5 * time.Second,
		ProbeTimeout: 10 * time.Second,
		SafetyMargin: 5 * time.Second,
		PoolHeadroom: 10,
		ExpectStatus: 200,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestServeModeSkipsTargetValidation(t *testing.T) {
	cfg := config.Config{Serve: true, ServeAddr: ":0"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil in serve mode", err)
	}

	cfg.ServeAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() error = nil, want serve-addr issue")
	}
}
