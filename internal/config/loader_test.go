package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestSectionKeySpellings(t *testing.T) {
	for _, key := range []string{"read_buffer", "read-buffer", "readBuffer", "READBUFFER"} {
		cfg := Defaults()
		if err := applyConfigSettings(&cfg, map[string]interface{}{key: 4096}); err != nil {
			t.Fatalf("%s: applyConfigSettings() error = %v", key, err)
		}
		if cfg.ReadBuffer != 4096 {
			t.Errorf("%s: ReadBuffer = %d, want 4096", key, cfg.ReadBuffer)
		}
	}
}

func TestSectionDurations(t *testing.T) {
	tests := []struct {
		raw  interface{}
		want time.Duration
	}{
		{"250ms", 250 * time.Millisecond},
		{10, 10 * time.Second}, // bare numbers are seconds
		{int64(2), 2 * time.Second},
		{1.5, 1500 * time.Millisecond},
		{time.Minute, time.Minute},
		{"", 0},
	}
	for _, tt := range tests {
		cfg := Defaults()
		if err := applyConfigSettings(&cfg, map[string]interface{}{"connect_timeout": tt.raw}); err != nil {
			t.Fatalf("connect_timeout=%v error = %v", tt.raw, err)
		}
		if cfg.ConnectTimeout != tt.want {
			t.Errorf("connect_timeout=%v gave %v, want %v", tt.raw, cfg.ConnectTimeout, tt.want)
		}
		if cfg.ReadTimeout != DefaultTimeout {
			t.Errorf("ReadTimeout = %v, want default", cfg.ReadTimeout)
		}
	}
}

func TestSectionScalars(t *testing.T) {
	cfg := Defaults()
	settings := map[string]interface{}{
		"port":         "9001",
		"spawn_rate":   float64(50),
		"quiet":        "true",
		"log_errors":   true,
		"thresholds":   []interface{}{"sessions:count == 3", "request_failed:count == 0"},
		"results-file": " runs.jsonl ",
	}
	if err := applyConfigSettings(&cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}
	if cfg.Port != 9001 || cfg.SpawnRate != 50 || !cfg.Quiet || !cfg.LogErrors {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Thresholds) != 2 || cfg.Thresholds[1] != "request_failed:count == 0" {
		t.Errorf("Thresholds = %v", cfg.Thresholds)
	}
	if cfg.ResultsFile != "runs.jsonl" {
		t.Errorf("ResultsFile = %q", cfg.ResultsFile)
	}
	if cfg.Host != DefaultHost || cfg.Requests != DefaultRequests {
		t.Errorf("unset keys changed defaults: host %q requests %d", cfg.Host, cfg.Requests)
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Defaults()
	settings := map[string]interface{}{
		"host":         "10.0.0.5",
		"port":         9000,
		"connections":  25,
		"requests":     "3",
		"delay":        "250ms",
		"timeout":      "5s",
		"read_timeout": "2s",
		"variables": map[string]interface{}{
			"tenant": "blue",
		},
		"expect": map[string]interface{}{
			"json_path": "$.status",
			"equals":    "ok",
		},
		"tracing": map[string]interface{}{
			"endpoint":    "localhost:4317",
			"sample_rate": 0.5,
		},
	}

	if err := applyConfigSettings(&cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.Host != "10.0.0.5" {
		t.Errorf("Host = %q, want 10.0.0.5", cfg.Host)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.Connections != 25 {
		t.Errorf("Connections = %d, want 25", cfg.Connections)
	}
	if cfg.Requests != 3 {
		t.Errorf("Requests = %d, want 3", cfg.Requests)
	}
	if cfg.Delay != 250*time.Millisecond {
		t.Errorf("Delay = %v, want 250ms", cfg.Delay)
	}
	if cfg.ConnectTimeout != 5*time.Second || cfg.WriteTimeout != 5*time.Second {
		t.Errorf("timeouts = %v/%v, want 5s", cfg.ConnectTimeout, cfg.WriteTimeout)
	}
	if cfg.ReadTimeout != 2*time.Second {
		t.Errorf("ReadTimeout = %v, want 2s", cfg.ReadTimeout)
	}
	if cfg.Variables["tenant"] != "blue" {
		t.Errorf("Variables[tenant] = %q, want blue", cfg.Variables["tenant"])
	}
	if cfg.Expect.JSONPath != "$.status" || cfg.Expect.Equals != "ok" {
		t.Errorf("Expect = %+v", cfg.Expect)
	}
	if cfg.Tracing.Endpoint != "localhost:4317" {
		t.Errorf("Tracing.Endpoint = %q", cfg.Tracing.Endpoint)
	}
	if cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("Tracing.SampleRate = %v, want 0.5", cfg.Tracing.SampleRate)
	}
	if cfg.Tracing.Protocol != "grpc" {
		t.Errorf("Tracing.Protocol = %q, want default grpc", cfg.Tracing.Protocol)
	}
}

func TestApplyConfigSettingsRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	err := applyConfigSettings(&cfg, map[string]interface{}{
		"port":        "eighty",
		"connections": 2.5,
		"quiet":       7,
		"tracing":     map[string]interface{}{"sample_rate": "half"},
		"expect":      "ok",
	})
	if err == nil {
		t.Fatal("expected errors for malformed settings")
	}
	for _, key := range []string{"port:", "connections:", "quiet:", "tracing.sample_rate:", "expect:"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want default kept on error", cfg.Port)
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Defaults()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--connections=5",
		"-n", "4",
		"--timeout=10s",
		"--write-timeout=1s",
		"--var=tenant=red",
		"--json-output",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(&cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Connections != 5 {
		t.Errorf("Connections = %d, want 5", cfg.Connections)
	}
	if cfg.Requests != 4 {
		t.Errorf("Requests = %d, want 4", cfg.Requests)
	}
	if cfg.ConnectTimeout != 10*time.Second || cfg.ReadTimeout != 10*time.Second {
		t.Errorf("timeouts = %v/%v, want 10s", cfg.ConnectTimeout, cfg.ReadTimeout)
	}
	if cfg.WriteTimeout != time.Second {
		t.Errorf("WriteTimeout = %v, want 1s", cfg.WriteTimeout)
	}
	if cfg.Variables["tenant"] != "red" {
		t.Errorf("Variables[tenant] = %q, want red", cfg.Variables["tenant"])
	}
	if cfg.Output != OutputJSON {
		t.Errorf("Output = %q, want json", cfg.Output)
	}
}

func TestLoader_Load(t *testing.T) {
	loader := NewLoader()
	args := []string{
		"--host=example.internal",
		"-c", "2",
	}

	cfg, err := loader.Load(args)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Host != "example.internal" {
		t.Errorf("Host = %q, want example.internal", cfg.Host)
	}
	if cfg.Connections != 2 {
		t.Errorf("Connections = %d, want 2", cfg.Connections)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
}

func TestApplyArrival(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]interface{}
		want     ArrivalModel
		wantErr  bool
	}{
		{"scalar", map[string]interface{}{"arrival": "Poisson"}, ArrivalModelPoisson, false},
		{"table", map[string]interface{}{"arrival": map[string]interface{}{"model": "uniform"}}, ArrivalModelUniform, false},
		{"yaml table", map[string]interface{}{"arrival": map[interface{}]interface{}{"Model": "poisson"}}, ArrivalModelPoisson, false},
		{"flat key", map[string]interface{}{"arrival_model": "poisson"}, ArrivalModelPoisson, false},
		{"missing model", map[string]interface{}{"arrival": map[string]interface{}{"rate": 5}}, ArrivalModelUniform, true},
		{"null", map[string]interface{}{"arrival": nil}, ArrivalModelUniform, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			err := applyConfigSettings(&cfg, tt.settings)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if cfg.Arrival.Model != tt.want {
				t.Errorf("Arrival.Model = %q, want %q", cfg.Arrival.Model, tt.want)
			}
		})
	}
}

func TestApplyOutput(t *testing.T) {
	cfg := Defaults()
	if err := applyConfigSettings(&cfg, map[string]interface{}{"output": "YAML"}); err != nil {
		t.Fatalf("error = %v", err)
	}
	if cfg.Output != OutputYAML {
		t.Errorf("Output = %q, want yaml", cfg.Output)
	}

	cfg = Defaults()
	if err := applyConfigSettings(&cfg, map[string]interface{}{"output": "yaml", "json_output": true}); err != nil {
		t.Fatalf("error = %v", err)
	}
	if cfg.Output != OutputJSON {
		t.Errorf("Output = %q, want json_output to win", cfg.Output)
	}
}

func TestMergeVariables(t *testing.T) {
	cfg := Defaults()
	cfg.Variables["region"] = "eu"
	settings := map[string]interface{}{
		"variables": map[interface{}]interface{}{"Tenant": "blue", "shard": 7},
	}
	if err := applyConfigSettings(&cfg, settings); err != nil {
		t.Fatalf("error = %v", err)
	}
	want := map[string]string{"region": "eu", "Tenant": "blue", "shard": "7"}
	for k, v := range want {
		if cfg.Variables[k] != v {
			t.Errorf("Variables[%s] = %q, want %q", k, cfg.Variables[k], v)
		}
	}
}
