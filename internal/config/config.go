package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 1234
	DefaultConnections = 10000
	DefaultRequests    = 1
	DefaultDelay       = 100 * time.Millisecond
	DefaultReadBuffer  = 1024
	DefaultTimeout     = 30 * time.Second
	DefaultMessage     = "Client {{id}} message {{i}}"

	maxReadBuffer = 1 << 20
)

type Config struct {
	Host           string            `mapstructure:"host"`
	Port           int               `mapstructure:"port"`
	Connections    int               `mapstructure:"connections"`
	Requests       int               `mapstructure:"requests"`
	Delay          time.Duration     `mapstructure:"delay"`
	Message        string            `mapstructure:"message"`
	Variables      map[string]string `mapstructure:"variables"`
	ReadBuffer     int               `mapstructure:"read_buffer"`
	ConnectTimeout time.Duration     `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration     `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration     `mapstructure:"write_timeout"`
	MaxInFlight    int               `mapstructure:"max_in_flight"`
	SpawnRate      int               `mapstructure:"spawn_rate"`
	Arrival        ArrivalConfig     `mapstructure:"arrival"`
	Output         OutputFormat      `mapstructure:"output"`
	Quiet          bool              `mapstructure:"quiet"`
	Progress       bool              `mapstructure:"progress"`
	LogErrors      bool              `mapstructure:"log_errors"`
	ResultsFile    string            `mapstructure:"results_file"`
	Thresholds     []string          `mapstructure:"thresholds"`
	Expect         ExpectConfig      `mapstructure:"expect"`
	Tracing        TracingConfig     `mapstructure:"tracing"`
	ConfigFile     string            `mapstructure:"-"`
}

// Address returns the host:port the sessions dial.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
}

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

type ExpectConfig struct {
	Regex    string `mapstructure:"regex"`
	JSONPath string `mapstructure:"json_path"`
	Equals   string `mapstructure:"equals"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// Enabled reports whether an OTLP endpoint is configured directly or through the environment.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
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
		issues = append(issues, "host is required (use --help for usage information)")
	}
	if c.Port < 1 || c.Port > 65535 {
		issues = append(issues, "port must be between 1 and 65535")
	}

	if c.Connections > DefaultConnections {
		fmt.Fprintf(os.Stderr, "WARNING: High connection count configured (%d). Ensure you have authorization to test the target system.\n", c.Connections)
	}

	if c.Connections < 1 {
		issues = append(issues, "connections must be >= 1")
	}
	if c.Requests < 1 {
		issues = append(issues, "requests must be >= 1")
	}
	if c.Delay < 0 {
		issues = append(issues, "delay must be >= 0")
	}
	if c.ReadBuffer < 1 || c.ReadBuffer > maxReadBuffer {
		issues = append(issues, fmt.Sprintf("read_buffer must be between 1 and %d", maxReadBuffer))
	}
	if c.ConnectTimeout < 0 {
		issues = append(issues, "connect_timeout must be >= 0")
	}
	if c.ReadTimeout < 0 {
		issues = append(issues, "read_timeout must be >= 0")
	}
	if c.WriteTimeout < 0 {
		issues = append(issues, "write_timeout must be >= 0")
	}
	if c.MaxInFlight < 0 {
		issues = append(issues, "max_in_flight must be >= 0")
	}
	if c.SpawnRate < 0 {
		issues = append(issues, "spawn_rate must be >= 0")
	}

	switch c.Output {
	case "", OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output must be 'text', 'json', or 'yaml', got %q", c.Output))
	}

	issues = append(issues, validateArrivalConfig(c.Arrival)...)
	issues = append(issues, validateExpectConfig(c.Expect)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if c.Tracing.Insecure && strings.TrimSpace(c.Tracing.Endpoint) != "" {
		fmt.Fprintln(os.Stderr, "WARNING: tracing exporter TLS is DISABLED (insecure: true).")
	}

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

func validateExpectConfig(exp ExpectConfig) []string {
	if strings.TrimSpace(exp.Regex) == "" {
		return nil
	}
	if _, err := regexp.Compile(strings.TrimSpace(exp.Regex)); err != nil {
		return []string{fmt.Sprintf("expect: invalid regex: %v", err)}
	}
	return nil
}

func validateTracingConfig(tc TracingConfig) []string {
	var issues []string
	switch strings.ToLower(strings.TrimSpace(tc.Protocol)) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", tc.Protocol))
	}
	if tc.SampleRate < 0 || tc.SampleRate > 1 {
		issues = append(issues, "tracing: sample_rate must be between 0.0 and 1.0")
	}
	return issues
}
