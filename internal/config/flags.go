package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tcpcrank",
		Short:         "Open many concurrent TCP sessions and exchange length-prefixed messages",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Target flags
	flags.String("host", DefaultHost, "Target host")
	flags.IntP("port", "p", DefaultPort, "Target port")

	// Load control flags
	flags.IntP("connections", "c", DefaultConnections, "Number of concurrent client sessions")
	flags.IntP("requests", "n", DefaultRequests, "Requests sent by each session")
	flags.Duration("delay", DefaultDelay, "Delay between requests within a session")
	flags.Int("max-in-flight", 0, "Maximum sessions running at once (0 = limited only by open file limit)")
	flags.IntP("spawn-rate", "r", 0, "Sessions started per second (0 means unlimited)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model used when pacing session starts (uniform or poisson)")

	// Payload flags
	flags.StringP("message", "m", DefaultMessage, "Message template; {{id}} is the session id and {{i}} the request index")
	flags.StringToString("var", nil, "Extra template variables in key=value form")
	flags.Int("read-buffer", DefaultReadBuffer, "Maximum bytes read per response")

	// Timeout flags
	flags.Duration("timeout", DefaultTimeout, "Default for connect, read and write timeouts (0 disables)")
	flags.Duration("connect-timeout", DefaultTimeout, "Connect timeout")
	flags.Duration("read-timeout", DefaultTimeout, "Per-response read timeout")
	flags.Duration("write-timeout", DefaultTimeout, "Per-request write timeout")

	// Expectation flags
	flags.String("expect-regex", "", "Regex every response must match")
	flags.String("expect-json-path", "", "JSON path every response must contain")
	flags.String("expect-equals", "", "Exact value expected at --expect-json-path, or for the whole response")

	// Output flags
	flags.StringP("output", "o", string(OutputText), "Report format: text, json, or yaml")
	flags.Bool("json-output", false, "Emit JSON formatted report (same as --output json)")
	flags.BoolP("quiet", "q", false, "Do not print a line per received response")
	flags.Bool("progress", false, "Show a live progress line on stderr")
	flags.Bool("log-errors", false, "Log each failed session to stderr")
	flags.String("results-file", "", "Append a JSON line with the run summary to this file")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Performance thresholds (repeatable, e.g., 'session_failed:rate < 0.01')")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for traces (host:port)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported with traces")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of sessions traced (0.0-1.0)")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
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
	if fs.Changed("connections") {
		val, err := fs.GetInt("connections")
		if err != nil {
			return err
		}
		cfg.Connections = val
	}
	if fs.Changed("requests") {
		val, err := fs.GetInt("requests")
		if err != nil {
			return err
		}
		cfg.Requests = val
	}
	if fs.Changed("delay") {
		val, err := fs.GetDuration("delay")
		if err != nil {
			return err
		}
		cfg.Delay = val
	}
	if fs.Changed("max-in-flight") {
		val, err := fs.GetInt("max-in-flight")
		if err != nil {
			return err
		}
		cfg.MaxInFlight = val
	}
	if fs.Changed("spawn-rate") {
		val, err := fs.GetInt("spawn-rate")
		if err != nil {
			return err
		}
		cfg.SpawnRate = val
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("message") {
		val, err := fs.GetString("message")
		if err != nil {
			return err
		}
		cfg.Message = val
	}
	if fs.Changed("var") {
		val, err := fs.GetStringToString("var")
		if err != nil {
			return err
		}
		if cfg.Variables == nil {
			cfg.Variables = map[string]string{}
		}
		for k, v := range val {
			key := strings.TrimSpace(k)
			if key == "" {
				return fmt.Errorf("var key cannot be empty")
			}
			cfg.Variables[key] = v
		}
	}
	if fs.Changed("read-buffer") {
		val, err := fs.GetInt("read-buffer")
		if err != nil {
			return err
		}
		cfg.ReadBuffer = val
	}

	// --timeout sets all three; the specific flags win when both are given.
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.ConnectTimeout = val
		cfg.ReadTimeout = val
		cfg.WriteTimeout = val
	}
	if fs.Changed("connect-timeout") {
		val, err := fs.GetDuration("connect-timeout")
		if err != nil {
			return err
		}
		cfg.ConnectTimeout = val
	}
	if fs.Changed("read-timeout") {
		val, err := fs.GetDuration("read-timeout")
		if err != nil {
			return err
		}
		cfg.ReadTimeout = val
	}
	if fs.Changed("write-timeout") {
		val, err := fs.GetDuration("write-timeout")
		if err != nil {
			return err
		}
		cfg.WriteTimeout = val
	}

	if fs.Changed("expect-regex") {
		val, err := fs.GetString("expect-regex")
		if err != nil {
			return err
		}
		cfg.Expect.Regex = val
	}
	if fs.Changed("expect-json-path") {
		val, err := fs.GetString("expect-json-path")
		if err != nil {
			return err
		}
		cfg.Expect.JSONPath = strings.TrimSpace(val)
	}
	if fs.Changed("expect-equals") {
		val, err := fs.GetString("expect-equals")
		if err != nil {
			return err
		}
		cfg.Expect.Equals = val
	}

	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		if val {
			cfg.Output = OutputJSON
		}
	}
	if fs.Changed("quiet") {
		val, err := fs.GetBool("quiet")
		if err != nil {
			return err
		}
		cfg.Quiet = val
	}
	if fs.Changed("progress") {
		val, err := fs.GetBool("progress")
		if err != nil {
			return err
		}
		cfg.Progress = val
	}
	if fs.Changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}
	if fs.Changed("results-file") {
		val, err := fs.GetString("results-file")
		if err != nil {
			return err
		}
		cfg.ResultsFile = strings.TrimSpace(val)
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
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
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		cfg.Tracing.ServiceName = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}

	return nil
}
