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

// Defaults returns the configuration used when neither a file nor flags set a value.
func Defaults() Config {
	return Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		Connections:    DefaultConnections,
		Requests:       DefaultRequests,
		Delay:          DefaultDelay,
		Message:        DefaultMessage,
		Variables:      map[string]string{},
		ReadBuffer:     DefaultReadBuffer,
		ConnectTimeout: DefaultTimeout,
		ReadTimeout:    DefaultTimeout,
		WriteTimeout:   DefaultTimeout,
		Arrival:        ArrivalConfig{Model: ArrivalModelUniform},
		Output:         OutputText,
		Tracing:        TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// Load parses command-line arguments and configuration files to produce a Config.
// Running with no arguments is valid and uses the defaults.
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

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Variables == nil {
		cfg.Variables = map[string]string{}
	}
	if cfg.Output == "" {
		cfg.Output = OutputText
	}

	return &cfg, nil
}

// applyConfigSettings copies config file settings over the defaults in cfg.
// Every malformed key is reported, not just the first.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	root, err := newSection("", settings)
	if err != nil {
		return err
	}
	if cfg.Variables == nil {
		cfg.Variables = map[string]string{}
	}

	errs := []error{
		root.text("host", &cfg.Host),
		root.integer("port", &cfg.Port),
		root.integer("connections", &cfg.Connections),
		root.integer("requests", &cfg.Requests),
		root.duration("delay", &cfg.Delay),
		root.text("message", &cfg.Message),
		root.merge("variables", cfg.Variables),
		root.merge("vars", cfg.Variables),
		root.integer("read_buffer", &cfg.ReadBuffer),
		// The shared timeout is applied before the specific ones override it.
		root.timeouts("timeout", &cfg.ConnectTimeout, &cfg.ReadTimeout, &cfg.WriteTimeout),
		root.duration("connect_timeout", &cfg.ConnectTimeout),
		root.duration("read_timeout", &cfg.ReadTimeout),
		root.duration("write_timeout", &cfg.WriteTimeout),
		root.integer("max_in_flight", &cfg.MaxInFlight),
		root.integer("spawn_rate", &cfg.SpawnRate),
		applyArrival(root, &cfg.Arrival),
		applyOutput(root, &cfg.Output),
		root.flag("quiet", &cfg.Quiet),
		root.flag("progress", &cfg.Progress),
		root.flag("log_errors", &cfg.LogErrors),
		root.text("results_file", &cfg.ResultsFile),
		root.list("thresholds", &cfg.Thresholds),
		applyExpect(root, &cfg.Expect),
		applyTracing(root, &cfg.Tracing),
	}

	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.ResultsFile = strings.TrimSpace(cfg.ResultsFile)
	return errors.Join(errs...)
}

// applyArrival accepts either `arrival: poisson`, an `arrival: {model: ...}`
// table, or a top-level `arrival_model` key.
func applyArrival(root section, dst *ArrivalConfig) error {
	var model string
	switch {
	case root.has("arrival"):
		sub, _, err := root.table("arrival")
		if err != nil {
			if err := root.text("arrival", &model); err != nil {
				return err
			}
			break
		}
		if len(sub.values) == 0 {
			return nil
		}
		if !sub.has("model") {
			return root.wrap("arrival", errors.New("model field is required"))
		}
		if err := sub.text("model", &model); err != nil {
			return err
		}
	case root.has("arrival_model"):
		if err := root.text("arrival_model", &model); err != nil {
			return err
		}
	}
	if model = strings.ToLower(strings.TrimSpace(model)); model != "" {
		dst.Model = ArrivalModel(model)
	}
	return nil
}

func applyOutput(root section, dst *OutputFormat) error {
	var format string
	var asJSON bool
	if err := errors.Join(root.text("output", &format), root.flag("json_output", &asJSON)); err != nil {
		return err
	}
	if format = strings.ToLower(strings.TrimSpace(format)); format != "" {
		*dst = OutputFormat(format)
	}
	if asJSON {
		*dst = OutputJSON
	}
	return nil
}

func applyExpect(root section, dst *ExpectConfig) error {
	sub, ok, err := root.table("expect")
	if err != nil || !ok {
		return err
	}
	err = errors.Join(
		sub.text("regex", &dst.Regex),
		sub.text("json_path", &dst.JSONPath),
		sub.text("equals", &dst.Equals),
	)
	dst.JSONPath = strings.TrimSpace(dst.JSONPath)
	return err
}

func applyTracing(root section, dst *TracingConfig) error {
	sub, ok, err := root.table("tracing")
	if err != nil || !ok {
		return err
	}
	err = errors.Join(
		sub.text("endpoint", &dst.Endpoint),
		sub.text("protocol", &dst.Protocol),
		sub.text("service_name", &dst.ServiceName),
		sub.fraction("sample_rate", &dst.SampleRate),
		sub.flag("insecure", &dst.Insecure),
	)
	dst.Endpoint = strings.TrimSpace(dst.Endpoint)
	dst.Protocol = strings.ToLower(strings.TrimSpace(dst.Protocol))
	dst.ServiceName = strings.TrimSpace(dst.ServiceName)
	return err
}
