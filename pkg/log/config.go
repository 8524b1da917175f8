package log

import (
	"fmt"
	"os"
	"strings"
)

// Config defines logging configuration.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is json or text.
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// Output is console, stderr, file or null.
	Output string `json:"output" yaml:"output" mapstructure:"output"`

	// File is the log file used by the file output.
	File string `json:"file" yaml:"file" mapstructure:"file"`

	// MaxSizeMB rotates the log file at this size.
	MaxSizeMB int `json:"max_size_mb" yaml:"max_size_mb" mapstructure:"max_size_mb"`

	EnableCaller bool `json:"enable_caller" yaml:"enable_caller" mapstructure:"enable_caller"`

	// RedactedFields are added to DefaultRedactedFields.
	RedactedFields []string `json:"redacted_fields" yaml:"redacted_fields" mapstructure:"redacted_fields"`

	// Sampling drops repeated debug, info and warn entries when set.
	Sampling *SamplingConfig `json:"sampling" yaml:"sampling" mapstructure:"sampling"`
}

// SamplingConfig defines sampling behavior for high-volume logs.
type SamplingConfig struct {
	Initial    int `json:"initial" yaml:"initial" mapstructure:"initial"`
	Thereafter int `json:"thereafter" yaml:"thereafter" mapstructure:"thereafter"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "text",
		Output: "console",
	}
}

// ApplyConfig creates a logger from a configuration. Redaction of DefaultRedactedFields is
// always enabled.
func ApplyConfig(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	options := []LoggerOption{WithLevel(level)}

	switch strings.ToLower(config.Format) {
	case "json":
		options = append(options, WithFormatter(&JSONFormatter{EnableCaller: config.EnableCaller}))
	case "text", "":
		tf := NewTextFormatter()
		tf.EnableCaller = config.EnableCaller
		options = append(options, WithFormatter(tf))
	default:
		return nil, fmt.Errorf("invalid log format: %s", config.Format)
	}

	output, err := createOutput(config)
	if err != nil {
		return nil, err
	}
	options = append(options, WithOutput(output))

	redact := append(append([]string{}, DefaultRedactedFields...), config.RedactedFields...)
	options = append(options, WithHook(NewRedactionHook(redact)))

	if config.Sampling != nil && config.Sampling.Thereafter > 0 {
		options = append(options, WithHook(NewSamplingHook(config.Sampling.Initial, config.Sampling.Thereafter)))
	}

	return NewLogger(options...), nil
}

func createOutput(config *Config) (Output, error) {
	switch strings.ToLower(config.Output) {
	case "console", "":
		return NewConsoleOutput(), nil
	case "stderr":
		return NewConsoleOutput(WithStderr()), nil
	case "file":
		if config.File == "" {
			return nil, fmt.Errorf("file output requires a file name")
		}
		var opts []FileOutputOption
		if config.MaxSizeMB > 0 {
			opts = append(opts, WithMaxSize(int64(config.MaxSizeMB)*1024*1024))
		}
		return NewFileOutput(os.ExpandEnv(config.File), opts...), nil
	case "null":
		return NewNullOutput(), nil
	default:
		return nil, fmt.Errorf("unknown output type: %s", config.Output)
	}
}

// ParseLevel parses a level string into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}
