package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mrzor/rtos-trace/internal/linereader"
	"github.com/mrzor/rtos-trace/internal/protocol"
	"github.com/mrzor/rtos-trace/internal/timesync"
)

// EnvPrefix prefixes every environment variable the CLI reads,
// e.g. RTOS_TRACE_TICK_RATE.
const EnvPrefix = "RTOS_TRACE"

// Default output paths, where the schedule viewer looks for them.
const (
	DefaultEventsPath = "./log_entries.csv"
	DefaultNamesPath  = "./mapping.csv"
)

// CustomAttribute represents a user-defined span attribute computed from an expression
type CustomAttribute struct {
	Name       string `mapstructure:"name"`
	Expression string `mapstructure:"expression"`
}

// ParseCustomAttribute parses a name=expression pair. The expression may
// itself contain '='.
func ParseCustomAttribute(s string) (CustomAttribute, error) {
	name, expression, ok := strings.Cut(s, "=")
	if !ok {
		return CustomAttribute{}, fmt.Errorf("invalid attribute format %q (expected name=expression)", s)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return CustomAttribute{}, fmt.Errorf("attribute name cannot be empty in %q", s)
	}
	if expression == "" {
		return CustomAttribute{}, fmt.Errorf("attribute expression cannot be empty for %q", name)
	}
	return CustomAttribute{Name: name, Expression: expression}, nil
}

// Config holds the layered CLI configuration: flags over environment over
// config file over defaults.
type Config struct {
	Verbose bool `mapstructure:"verbose"`

	// Input is the device stream: a file, a serial device node, or "-" for
	// stdin. Empty means stdin for extract and stored events for schedule.
	Input       string        `mapstructure:"input"`
	EventsPath  string        `mapstructure:"events"`
	NamesPath   string        `mapstructure:"names"`
	SQLitePath  string        `mapstructure:"sqlite"`
	Session     string        `mapstructure:"session"`
	Protocol    string        `mapstructure:"protocol"`
	Retries     int           `mapstructure:"retries"`
	Backoff     time.Duration `mapstructure:"backoff"`
	MetricsAddr string        `mapstructure:"metrics-addr"`

	Filter   string `mapstructure:"filter"`
	Format   string `mapstructure:"format"`
	OTEL     bool   `mapstructure:"otel"`
	TickRate uint32 `mapstructure:"tick-rate"`

	// TraceID and ParentID are expressions over the session.
	TraceID  string `mapstructure:"trace-id"`
	ParentID string `mapstructure:"parent-id"`
	// Attributes are name=expression pairs.
	Attributes []string `mapstructure:"attributes"`

	CustomAttributes []CustomAttribute `mapstructure:"-"`
}

// SetDefaults registers every key so environment variables resolve during
// Unmarshal even when no flag or file mentions them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("verbose", false)
	v.SetDefault("input", "")
	v.SetDefault("events", DefaultEventsPath)
	v.SetDefault("names", DefaultNamesPath)
	v.SetDefault("sqlite", "")
	v.SetDefault("session", "")
	v.SetDefault("protocol", protocol.VersionCurrent.String())
	v.SetDefault("retries", 0)
	v.SetDefault("backoff", time.Duration(0))
	v.SetDefault("metrics-addr", "")
	v.SetDefault("filter", "")
	v.SetDefault("format", "text")
	v.SetDefault("otel", false)
	v.SetDefault("tick-rate", timesync.DefaultTickRate)
	v.SetDefault("trace-id", "")
	v.SetDefault("parent-id", "")
	v.SetDefault("attributes", []string{})
}

// NewViper returns a viper instance with defaults, RTOS_TRACE_ environment
// binding, and configFile loaded when set.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}
	return v, nil
}

// Load decodes v into a Config and validates it. extraAttributes are
// appended after the ones from the config file or environment.
func Load(v *viper.Viper, extraAttributes ...string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Attributes = append(cfg.Attributes, extraAttributes...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option values and parses the custom attributes.
func (c *Config) Validate() error {
	var errs []error

	if _, err := protocol.ParseVersion(c.Protocol); err != nil {
		errs = append(errs, err)
	}
	switch c.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown format %q (want text or json)", c.Format))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative, got %d", c.Retries))
	}
	if c.Backoff < 0 {
		errs = append(errs, fmt.Errorf("backoff must not be negative, got %s", c.Backoff))
	}
	if c.TickRate == 0 {
		errs = append(errs, timesync.ErrZeroTickRate)
	}

	c.CustomAttributes = c.CustomAttributes[:0]
	for _, raw := range c.Attributes {
		attr, err := ParseCustomAttribute(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.CustomAttributes = append(c.CustomAttributes, attr)
	}

	return errors.Join(errs...)
}

// ProtocolVersion returns the parsed protocol revision.
func (c *Config) ProtocolVersion() protocol.ProtocolVersion {
	v, _ := protocol.ParseVersion(c.Protocol)
	return v
}

// RetryPolicy returns the line assembler retry policy.
func (c *Config) RetryPolicy() linereader.RetryPolicy {
	return linereader.RetryPolicy{MaxRetries: c.Retries, Backoff: c.Backoff}
}
