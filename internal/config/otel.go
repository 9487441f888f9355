package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel/attribute"
)

// OTELConfig holds OpenTelemetry configuration from environment variables.
// These use the standard OTEL_ names, not the RTOS_TRACE_ prefix.
type OTELConfig struct {
	ServiceName        string `env:"OTEL_SERVICE_NAME" envDefault:"rtos-trace"`
	ResourceAttributes string `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:""`
	ExporterEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	TracesEndpoint     string `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT" envDefault:""`
	Headers            string `env:"OTEL_EXPORTER_OTLP_HEADERS" envDefault:""`
}

// ParseOTELConfig parses OTEL configuration from environment variables
func ParseOTELConfig() (*OTELConfig, error) {
	var cfg OTELConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}
	return &cfg, nil
}

// GetEndpoint returns the host:port to export traces to and whether the
// connection is plain HTTP.
// Priority: OTEL_EXPORTER_OTLP_TRACES_ENDPOINT > OTEL_EXPORTER_OTLP_ENDPOINT > default
func (c *OTELConfig) GetEndpoint() (endpoint string, insecure bool) {
	raw := c.TracesEndpoint
	if raw == "" {
		raw = c.ExporterEndpoint
	}
	if raw == "" {
		return "localhost:4318", true
	}

	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host, u.Scheme != "https"
	}
	return raw, true
}

// ParseResourceAttributes parses the OTEL_RESOURCE_ATTRIBUTES string
// Format: key1=value1,key2=value2
func (c *OTELConfig) ParseResourceAttributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for key, value := range pairs(c.ResourceAttributes) {
		attrs = append(attrs, attribute.String(key, value))
	}
	return attrs
}

// ParseHeaders parses OTEL_EXPORTER_OTLP_HEADERS, same format as the
// resource attributes.
func (c *OTELConfig) ParseHeaders() map[string]string {
	var headers map[string]string
	for key, value := range pairs(c.Headers) {
		if headers == nil {
			headers = map[string]string{}
		}
		headers[key] = value
	}
	return headers
}

func pairs(s string) func(yield func(string, string) bool) {
	return func(yield func(string, string) bool) {
		if s == "" {
			return
		}
		for _, pair := range strings.Split(s, ",") {
			key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				continue
			}
			if !yield(key, strings.TrimSpace(value)) {
				return
			}
		}
	}
}
