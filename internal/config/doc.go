// Package config loads CLI settings. Flags, RTOS_TRACE_* environment
// variables and an optional YAML file are layered with viper; exporter
// settings come from the standard OTEL_* variables.
package config
