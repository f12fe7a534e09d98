// Package config loads the concierge configuration.
//
// Precedence: built-in defaults, then the YAML file, then CONCIERGE_*
// environment variables. API keys for external tools are expected via
// environment only and never written back to disk.
package config
