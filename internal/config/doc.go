// Package config loads the YAML service configuration, applies defaults and
// environment overrides, and validates every section.
package config
