// Package config loads the callbridge configuration from YAML with
// environment-variable overrides. Precedence: defaults, then file, then env.
package config
