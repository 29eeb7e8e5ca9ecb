// Package config handles configuration loading, parsing, and validation
// from defaults, an optional taskgate.yaml and TASKGATE_ environment
// variables. Environment variables take precedence over the file.
package config
