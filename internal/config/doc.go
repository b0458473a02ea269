// Package config loads the YAML configuration for the capture client and the
// transcription server, applies .env and environment overrides, and validates
// every section.
package config
