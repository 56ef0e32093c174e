// Package config handles settings loading and management for restwire.
//
// It provides functionality for:
//   - Loading settings from .restwire.json, .restwire.yaml and friends
//   - JSONC and YAML parsing with schema validation
//   - Default values and tri-state boolean accessors
//   - Watching a settings file for changes
package config
