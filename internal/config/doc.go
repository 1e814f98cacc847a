// Package config loads, normalizes, and validates the voicepipe TOML
// configuration. A sample configuration is embedded for `voicepipe config
// init`.
package config
