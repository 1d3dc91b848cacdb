// Package config loads and validates the tracker configuration from a YAML
// file, applies defaults for every tunable (reconnect backoff, poll
// interval, snap thresholds, animation tick), and honors environment
// overrides for the channel and registry endpoints.
package config
