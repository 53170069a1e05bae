// Package config loads, normalizes, and validates slipstream configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), and
// reads TOML files. The Config type holds every knob the CLI and the watch
// loop need: where backups land, which device backend reads the disc, how
// many sectors go into each read, and how logs are written.
package config
