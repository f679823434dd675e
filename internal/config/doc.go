// Package config loads, normalizes, and validates meltwatch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and overlays MELTWATCH_* environment variables.
// Relative reconstruction executables resolve against the reconstruction
// directory, and derived paths (VTK directory, analysis output, history
// database) are filled in from the directories they hang off.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config
