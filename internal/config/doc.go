// Package config loads photostack settings from a TOML file.
//
// Defaults are applied first, the file (if any) is decoded over them, paths
// are normalized, and the result is validated against the embedded CUE
// schema in schema.cue.
package config
