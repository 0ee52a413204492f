// Package watchbot provides embedded assets for the watchbot agent.
//
// The root package exists solely to embed [config.default.toml] via
// [DefaultConfigTOML], which cmd/watchbot copies into the data directory
// on first run.
package watchbot

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml, embedded at
// build time.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
