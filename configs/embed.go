// Package configs embeds the annotated configuration template written by
// 'ftsync config init'.
//
// The template mirrors the defaults in internal/config NewConfig; loading it
// yields exactly those defaults.
package configs

import _ "embed"

// Template is the annotated YAML configuration, usable as a project or user
// config file.
//
//go:embed config.example.yaml
var Template string
