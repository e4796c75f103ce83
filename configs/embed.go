// Package configs provides embedded configuration templates for vidfuse.
//
// Templates are embedded at build time using Go's //go:embed directive so
// they are available in all distributions (source builds and binary
// releases alike).
//
// Configuration hierarchy (see internal/config/config.go Load()):
//  1. Hardcoded defaults (internal/config/config.go NewConfig())
//  2. User config (~/.config/vidfuse/config.yaml)
//  3. Project config (.vidfuse.yaml)
//  4. Environment variables (VIDFUSE_*)
//
// To modify templates, edit the .yaml files in this directory and rebuild.
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration.
// Created by `vidfuse config init` at ~/.config/vidfuse/config.yaml.
// Contains machine-specific settings: embedding service host, backend
// choice, data directory.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration.
// Created at .vidfuse.yaml in the project root. Contains settings meant to
// be version-controlled: fusion method, modality weights, routing
// temperature.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
