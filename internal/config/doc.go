// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for hypve.
//
// Supports TOML and JSON files with defaults, environment variable
// overrides, validation, and live reload through a file watcher.
//
// # Key Types
//
//   - Config: complete configuration (server, storage, render, ui, log)
//   - ValidationError / ValidateErrors: field-level validation failures
//
// # Usage
//
//	cfg, err := config.Load()
//	url, _ := cfg.Get("server.base_url")
//	err = cfg.Set("render.typewriter", false)
//	path, _ := config.ConfigPathTOML()
//	err = config.SaveTOML(cfg, path)
//
// # File Locations
//
// In order of precedence:
//   - ~/.hypve/config.toml
//   - ~/.hypve/config.json
//   - Built-in defaults
//
// HYPVE_HOME relocates the ~/.hypve directory.
package config
