// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/hypve-tui/internal/config"
)

// ConfigValue is config get --json.
type ConfigValue struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// HandleConfig shows and edits the config file.
func HandleConfig(args Args, env Env) error {
	p := NewArgParser(args.Rest)

	switch sub := strings.ToLower(p.Subcommand()); sub {
	case "", "show":
		cfg, err := loadConfig(args, env)
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("config show", cfg).Fprint(env.Out)
		}
		fmt.Fprint(env.Out, cfg.String())
		return nil

	case "path":
		path, err := config.ConfigPathTOML()
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Out, path)
		return nil

	case "keys":
		for _, k := range config.Keys() {
			fmt.Fprintln(env.Out, k)
		}
		return nil

	case "get":
		key := p.Positional(1)
		if key == "" {
			return usageError("hypve config get <key>")
		}
		cfg, err := loadConfig(args, env)
		if err != nil {
			return err
		}
		v, err := cfg.Get(key)
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("config get", ConfigValue{Key: key, Value: v}).Fprint(env.Out)
		}
		fmt.Fprintln(env.Out, v)
		return nil

	case "set":
		key, value := p.Positional(1), p.Joined(2)
		if key == "" || p.PositionalCount() < 3 {
			return usageError("hypve config set <key> <value>")
		}
		return configSet(env, key, value)

	default:
		return usageError("hypve config show|path|keys|get <key>|set <key> <value>")
	}
}

// configSet edits the config file starting from its own contents, so
// global flags such as --server are not written back. A JSON config is
// kept as JSON when no TOML file exists.
func configSet(env Env, key, value string) error {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return err
	}
	save := config.SaveTOML
	if !exists(path) {
		if jsonPath, err := config.ConfigPathJSON(); err == nil && exists(jsonPath) {
			path, save = jsonPath, config.SaveJSON
		}
	}

	cfg := config.Default()
	if exists(path) {
		cfg, err = config.LoadFromPath(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	if err := save(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "%s %s = %s\n", successColor.Sprint("set"), key, value)
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
