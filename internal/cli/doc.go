// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses the command line and runs hypve's commands.
//
// With no command hypve starts the full-screen TUI. The line commands
// share its chat store and session:
//
//   - ask: one prompt, reply to stdout (markdown on a terminal)
//   - chat: line-mode REPL with input history
//   - history: list, show, delete, rename and export saved chats
//   - login, logout, whoami, auth: identity
//   - config: show and edit the config file
//
// Commands run against an Env so tests can drive them with buffers:
//
//	cmd, args, err := cli.Parse(os.Args[1:])
//	err = cli.Execute(ctx, cmd, args, cli.StdEnv())
//
// Most commands accept --json for machine-readable output.
package cli
