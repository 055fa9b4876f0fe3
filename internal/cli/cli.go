// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
)

// Version information, set at build time with -ldflags.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command is the top-level command to run.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdHistory
	CmdLogin
	CmdLogout
	CmdWhoami
	CmdAuth
	CmdConfig
	CmdVersion
	CmdHelp
)

var commandNames = map[Command]string{
	CmdTUI:     "tui",
	CmdAsk:     "ask",
	CmdChat:    "chat",
	CmdHistory: "history",
	CmdLogin:   "login",
	CmdLogout:  "logout",
	CmdWhoami:  "whoami",
	CmdAuth:    "auth",
	CmdConfig:  "config",
	CmdVersion: "version",
	CmdHelp:    "help",
}

func (c Command) String() string { return commandNames[c] }

// Args holds the global flags and the command's own arguments.
type Args struct {
	// Global flags
	Server    string
	Ephemeral bool
	Debug     bool
	JSON      bool
	NoColor   bool

	// Rest is everything after the command name.
	Rest []string
}

const usageText = `hypve - terminal chat client

Usage:
  hypve                                 Start the TUI (default)
  hypve tui                             Start the TUI
  hypve ask "prompt" [--no-stream] [--raw]
                                        Ask one question and print the reply
  hypve chat                            Line-mode chat with history
  hypve history list                    List saved chats
  hypve history show <title|N>          Print a chat
  hypve history delete <title|N> [--yes]
                                        Delete a chat
  hypve history rename <title|N> --to "new title"
                                        Rename a chat
  hypve history export <title|N> [--format md|json|html] [--out DIR] [--open]
                                        Export a chat to a file
  hypve history prune                   Remove chat records no title points to
  hypve login <email>                   Sign in locally as a guest with an email
  hypve logout                          Forget the signed-in user
  hypve whoami                          Show the current user
  hypve auth google|github              Print the browser sign-in URL
  hypve config show|path|keys           Show the config, its location or its keys
  hypve config get <key>                Print one setting
  hypve config set <key> <value>        Change one setting
  hypve version                         Show version information
  hypve help                            Show this help

Global flags:
  --server URL     Chat server base URL (overrides config)
  --ephemeral      Keep history in memory for this run only
  --debug          Log diagnostics to stderr (TUI: to the log file)
  --json           JSON output for list/show/whoami/config/version
  --no-color       Disable colored output

Environment:
  HYPVE_HOME, HYPVE_SERVER_URL, HYPVE_STREAM, HYPVE_STORAGE_BACKEND,
  HYPVE_STORAGE_PATH, HYPVE_TYPEWRITER, HYPVE_DEBUG, NO_COLOR

Version: %s
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// =============================================================================
// PARSING
// =============================================================================

// Parse splits argv (without the program name) into a command and args.
// Global flags may appear anywhere before "--".
func Parse(argv []string) (Command, Args, error) {
	args, remaining, err := parseGlobalFlags(argv)
	if err != nil {
		return CmdHelp, args, err
	}
	if len(remaining) == 0 {
		return CmdTUI, args, nil
	}

	name := strings.ToLower(remaining[0])
	args.Rest = remaining[1:]

	switch name {
	case "tui":
		return CmdTUI, args, nil
	case "ask", "a":
		return CmdAsk, args, nil
	case "chat", "c":
		return CmdChat, args, nil
	case "history", "chats", "h":
		return CmdHistory, args, nil
	case "login":
		return CmdLogin, args, nil
	case "logout":
		return CmdLogout, args, nil
	case "whoami", "me":
		return CmdWhoami, args, nil
	case "auth":
		return CmdAuth, args, nil
	case "config", "cfg":
		return CmdConfig, args, nil
	case "version", "-v", "--version":
		return CmdVersion, args, nil
	case "help", "-h", "--help":
		return CmdHelp, args, nil
	default:
		return CmdHelp, args, fmt.Errorf("%w: unknown command %q", ErrUsage, name)
	}
}

// parseGlobalFlags pulls the global flags out of argv.
func parseGlobalFlags(argv []string) (Args, []string, error) {
	var args Args
	var remaining []string

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch {
		case arg == "--":
			remaining = append(remaining, argv[i:]...)
			return args, remaining, nil
		case arg == "--ephemeral":
			args.Ephemeral = true
		case arg == "--debug":
			args.Debug = true
		case arg == "--json":
			args.JSON = true
		case arg == "--no-color":
			args.NoColor = true
		case arg == "--server":
			if i+1 >= len(argv) {
				return args, nil, usageError("--server URL")
			}
			i++
			args.Server = argv[i]
		case strings.HasPrefix(arg, "--server="):
			args.Server = strings.TrimPrefix(arg, "--server=")
		default:
			remaining = append(remaining, arg)
		}
	}
	return args, remaining, nil
}

// =============================================================================
// RUN
// =============================================================================

// Run parses argv, runs the command against the process streams and
// returns the exit status.
func Run(argv []string) int {
	env := StdEnv()
	cmd, args, err := Parse(argv)
	setColor(env.TTY && !args.NoColor)
	if err != nil {
		DisplayError(env.Err, "", err, false)
		fmt.Fprintln(env.Err, dimColor.Sprint("Run 'hypve help' for usage."))
		return GetExitCode(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Execute(ctx, cmd, args, env); err != nil {
		DisplayError(env.Err, cmd.String(), err, args.JSON)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// Execute runs one parsed command.
func Execute(ctx context.Context, cmd Command, args Args, env Env) error {
	switch cmd {
	case CmdHelp:
		PrintUsage(env.Out)
		return nil
	case CmdVersion:
		return HandleVersion(args, env)
	case CmdConfig:
		return HandleConfig(args, env)
	}

	app, err := openApp(ctx, cmd, args, env)
	if err != nil {
		return err
	}
	defer app.Close()

	switch cmd {
	case CmdTUI:
		return HandleTUI(ctx, app)
	case CmdAsk:
		return HandleAsk(ctx, app, args.Rest)
	case CmdChat:
		return HandleChat(ctx, app)
	case CmdHistory:
		return HandleHistory(app, args.Rest)
	case CmdLogin:
		return HandleLogin(app, args.Rest)
	case CmdLogout:
		return HandleLogout(app)
	case CmdWhoami:
		return HandleWhoami(app)
	case CmdAuth:
		return HandleAuth(app, args.Rest)
	default:
		return fmt.Errorf("%w: unhandled command %d", ErrUsage, cmd)
	}
}

// =============================================================================
// VERSION
// =============================================================================

// VersionData is the --json form of version.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// HandleVersion prints version information.
func HandleVersion(args Args, env Env) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Fprint(env.Out)
	}
	fmt.Fprintf(env.Out, "hypve version %s\n", Version)
	fmt.Fprintf(env.Out, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(env.Out, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(env.Out, "  Go:         %s\n", runtime.Version())
	return nil
}
