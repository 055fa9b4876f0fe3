// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"

	"github.com/fatih/color"
)

// Colors for line-oriented output. fatih/color disables itself when
// stdout is not a terminal or NO_COLOR is set.
var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.FgHiBlack)
	promptColor  = color.New(color.FgGreen, color.Bold)
	replyColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	dimColor     = color.New(color.Faint)
)

// setColor forces color on or off. FORCE_COLOR wins over detection.
func setColor(enabled bool) {
	if os.Getenv("FORCE_COLOR") != "" {
		enabled = true
	}
	color.NoColor = !enabled
}
