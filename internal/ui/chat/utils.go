// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
)

// =============================================================================
// CLIPBOARD UTILITIES
// =============================================================================

// copyToClipboard copies text to the system clipboard. It is a variable
// so tests can capture copies.
var copyToClipboard = func(text string) error {
	return clipboard.WriteAll(text)
}

// =============================================================================
// COMMANDS
// =============================================================================

var errCopyUsage = errors.New("usage: /copy N")

// parseCopyCommand recognizes "/copy N". ok is false for any other input.
func parseCopyCommand(text string) (n int, ok bool, err error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || fields[0] != "/copy" {
		return 0, false, nil
	}
	if len(fields) != 2 {
		return 0, true, errCopyUsage
	}
	n, err = strconv.Atoi(fields[1])
	if err != nil || n < 1 {
		return 0, true, errCopyUsage
	}
	return n, true, nil
}

// =============================================================================
// FORMATTING
// =============================================================================

// formatSize formats a byte count for status messages.
func formatSize(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d chars", n)
	}
	return fmt.Sprintf("%.1fK chars", float64(n)/1000)
}
