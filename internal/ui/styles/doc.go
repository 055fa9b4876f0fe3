// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors, lipgloss styles and animations of the
hypve TUI.

# Color System (colors.go)

All colors are lipgloss.AdaptiveColor so one palette serves light and dark
terminals:

	Accent          - selection, focus ring, brand
	UserBubbleBg    - background of the user's messages
	AssistantBubble - border of replies
	Danger          - error bubble and delete confirmation

# Theme System (theme.go)

	theme := styles.NewTheme("auto")
	box := theme.UserBubble.Render(prompt)

The theme name is "auto", "dark" or "light". "auto" asks the terminal
through termenv; the others force lipgloss's background detection.

# Animation System (animations.go)

LoadingSpinner is the pulsing dot shown while waiting for the first frame
of a reply.
*/
package styles
