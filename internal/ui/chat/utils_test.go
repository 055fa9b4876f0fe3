// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "testing"

func TestFormatSize(t *testing.T) {
	tests := map[int]string{
		0:    "0 chars",
		999:  "999 chars",
		1000: "1.0K chars",
		2560: "2.6K chars",
	}
	for in, want := range tests {
		if got := formatSize(in); got != want {
			t.Errorf("formatSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestBubbleWidth(t *testing.T) {
	if got := bubbleWidth("hi", 40); got > 40 || got < 2 {
		t.Errorf("bubbleWidth short = %d", got)
	}
	long := "a very long line of text that will certainly exceed the limit"
	if got := bubbleWidth(long, 20); got != 20 {
		t.Errorf("bubbleWidth long = %d, want 20", got)
	}
}
