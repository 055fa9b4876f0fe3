// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// TYPEWRITER
// =============================================================================

// ErrCancelled is returned when a Display is cancelled mid-reveal.
var ErrCancelled = errors.New("display cancelled")

// Typewriter reveals a complete reply a few runes at a time.
type Typewriter struct {
	limiter *rate.Limiter
	step    int
}

// NewTypewriter reveals step runes every delay. A zero delay reveals
// without pausing.
func NewTypewriter(delay time.Duration, step int) *Typewriter {
	if step <= 0 {
		step = 1
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Typewriter{limiter: rate.NewLimiter(limit, 1), step: step}
}

// Run appends text to d and calls emit for every frame, finishing with the
// final frame. Cancellation of d or ctx is checked between increments and
// stops the reveal without a final frame.
func (tw *Typewriter) Run(ctx context.Context, text string, d *Display, emit func(Frame)) error {
	if emit == nil {
		emit = func(Frame) {}
	}
	runes := []rune(text)

	for i := 0; i < len(runes); i += tw.step {
		if d.Cancelled() {
			return ErrCancelled
		}
		if err := tw.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if d.Cancelled() {
			return ErrCancelled
		}

		end := i + tw.step
		if end > len(runes) {
			end = len(runes)
		}
		frame, _ := d.Append(string(runes[i:end]))
		emit(frame)
	}

	if d.Cancelled() {
		return ErrCancelled
	}
	emit(d.Finish())
	return nil
}
