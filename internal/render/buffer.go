// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"sync"
	"time"
)

// =============================================================================
// STREAM BUFFER
// =============================================================================

// StreamBuffer batches streamed tokens so the display renders at a capped
// frame rate. Content is released when either enough tokens accumulated
// or enough time passed since the last release.
//
// Write is called from the network goroutine and Flush from the render
// loop, so all methods lock.
type StreamBuffer struct {
	mu         sync.Mutex
	buffer     strings.Builder
	tokenCount int
	lastFlush  time.Time

	batchSize int
	minFlush  time.Duration
}

const (
	defaultBatchSize = 15
	defaultMaxFPS    = 30
)

// NewStreamBuffer creates a buffer releasing every 15 tokens or 1/30s.
func NewStreamBuffer() *StreamBuffer {
	return NewStreamBufferWithConfig(defaultBatchSize, defaultMaxFPS)
}

// NewStreamBufferWithConfig creates a buffer with custom thresholds.
func NewStreamBufferWithConfig(batchSize, maxFPS int) *StreamBuffer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if maxFPS <= 0 || maxFPS > 60 {
		maxFPS = defaultMaxFPS
	}
	return &StreamBuffer{
		batchSize: batchSize,
		minFlush:  time.Second / time.Duration(maxFPS),
		lastFlush: time.Now(),
	}
}

// Interval is the minimum time between releases.
func (sb *StreamBuffer) Interval() time.Duration {
	return sb.minFlush
}

// Write adds a token.
func (sb *StreamBuffer) Write(token string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.buffer.WriteString(token)
	sb.tokenCount++
}

// Flush returns buffered content if a threshold has been reached.
func (sb *StreamBuffer) Flush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if !sb.shouldFlushLocked() {
		return "", false
	}
	return sb.takeLocked(), true
}

// ForceFlush returns all buffered content regardless of thresholds.
func (sb *StreamBuffer) ForceFlush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.buffer.Len() == 0 {
		return "", false
	}
	return sb.takeLocked(), true
}

func (sb *StreamBuffer) shouldFlushLocked() bool {
	if sb.buffer.Len() == 0 {
		return false
	}
	return sb.tokenCount >= sb.batchSize || time.Since(sb.lastFlush) >= sb.minFlush
}

func (sb *StreamBuffer) takeLocked() string {
	content := sb.buffer.String()
	sb.buffer.Reset()
	sb.tokenCount = 0
	sb.lastFlush = time.Now()
	return content
}

// Reset drops buffered content, e.g. when a stream is cancelled.
func (sb *StreamBuffer) Reset() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.buffer.Reset()
	sb.tokenCount = 0
	sb.lastFlush = time.Now()
}
