// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"sync"
	"testing"
	"time"
)

// =============================================================================
// STREAM BUFFER TESTS
// =============================================================================

func TestNewStreamBuffer(t *testing.T) {
	sb := NewStreamBuffer()
	if sb.batchSize != 15 {
		t.Errorf("batch size = %d, want 15", sb.batchSize)
	}
	if got, want := sb.Interval(), time.Second/30; got != want {
		t.Errorf("Interval() = %v, want %v", got, want)
	}

	sb = NewStreamBufferWithConfig(-1, 500)
	if sb.batchSize != 15 || sb.Interval() != time.Second/30 {
		t.Errorf("invalid config should fall back to defaults, got %d/%v", sb.batchSize, sb.Interval())
	}
}

func TestStreamBuffer_FlushBySize(t *testing.T) {
	sb := NewStreamBufferWithConfig(3, 1)

	sb.Write("A")
	sb.Write("B")
	if _, ok := sb.Flush(); ok {
		t.Error("flushed before reaching batch size")
	}

	sb.Write("C")
	content, ok := sb.Flush()
	if !ok || content != "ABC" {
		t.Errorf("Flush() = %q, %v; want ABC, true", content, ok)
	}
	if _, ok := sb.ForceFlush(); ok {
		t.Error("ForceFlush() after flush released content")
	}
}

func TestStreamBuffer_FlushByTime(t *testing.T) {
	sb := NewStreamBufferWithConfig(100, 30)

	sb.Write("A")
	if _, ok := sb.Flush(); ok {
		t.Error("flushed immediately")
	}

	time.Sleep(40 * time.Millisecond)
	content, ok := sb.Flush()
	if !ok || content != "A" {
		t.Errorf("Flush() = %q, %v; want A, true", content, ok)
	}
}

func TestStreamBuffer_ForceFlushAndReset(t *testing.T) {
	sb := NewStreamBuffer()

	if _, ok := sb.ForceFlush(); ok {
		t.Error("ForceFlush on empty buffer returned content")
	}

	sb.Write("Hello")
	sb.Write(" ")
	sb.Write("世界")
	content, ok := sb.ForceFlush()
	if !ok || content != "Hello 世界" {
		t.Errorf("ForceFlush() = %q, %v", content, ok)
	}

	sb.Write("dropped")
	sb.Reset()
	if _, ok := sb.ForceFlush(); ok {
		t.Error("content survived Reset")
	}
}

func TestStreamBuffer_Concurrency(t *testing.T) {
	sb := NewStreamBufferWithConfig(5, 60)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var got []byte

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			sb.Write("x")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if s, ok := sb.Flush(); ok {
				mu.Lock()
				got = append(got, s...)
				mu.Unlock()
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()
	wg.Wait()

	if s, ok := sb.ForceFlush(); ok {
		got = append(got, s...)
	}
	if len(got) != 200 {
		t.Errorf("received %d bytes, want 200", len(got))
	}
}
