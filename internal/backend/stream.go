// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"strings"
	"unicode/utf8"
)

// =============================================================================
// PAYLOADS
// =============================================================================

// payload is any JSON body the server may send: a full reply or one
// stream token. The first non-empty field wins.
type payload struct {
	Token    *string         `json:"token"`
	Response *string         `json:"response"`
	Content  *string         `json:"content"`
	Text     *string         `json:"text"`
	Error    json.RawMessage `json:"error"`
	Choices  []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *payload) text() string {
	for _, s := range []*string{p.Token, p.Response, p.Content, p.Text} {
		if s != nil {
			return *s
		}
	}
	if len(p.Choices) > 0 {
		if p.Choices[0].Delta.Content != "" {
			return p.Choices[0].Delta.Content
		}
		return p.Choices[0].Message.Content
	}
	return ""
}

// errorMessage returns the server's error text, if the payload is one.
func (p *payload) errorMessage() string {
	if len(p.Error) == 0 || string(p.Error) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Error, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(p.Error, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(p.Error)
}

// parseToken decodes one SSE data field. A bare JSON string is a token.
func parseToken(data []byte) (string, error) {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", err
	}
	if msg := p.errorMessage(); msg != "" {
		return "", &serverError{msg: msg}
	}
	return p.text(), nil
}

type serverError struct{ msg string }

func (e *serverError) Error() string { return "server error: " + e.msg }

// =============================================================================
// STREAM ERROR
// =============================================================================

// StreamError is a failure after some of the reply arrived.
type StreamError struct {
	Partial string // Content received before error
	Err     error
}

func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Is reports stream failures as ErrServerBusy.
func (e *StreamError) Is(target error) bool {
	return target == ErrServerBusy
}

// =============================================================================
// SSE READER
// =============================================================================

// MaxChunkSize is the maximum size of one SSE line.
const MaxChunkSize = 64 * 1024

// ErrChunkTooLarge is returned for an SSE line over MaxChunkSize.
var ErrChunkTooLarge = errors.New("stream chunk too large")

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReaderSize(r, 4096)}
}

func (s *SSEReader) readLine() ([]byte, error) {
	var line []byte
	for {
		frag, isPrefix, err := s.reader.ReadLine()
		line = append(line, frag...)
		if len(line) > MaxChunkSize {
			return nil, ErrChunkTooLarge
		}
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				return line, nil
			}
			return nil, err
		}
		if !isPrefix {
			return line, nil
		}
	}
}

// ReadEvent reads the next event. Multiple data lines are joined with
// newlines. Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte

	for {
		line, err := s.readLine()
		if err != nil {
			if err == io.EOF && len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			return "", nil, err
		}

		// Empty line ends the event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			eventType = ""
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[6:]))
		case bytes.HasPrefix(line, []byte("data:")):
			data := line[5:]
			if len(data) > 0 && data[0] == ' ' {
				data = data[1:]
			}
			dataLines = append(dataLines, data)
		}
		// id:, retry: and : comments are ignored
	}
}

// =============================================================================
// STREAMING GENERATE
// =============================================================================

// GenerateStream posts prompt with stream:true and calls fn for each token
// as it arrives. It returns the accumulated reply. Context cancellation
// aborts the body read and returns the context error.
//
// The server may answer with an event stream, a plain JSON reply, or
// chunked plain text; all three are accepted.
func (c *Client) GenerateStream(ctx context.Context, prompt string, fn func(token string)) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	if fn == nil {
		fn = func(string) {}
	}

	resp, err := c.post(ctx, c.streamClient, generateRequest{Prompt: prompt, Stream: true}, "text/event-stream")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body := c.limit(resp.Body)
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	var text string
	switch mediaType {
	case "application/json":
		text, err = c.decodeReply(resp.Body)
		if err == nil {
			fn(text)
		}
	case "text/plain":
		text, err = readPlainStream(ctx, body, fn)
	default:
		text, err = readEventStream(ctx, body, fn)
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return text, ctxErr
		}
		if text == "" && errors.Is(err, ErrServerBusy) {
			return "", err
		}
		return text, &StreamError{Partial: text, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		fn(NoReply)
		return NoReply, nil
	}
	return text, nil
}

// readEventStream consumes data: lines until [DONE] or EOF. Malformed
// JSON lines are skipped.
func readEventStream(ctx context.Context, body io.Reader, fn func(string)) (string, error) {
	reader := NewSSEReader(body)
	var acc strings.Builder

	for {
		if err := ctx.Err(); err != nil {
			return acc.String(), err
		}

		event, data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return acc.String(), nil
			}
			return acc.String(), err
		}

		if bytes.Equal(bytes.TrimSpace(data), []byte("[DONE]")) {
			return acc.String(), nil
		}
		if event == "error" {
			return acc.String(), &serverError{msg: string(data)}
		}

		token, err := parseToken(data)
		if err != nil {
			var se *serverError
			if errors.As(err, &se) {
				return acc.String(), err
			}
			log.Printf("[backend] skipping malformed stream line: %v", err)
			continue
		}
		if token == "" {
			continue
		}
		acc.WriteString(token)
		fn(token)
	}
}

// readPlainStream forwards raw text chunks, holding back a trailing
// partial UTF-8 sequence until the rest arrives.
func readPlainStream(ctx context.Context, body io.Reader, fn func(string)) (string, error) {
	var acc strings.Builder
	buf := make([]byte, 4096)
	var carry []byte

	for {
		if err := ctx.Err(); err != nil {
			return acc.String(), err
		}
		n, err := body.Read(buf)
		if n > 0 {
			chunk := append(carry, buf[:n]...)
			cut := validPrefix(chunk)
			carry = append([]byte(nil), chunk[cut:]...)
			if cut > 0 {
				token := string(chunk[:cut])
				acc.WriteString(token)
				fn(token)
			}
		}
		if err != nil {
			if err == io.EOF {
				if len(carry) > 0 {
					token := string(carry)
					acc.WriteString(token)
					fn(token)
				}
				return acc.String(), nil
			}
			return acc.String(), err
		}
	}
}

// validPrefix returns the length of b without an incomplete trailing rune.
func validPrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return i
			}
			break
		}
	}
	return len(b)
}
