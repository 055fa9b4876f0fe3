// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/hypve-tui/internal/config"
	"github.com/jeranaias/hypve-tui/internal/render"
	"github.com/jeranaias/hypve-tui/internal/session"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrNothingToRegenerate is returned by Regenerate when the open chat has
// no prompt to resend.
var ErrNothingToRegenerate = errors.New("no previous prompt to regenerate")

// =============================================================================
// TYPES
// =============================================================================

// Backend is the part of backend.Client the engine needs.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string, fn func(token string)) (string, error)
}

// Observer receives the progress of one Send. Calls are never concurrent.
type Observer interface {
	// OnStart is called once the turn is accepted, before any network I/O.
	OnStart()
	// OnFrame is called for every displayed frame, ending with a Final one.
	OnFrame(render.Frame)
	// OnDone is called exactly once per accepted turn.
	OnDone(Result)
}

// ObserverFuncs adapts optional callbacks to Observer.
type ObserverFuncs struct {
	Start func()
	Frame func(render.Frame)
	Done  func(Result)
}

func (o ObserverFuncs) OnStart() {
	if o.Start != nil {
		o.Start()
	}
}

func (o ObserverFuncs) OnFrame(f render.Frame) {
	if o.Frame != nil {
		o.Frame(f)
	}
}

func (o ObserverFuncs) OnDone(r Result) {
	if o.Done != nil {
		o.Done(r)
	}
}

// Result describes how a turn ended.
type Result struct {
	Prompt string
	// Title is the chat the exchange was saved under.
	Title string
	// Reply is the persisted reply, or the busy message on failure.
	Reply string
	// Frame is the last frame shown.
	Frame     render.Frame
	Failed    bool
	Cancelled bool
	// Err is the underlying failure, for logs.
	Err      error
	Duration time.Duration
}

// Options configure how replies are revealed.
type Options struct {
	Stream          bool
	Typewriter      bool
	TypewriterDelay time.Duration
	TypewriterStep  int
	Display         render.Options
	// BatchSize and MaxFPS throttle streamed tokens.
	BatchSize int
	MaxFPS    int
}

// OptionsFromConfig maps config onto engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Stream:          cfg.Server.Stream,
		Typewriter:      cfg.Render.Typewriter,
		TypewriterDelay: time.Duration(cfg.Render.TypewriterDelayMs) * time.Millisecond,
		TypewriterStep:  1,
		Display: render.Options{
			Markdown:       cfg.Render.Markdown,
			MinRunes:       cfg.Render.RerenderMinRunes,
			HighlightEvery: cfg.Render.HighlightEvery,
			CodeStyle:      cfg.Render.CodeStyle,
		},
		BatchSize: 15,
		MaxFPS:    30,
	}
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine runs one turn at a time against a session.
type Engine struct {
	backend  Backend
	session  *session.Session
	renderer render.Renderer
	opts     Options

	inflight inflight
}

// New creates an Engine. A nil renderer shows replies as plain text.
func New(b Backend, s *session.Session, r render.Renderer, opts Options) *Engine {
	if opts.TypewriterStep <= 0 {
		opts.TypewriterStep = 1
	}
	return &Engine{backend: b, session: s, renderer: r, opts: opts}
}

// Session returns the session the engine persists into.
func (e *Engine) Session() *session.Session { return e.session }

// SetRenderer swaps the renderer used for subsequent turns, e.g. after
// a resize changes the wrap width.
func (e *Engine) SetRenderer(r render.Renderer) {
	e.inflight.mu.Lock()
	e.renderer = r
	e.inflight.mu.Unlock()
}

// SetOptions replaces the options used by subsequent turns. A turn in
// flight keeps the options it started with.
func (e *Engine) SetOptions(opts Options) {
	if opts.TypewriterStep <= 0 {
		opts.TypewriterStep = 1
	}
	e.inflight.mu.Lock()
	e.opts = opts
	e.inflight.mu.Unlock()
}

// Cancel stops the in-flight turn. It reports whether one was running.
func (e *Engine) Cancel() bool {
	return e.inflight.cancel()
}

// Send runs prompt to completion. An error is returned only when the
// turn was not accepted (empty prompt, busy); backend failures and
// cancellation are reported through Result.
func (e *Engine) Send(ctx context.Context, prompt string, obs Observer) (Result, error) {
	if obs == nil {
		obs = ObserverFuncs{}
	}

	turn, err := e.session.BeginSend(ctx, prompt)
	if err != nil {
		return Result{}, err
	}

	e.inflight.mu.Lock()
	renderer, opts := e.renderer, e.opts
	e.inflight.mu.Unlock()

	display := render.NewDisplay(renderer, opts.Display)
	e.inflight.set(turn, display)
	defer e.inflight.clear(turn)

	start := time.Now()
	obs.OnStart()

	var reply string
	var frame render.Frame
	if opts.Stream {
		reply, frame, err = e.stream(turn, display, opts, obs)
	} else {
		reply, frame, err = e.generate(turn, display, opts, obs)
	}

	res := Result{Prompt: turn.Prompt, Frame: frame, Duration: time.Since(start)}

	switch {
	case turn.Cancelled() || display.Cancelled() || errors.Is(err, context.Canceled):
		res.Cancelled = true

	case err != nil:
		res.Err = err
		res.Failed = true
		res.Reply = e.session.FailTurn(turn, err)
		if res.Reply == "" {
			res.Cancelled, res.Failed = true, false
			break
		}
		res.Frame = busyFrame(res.Reply)
		obs.OnFrame(res.Frame)

	default:
		res.Reply = strings.TrimSpace(reply)
		res.Title, err = e.session.CompleteTurn(turn, reply)
		if err != nil {
			log.Printf("[engine] failed to save chat: %v", err)
			res.Err = err
		}
		if res.Title == "" && err == nil {
			res.Cancelled = true
		}
	}

	if res.Cancelled {
		turn.Cancel()
	}
	obs.OnDone(res)
	return res, nil
}

// Regenerate resends the last prompt of the open chat.
func (e *Engine) Regenerate(ctx context.Context, obs Observer) (Result, error) {
	prompt, ok := e.session.LastUserMessage()
	if !ok {
		return Result{}, ErrNothingToRegenerate
	}
	return e.Send(ctx, prompt, obs)
}

// =============================================================================
// REVEAL
// =============================================================================

// stream feeds tokens through a StreamBuffer so bursts are coalesced into
// at most MaxFPS display updates.
func (e *Engine) stream(turn *session.Turn, d *render.Display, opts Options, obs Observer) (string, render.Frame, error) {
	sb := render.NewStreamBufferWithConfig(opts.BatchSize, opts.MaxFPS)
	var frames sync.Mutex
	push := func(chunk string) {
		frames.Lock()
		defer frames.Unlock()
		if d.Cancelled() {
			return
		}
		if f, rendered := d.Append(chunk); rendered {
			obs.OnFrame(f)
		}
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(sb.Interval())
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if chunk, ok := sb.Flush(); ok {
					push(chunk)
				}
			}
		}
	}()

	reply, err := e.backend.GenerateStream(turn.Context(), turn.Prompt, func(token string) {
		sb.Write(token)
		if chunk, ok := sb.Flush(); ok {
			push(chunk)
		}
	})
	close(stop)
	wg.Wait()

	if err != nil || d.Cancelled() {
		sb.Reset()
		return reply, d.Frame(), err
	}
	if rest, ok := sb.ForceFlush(); ok {
		push(rest)
	}

	frames.Lock()
	defer frames.Unlock()
	if d.Cancelled() {
		return reply, d.Frame(), nil
	}
	// Non-streaming answers to a stream request arrive in one piece.
	if got := d.Text(); got == "" && reply != "" {
		d.Append(reply)
	}
	final := d.Finish()
	obs.OnFrame(final)
	return reply, final, nil
}

// generate waits for the whole reply and reveals it with the typewriter
// when enabled.
func (e *Engine) generate(turn *session.Turn, d *render.Display, opts Options, obs Observer) (string, render.Frame, error) {
	reply, err := e.backend.Generate(turn.Context(), turn.Prompt)
	if err != nil {
		return "", d.Frame(), err
	}

	if opts.Typewriter {
		tw := render.NewTypewriter(opts.TypewriterDelay, opts.TypewriterStep)
		if err := tw.Run(turn.Context(), reply, d, obs.OnFrame); err != nil {
			// only cancellation stops the typewriter
			d.Cancel()
			return reply, d.Frame(), nil
		}
		return reply, d.Frame(), nil
	}

	d.Append(reply)
	final := d.Finish()
	obs.OnFrame(final)
	return reply, final, nil
}

func busyFrame(msg string) render.Frame {
	return render.Frame{Text: msg, Rendered: msg, Final: true}
}
