// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/hypve-tui/internal/backend"
	"github.com/jeranaias/hypve-tui/internal/history"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyPrompt is returned by BeginSend for a blank prompt.
	ErrEmptyPrompt = backend.ErrEmptyPrompt

	// ErrBusy is returned while another reply is in flight.
	ErrBusy = errors.New("a reply is already in progress")

	// ErrInvalidEmail is returned by LoginGuest.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrChatNotFound is returned for titles not in the sidebar.
	ErrChatNotFound = history.ErrChatNotFound
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// =============================================================================
// TYPES
// =============================================================================

// Prober reports the user signed in on the server.
type Prober interface {
	GetUser(ctx context.Context) (*backend.User, error)
}

// Options are the chat history knobs from config.
type Options struct {
	TitleMaxRunes      int
	DisambiguateTitles bool
}

// Session is the client state. The zero value is not usable; use New.
type Session struct {
	schema *history.Schema
	opts   Options

	mu      sync.Mutex
	userID  string // "" means guest
	email   string
	guest   *history.GuestState
	current string // open chat title, "" for a new chat
	open    bool   // thread visible
	turn    *Turn  // in-flight exchange
}

// New creates a guest session over schema.
func New(schema *history.Schema, opts Options) *Session {
	if opts.TitleMaxRunes <= 0 {
		opts.TitleMaxRunes = 30
	}
	return &Session{
		schema: schema,
		opts:   opts,
		guest:  history.NewGuestState(),
	}
}

// =============================================================================
// USER
// =============================================================================

// Start resolves the current user. A stored user id wins; otherwise the
// server is probed and an authenticated user is stored. Anything else,
// including a failed probe, continues as guest.
func (s *Session) Start(ctx context.Context, probe Prober) error {
	stored, err := s.schema.CurrentUserID()
	if err != nil {
		return err
	}

	if stored != "" {
		email := ""
		if probe != nil && !strings.HasPrefix(stored, "guest_") {
			if u, err := probe.GetUser(ctx); err == nil && u.Authenticated() {
				email = u.Email
			}
		}
		s.mu.Lock()
		s.userID, s.email = stored, email
		s.mu.Unlock()
		return nil
	}

	if probe != nil {
		u, err := probe.GetUser(ctx)
		if err != nil {
			log.Printf("[session] user probe failed, continuing as guest: %v", err)
		} else if u.Authenticated() {
			if err := s.schema.SetCurrentUserID(u.ID); err != nil {
				return err
			}
			s.mu.Lock()
			s.userID, s.email = u.ID, u.Email
			s.mu.Unlock()
			return nil
		}
	}

	if err := s.schema.ClearCurrentUserID(); err != nil {
		return err
	}
	return s.loadGuest()
}

func (s *Session) loadGuest() error {
	g, err := s.schema.LoadGuest()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.userID, s.email = "", ""
	s.guest = g
	s.mu.Unlock()
	return nil
}

// LoginGuest signs in locally with an email and a generated
// guest_<unixms>_<random> id. No server call is made.
func (s *Session) LoginGuest(email string) (string, error) {
	email = strings.TrimSpace(email)
	if !ValidEmail(email) {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	id := NewGuestID(time.Now())
	if err := s.schema.SetCurrentUserID(id); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.userID, s.email = id, email
	s.resetLocked()
	s.mu.Unlock()
	return id, nil
}

// NewGuestID returns guest_<unixms>_<9 base36 chars>.
func NewGuestID(now time.Time) string {
	u := uuid.New()
	n := binary.BigEndian.Uint64(u[:8])
	suffix := strconv.FormatUint(n, 36)
	for len(suffix) < 9 {
		suffix = "0" + suffix
	}
	return fmt.Sprintf("guest_%d_%s", now.UnixMilli(), suffix[:9])
}

// Logout forgets the user and returns to guest history.
func (s *Session) Logout() error {
	if err := s.schema.ClearCurrentUserID(); err != nil {
		return err
	}
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	return s.loadGuest()
}

// UserID returns the current user id, "" for a guest.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Email returns the signed-in email, if known.
func (s *Session) Email() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.email
}

// IsGuest reports whether history goes to the guest keys.
func (s *Session) IsGuest() bool {
	return s.UserID() == ""
}

// =============================================================================
// CHATS
// =============================================================================

// Titles returns the sidebar titles, newest first.
func (s *Session) Titles() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.titlesLocked()
}

func (s *Session) titlesLocked() ([]string, error) {
	if s.userID == "" {
		return append([]string(nil), s.guest.Titles...), nil
	}
	return s.schema.Titles(s.userID)
}

// Record returns the messages of one chat.
func (s *Session) Record(title string) (history.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked(title)
}

func (s *Session) recordLocked(title string) (history.Record, error) {
	if s.userID == "" {
		return s.guest.Record(title), nil
	}
	return s.schema.Record(s.userID, title)
}

// Open makes title the current chat and returns its messages.
func (s *Session) Open(title string) (history.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.turn != nil {
		return nil, ErrBusy
	}
	titles, err := s.titlesLocked()
	if err != nil {
		return nil, err
	}
	if !containsTitle(titles, title) {
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, title)
	}

	rec, err := s.recordLocked(title)
	if err != nil {
		return nil, err
	}
	s.current, s.open = title, true
	if s.userID != "" {
		if err := s.schema.SetLastOpened(s.userID, title); err != nil {
			log.Printf("[session] failed to remember last opened chat: %v", err)
		}
	}
	return rec, nil
}

// Resume opens the user's last opened chat, if it still exists.
func (s *Session) Resume() (string, history.Record, bool) {
	userID := s.UserID()
	if userID == "" {
		return "", nil, false
	}
	last, err := s.schema.LastOpened(userID)
	if err != nil || last == "" {
		return "", nil, false
	}
	rec, err := s.Open(last)
	if err != nil {
		return "", nil, false
	}
	return last, rec, true
}

// Reset closes the thread so the next send starts a new chat. An
// in-flight reply is cancelled.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	if s.turn != nil {
		s.turn.abort()
		s.turn = nil
	}
	s.current, s.open = "", false
}

// Current returns the open chat title, "" when none.
func (s *Session) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// IsOpen reports whether the thread is visible.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Busy reports whether a reply is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn != nil
}

// Delete removes a chat. resetView is true when it was the open chat,
// in which case the thread is reset.
func (s *Session) Delete(title string) (resetView bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userID == "" {
		s.guest.Delete(title)
		err = s.schema.SaveGuest(s.guest)
	} else {
		err = s.schema.DeleteChat(s.userID, title)
	}
	if err != nil {
		return false, err
	}

	if title == s.current {
		s.resetLocked()
		return true, nil
	}
	return false, nil
}

// PruneOrphans removes chat records left behind by interrupted deletes.
// The guest mirror is reloaded so it matches the store.
func (s *Session) PruneOrphans() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.schema.PruneOrphans()
	if err != nil {
		return n, err
	}
	if s.userID == "" && n > 0 {
		g, err := s.schema.LoadGuest()
		if err != nil {
			return n, err
		}
		s.guest = g
	}
	return n, nil
}

// Rename moves a chat to a new title.
func (s *Session) Rename(oldTitle, newTitle string) error {
	newTitle = strings.TrimSpace(newTitle)
	if newTitle == "" {
		return history.ErrEmptyTitle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userID == "" {
		if err := s.guest.Rename(oldTitle, newTitle); err != nil {
			return err
		}
		if err := s.schema.SaveGuest(s.guest); err != nil {
			return err
		}
	} else if err := s.schema.RenameChat(s.userID, oldTitle, newTitle); err != nil {
		return err
	}

	if s.current == oldTitle {
		s.current = newTitle
	}
	return nil
}

// LastUserMessage returns the last prompt of the open chat.
func (s *Session) LastUserMessage() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return "", false
	}
	rec, err := s.recordLocked(s.current)
	if err != nil {
		return "", false
	}
	return rec.LastUserMessage()
}

// LastReply returns the last reply of the open chat.
func (s *Session) LastReply() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return "", false
	}
	rec, err := s.recordLocked(s.current)
	if err != nil {
		return "", false
	}
	return rec.LastReply()
}

// =============================================================================
// TURNS
// =============================================================================

// Turn is one prompt/reply exchange.
type Turn struct {
	// Prompt is the trimmed prompt.
	Prompt string
	// Title is the chat the turn was started in, "" for a new chat.
	Title string

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	session   *Session
}

// Context is cancelled when the turn is cancelled; use it for the request.
func (t *Turn) Context() context.Context { return t.ctx }

// Cancelled reports whether Cancel was called.
func (t *Turn) Cancelled() bool { return t.cancelled.Load() }

// Cancel stops the turn: the request context is cancelled, nothing will
// be persisted and the session accepts a new send immediately.
func (t *Turn) Cancel() {
	t.abort()
	t.session.release(t)
}

func (t *Turn) abort() {
	t.cancelled.Store(true)
	t.cancel()
}

// BeginSend starts a turn. The prompt is trimmed; a blank prompt returns
// ErrEmptyPrompt and a second concurrent send returns ErrBusy.
func (s *Session) BeginSend(ctx context.Context, prompt string) (*Turn, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turn != nil {
		return nil, ErrBusy
	}

	tctx, cancel := context.WithCancel(ctx)
	t := &Turn{
		Prompt:  prompt,
		Title:   s.current,
		ctx:     tctx,
		cancel:  cancel,
		session: s,
	}
	s.turn = t
	s.open = true
	return t, nil
}

// release clears t if it is still the in-flight turn.
func (s *Session) release(t *Turn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(t)
}

func (s *Session) releaseLocked(t *Turn) bool {
	if s.turn != t {
		return false
	}
	s.turn = nil
	return true
}

// CompleteTurn persists the exchange and returns the chat title it was
// saved under. A cancelled turn returns "" and saves nothing. The first
// exchange of a new chat derives the title from the prompt.
func (s *Session) CompleteTurn(t *Turn, reply string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Cancelled() || !s.releaseLocked(t) {
		return "", nil
	}
	defer t.cancel()

	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = backend.NoReply
	}

	title := s.current
	if title == "" {
		titles, err := s.titlesLocked()
		if err != nil {
			return "", err
		}
		title, _ = history.UniqueTitle(titles,
			history.DeriveTitle(t.Prompt, s.opts.TitleMaxRunes), s.opts.DisambiguateTitles)
		s.current = title
	}

	msgs := []history.Message{
		{Role: history.RoleUser, Text: t.Prompt},
		{Role: history.RoleAI, Text: reply},
	}

	if s.userID == "" {
		s.guest.Add(title)
		s.guest.Append(title, msgs...)
		if err := s.schema.SaveGuest(s.guest); err != nil {
			return title, err
		}
		return title, nil
	}

	if err := s.schema.SaveTitle(s.userID, title); err != nil {
		return title, err
	}
	if err := s.schema.AppendMessages(s.userID, title, msgs...); err != nil {
		return title, err
	}
	if err := s.schema.SetLastOpened(s.userID, title); err != nil {
		log.Printf("[session] failed to remember last opened chat: %v", err)
	}
	return title, nil
}

// FailTurn ends a failed turn and returns the text for the error bubble.
// Failed exchanges are not persisted. A cancelled turn returns "".
func (s *Session) FailTurn(t *Turn, err error) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Cancelled() || !s.releaseLocked(t) {
		return ""
	}
	t.cancel()
	log.Printf("[session] reply failed: %v", err)
	return backend.BusyMessage
}

func containsTitle(titles []string, title string) bool {
	for _, t := range titles {
		if t == title {
			return true
		}
	}
	return false
}
