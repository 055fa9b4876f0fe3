// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/jeranaias/hypve-tui/internal/kv"
	"github.com/jeranaias/hypve-tui/internal/util"
)

// =============================================================================
// TYPES
// =============================================================================

// Role identifies who wrote a message.
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// Message is one entry of a chat record.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Record is the ordered message list of one chat.
type Record []Message

// LastUserMessage returns the text of the most recent user message.
func (r Record) LastUserMessage() (string, bool) {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i].Role == RoleUser {
			return r[i].Text, true
		}
	}
	return "", false
}

// LastReply returns the text of the most recent ai message.
func (r Record) LastReply() (string, bool) {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i].Role == RoleAI {
			return r[i].Text, true
		}
	}
	return "", false
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrChatNotFound is returned when a title is not in the title list.
	ErrChatNotFound = errors.New("chat not found")

	// ErrTitleExists is returned by rename when the new title is taken.
	ErrTitleExists = errors.New("chat title already exists")

	// ErrEmptyTitle is returned for blank titles.
	ErrEmptyTitle = errors.New("chat title is empty")
)

// =============================================================================
// KEYS
// =============================================================================

const (
	KeyGuestTitles   = "guestChatTitles"
	KeyGuestRecords  = "guestChatRecords"
	KeyCurrentUserID = "currentUserId"
)

// TitlesKey is the title list key for userID.
func TitlesKey(userID string) string { return "chatTitles_" + userID }

// ChatKey is the record key for one chat of userID.
func ChatKey(userID, title string) string { return "chat_" + userID + "_" + title }

// LastOpenedKey is the key remembering the last opened chat of userID.
func LastOpenedKey(userID string) string { return "lastOpenedChat_" + userID }

// =============================================================================
// SCHEMA
// =============================================================================

// Schema reads and writes chat history through a kv.Store. Each method is
// one or two independent writes; there are no cross-key transactions.
type Schema struct {
	store kv.Store
}

// New wraps store.
func New(store kv.Store) *Schema {
	return &Schema{store: store}
}

// Store returns the underlying store.
func (s *Schema) Store() kv.Store { return s.store }

// getJSON decodes key into v. Missing or malformed values leave v untouched.
func (s *Schema) getJSON(key string, v interface{}) error {
	raw, ok, err := s.store.Get(key)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		log.Printf("[history] ignoring malformed value at %s: %v", key, err)
		// Unmarshal may have half-filled v.
		rv := reflect.ValueOf(v).Elem()
		rv.Set(reflect.Zero(rv.Type()))
	}
	return nil
}

func (s *Schema) setJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.store.Set(key, string(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Titles returns the title list of userID, newest first.
func (s *Schema) Titles(userID string) ([]string, error) {
	titles := []string{}
	if err := s.getJSON(TitlesKey(userID), &titles); err != nil {
		return nil, err
	}
	if titles == nil {
		titles = []string{}
	}
	return titles, nil
}

// SaveTitle inserts title at the front of userID's list unless present.
func (s *Schema) SaveTitle(userID, title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTitle
	}
	titles, err := s.Titles(userID)
	if err != nil {
		return err
	}
	if contains(titles, title) {
		return nil
	}
	return s.setJSON(TitlesKey(userID), append([]string{title}, titles...))
}

// Record returns the messages of one chat. A missing chat is empty.
func (s *Schema) Record(userID, title string) (Record, error) {
	rec := Record{}
	if err := s.getJSON(ChatKey(userID, title), &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		rec = Record{}
	}
	return rec, nil
}

// AppendMessage adds one message to the end of a chat record.
func (s *Schema) AppendMessage(userID, title string, role Role, text string) error {
	return s.AppendMessages(userID, title, Message{Role: role, Text: text})
}

// AppendMessages adds messages to a chat record in one write.
func (s *Schema) AppendMessages(userID, title string, msgs ...Message) error {
	rec, err := s.Record(userID, title)
	if err != nil {
		return err
	}
	return s.setJSON(ChatKey(userID, title), append(rec, msgs...))
}

// DeleteChat removes title from the list and deletes its record.
func (s *Schema) DeleteChat(userID, title string) error {
	titles, err := s.Titles(userID)
	if err != nil {
		return err
	}
	if err := s.setJSON(TitlesKey(userID), remove(titles, title)); err != nil {
		return err
	}
	if err := s.store.Delete(ChatKey(userID, title)); err != nil {
		return fmt.Errorf("failed to delete chat %q: %w", title, err)
	}
	if last, _ := s.LastOpened(userID); last == title {
		if err := s.store.Delete(LastOpenedKey(userID)); err != nil {
			return fmt.Errorf("failed to clear last opened chat: %w", err)
		}
	}
	return nil
}

// RenameChat moves a chat to a new title, keeping its list position.
func (s *Schema) RenameChat(userID, oldTitle, newTitle string) error {
	if strings.TrimSpace(newTitle) == "" {
		return ErrEmptyTitle
	}
	if oldTitle == newTitle {
		return nil
	}
	titles, err := s.Titles(userID)
	if err != nil {
		return err
	}
	idx := indexOf(titles, oldTitle)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrChatNotFound, oldTitle)
	}
	if contains(titles, newTitle) {
		return fmt.Errorf("%w: %s", ErrTitleExists, newTitle)
	}

	rec, err := s.Record(userID, oldTitle)
	if err != nil {
		return err
	}
	if err := s.setJSON(ChatKey(userID, newTitle), rec); err != nil {
		return err
	}
	titles[idx] = newTitle
	if err := s.setJSON(TitlesKey(userID), titles); err != nil {
		return err
	}
	if err := s.store.Delete(ChatKey(userID, oldTitle)); err != nil {
		return fmt.Errorf("failed to delete old chat %q: %w", oldTitle, err)
	}
	if last, _ := s.LastOpened(userID); last == oldTitle {
		return s.SetLastOpened(userID, newTitle)
	}
	return nil
}

// PruneOrphans deletes chat records that no title list names, and guest
// records missing from the guest title list. Title lists and records are
// written separately, so an interrupted delete leaves the record behind.
// It returns the number of records removed.
func (s *Schema) PruneOrphans() (int, error) {
	listKeys, err := s.store.Keys("chatTitles_")
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}
	// User ids may prefix each other ("a" and "a_b"), so match whole keys
	// rather than per-user prefixes.
	claimed := make(map[string]bool)
	for _, lk := range listKeys {
		userID := strings.TrimPrefix(lk, "chatTitles_")
		titles, err := s.Titles(userID)
		if err != nil {
			return 0, err
		}
		for _, t := range titles {
			claimed[ChatKey(userID, t)] = true
		}
	}

	recKeys, err := s.store.Keys("chat_")
	if err != nil {
		return 0, fmt.Errorf("failed to list chats: %w", err)
	}
	removed := 0
	for _, k := range recKeys {
		if claimed[k] {
			continue
		}
		if err := s.store.Delete(k); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", k, err)
		}
		removed++
	}

	g, err := s.LoadGuest()
	if err != nil {
		return removed, err
	}
	stale := 0
	for title := range g.Records {
		if !contains(g.Titles, title) {
			delete(g.Records, title)
			stale++
		}
	}
	if stale > 0 {
		if err := s.SaveGuest(g); err != nil {
			return removed, err
		}
		removed += stale
	}
	if removed > 0 {
		log.Printf("[history] pruned %d orphaned records", removed)
	}
	return removed, nil
}

// CurrentUserID returns the stored user id, or "" for a guest.
func (s *Schema) CurrentUserID() (string, error) {
	v, _, err := s.store.Get(KeyCurrentUserID)
	if err != nil {
		return "", fmt.Errorf("failed to read current user: %w", err)
	}
	return v, nil
}

// SetCurrentUserID stores id as the current user.
func (s *Schema) SetCurrentUserID(id string) error {
	return s.store.Set(KeyCurrentUserID, id)
}

// ClearCurrentUserID forgets the current user.
func (s *Schema) ClearCurrentUserID() error {
	return s.store.Delete(KeyCurrentUserID)
}

// LastOpened returns the last chat title opened by userID.
func (s *Schema) LastOpened(userID string) (string, error) {
	v, _, err := s.store.Get(LastOpenedKey(userID))
	return v, err
}

// SetLastOpened remembers title as userID's last opened chat.
func (s *Schema) SetLastOpened(userID, title string) error {
	return s.store.Set(LastOpenedKey(userID), title)
}

// =============================================================================
// GUEST STATE
// =============================================================================

// GuestState is the in-memory mirror of the guest keys.
type GuestState struct {
	Titles  []string
	Records map[string]Record
}

// NewGuestState returns an empty guest state.
func NewGuestState() *GuestState {
	return &GuestState{Titles: []string{}, Records: map[string]Record{}}
}

// Add inserts title at the front unless present, with an empty record.
func (g *GuestState) Add(title string) {
	if !contains(g.Titles, title) {
		g.Titles = append([]string{title}, g.Titles...)
	}
	if _, ok := g.Records[title]; !ok {
		g.Records[title] = Record{}
	}
}

// Append adds messages to a chat, creating the record if needed.
func (g *GuestState) Append(title string, msgs ...Message) {
	g.Records[title] = append(g.Records[title], msgs...)
}

// Delete removes a chat.
func (g *GuestState) Delete(title string) {
	g.Titles = remove(g.Titles, title)
	delete(g.Records, title)
}

// Rename moves a chat to a new title.
func (g *GuestState) Rename(oldTitle, newTitle string) error {
	idx := indexOf(g.Titles, oldTitle)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrChatNotFound, oldTitle)
	}
	if contains(g.Titles, newTitle) {
		return fmt.Errorf("%w: %s", ErrTitleExists, newTitle)
	}
	g.Titles[idx] = newTitle
	g.Records[newTitle] = g.Records[oldTitle]
	delete(g.Records, oldTitle)
	return nil
}

// Record returns a copy of one chat's messages.
func (g *GuestState) Record(title string) Record {
	rec := g.Records[title]
	out := make(Record, len(rec))
	copy(out, rec)
	return out
}

// LoadGuest reads the guest keys. Malformed values read as empty.
func (s *Schema) LoadGuest() (*GuestState, error) {
	g := NewGuestState()
	if err := s.getJSON(KeyGuestTitles, &g.Titles); err != nil {
		return nil, err
	}
	if err := s.getJSON(KeyGuestRecords, &g.Records); err != nil {
		return nil, err
	}
	if g.Titles == nil {
		g.Titles = []string{}
	}
	if g.Records == nil {
		g.Records = map[string]Record{}
	}
	return g, nil
}

// SaveGuest writes both guest keys.
func (s *Schema) SaveGuest(g *GuestState) error {
	if err := s.setJSON(KeyGuestTitles, g.Titles); err != nil {
		return err
	}
	return s.setJSON(KeyGuestRecords, g.Records)
}

// =============================================================================
// TITLES
// =============================================================================

// DeriveTitle builds a chat title from the first prompt: whitespace is
// collapsed and prompts longer than maxRunes are cut with "...".
func DeriveTitle(prompt string, maxRunes int) string {
	s := util.SingleLine(prompt)
	runes := []rune(s)
	if maxRunes > 0 && len(runes) > maxRunes {
		return string(runes[:maxRunes]) + "..."
	}
	return s
}

// UniqueTitle resolves a collision between title and existing. With
// disambiguate it appends " #xxxx" until unique; otherwise it returns the
// title unchanged and reports that the existing chat is reused.
func UniqueTitle(existing []string, title string, disambiguate bool) (string, bool) {
	if !contains(existing, title) {
		return title, false
	}
	if !disambiguate {
		return title, true
	}
	for {
		candidate := title + " #" + uuid.NewString()[:4]
		if !contains(existing, candidate) {
			return candidate, false
		}
	}
}

func contains(list []string, s string) bool {
	return indexOf(list, s) >= 0
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func remove(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
