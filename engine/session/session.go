// Package session keeps per-user conversation history for the chat bot.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kk32340/SampleMLCode/engine/domain"
)

// Role identifies who sent a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultMaxMessages keeps the last ten exchanges.
const DefaultMaxMessages = 20

// DefaultContextMessages is how many recent messages Context renders.
const DefaultContextMessages = 12

// Message is one turn of a conversation.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Store holds conversation history per user id. Each history is trimmed to
// the most recent MaxMessages on append.
type Store struct {
	mu          sync.RWMutex
	maxMessages int
	histories   map[string][]Message
	now         func() time.Time
}

// New creates a Store keeping at most maxMessages per user.
func New(maxMessages int) (*Store, error) {
	if maxMessages <= 0 {
		return nil, fmt.Errorf("session: %w", domain.InvalidConfig("max_messages", maxMessages))
	}
	return &Store{
		maxMessages: maxMessages,
		histories:   make(map[string][]Message),
		now:         time.Now,
	}, nil
}

// MaxMessages returns the per-user limit.
func (s *Store) MaxMessages() int { return s.maxMessages }

// Append records a message for user and evicts the oldest beyond the limit.
func (s *Store) Append(user string, role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.histories[user], Message{Role: role, Content: content, At: s.now()})
	if over := len(h) - s.maxMessages; over > 0 {
		h = append([]Message(nil), h[over:]...)
	}
	s.histories[user] = h
}

// History returns a copy of user's messages, oldest first.
func (s *Store) History(user string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.histories[user]...)
}

// Len returns how many messages are stored for user.
func (s *Store) Len(user string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.histories[user])
}

// Context renders the last n messages of user as "User: ..." and
// "Assistant: ..." lines. n <= 0 means DefaultContextMessages.
func (s *Store) Context(user string, n int) string {
	if n <= 0 {
		n = DefaultContextMessages
	}
	h := s.History(user)
	if len(h) > n {
		h = h[len(h)-n:]
	}
	var b strings.Builder
	for i, m := range h {
		if i > 0 {
			b.WriteByte('\n')
		}
		if m.Role == RoleUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Assistant: ")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}

// Clear forgets user's history.
func (s *Store) Clear(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.histories, user)
}

// Sessions returns the number of users with history.
func (s *Store) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.histories)
}
