package krishichat

import (
	"strconv"
	"sync"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageKind distinguishes real content from transient status placeholders.
type MessageKind string

const (
	MessageKindNormal MessageKind = "normal"
	MessageKindStatus MessageKind = "status"
)

// Message is one entry in a chat session. Messages are replaced, never
// mutated in place, so published snapshots stay consistent.
type Message struct {
	ID      string
	Role    Role
	Content string
	Kind    MessageKind
}

// ChatSession is one conversation thread, local or backend-confirmed.
//
// Persisted reports whether the id was assigned by the backend. It replaces
// the id-length check the web client used; id formats carry no meaning here.
type ChatSession struct {
	ID        string
	Title     string
	Persisted bool
	Messages  []Message
}

// Snapshot is an immutable view of the store published to subscribers.
type Snapshot struct {
	Sessions  []ChatSession
	CurrentID string
	Loading   bool
}

// Session returns the session with the given id, if present.
func (s Snapshot) Session(id string) (ChatSession, bool) {
	for _, session := range s.Sessions {
		if session.ID == id {
			return session, true
		}
	}
	return ChatSession{}, false
}

// Current returns the current session, if any.
func (s Snapshot) Current() (ChatSession, bool) {
	if s.CurrentID == "" {
		return ChatSession{}, false
	}
	return s.Session(s.CurrentID)
}

const maxTitleLen = 30

// SessionStore holds every chat session and publishes immutable snapshots to
// subscribers. It is written by a single stream at a time but read by many
// views concurrently; every mutation replaces the affected session rather
// than editing it, and operations on unknown ids degrade to no-ops because
// the UI renders optimistically ahead of network confirmation.
type SessionStore struct {
	mu        sync.Mutex
	sessions  []ChatSession
	currentID string
	loading   bool

	subs   map[int]chan Snapshot
	nextID int

	now func() time.Time
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		subs: make(map[int]chan Snapshot),
		now:  time.Now,
	}
}

// Subscribe registers a snapshot listener. The returned cancel func must be
// called to release it. Notifications coalesce: a slow reader observes the
// latest snapshot rather than every intermediate one.
func (s *SessionStore) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Snapshot returns the current store state.
func (s *SessionStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *SessionStore) snapshotLocked() Snapshot {
	sessions := make([]ChatSession, len(s.sessions))
	copy(sessions, s.sessions)
	return Snapshot{Sessions: sessions, CurrentID: s.currentID, Loading: s.loading}
}

func (s *SessionStore) publishLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Replace the stale pending snapshot with the latest one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// CreateSession prepends a new session with a fresh temporary id and makes
// it current. It returns the new id.
func (s *SessionStore) CreateSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strconv.FormatInt(s.now().UnixMilli(), 10)
	s.sessions = append([]ChatSession{{ID: id}}, s.sessions...)
	s.currentID = id
	s.publishLocked()
	return id
}

// SetCurrent switches the active session. An empty id clears it.
func (s *SessionStore) SetCurrent(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentID = id
	s.publishLocked()
}

// SetLoading flips the pending-submission flag.
func (s *SessionStore) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
	s.publishLocked()
}

// RenameSession derives a session title from its first user message: at most
// 30 characters, with "..." appended when truncated. Valid only while the
// session has no messages.
func (s *SessionStore) RenameSession(id, firstMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, session := range s.sessions {
		if session.ID != id || len(session.Messages) != 0 {
			continue
		}
		session.Title = truncateTitle(firstMessage)
		s.sessions[i] = session
		s.publishLocked()
		return
	}
}

func truncateTitle(text string) string {
	// Counted in runes so non-ASCII titles are never cut mid-character.
	runes := []rune(text)
	if len(runes) > maxTitleLen {
		return string(runes[:maxTitleLen]) + "..."
	}
	return text
}

// AppendMessages appends messages to the identified session. No-op when the
// session is unknown.
func (s *SessionStore) AppendMessages(id string, messages ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, session := range s.sessions {
		if session.ID != id {
			continue
		}
		next := make([]Message, 0, len(session.Messages)+len(messages))
		next = append(next, session.Messages...)
		next = append(next, messages...)
		session.Messages = next
		s.sessions[i] = session
		s.publishLocked()
		return
	}
}

// UpdateMessageContent replaces one message's content wherever it lives. The
// search spans every session because the owning session may have been
// re-identified since the message was created.
func (s *SessionStore) UpdateMessageContent(messageID, content string) {
	s.updateMessage(messageID, func(m Message) Message {
		m.Content = content
		return m
	})
}

// SetMessageStatus turns a message into a status placeholder with the given
// marker text.
func (s *SessionStore) SetMessageStatus(messageID, text string) {
	s.updateMessage(messageID, func(m Message) Message {
		m.Content = text
		m.Kind = MessageKindStatus
		return m
	})
}

// AppendChunk applies streamed content to a message. A status placeholder is
// replaced outright; normal content is appended. This single rule handles
// both cumulative and delta chunk encodings.
func (s *SessionStore) AppendChunk(messageID, text string) {
	if text == "" {
		return
	}
	s.updateMessage(messageID, func(m Message) Message {
		if m.Kind == MessageKindStatus {
			m.Content = text
			m.Kind = MessageKindNormal
		} else {
			m.Content += text
		}
		return m
	})
}

// AppendMessageError marks a failed exchange on the message, keeping any
// status marker text that was already showing.
func (s *SessionStore) AppendMessageError(messageID, suffix string) {
	s.updateMessage(messageID, func(m Message) Message {
		m.Content += suffix
		m.Kind = MessageKindNormal
		return m
	})
}

func (s *SessionStore) updateMessage(messageID string, fn func(Message) Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, session := range s.sessions {
		for j, msg := range session.Messages {
			if msg.ID != messageID {
				continue
			}
			next := make([]Message, len(session.Messages))
			copy(next, session.Messages)
			next[j] = fn(msg)
			session.Messages = next
			s.sessions[i] = session
			s.publishLocked()
			return
		}
	}
}

// PromoteSessionID replaces a temporary session id with its backend-assigned
// id, keeping the session's list position and advancing the current id when
// it pointed at the temporary one. Promoting an id that is already gone is a
// no-op, so repeated promotions are safe.
func (s *SessionStore) PromoteSessionID(tempID, realID, title string) {
	if realID == "" || tempID == realID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, session := range s.sessions {
		if session.ID != tempID {
			continue
		}
		session.ID = realID
		session.Persisted = true
		if title != "" {
			session.Title = title
		}
		s.sessions[i] = session
		if s.currentID == tempID {
			s.currentID = realID
		}
		s.publishLocked()
		return
	}
}
