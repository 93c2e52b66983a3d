// Package store holds the shared, in-memory chat state: users, rooms,
// history, connections, rate counters and invite tokens. All state is
// process-lifetime only — nothing is persisted across restarts.
//
// Concurrency: a single sync.RWMutex serializes every mutation. Several
// operations (invite, join-with-token, create) touch more than one entity
// (a Room and a User) atomically, which is far simpler to reason about
// under one lock than under a per-entity lock-ordering discipline or a
// hand-rolled actor mailbox. Callers must never hold this lock across a
// socket read or write; Store methods only ever touch in-memory state.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrLoginTaken    = errors.New("the login is taken")
	ErrUserNotFound  = errors.New("user not found")
	ErrWrongPassword = errors.New("wrong password")
	ErrEmptyName     = errors.New("chat name can not be empty")
	ErrRoomExists    = errors.New("chat already exists")
	ErrNoSuchRoom    = errors.New("no such room")
	ErrNotMember     = errors.New("not a member")
	ErrNotAdmin      = errors.New("not the admin")
	ErrAlreadyMember = errors.New("already a member")
	ErrBadInvite     = errors.New("the invite-key is invalid")
)

// Store is the single shared state container for the whole server.
type Store struct {
	mu sync.RWMutex

	users       map[string]*User // login -> User
	rooms       map[string]*Room // name -> Room
	history     []*Message
	connections map[string]bool // address -> present

	rateCap int
}

// New creates an empty Store. rateCap is the per-user hourly /send cap.
func New(rateCap int) *Store {
	return &Store{
		users:       make(map[string]*User),
		rooms:       make(map[string]*Room),
		connections: make(map[string]bool),
		rateCap:     rateCap,
	}
}

// ---------------------------------------------------------------------------
// Connections
// ---------------------------------------------------------------------------

// AddConnection registers address as a live, deliverable peer.
func (s *Store) AddConnection(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[address] = true
}

// RemoveConnection drops address from the deliverable set. It does not
// touch any User's Addresses list — callers logging a user out do that via
// Logout.
func (s *Store) RemoveConnection(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, address)
}

// IsConnected reports whether address is currently a live peer.
func (s *Store) IsConnected(address string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connections[address]
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// Register creates a new User bound to address. Fails with ErrLoginTaken if
// login is already registered.
func (s *Store) Register(login, password, address string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[login]; exists {
		return nil, ErrLoginTaken
	}
	u := &User{
		Login:        login,
		Password:     password,
		Addresses:    []string{address},
		PrivateChats: make(map[string]string),
	}
	s.users[login] = u
	return u, nil
}

// Authenticate verifies credentials and binds address to the matching User
// if not already bound. ErrUserNotFound / ErrWrongPassword on failure.
func (s *Store) Authenticate(login, password, address string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[login]
	if !ok {
		return nil, ErrUserNotFound
	}
	if u.Password != password {
		return nil, ErrWrongPassword
	}
	if !containsStr(u.Addresses, address) {
		u.Addresses = append(u.Addresses, address)
	}
	return u, nil
}

// Logout removes address from login's Addresses and sets LogoutTime to
// now. No-op if login is not a registered user.
func (s *Store) Logout(login, address string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[login]
	if !ok {
		return
	}
	u.Addresses = removeStr(u.Addresses, address)
	u.LogoutTime = time.Now()
	u.HasLoggedOut = true
}

// User returns a copy-free pointer to the User for login, or (nil, false).
func (s *Store) User(login string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[login]
	return u, ok
}

// AddressesOf returns a snapshot of the addresses currently bound to login.
func (s *Store) AddressesOf(login string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[login]
	if !ok {
		return nil
	}
	out := make([]string, len(u.Addresses))
	copy(out, u.Addresses)
	return out
}

// ---------------------------------------------------------------------------
// Rooms
// ---------------------------------------------------------------------------

// CreateRoom creates a Room named name with admin as its sole initial
// member. ErrEmptyName / ErrRoomExists on failure.
func (s *Store) CreateRoom(name, admin string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return nil, ErrEmptyName
	}
	if _, exists := s.rooms[name]; exists {
		return nil, ErrRoomExists
	}
	r := &Room{
		Name:         name,
		Admin:        admin,
		Members:      map[string]bool{admin: true},
		inviteTokens: make(map[string]string),
	}
	s.rooms[name] = r
	return r, nil
}

// Room returns the Room named name, or (nil, false).
func (s *Store) Room(name string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[name]
	return r, ok
}

// IsMember reports whether login belongs to room name.
func (s *Store) IsMember(name, login string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[name]
	if !ok {
		return false
	}
	return r.Members[login]
}

// MembersOf returns a snapshot of the member logins of room name.
func (s *Store) MembersOf(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(r.Members))
	for login := range r.Members {
		out = append(out, login)
	}
	return out
}

// Invite validates that admin is the room's admin and target exists and is
// not already a member, mints (idempotently) the invite token for
// (name, target), records it in the target's private chats, and returns it.
func (s *Store) Invite(name, admin, target string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[name]
	if !ok {
		return "", ErrNoSuchRoom
	}
	if r.Admin != admin {
		return "", ErrNotAdmin
	}
	targetUser, ok := s.users[target]
	if !ok {
		return "", ErrUserNotFound
	}
	if r.Members[target] {
		return "", ErrAlreadyMember
	}
	token := mintToken(r, target)
	targetUser.PrivateChats[name] = token
	return token, nil
}

// Join admits login to room name if token matches the minted invite token
// for (name, login). ErrBadInvite otherwise.
func (s *Store) Join(name, login, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[name]
	if !ok {
		return ErrNoSuchRoom
	}
	if r.Members[login] {
		return ErrAlreadyMember
	}
	want := mintToken(r, login)
	if token != want {
		return ErrBadInvite
	}
	r.Members[login] = true
	return nil
}

// mintToken returns the stable invite token for (r, login), generating one
// on first call. Must be called with s.mu held.
func mintToken(r *Room, login string) string {
	if tok, ok := r.inviteTokens[login]; ok {
		return tok
	}
	tok := uuid.New().String()
	r.inviteTokens[login] = tok
	return tok
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

// RecordPublic appends a public message to history.
func (s *Store) RecordPublic(author, text string) *Message {
	return s.record(&Message{Author: author, Text: text, PubDate: time.Now()})
}

// RecordPrivate appends a DM from author to recipient.
func (s *Store) RecordPrivate(author, recipient, text string) *Message {
	return s.record(&Message{
		Author: author, Text: text, PubDate: time.Now(),
		IsPrivate: true, Recipient: recipient,
	})
}

// RecordRoom appends a message posted to room by author.
func (s *Store) RecordRoom(author, room, text string) *Message {
	return s.record(&Message{
		Author: author, Text: text, PubDate: time.Now(),
		IsPrivate: true, Room: room,
	})
}

func (s *Store) record(m *Message) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, m)
	return m
}

// History returns a snapshot of the last n public messages, oldest first.
// n <= 0 returns the full history.
func (s *Store) History(n int) []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var public []*Message
	for _, m := range s.history {
		if !m.IsPrivate {
			public = append(public, m)
		}
	}
	if n <= 0 || n >= len(public) {
		return public
	}
	return public[len(public)-n:]
}

// Unread returns, for login, every history entry whose PubDate is after
// since, excluding private entries that login neither authored nor received
// as the direct-message recipient. hasLogoutTime
// being false (the user has never logged out) yields no entries.
func (s *Store) Unread(login string, since time.Time, hasLogoutTime bool) []*Message {
	if !hasLogoutTime {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Message
	for _, m := range s.history {
		if !m.PubDate.After(since) {
			continue
		}
		if m.IsPrivate && m.Author != login && m.Recipient != login {
			continue
		}
		out = append(out, m)
	}
	return out
}

// ---------------------------------------------------------------------------
// Rate limiter
// ---------------------------------------------------------------------------

// TryRateLimit applies spec §4.4's one-atomic-step check-then-update: if the
// user's counter already equals the configured cap, it refuses without
// mutating the counter. Otherwise it resets or increments the counter
// (per invariant 4) and allows the send.
func (s *Store) TryRateLimit(login string) (allowed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[login]
	if !ok {
		return false
	}
	now := time.Now()
	wouldReset := u.rateLast.IsZero() ||
		u.rateLast.Year() != now.Year() || u.rateLast.YearDay() != now.YearDay() ||
		u.rateLast.Hour() != now.Hour()

	count := u.rateCount
	if wouldReset {
		count = 0
	}
	if count >= s.rateCap {
		return false
	}
	if wouldReset {
		u.rateCount = 1
	} else {
		u.rateCount++
	}
	u.rateLast = now
	return true
}

// RateCap returns the configured hourly send cap.
func (s *Store) RateCap() int { return s.rateCap }

// ---------------------------------------------------------------------------
// Status queries
// ---------------------------------------------------------------------------

// CountPrivateAuthored counts history entries that are direct messages (not
// room posts) authored by login.
func (s *Store) CountPrivateAuthored(login string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.history {
		if m.IsPrivate && m.Room == "" && m.Author == login {
			n++
		}
	}
	return n
}

// RoomStats returns how many rooms login administers and how many it is a
// member of.
func (s *Store) RoomStats(login string) (admin, member int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rooms {
		if r.Admin == login {
			admin++
		}
		if r.Members[login] {
			member++
		}
	}
	return admin, member
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func removeStr(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

// FormatMessage renders text the way spec.md §4.3 requires:
// "YYYY.MM.DD HH:MM:SS <author> [in private ]says: <text>" — note the
// literal double space when the privacy tag is empty. The author field is
// always the message's real author, including in the copy delivered back
// to its own sender (spec.md S1).
func FormatMessage(m *Message) string {
	tag := ""
	if m.IsPrivate {
		tag = "in private"
	}
	return fmt.Sprintf("%s %s %s says: %s", m.PubDate.Format("2006.01.02 15:04:05"), m.Author, tag, m.Text)
}
