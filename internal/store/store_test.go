package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRejectsDuplicateLogin(t *testing.T) {
	s := New(20)
	_, err := s.Register("alice", "pw", "1.2.3.4:1")
	require.NoError(t, err)

	_, err = s.Register("alice", "other", "1.2.3.4:2")
	assert.ErrorIs(t, err, ErrLoginTaken)
}

func TestAuthenticate(t *testing.T) {
	s := New(20)
	_, err := s.Register("alice", "pw", "1.2.3.4:1")
	require.NoError(t, err)

	_, err = s.Authenticate("bob", "pw", "1.2.3.4:2")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = s.Authenticate("alice", "wrong", "1.2.3.4:2")
	assert.ErrorIs(t, err, ErrWrongPassword)

	u, err := s.Authenticate("alice", "pw", "1.2.3.4:2")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1.2.3.4:1", "1.2.3.4:2"}, u.Addresses)

	// re-authenticating from the same address does not duplicate it.
	u, err = s.Authenticate("alice", "pw", "1.2.3.4:2")
	require.NoError(t, err)
	assert.Len(t, u.Addresses, 2)
}

func TestLogoutRemovesAddress(t *testing.T) {
	s := New(20)
	_, _ = s.Register("alice", "pw", "addr1")
	s.Logout("alice", "addr1")

	u, _ := s.User("alice")
	assert.Empty(t, u.Addresses)
	assert.True(t, u.HasLoggedOut)
}

func TestCreateRoomRejectsDuplicateAndEmpty(t *testing.T) {
	s := New(20)
	_, _ = s.Register("alice", "pw", "a1")

	_, err := s.CreateRoom("", "alice")
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = s.CreateRoom("room1", "alice")
	require.NoError(t, err)

	_, err = s.CreateRoom("room1", "alice")
	assert.ErrorIs(t, err, ErrRoomExists)

	assert.True(t, s.IsMember("room1", "alice"))
}

func TestInviteAndJoinWithToken(t *testing.T) {
	s := New(20)
	_, _ = s.Register("alice", "pw", "a1")
	_, _ = s.Register("bob", "pw", "b1")
	_, _ = s.CreateRoom("room1", "alice")

	tok, err := s.Invite("room1", "alice", "bob")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	// idempotent: second invite returns the same token.
	tok2, err := s.Invite("room1", "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, tok, tok2)

	err = s.Join("room1", "bob", "garbage")
	assert.ErrorIs(t, err, ErrBadInvite)
	assert.False(t, s.IsMember("room1", "bob"))

	err = s.Join("room1", "bob", tok)
	require.NoError(t, err)
	assert.True(t, s.IsMember("room1", "bob"))
}

func TestInviteRejectsNonAdmin(t *testing.T) {
	s := New(20)
	_, _ = s.Register("alice", "pw", "a1")
	_, _ = s.Register("bob", "pw", "b1")
	_, _ = s.Register("carol", "pw", "c1")
	_, _ = s.CreateRoom("room1", "alice")

	_, err := s.Invite("room1", "bob", "carol")
	assert.ErrorIs(t, err, ErrNotAdmin)
}

func TestRateLimitCap(t *testing.T) {
	s := New(2)
	_, _ = s.Register("alice", "pw", "a1")

	assert.True(t, s.TryRateLimit("alice"))
	assert.True(t, s.TryRateLimit("alice"))
	assert.False(t, s.TryRateLimit("alice"))
}

func TestUnreadRequiresPriorLogout(t *testing.T) {
	s := New(20)
	_, _ = s.Register("alice", "pw", "a1")
	_, _ = s.Register("bob", "pw", "b1")

	u, _ := s.User("alice")
	assert.Empty(t, s.Unread("alice", u.LogoutTime, u.HasLoggedOut))

	s.RecordPublic("bob", "hi")
	s.Logout("alice", "a1")
	u, _ = s.User("alice")
	since := u.LogoutTime
	time.Sleep(time.Millisecond)

	s.RecordPublic("bob", "second")
	s.RecordPrivate("bob", "carol", "not for alice")
	s.RecordPrivate("bob", "alice", "for alice")

	unread := s.Unread("alice", since, true)
	require.Len(t, unread, 2)
	assert.Equal(t, "second", unread[0].Text)
	assert.Equal(t, "for alice", unread[1].Text)
}

func TestFormatMessagePublicHasDoubleSpace(t *testing.T) {
	m := &Message{Author: "alice", Text: "hi", PubDate: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	got := FormatMessage(m)
	assert.Equal(t, "2024.01.02 03:04:05 alice  says: hi", got)
}

func TestFormatMessagePrivate(t *testing.T) {
	m := &Message{Author: "alice", Text: "hi", IsPrivate: true, PubDate: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	got := FormatMessage(m)
	assert.Equal(t, "2024.01.02 03:04:05 alice in private says: hi", got)
}
