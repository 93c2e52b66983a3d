package server

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient is a minimal line-oriented socket wrapper for driving scenarios
// against a live Server the way a real TCP client would.
type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line))
	require.NoError(c.t, err)
}

func (c *testClient) sendLine(line string) {
	c.send(line + "\n")
}

// readLine reads one newline-terminated response, failing the test if none
// arrives within the timeout.
func (c *testClient) readLine() string {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return line[:len(line)-1]
}

// readRaw reads exactly n bytes (for no-newline prompts) through the same
// buffered reader readLine uses, so the two never desync.
func (c *testClient) readRaw(n int) string {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, n)
	_, err := io.ReadFull(c.r, buf)
	require.NoError(c.t, err)
	return string(buf)
}

func (c *testClient) register(login, password string) {
	c.t.Helper()
	assert.Equal(c.t, "Please, register (/auth) or log in (/login).", c.readLine())
	c.sendLine("/auth")
	assert.Equal(c.t, "Input your login: ", c.readRaw(len("Input your login: ")))
	c.sendLine(login)
	assert.Equal(c.t, "Input your password: ", c.readRaw(len("Input your password: ")))
	c.sendLine(password)
	assert.Equal(c.t, "Login and password was set.", c.readLine())
	assert.Equal(c.t, "You are in general chat.", c.readLine())
}

func (c *testClient) login(login, password string) {
	c.t.Helper()
	assert.Equal(c.t, "Please, register (/auth) or log in (/login).", c.readLine())
	c.sendLine("/login")
	assert.Equal(c.t, "Input your login: ", c.readRaw(len("Input your login: ")))
	c.sendLine(login)
	assert.Equal(c.t, "Input your password: ", c.readRaw(len("Input your password: ")))
	c.sendLine(password)
	assert.Equal(c.t, "Login successful.", c.readLine())
	assert.Equal(c.t, "You are in general chat.", c.readLine())
}

func startTestServer(t *testing.T, rateCap int) *Server {
	t.Helper()
	srv := New(Config{Addr: "127.0.0.1:0", HistoryReplayDepth: 20, RateCap: rateCap})
	require.NoError(t, srv.Listen())
	go srv.Serve()
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestScenarioRegistrationAndBroadcast(t *testing.T) {
	srv := startTestServer(t, 20)

	a := dial(t, srv.Addr())
	a.register("alice", "pw")
	b := dial(t, srv.Addr())
	b.register("bob", "pw")

	a.sendLine("/send hi")

	re := regexp.MustCompile(`^\d{4}\.\d{2}\.\d{2} \d{2}:\d{2}:\d{2} alice  says: hi$`)
	assert.Regexp(t, re, a.readLine())
	assert.Regexp(t, re, b.readLine())

	assert.Len(t, srv.Store().History(0), 1)
}

func TestScenarioLoginReEntry(t *testing.T) {
	srv := startTestServer(t, 20)

	a := dial(t, srv.Addr())
	a.register("alice", "pw")
	a.sendLine("/send hi")
	// drain alice's own copy of the broadcast before exiting.
	a.readLine()
	a.sendLine("/exit")
	a.conn.Close()

	a2 := dial(t, srv.Addr())
	a2.login("alice", "pw")
	assert.Contains(t, a2.readLine(), "says: hi")
}

func TestScenarioRateLimit(t *testing.T) {
	srv := startTestServer(t, 2)

	a := dial(t, srv.Addr())
	a.register("alice", "pw")

	a.sendLine("/send a")
	assert.Contains(t, a.readLine(), "says: a")
	a.sendLine("/send b")
	assert.Contains(t, a.readLine(), "says: b")
	a.sendLine("/send c")
	assert.Equal(t, "Sorry, but you have reached your limit of 2 per hour. The message not be sent.", a.readLine())

	assert.Len(t, srv.Store().History(0), 2)
}

func TestScenarioPrivateDM(t *testing.T) {
	srv := startTestServer(t, 20)

	a := dial(t, srv.Addr())
	a.register("alice", "pw")
	b := dial(t, srv.Addr())
	b.register("bob", "pw")

	a.sendLine("/private bob hello")
	line := b.readLine()
	assert.Contains(t, line, "alice in private says: hello")
}

func TestScenarioRoomInvite(t *testing.T) {
	srv := startTestServer(t, 20)

	a := dial(t, srv.Addr())
	a.register("alice", "pw")
	b := dial(t, srv.Addr())
	b.register("bob", "pw")

	a.sendLine("/create room1")
	assert.Equal(t, "Chat room1 created.", a.readLine())

	b.sendLine("/send_chat room1 hi")
	assert.Equal(t, "You are not member of chat room1.", b.readLine())

	a.sendLine("/invite bob room1")
	assert.Equal(t, "An invitation to user bob to chat room1 has been sent.", a.readLine())

	inviteLine := b.readLine()
	assert.Contains(t, inviteLine, "You are invited to the chat room1 by an admin alice. Your invite key is")
	token := inviteLine[len(inviteLine)-36:]

	b.sendLine(fmt.Sprintf("/join room1 %s", token))
	assert.Equal(t, "You are join to chat room1.", b.readLine())

	b.sendLine("/send_chat room1 hi")
	assert.Contains(t, a.readLine(), "says: hi")
	assert.Contains(t, b.readLine(), "says: hi")
}

func TestScenarioUnknownCommand(t *testing.T) {
	srv := startTestServer(t, 20)

	a := dial(t, srv.Addr())
	a.register("alice", "pw")

	a.sendLine("/nope")
	assert.Equal(t, "Wrong command.", a.readLine())
}

func TestDuplicateLoginRejected(t *testing.T) {
	srv := startTestServer(t, 20)

	a := dial(t, srv.Addr())
	a.register("alice", "pw")

	b := dial(t, srv.Addr())
	assert.Equal(t, "Please, register (/auth) or log in (/login).", b.readLine())
	b.sendLine("/auth")
	assert.Equal(t, "Input your login: ", b.readRaw(len("Input your login: ")))
	b.sendLine("alice")
	assert.Equal(t, "The login is taken. Input another login.", b.readLine())
}
