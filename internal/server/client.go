package server

import (
	"net"
	"sync"

	"relaychat/internal/protocol"
)

// sendBufSize bounds each client's outbound queue. A client that cannot
// drain it fast enough is treated as unresponsive and dropped — the same
// policy the teacher's Hub applies to its broadcast channel.
const sendBufSize = 256

// Client is one live TCP connection. A dedicated writePump goroutine owns
// the socket's write side so the session driver (which owns the read side)
// and any other goroutine delivering a message to this address never race
// on the underlying net.Conn.
type Client struct {
	address string
	conn    net.Conn
	codec   *protocol.Codec
	send    chan string

	mu    sync.RWMutex
	login string

	closeOnce sync.Once
}

func newClient(address string, conn net.Conn) *Client {
	return &Client{
		address: address,
		conn:    conn,
		codec:   protocol.NewCodec(conn, conn),
		send:    make(chan string, sendBufSize),
	}
}

func (c *Client) setLogin(login string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.login = login
}

func (c *Client) getLogin() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.login
}

// writePump drains the send channel in order, writing each already-formatted
// payload verbatim. It returns (closing the connection) on the first write
// error, which unblocks any read the session driver is waiting on.
func (c *Client) writePump() {
	for payload := range c.send {
		if err := c.codec.Write(payload, false); err != nil {
			c.conn.Close()
			return
		}
	}
}

// sendLine enqueues text with a trailing newline. Returns false if the
// outbound buffer is full — the caller treats that as a delivery failure.
func (c *Client) sendLine(text string) bool {
	return c.enqueue(text + "\n")
}

// sendRaw enqueues text exactly as given (used for the no-newline
// "Input your ...: " prompts).
func (c *Client) sendRaw(text string) bool {
	return c.enqueue(text)
}

func (c *Client) enqueue(payload string) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel, letting writePump exit. Safe to call
// more than once.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}
