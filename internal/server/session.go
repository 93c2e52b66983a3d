package server

import (
	"strings"

	"relaychat/internal/protocol"
	"relaychat/internal/store"
)

// session drives one connection through the state machine spec.md §4.2
// describes: AwaitHandshakeChoice -> Registering|LoggingIn -> InChat ->
// Closing. Session state beyond the address and login is reconstructed from
// the Store on every command.
type session struct {
	srv    *Server
	client *Client
}

// run executes the full connection lifecycle, cleaning up the registry
// entry and closing the socket on exit regardless of how the session ends.
func (d *session) run() {
	defer d.srv.disconnect(d.client.address)

	login, ok := d.handshake()
	if !ok {
		return
	}
	d.client.setLogin(login)

	d.inChat(login)

	d.srv.store.Logout(login, d.client.address)
	d.client.sendLine("You are disconnected from chat. Have a nice day.")
}

// ---------------------------------------------------------------------------
// AwaitHandshakeChoice / Registering / LoggingIn
// ---------------------------------------------------------------------------

func (d *session) handshake() (login string, ok bool) {
	d.client.sendLine("Please, register (/auth) or log in (/login).")
	for {
		line, err := d.readLine()
		if err != nil {
			return "", false
		}
		switch line {
		case "":
			return "", false
		case "/auth":
			return d.registering()
		case "/login":
			return d.loggingIn()
		default:
			d.client.sendLine("Command unknown, please repeat.")
		}
	}
}

func (d *session) registering() (string, bool) {
	var login string
	for {
		d.client.sendRaw("Input your login: ")
		l, err := d.readLine()
		if err != nil {
			return "", false
		}
		if l == "" {
			continue
		}
		if _, exists := d.srv.store.User(l); exists {
			d.client.sendLine("The login is taken. Input another login.")
			continue
		}
		login = l
		break
	}

	d.client.sendRaw("Input your password: ")
	password, err := d.readLine()
	if err != nil {
		return "", false
	}

	if _, err := d.srv.store.Register(login, password, d.client.address); err != nil {
		// Lost the race against a concurrent registration of the same
		// login between the check above and the create; start over.
		return d.registering()
	}
	d.client.sendLine("Login and password was set.")
	return login, true
}

func (d *session) loggingIn() (string, bool) {
	var login string
	for {
		d.client.sendRaw("Input your login: ")
		l, err := d.readLine()
		if err != nil {
			return "", false
		}
		if l != "" {
			login = l
			break
		}
	}

	d.client.sendRaw("Input your password: ")
	password, err := d.readLine()
	if err != nil {
		return "", false
	}

	_, err = d.srv.store.Authenticate(login, password, d.client.address)
	switch err {
	case nil:
		d.client.sendLine("Login successful.")
		return login, true
	case store.ErrUserNotFound:
		d.client.sendLine("User not found.")
		return "", false
	case store.ErrWrongPassword:
		d.client.sendLine("Wrong password.")
		return "", false
	default:
		return "", false
	}
}

// ---------------------------------------------------------------------------
// InChat
// ---------------------------------------------------------------------------

func (d *session) inChat(login string) {
	d.client.sendLine("You are in general chat.")
	for _, m := range d.srv.store.History(d.srv.cfg.HistoryReplayDepth) {
		d.client.sendLine(store.FormatMessage(m))
	}

	for {
		line, err := d.readLine()
		if err != nil || line == "" {
			return
		}
		cmd := protocol.Parse(line)
		if cmd.Kind == protocol.Exit {
			return
		}
		d.dispatch(login, cmd)
	}
}

// readLine is a thin wrapper kept distinct from client.codec.ReadLine so
// call sites read like "read a command", not "read from the codec".
func (d *session) readLine() (string, error) {
	return d.client.codec.ReadLine()
}

func trimmed(s string) string { return strings.TrimSpace(s) }
