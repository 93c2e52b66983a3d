package server

import (
	"fmt"
	"strings"

	"relaychat/internal/protocol"
	"relaychat/internal/store"
)

// dispatch routes a parsed authenticated-phase command to its handler.
// Unknown commands get the one literal response the protocol promises;
// every other precondition failure is a specific reply-and-continue.
func (d *session) dispatch(login string, cmd protocol.Command) {
	switch cmd.Kind {
	case protocol.Unread:
		d.handleUnread(login)
	case protocol.Status:
		d.handleStatus(login)
	case protocol.Send:
		d.handleSend(login, cmd.Tail)
	case protocol.Private:
		d.handlePrivate(login, cmd.Tail)
	case protocol.Create:
		d.handleCreate(login, cmd.Tail)
	case protocol.SendChat:
		d.handleSendChat(login, cmd.Tail)
	case protocol.Invite:
		d.handleInvite(login, cmd.Tail)
	case protocol.Join:
		d.handleJoin(login, cmd.Tail)
	default:
		d.client.sendLine("Wrong command.")
	}
}

func (d *session) handleUnread(login string) {
	u, ok := d.srv.store.User(login)
	if !ok {
		return
	}
	for _, m := range d.srv.store.Unread(login, u.LogoutTime, u.HasLoggedOut) {
		d.client.sendLine(store.FormatMessage(m))
	}
}

func (d *session) handleStatus(login string) {
	u, ok := d.srv.store.User(login)
	if !ok {
		return
	}
	privateCount := d.srv.store.CountPrivateAuthored(login)
	adminCount, memberCount := d.srv.store.RoomStats(login)

	d.client.sendLine(fmt.Sprintf("Address: %s", d.client.address))
	d.client.sendLine(fmt.Sprintf("Private messages sent: %d", privateCount))
	d.client.sendLine(fmt.Sprintf("Rooms administered: %d", adminCount))
	d.client.sendLine(fmt.Sprintf("Rooms joined: %d", memberCount))
	for room, token := range u.PrivateChats {
		d.client.sendLine(fmt.Sprintf("The invite key for the chat %s is %s.", room, token))
	}
}

func (d *session) handleSend(login, text string) {
	if !d.srv.store.TryRateLimit(login) {
		refusal := fmt.Sprintf("Sorry, but you have reached your limit of %d per hour. The message not be sent.", d.srv.store.RateCap())
		for _, addr := range d.srv.store.AddressesOf(login) {
			d.srv.sendSystem(addr, refusal)
		}
		return
	}
	m := d.srv.store.RecordPublic(login, text)
	d.srv.deliver(d.srv.broadcastAddresses(), m)
}

func (d *session) handlePrivate(login, tail string) {
	parts := protocol.SplitN(tail, 2)
	if len(parts) < 2 {
		d.client.sendLine("Wrong user login.")
		return
	}
	target, text := parts[0], parts[1]
	if _, ok := d.srv.store.User(target); !ok {
		d.client.sendLine("Wrong user login.")
		return
	}
	m := d.srv.store.RecordPrivate(login, target, text)
	if target == login {
		d.srv.deliverOne(d.client.address, m)
		return
	}
	for _, addr := range d.srv.store.AddressesOf(target) {
		d.srv.deliverOne(addr, m)
	}
}

func (d *session) handleCreate(login, tail string) {
	name := trimmed(tail)
	_, err := d.srv.store.CreateRoom(name, login)
	switch err {
	case nil:
		d.client.sendLine(fmt.Sprintf("Chat %s created.", name))
	case store.ErrEmptyName:
		d.client.sendLine("Chat name can not be empty.")
	case store.ErrRoomExists:
		d.client.sendLine(fmt.Sprintf("Chat %s already exists.", name))
	}
}

func (d *session) handleSendChat(login, tail string) {
	parts := protocol.SplitN(tail, 2)
	if len(parts) == 0 {
		d.client.sendLine("Chat name can not be empty.")
		return
	}
	name := parts[0]
	text := ""
	if len(parts) > 1 {
		text = parts[1]
	}

	if _, ok := d.srv.store.Room(name); !ok {
		d.client.sendLine(fmt.Sprintf("Chat %s does not exist.", name))
		return
	}
	if text == "" {
		d.client.sendLine("Message text can not be empty.")
		return
	}
	if !d.srv.store.IsMember(name, login) {
		d.client.sendLine(fmt.Sprintf("You are not member of chat %s.", name))
		return
	}

	m := d.srv.store.RecordRoom(login, name, text)
	var addrs []string
	for _, member := range d.srv.store.MembersOf(name) {
		addrs = append(addrs, d.srv.store.AddressesOf(member)...)
	}
	d.srv.deliver(addrs, m)
}

func (d *session) handleInvite(login, tail string) {
	parts := protocol.SplitN(tail, 2)
	if len(parts) < 2 {
		d.client.sendLine("Usage: /invite <login> <name>.")
		return
	}
	target, name := parts[0], parts[1]

	token, err := d.srv.store.Invite(name, login, target)
	switch err {
	case nil:
		d.client.sendLine(fmt.Sprintf("An invitation to user %s to chat %s has been sent.", target, name))
		msg := fmt.Sprintf("You are invited to the chat %s by an admin %s. Your invite key is %s", name, login, token)
		for _, addr := range d.srv.store.AddressesOf(target) {
			d.srv.sendSystem(addr, msg)
		}
	case store.ErrNoSuchRoom:
		d.client.sendLine(fmt.Sprintf("Chat %s does not exist.", name))
	case store.ErrNotAdmin:
		d.client.sendLine("Only the chat admin can invite.")
	case store.ErrUserNotFound:
		d.client.sendLine("Wrong user login.")
	case store.ErrAlreadyMember:
		d.client.sendLine(fmt.Sprintf("%s is already a member of chat %s.", target, name))
	}
}

func (d *session) handleJoin(login, tail string) {
	fields := strings.Fields(tail)
	if len(fields) == 0 {
		d.client.sendLine("Chat name can not be empty.")
		return
	}
	name := fields[0]

	if _, ok := d.srv.store.Room(name); !ok {
		d.client.sendLine(fmt.Sprintf("Chat %s does not exist.", name))
		return
	}
	if d.srv.store.IsMember(name, login) {
		d.client.sendLine(fmt.Sprintf("You are already a member of chat %s.", name))
		return
	}

	if len(fields) >= 2 {
		token := fields[1]
		if err := d.srv.store.Join(name, login, token); err != nil {
			d.client.sendLine("The invite-key is invalid.")
			return
		}
		d.client.sendLine(fmt.Sprintf("You are join to chat %s.", name))
		return
	}

	d.joinRequestDialog(login, name)
}

// joinRequestDialog runs the y/n sub-dialog §4.3 describes for /join without
// a token: on "y" it notifies the room's admin and returns either way.
func (d *session) joinRequestDialog(login, name string) {
	d.client.sendRaw(fmt.Sprintf("Request an invite to join %s? (y/n): ", name))
	for {
		line, err := d.readLine()
		if err != nil {
			return
		}
		switch strings.ToLower(trimmed(line)) {
		case "y":
			room, ok := d.srv.store.Room(name)
			if !ok {
				return
			}
			msg := fmt.Sprintf("User %s wants to join the chat %s.", login, name)
			for _, addr := range d.srv.store.AddressesOf(room.Admin) {
				d.srv.sendSystem(addr, msg)
			}
			return
		case "n":
			return
		default:
			d.client.sendRaw(fmt.Sprintf("Request an invite to join %s? (y/n): ", name))
		}
	}
}
