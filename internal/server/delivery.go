package server

import (
	"log"

	"relaychat/internal/store"
)

// deliver renders m once per address and fans it out. Recipient sets are
// computed synchronously by the caller from the state at the moment the
// handler runs (spec.md §4.3). An address with no live connection is
// skipped. A full outbound buffer on one address removes that address and
// closes its writer; the rest of the addresses still get the message.
func (s *Server) deliver(addresses []string, m *store.Message) {
	for _, addr := range addresses {
		s.deliverOne(addr, m)
	}
}

func (s *Server) deliverOne(addr string, m *store.Message) {
	c := s.lookup(addr)
	if c == nil {
		return
	}
	text := store.FormatMessage(m)
	if !c.sendLine(text) {
		log.Printf("[deliver] dropping unresponsive connection %s", addr)
		s.disconnect(addr)
	}
}

// sendSystem writes a single server-generated line (not a history Message)
// to addr, best effort.
func (s *Server) sendSystem(addr, text string) {
	c := s.lookup(addr)
	if c == nil {
		return
	}
	if !c.sendLine(text) {
		s.disconnect(addr)
	}
}
