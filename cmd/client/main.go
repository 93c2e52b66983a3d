// relaychat TUI client.
//
// The server speaks a plain-text line protocol, not framed packets: most
// replies end in '\n', but the handshake's "Input your login: " / "Input
// your password: " prompts and the /join y/n sub-dialog prompt do not. This
// client does not try to tell those apart — it is a dumb terminal that
// appends whatever bytes arrive to the scrollback and writes whatever the
// user submits to the socket, verbatim. It never parses a reply to decide
// what screen to show; there is exactly one screen.
//
// Concurrency
// -----------
//
//	A single goroutine does raw net.Conn reads and forwards each chunk to
//	the chunks channel. The Bubbletea event loop consumes one chunk at a
//	time via waitForChunk (a tea.Cmd), queuing the next read immediately
//	after.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ---------------------------------------------------------------------------
// Styles
// ---------------------------------------------------------------------------

var (
	purple = lipgloss.Color("99")
	gray   = lipgloss.Color("241")
	white  = lipgloss.Color("255")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(purple).
			Foreground(white).
			Padding(0, 1)

	footerBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), true, false, false, false).
				BorderForeground(gray).
				Padding(0, 1)
)

// ---------------------------------------------------------------------------
// Bubbletea message types
// ---------------------------------------------------------------------------

type serverChunkMsg []byte
type disconnectedMsg struct{}

// ---------------------------------------------------------------------------
// Model
// ---------------------------------------------------------------------------

type model struct {
	conn   net.Conn
	chunks chan []byte // reader goroutine -> bubbletea bridge

	ready      bool
	viewport   viewport.Model
	input      textinput.Model
	scrollback strings.Builder

	width, height int
}

func newModel(conn net.Conn, chunks chan []byte) model {
	in := textinput.New()
	in.Placeholder = "type a command or message, Enter to send"
	in.Focus()
	in.CharLimit = 4096

	return model{conn: conn, chunks: chunks, input: in}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForChunk(m.chunks))
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, m.vpHeight())
			m.viewport.SetContent(m.scrollback.String())
			m.viewport.GotoBottom()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = m.vpHeight()
		}
		m.input.Width = msg.Width - 4
		return m, nil

	case serverChunkMsg:
		m.scrollback.Write(msg)
		if m.ready {
			m.viewport.SetContent(m.scrollback.String())
			m.viewport.GotoBottom()
		}
		return m, waitForChunk(m.chunks)

	case disconnectedMsg:
		m.scrollback.WriteString("\n[disconnected from server]\n")
		if m.ready {
			m.viewport.SetContent(m.scrollback.String())
			m.viewport.GotoBottom()
		}
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.conn.Close()
			return m, tea.Quit

		case tea.KeyEnter:
			line := m.input.Value()
			m.conn.Write([]byte(line + "\n"))
			m.input.Reset()
			return m, nil

		case tea.KeyPgUp:
			m.viewport.HalfViewUp()
			return m, nil

		case tea.KeyPgDown:
			m.viewport.HalfViewDown()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// vpHeight returns the number of lines available for the scrollback.
func (m model) vpHeight() int {
	h := m.height - 3 // header (1) + footer border (1) + footer input (1)
	if h < 1 {
		h = 1
	}
	return h
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

func (m model) View() string {
	if !m.ready {
		return "\n  connecting…"
	}

	hdr := headerStyle.
		Width(m.width).
		Render(fmt.Sprintf(" relaychat  ·  %s  ·  PgUp/Dn: scroll  Ctrl+C: quit", m.conn.RemoteAddr()))

	footer := footerBorderStyle.
		Width(m.width - 2).
		Render(m.input.View())

	return lipgloss.JoinVertical(lipgloss.Left, hdr, m.viewport.View(), footer)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// waitForChunk returns a tea.Cmd that blocks until the next chunk arrives on
// ch. When ch is closed (the reader goroutine hit EOF or an error), it
// returns disconnectedMsg.
func waitForChunk(ch <-chan []byte) tea.Cmd {
	return func() tea.Msg {
		data, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return serverChunkMsg(data)
	}
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	addr := flag.String("addr", "127.0.0.1:8000", "server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	chunks := make(chan []byte, 64)

	// Reader goroutine: raw socket bytes -> chunks channel. Reads whatever
	// is available per call rather than scanning for newlines, since the
	// server's handshake prompts are not newline-terminated.
	go func() {
		defer close(chunks)
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				chunks <- chunk
			}
			if err != nil {
				return
			}
		}
	}()

	p := tea.NewProgram(
		newModel(conn, chunks),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
