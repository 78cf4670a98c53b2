// Package terminal runs the interactive console on the claimed serial
// transport. It owns all writes to the link: services that want to emit
// a line go through WriteLine instead of touching the transport.
package terminal

import (
	"context"
	"strings"
	"sync"

	"swarmnode-go/commands"
	"swarmnode-go/device"
	"swarmnode-go/errcode"
	"swarmnode-go/x/strx"
)

// lineMax caps one edited input line, terminator excluded.
const lineMax = 256

// Service reads, edits and dispatches console lines.
type Service struct {
	mu   sync.Mutex // serializes writes to tr
	tr   device.Transport
	exec *commands.Executor

	banner string
}

// New wires the console to a transport and an executor. An empty banner
// picks the stock one.
func New(tr device.Transport, exec *commands.Executor, banner string) *Service {
	return &Service{
		tr:     tr,
		exec:   exec,
		banner: strx.Coalesce(banner, "Swarmnode "+commands.Version+" console. Type 'help' for commands."),
	}
}

// WriteLine emits one line, translating newlines for serial consoles.
// Safe from any goroutine.
func (s *Service) WriteLine(text string) {
	if strings.Contains(text, "\n") {
		text = strings.ReplaceAll(text, "\n", "\r\n")
	}
	s.mu.Lock()
	s.tr.Write([]byte(text))
	s.tr.Write([]byte("\r\n"))
	s.mu.Unlock()
}

func (s *Service) write(p []byte) {
	s.mu.Lock()
	s.tr.Write(p)
	s.mu.Unlock()
}

func (s *Service) prompt() { s.write([]byte("> ")) }

// Run services the console until ctx ends or the link drops, and
// returns the transport error that stopped it. io.EOF means the host
// side closed the console.
func (s *Service) Run(ctx context.Context) error {
	s.WriteLine(s.banner)
	s.prompt()

	line := make([]byte, 0, lineMax)
	buf := make([]byte, 32)
	for {
		n, err := s.tr.RecvSomeContext(ctx, buf)
		if err != nil {
			return err
		}
		for _, b := range buf[:n] {
			switch {
			case b == '\r' || b == '\n':
				s.write([]byte("\r\n"))
				text := strings.TrimSpace(string(line))
				line = line[:0]
				s.dispatch(ctx, text)
				s.prompt()
			case b == 0x08 || b == 0x7f:
				if len(line) > 0 {
					line = line[:len(line)-1]
					s.write([]byte("\b \b"))
				}
			case b >= 32 && b <= 126:
				if len(line) < lineMax-1 {
					line = append(line, b)
					s.write([]byte{b})
				}
			default:
				// swallow control bytes
			}
		}
	}
}

func (s *Service) dispatch(ctx context.Context, text string) {
	if text == "" {
		return
	}
	cmd, err := commands.Parse(text)
	if err != nil {
		if e, ok := err.(*errcode.E); ok && e.Msg != "" {
			s.WriteLine("Error: " + e.Msg)
		} else {
			s.WriteLine("Error: " + err.Error())
		}
		return
	}
	if resp := s.exec.Execute(ctx, cmd); resp != "" {
		s.WriteLine(resp)
	}
}
