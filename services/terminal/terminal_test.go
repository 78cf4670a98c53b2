package terminal

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"swarmnode-go/backup"
	"swarmnode-go/bus"
	"swarmnode-go/commands"
)

type scriptTransport struct {
	mu   sync.Mutex
	in   chan []byte
	rest []byte // carry-over when a chunk outgrows the read buffer
	out  []byte
}

func newScriptTransport() *scriptTransport {
	return &scriptTransport{in: make(chan []byte, 16)}
}

func (s *scriptTransport) Write(p []byte) (int, error) {
	s.mu.Lock()
	s.out = append(s.out, p...)
	s.mu.Unlock()
	return len(p), nil
}

func (s *scriptTransport) RecvSomeContext(ctx context.Context, p []byte) (int, error) {
	if len(s.rest) > 0 {
		n := copy(p, s.rest)
		s.rest = s.rest[n:]
		return n, nil
	}
	select {
	case b, ok := <-s.in:
		if !ok {
			return 0, io.EOF
		}
		n := copy(p, b)
		s.rest = append(s.rest[:0], b[n:]...)
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *scriptTransport) Connected() bool { return true }

func (s *scriptTransport) output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.out)
}

type stubSystem struct{ bank backup.Registers }

func (s *stubSystem) OwnerOf(string) string                { return "" }
func (s *stubSystem) RetentionRegisters() backup.Registers { return s.bank }
func (s *stubSystem) SoftReset()                           {}

func newTestService() (*Service, *scriptTransport) {
	bank := backup.NewMemBank(8)
	conn := bus.NewBus(8).NewConnection("terminal")
	exec := commands.NewExecutor(&stubSystem{bank: bank}, backup.NewDomain(bank).BootTask(), conn, "test-node")
	tr := newScriptTransport()
	return New(tr, exec, ""), tr
}

func startService(t *testing.T, svc *Service) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()
	return done
}

func waitFor(t *testing.T, tr *scriptTransport, marker string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(tr.output(), marker) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("marker %q never appeared in output:\n%s", marker, tr.output())
}

func TestBannerPromptAndDispatch(t *testing.T) {
	svc, tr := newTestService()
	done := startService(t, svc)

	tr.in <- []byte("pi")
	tr.in <- []byte("ng\r")
	waitFor(t, tr, "PONG")

	close(tr.in)
	select {
	case err := <-done:
		if err != io.EOF {
			t.Fatalf("Run returned %v, want io.EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on EOF")
	}

	out := tr.output()
	if !strings.Contains(out, "console. Type 'help' for commands.") {
		t.Errorf("banner missing in output:\n%s", out)
	}
	if !strings.Contains(out, "> ping\r\n") {
		t.Errorf("echo or prompt missing in output:\n%s", out)
	}
	if !strings.Contains(out, "PONG - Terminal connection active\r\n") {
		t.Errorf("response missing in output:\n%s", out)
	}
}

func TestBackspaceEditsLine(t *testing.T) {
	svc, tr := newTestService()
	done := startService(t, svc)

	tr.in <- []byte("pinx\x08g\r")
	waitFor(t, tr, "PONG")

	if !strings.Contains(tr.output(), "\b \b") {
		t.Errorf("backspace echo missing in output:\n%s", tr.output())
	}
	close(tr.in)
	<-done
}

func TestParseErrorsReportUsage(t *testing.T) {
	svc, tr := newTestService()
	done := startService(t, svc)

	tr.in <- []byte("reg\r")
	waitFor(t, tr, "Error: usage: reg <index>")

	tr.in <- []byte("frob\r")
	waitFor(t, tr, "Error: Unknown command 'frob'.")

	close(tr.in)
	<-done
}

func TestBlankLineJustReprompts(t *testing.T) {
	svc, tr := newTestService()
	done := startService(t, svc)

	tr.in <- []byte("\r")
	tr.in <- []byte("ping\r")
	waitFor(t, tr, "PONG")

	if strings.Contains(tr.output(), "Error") {
		t.Errorf("blank line produced a response:\n%s", tr.output())
	}
	close(tr.in)
	<-done
}

func TestLineCapStopsEcho(t *testing.T) {
	svc, tr := newTestService()
	done := startService(t, svc)

	long := strings.Repeat("x", lineMax+40)
	tr.in <- []byte(long[:128])
	tr.in <- []byte(long[128:])
	tr.in <- []byte("\r")
	waitFor(t, tr, "Unknown command")

	// Echo stops at the cap; the response echoes the capped word once more.
	if got := strings.Count(tr.output(), "x"); got != (lineMax-1)*2 {
		t.Errorf("echoed %d x bytes, want %d", got, (lineMax-1)*2)
	}
	close(tr.in)
	<-done
}

func TestRunStopsOnCancel(t *testing.T) {
	svc, tr := newTestService()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	waitFor(t, tr, "> ")
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
