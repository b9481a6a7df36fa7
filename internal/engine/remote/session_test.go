package remote

import (
	"bufio"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/nadzzz/htsbridge/internal/engine"
)

// slowHost accepts the hello, then answers the next request only after delay.
func slowHost(t *testing.T, conn net.Conn, delay time.Duration) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r := bufio.NewReader(conn)
		ok, _ := newEvent(typeOK, nil)
		if _, _, err := readEvent(r); err != nil {
			return
		}
		if err := writeEvent(conn, ok, nil); err != nil {
			return
		}
		if _, _, err := readEvent(r); err != nil {
			return
		}
		time.Sleep(delay)
		_ = writeEvent(conn, ok, nil)
	}()
	return done
}

func TestSession_TimeoutLosesSession(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	done := slowHost(t, server, 150*time.Millisecond)

	s, err := NewSession(client, engine.V2_1_1, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	err = s.Refresh()
	if !errors.Is(err, engine.ErrEngineLost) {
		t.Fatalf("Refresh error = %v, want ErrEngineLost", err)
	}
	<-done

	// The late reply must not be taken as the answer to a later call.
	if a, err := s.Alignment(); !errors.Is(err, engine.ErrEngineLost) {
		t.Errorf("Alignment after timeout = %+v, %v; want ErrEngineLost", a, err)
	}
	if err := s.Clear(); !errors.Is(err, engine.ErrEngineLost) {
		t.Errorf("Clear after timeout = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close after loss = %v", err)
	}
}

func TestSession_UnexpectedReplyLosesSession(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	go func() {
		r := bufio.NewReader(server)
		ok, _ := newEvent(typeOK, nil)
		odd, _ := newEvent("hts-bogus", nil)
		if _, _, err := readEvent(r); err != nil {
			return
		}
		_ = writeEvent(server, ok, nil)
		if _, _, err := readEvent(r); err != nil {
			return
		}
		_ = writeEvent(server, odd, nil)
	}()

	s, err := NewSession(client, engine.V2_1, time.Second)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()
	if err := s.Refresh(); !errors.Is(err, engine.ErrEngineLost) {
		t.Fatalf("Refresh error = %v, want ErrEngineLost", err)
	}
	if err := s.Refresh(); !errors.Is(err, engine.ErrEngineLost) {
		t.Errorf("second Refresh = %v", err)
	}
}
