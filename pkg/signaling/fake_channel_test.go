package signaling

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeChannel is an in-memory Channel. Messages pushed with deliver are
// returned by Receive; messages sent by the hub land in out.
type fakeChannel struct {
	id  string
	in  chan string
	out chan string

	mu      sync.Mutex
	sendErr error
	recvErr error
	closed  bool
	done    chan struct{}
	closes  int
}

func newFakeChannel(id string) *fakeChannel {
	return &fakeChannel{
		id:   id,
		in:   make(chan string, 16),
		out:  make(chan string, 64),
		done: make(chan struct{}),
	}
}

func (f *fakeChannel) ID() string { return f.id }

func (f *fakeChannel) Send(msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrChannelClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	select {
	case f.out <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (f *fakeChannel) Receive() (string, error) {
	select {
	case msg := <-f.in:
		return msg, nil
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.recvErr != nil {
			return "", f.recvErr
		}
		return "", ErrChannelClosed
	}
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

// fail makes the next Receive return err, as a broken transport would.
func (f *fakeChannel) fail(err error) {
	f.mu.Lock()
	f.recvErr = err
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	f.mu.Unlock()
}

func (f *fakeChannel) setSendErr(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

func (f *fakeChannel) deliver(msg string) { f.in <- msg }

func (f *fakeChannel) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-f.out:
		if got != want {
			t.Fatalf("Expected %s to receive %q, got %q", f.id, want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for %s to receive %q", f.id, want)
	}
}

func (f *fakeChannel) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case got := <-f.out:
		t.Fatalf("Expected %s to receive nothing, got %q", f.id, got)
	default:
	}
}

var errBroken = errors.New("broken pipe")

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
