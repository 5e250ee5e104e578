package signaling

import (
	"context"
	"errors"
	"sync"
	"testing"

	"golang.org/x/time/rate"
)

// startSession runs a session in the background and returns a channel that
// yields its result.
func startSession(ctx context.Context, s *Session) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func TestSessionRelaysOfferAndAnswer(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()
	a, b := newFakeChannel("A"), newFakeChannel("B")
	opts := SessionOptions{ExcludeSender: true}

	sa := NewSession(hub, a, "abc", opts)
	doneA := startSession(ctx, sa)
	waitFor(t, "A to join", func() bool { return len(hub.Members("abc")) == 1 })

	sb := NewSession(hub, b, "abc", opts)
	doneB := startSession(ctx, sb)
	waitFor(t, "B to join", func() bool { return len(hub.Members("abc")) == 2 })

	a.deliver("offer:xyz")
	b.expect(t, "offer:xyz")

	b.deliver("answer:xyz")
	a.expect(t, "answer:xyz")

	_ = a.Close()
	if err := <-doneA; err != nil {
		t.Errorf("Expected clean close for A, got %v", err)
	}
	if got := hub.Members("abc"); len(got) != 1 || got[0] != "B" {
		t.Errorf("Expected room abc to contain only B, got %v", got)
	}

	_ = b.Close()
	if err := <-doneB; err != nil {
		t.Errorf("Expected clean close for B, got %v", err)
	}
	if hub.Members("abc") != nil || hub.RoomCount() != 0 {
		t.Errorf("Expected room abc to be absent, got %v", hub.Rooms())
	}
	if sa.State() != StateClosed || sb.State() != StateClosed {
		t.Errorf("Expected both sessions closed, got %s and %s", sa.State(), sb.State())
	}
}

func TestSessionEchoesToSenderByDefault(t *testing.T) {
	hub := NewHub()
	a, b := newFakeChannel("A"), newFakeChannel("B")

	doneA := startSession(context.Background(), NewSession(hub, a, "r", SessionOptions{}))
	doneB := startSession(context.Background(), NewSession(hub, b, "r", SessionOptions{}))
	waitFor(t, "both to join", func() bool { return len(hub.Members("r")) == 2 })

	a.deliver("hello")
	a.expect(t, "hello")
	b.expect(t, "hello")

	_ = a.Close()
	_ = b.Close()
	<-doneA
	<-doneB
}

func TestSessionPreservesPerSenderOrder(t *testing.T) {
	hub := NewHub()
	a, b := newFakeChannel("A"), newFakeChannel("B")
	opts := SessionOptions{ExcludeSender: true}

	doneA := startSession(context.Background(), NewSession(hub, a, "r", opts))
	doneB := startSession(context.Background(), NewSession(hub, b, "r", opts))
	waitFor(t, "both to join", func() bool { return len(hub.Members("r")) == 2 })

	a.deliver("m1")
	a.deliver("m2")
	b.expect(t, "m1")
	b.expect(t, "m2")

	_ = a.Close()
	_ = b.Close()
	<-doneA
	<-doneB
}

func TestSessionLeavesOnReceiveError(t *testing.T) {
	hub := NewHub()
	a, b := newFakeChannel("A"), newFakeChannel("B")

	sa := NewSession(hub, a, "r", SessionOptions{})
	doneA := startSession(context.Background(), sa)
	doneB := startSession(context.Background(), NewSession(hub, b, "r", SessionOptions{}))
	waitFor(t, "both to join", func() bool { return len(hub.Members("r")) == 2 })

	a.fail(errBroken)
	if err := <-doneA; !errors.Is(err, errBroken) {
		t.Errorf("Expected receive error to be returned, got %v", err)
	}
	if got := hub.Members("r"); len(got) != 1 || got[0] != "B" {
		t.Errorf("Expected only B to remain, got %v", got)
	}
	if sa.State() != StateClosed {
		t.Errorf("Expected closed state, got %s", sa.State())
	}

	// The surviving member keeps relaying.
	b.deliver("still here")
	b.expect(t, "still here")

	_ = b.Close()
	<-doneB
	if hub.RoomCount() != 0 {
		t.Error("Expected room to be retired")
	}
}

func TestSessionSurvivesPeerSendFailure(t *testing.T) {
	hub := NewHub()
	a, b, c := newFakeChannel("A"), newFakeChannel("B"), newFakeChannel("C")
	opts := SessionOptions{ExcludeSender: true}

	doneA := startSession(context.Background(), NewSession(hub, a, "r", opts))
	doneB := startSession(context.Background(), NewSession(hub, b, "r", opts))
	doneC := startSession(context.Background(), NewSession(hub, c, "r", opts))
	waitFor(t, "all to join", func() bool { return len(hub.Members("r")) == 3 })

	b.setSendErr(errBroken)
	a.deliver("m1")
	c.expect(t, "m1")

	c.deliver("m2")
	a.expect(t, "m2")

	if got := hub.Members("r"); len(got) != 3 {
		t.Errorf("Expected a send failure not to change membership, got %v", got)
	}

	for _, ch := range []*fakeChannel{a, b, c} {
		_ = ch.Close()
	}
	for _, done := range []<-chan error{doneA, doneB, doneC} {
		<-done
	}
}

func TestSessionClosesOnContextCancel(t *testing.T) {
	hub := NewHub()
	a := newFakeChannel("A")
	ctx, cancel := context.WithCancel(context.Background())

	done := startSession(ctx, NewSession(hub, a, "r", SessionOptions{}))
	waitFor(t, "A to join", func() bool { return len(hub.Members("r")) == 1 })

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Expected clean close on cancel, got %v", err)
	}
	if hub.RoomCount() != 0 {
		t.Error("Expected room to be retired after cancel")
	}
}

func TestSessionRejectsDuplicateJoin(t *testing.T) {
	hub := NewHub()
	a := newFakeChannel("A")
	if err := hub.Join("r", a); err != nil {
		t.Fatalf("Join: %v", err)
	}

	s := NewSession(hub, a, "r", SessionOptions{})
	if err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("Expected ErrAlreadyJoined, got %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("Expected closed state, got %s", s.State())
	}
	// The pre-existing membership is not the session's to remove.
	if got := hub.Members("r"); len(got) != 1 {
		t.Errorf("Expected membership unchanged, got %v", got)
	}
}

func TestSessionRateLimit(t *testing.T) {
	hub := NewHub()
	a := newFakeChannel("A")
	s := NewSession(hub, a, "r", SessionOptions{RateLimit: rate.Every(1e12), Burst: 2})

	done := startSession(context.Background(), s)
	a.deliver("1")
	a.deliver("2")
	a.deliver("3")

	if err := <-done; !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}
	a.expect(t, "1")
	a.expect(t, "2")
	a.expectNothing(t)
	if hub.RoomCount() != 0 {
		t.Error("Expected room to be retired after rate limit close")
	}
}

func TestSessionObserverSeesKinds(t *testing.T) {
	hub := NewHub()
	a := newFakeChannel("A")

	var mu sync.Mutex
	var kinds []MessageKind
	s := NewSession(hub, a, "r", SessionOptions{
		Observer: func(roomID, memberID string, kind MessageKind, msg string) {
			mu.Lock()
			kinds = append(kinds, kind)
			mu.Unlock()
		},
	})
	done := startSession(context.Background(), s)

	a.deliver(`{"type":"offer","sdp":"v=0"}`)
	a.deliver(`{"type":"answer","sdp":"v=0"}`)
	a.expect(t, `{"type":"offer","sdp":"v=0"}`)
	a.expect(t, `{"type":"answer","sdp":"v=0"}`)

	_ = a.Close()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 2 || kinds[0] != KindOffer || kinds[1] != KindAnswer {
		t.Errorf("Expected [offer answer], got %v", kinds)
	}
}

func TestSessionLeavesExactlyOnce(t *testing.T) {
	hub := NewHub()
	a, b := newFakeChannel("A"), newFakeChannel("B")
	s := NewSession(hub, a, "r", SessionOptions{})
	done := startSession(context.Background(), s)
	waitFor(t, "A to join", func() bool { return len(hub.Members("r")) == 1 })

	_ = a.Close()
	<-done

	// A later join by someone else must not be undone by a repeated close.
	if err := hub.Join("r", b); err != nil {
		t.Fatalf("Join: %v", err)
	}
	s.close("again")
	if got := hub.Members("r"); len(got) != 1 || got[0] != "B" {
		t.Errorf("Expected B to remain, got %v", got)
	}
}
