package signaling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/nikhilsahni7/signal-relay/pkg/metrics"
	"github.com/nikhilsahni7/signal-relay/pkg/util"
)

// State is a relay session's lifecycle stage.
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateRelaying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateRelaying:
		return "relaying"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Observer sees every inbound message after classification. It must not
// retain or mutate relay state.
type Observer func(roomID, memberID string, kind MessageKind, msg string)

// SessionOptions tunes a Session. The zero value relays every message back to
// the whole room, sender included, without rate limiting.
type SessionOptions struct {
	// ExcludeSender stops a member from receiving its own messages.
	ExcludeSender bool

	// RateLimit caps inbound messages per second; zero disables the limit.
	RateLimit rate.Limit
	Burst     int

	Observer Observer
	Metrics  *metrics.Metrics
}

// Session drives one channel's participation in one room.
type Session struct {
	hub    *Hub
	ch     Channel
	roomID string
	opts   SessionOptions

	state     atomic.Int32
	leaveOnce sync.Once
	limiter   *rate.Limiter
}

// NewSession prepares a session for a freshly opened channel. Nothing happens
// until Run is called.
func NewSession(hub *Hub, ch Channel, roomID string, opts SessionOptions) *Session {
	s := &Session{
		hub:    hub,
		ch:     ch,
		roomID: roomID,
		opts:   opts,
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RateLimit)
			if burst < 1 {
				burst = 1
			}
		}
		s.limiter = rate.NewLimiter(opts.RateLimit, burst)
	}
	return s
}

func (s *Session) ID() string     { return s.ch.ID() }
func (s *Session) RoomID() string { return s.roomID }
func (s *Session) State() State   { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Run joins the room and relays inbound messages until the channel closes,
// fails, exceeds its rate limit, or ctx is cancelled. The member leaves the
// room exactly once and the channel is closed before Run returns. A normal
// close yields a nil error.
func (s *Session) Run(ctx context.Context) error {
	if err := s.hub.Join(s.roomID, s.ch); err != nil {
		s.setState(StateClosed)
		_ = s.ch.Close()
		s.opts.Metrics.SessionClosed("join_failed")
		return err
	}
	s.setState(StateJoined)

	stop := context.AfterFunc(ctx, func() { _ = s.ch.Close() })
	defer stop()

	var exclude Member
	if s.opts.ExcludeSender {
		exclude = s.ch
	}

	for {
		msg, err := s.ch.Receive()
		if err != nil {
			if errors.Is(err, ErrChannelClosed) {
				s.close("closed")
				return nil
			}
			util.Warn("Receive error for client %s in room %s: %v", s.ID(), s.roomID, err)
			s.close("receive_error")
			return err
		}
		s.setState(StateRelaying)

		if s.limiter != nil && !s.limiter.Allow() {
			util.Warn("Client %s in room %s exceeded message rate limit", s.ID(), s.roomID)
			s.close("rate_limited")
			return ErrRateLimited
		}

		kind := Classify(msg)
		s.opts.Metrics.MessageReceived(string(kind))
		if s.opts.Observer != nil {
			s.opts.Observer(s.roomID, s.ID(), kind, msg)
		}

		s.hub.Broadcast(s.roomID, msg, exclude)
	}
}

// close leaves the room and releases the channel. Only the first call has any
// effect.
func (s *Session) close(reason string) {
	s.leaveOnce.Do(func() {
		s.hub.Leave(s.roomID, s.ch)
		s.setState(StateClosed)
		_ = s.ch.Close()
		s.opts.Metrics.SessionClosed(reason)
		util.Debug("Session for client %s in room %s closed: %s", s.ID(), s.roomID, reason)
	})
}

// LogObserver logs each message's kind at debug level.
func LogObserver(roomID, memberID string, kind MessageKind, msg string) {
	util.Debug("Received %s (%d bytes) in room %s from client %s", kind, len(msg), roomID, memberID)
}
