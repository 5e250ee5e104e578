package signaling

// Member is the registry's view of a connection: something that can be
// identified and handed a message. The hub never closes a Member.
//
// Send must not block and must not call back into the Hub; it runs while the
// room's lock is held.
type Member interface {
	ID() string
	Send(msg string) error
}

// Channel is a bidirectional text transport owned by exactly one Session.
type Channel interface {
	Member

	// Receive blocks until the next inbound message. After the channel is
	// closed it returns an error wrapping ErrChannelClosed.
	Receive() (string, error)

	// Close is idempotent and unblocks a pending Receive.
	Close() error
}
