package signaling

import "errors"

var (
	// ErrChannelClosed is returned by Send and Receive once a channel has been
	// closed locally or by its remote peer.
	ErrChannelClosed = errors.New("channel closed")
	// ErrSendBufferFull is returned when a member cannot keep up with the
	// room's traffic. The member's connection is closed as a consequence.
	ErrSendBufferFull  = errors.New("send buffer full")
	ErrAlreadyJoined   = errors.New("member already joined room")
	ErrEmptyRoomID     = errors.New("empty room id")
	ErrRateLimited     = errors.New("message rate limit exceeded")
	errUnsupportedData = errors.New("unsupported message type")
)
