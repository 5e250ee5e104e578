package signaling

import (
	"sync"

	"github.com/nikhilsahni7/signal-relay/pkg/util"
)

// Room is a named group of members that receive each other's messages.
// Members are kept in join order.
//
// A Room is only reachable through its Hub, which holds the hub lock before
// taking mu for every membership change.
type Room struct {
	ID      string
	members []Member
	mu      sync.Mutex
}

// DeliveryFailure records a member whose channel rejected a message.
type DeliveryFailure struct {
	MemberID string
	Err      error
}

// BroadcastReport summarises one fan-out. Failures never mean the broadcast
// as a whole failed.
type BroadcastReport struct {
	Delivered int
	Failures  []DeliveryFailure
}

// NewRoom creates an empty room
func NewRoom(id string) *Room {
	return &Room{ID: id}
}

// indexOf returns the member's position or -1. Caller holds r.mu.
func (r *Room) indexOf(m Member) int {
	for i, existing := range r.members {
		if existing == m {
			return i
		}
	}
	return -1
}

// add appends m unless it is already a member. Caller holds r.mu.
func (r *Room) add(m Member) bool {
	if r.indexOf(m) >= 0 {
		return false
	}
	r.members = append(r.members, m)
	return true
}

// remove deletes m preserving order of the others. Caller holds r.mu.
func (r *Room) remove(m Member) bool {
	i := r.indexOf(m)
	if i < 0 {
		return false
	}
	copy(r.members[i:], r.members[i+1:])
	r.members[len(r.members)-1] = nil
	r.members = r.members[:len(r.members)-1]
	return true
}

// deliver sends msg to every member except exclude. Caller holds r.mu.
func (r *Room) deliver(msg string, exclude Member) BroadcastReport {
	var report BroadcastReport
	for _, m := range r.members {
		if exclude != nil && m == exclude {
			continue
		}
		if err := m.Send(msg); err != nil {
			util.Warn("Delivery to client %s in room %s failed: %v", m.ID(), r.ID, err)
			report.Failures = append(report.Failures, DeliveryFailure{MemberID: m.ID(), Err: err})
			continue
		}
		report.Delivered++
	}
	return report
}

// memberIDs returns the member IDs in join order. Caller holds r.mu.
func (r *Room) memberIDs() []string {
	ids := make([]string, 0, len(r.members))
	for _, m := range r.members {
		ids = append(ids, m.ID())
	}
	return ids
}
