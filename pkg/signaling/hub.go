package signaling

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nikhilsahni7/signal-relay/pkg/metrics"
	"github.com/nikhilsahni7/signal-relay/pkg/util"
)

// Hub is the room registry: it maps room IDs to their members and is the
// only way to change membership.
//
// Lock order is always roomsMutex before Room.mu. A room present in rooms
// always has at least one member once the hub lock is released.
type Hub struct {
	rooms      map[string]*Room
	roomsMutex sync.RWMutex
	metrics    *metrics.Metrics
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithMetrics records room and delivery statistics in m.
func WithMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// NewHub creates a new Hub instance
func NewHub(opts ...HubOption) *Hub {
	hub := &Hub{
		rooms: make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(hub)
	}
	util.Debug("Hub initialized")
	return hub
}

// Join adds m to the room, creating the room on first use. Joining the same
// member twice is a caller bug and returns ErrAlreadyJoined without changing
// membership.
func (h *Hub) Join(roomID string, m Member) error {
	if roomID == "" {
		return ErrEmptyRoomID
	}

	h.roomsMutex.Lock()
	defer h.roomsMutex.Unlock()

	room, exists := h.rooms[roomID]
	if !exists {
		room = NewRoom(roomID)
	}

	room.mu.Lock()
	added := room.add(m)
	count := len(room.members)
	room.mu.Unlock()

	if !added {
		return fmt.Errorf("join %s as %s: %w", roomID, m.ID(), ErrAlreadyJoined)
	}
	if !exists {
		h.rooms[roomID] = room
		h.metrics.RoomOpened()
		util.Info("Created new room: %s", roomID)
	}
	h.metrics.MemberJoined()
	util.Info("Client %s joined room %s (%d members)", m.ID(), roomID, count)
	return nil
}

// Leave removes m from the room and retires the room once it is empty.
// Unknown rooms and non-members are ignored so teardown can call it
// unconditionally.
func (h *Hub) Leave(roomID string, m Member) {
	h.roomsMutex.Lock()
	defer h.roomsMutex.Unlock()

	room, exists := h.rooms[roomID]
	if !exists {
		return
	}

	room.mu.Lock()
	removed := room.remove(m)
	empty := len(room.members) == 0
	room.mu.Unlock()

	if !removed {
		return
	}
	h.metrics.MemberLeft()
	util.Info("Client %s left room %s", m.ID(), roomID)

	if empty {
		delete(h.rooms, roomID)
		h.metrics.RoomClosed()
		util.Info("Removed empty room: %s", roomID)
	}
}

// Broadcast hands msg to every member of the room except exclude, which may
// be nil. Deliveries to one room happen in the order Broadcast calls acquire
// the room, and a failing member never stops delivery to the others.
func (h *Hub) Broadcast(roomID, msg string, exclude Member) BroadcastReport {
	h.roomsMutex.RLock()
	room, exists := h.rooms[roomID]
	if !exists {
		h.roomsMutex.RUnlock()
		return BroadcastReport{}
	}
	room.mu.Lock()
	h.roomsMutex.RUnlock()

	report := room.deliver(msg, exclude)
	room.mu.Unlock()

	h.metrics.Delivered(report.Delivered)
	for range report.Failures {
		h.metrics.DeliveryFailed()
	}
	util.Debug("Broadcasted %d bytes to %d clients in room %s (%d failed)",
		len(msg), report.Delivered, roomID, len(report.Failures))
	return report
}

// Members returns the IDs of the room's members in join order, or nil if the
// room does not exist.
func (h *Hub) Members(roomID string) []string {
	h.roomsMutex.RLock()
	defer h.roomsMutex.RUnlock()

	room, exists := h.rooms[roomID]
	if !exists {
		return nil
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.memberIDs()
}

// Rooms returns a sorted list of active room IDs
func (h *Hub) Rooms() []string {
	h.roomsMutex.RLock()
	defer h.roomsMutex.RUnlock()

	rooms := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return rooms
}

// RoomCount returns the number of active rooms.
func (h *Hub) RoomCount() int {
	h.roomsMutex.RLock()
	defer h.roomsMutex.RUnlock()
	return len(h.rooms)
}
