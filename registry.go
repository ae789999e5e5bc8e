package main

import (
	"sync"
)

// Transport is a cheaply shareable handle to a live QUIC connection for one
// user. The registry holds one reference per connected user; fan-out clones
// the reference, not the connection, so a read-lock snapshot can drive sends
// outside the lock.
type Transport interface {
	SendDatagram(data []byte) error
}

// UserSession is one admitted participant of a room. The transport handle is
// present only while a QUIC connection has authenticated as this user and
// has not yet torn down.
type UserSession struct {
	UserID    uint32
	Token     string
	transport Transport
	health    sendHealth
}

// Room holds the admitted sessions for one room_id.
type Room struct {
	RoomID uint32
	users  map[uint32]*UserSession
}

// AuditSink receives best-effort admission/lifecycle notifications. A nil
// sink disables auditing; a failing sink never fails the registry operation
// that triggered it.
type AuditSink interface {
	Record(event string, roomID, userID uint32)
}

// Registry is the single shared instance of server-side room/session state:
// rooms, their users, and the reverse token -> (room, user) index.
//
// All write sections are O(1) and never perform I/O, matching the
// read-mostly forwarding path that only needs a stable snapshot of peer
// transport handles.
type Registry struct {
	mu         sync.RWMutex
	rooms      map[uint32]*Room
	tokenIndex map[string]tokenEntry
	audit      AuditSink
}

type tokenEntry struct {
	roomID, userID uint32
}

// NewRegistry returns an empty Registry. audit may be nil.
func NewRegistry(audit AuditSink) *Registry {
	return &Registry{
		rooms:      make(map[uint32]*Room),
		tokenIndex: make(map[string]tokenEntry),
		audit:      audit,
	}
}

func (r *Registry) notify(event string, roomID, userID uint32) {
	if r.audit == nil {
		return
	}
	r.audit.Record(event, roomID, userID)
}

// AddRoom is idempotent; an existing room is left untouched.
func (r *Registry) AddRoom(roomID uint32) {
	r.mu.Lock()
	_, exists := r.rooms[roomID]
	if !exists {
		r.rooms[roomID] = &Room{RoomID: roomID, users: make(map[uint32]*UserSession)}
	}
	r.mu.Unlock()
	if !exists {
		r.notify("room_added", roomID, 0)
	}
}

// RemoveRoom removes the room and purges every token owned by its sessions.
// Any live transport handles held by the room are dropped as part of
// removal, and those that are QUIC connections are closed outside the lock;
// it is each connection's own read loop that observes the resulting close.
func (r *Registry) RemoveRoom(roomID uint32) {
	r.mu.Lock()
	room, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	var live []Transport
	for _, sess := range room.users {
		delete(r.tokenIndex, sess.Token)
		if sess.transport != nil {
			live = append(live, sess.transport)
		}
	}
	delete(r.rooms, roomID)
	r.mu.Unlock()
	for _, t := range live {
		if c, ok := t.(quicConn); ok {
			_ = c.CloseWithError(0, "room removed")
		}
	}
	r.notify("room_removed", roomID, 0)
}

// The registry's two "not found" outcomes (no such room, unknown token) are
// returned as plain ok booleans rather than sentinel error values, so admin
// API handlers can map them straight onto a precise HTTP 404.

// AdmitUser inserts (or replaces) the session for (roomID, userID) with the
// given token. It fails (ok=false) if the room does not exist. Admitting the
// same (room, user) again with a different token purges the old token from
// the index first.
func (r *Registry) AdmitUser(roomID, userID uint32, token string) (ok bool) {
	r.mu.Lock()
	room, exists := r.rooms[roomID]
	if !exists {
		r.mu.Unlock()
		return false
	}
	if prev, had := room.users[userID]; had && prev.Token != token {
		delete(r.tokenIndex, prev.Token)
	}
	room.users[userID] = &UserSession{UserID: userID, Token: token}
	r.tokenIndex[token] = tokenEntry{roomID: roomID, userID: userID}
	r.mu.Unlock()
	r.notify("admitted", roomID, userID)
	return true
}

// RemoveUser removes the session if present and purges its token. No-op if
// absent.
func (r *Registry) RemoveUser(roomID, userID uint32) {
	r.mu.Lock()
	room, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	sess, ok := room.users[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(room.users, userID)
	delete(r.tokenIndex, sess.Token)
	r.mu.Unlock()
	r.notify("removed", roomID, userID)
}

// GetRoomUsers returns the user IDs of roomID. ok is false if the room does
// not exist.
func (r *Registry) GetRoomUsers(roomID uint32) (users []uint32, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, exists := r.rooms[roomID]
	if !exists {
		return nil, false
	}
	users = make([]uint32, 0, len(room.users))
	for id := range room.users {
		users = append(users, id)
	}
	return users, true
}

// ResolveToken returns the (room, user) a token admits. ok is false for an
// unknown token.
func (r *Registry) ResolveToken(token string) (roomID, userID uint32, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, exists := r.tokenIndex[token]
	if !exists {
		return 0, 0, false
	}
	return entry.roomID, entry.userID, true
}

// SetConnection installs the live transport handle for (roomID, userID).
// Silently no-ops if the session has been removed in the meantime.
func (r *Registry) SetConnection(roomID, userID uint32, t Transport) {
	r.mu.Lock()
	room, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	sess, ok := room.users[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	sess.transport = t
	r.mu.Unlock()
	r.notify("authenticated", roomID, userID)
}

// ClearConnection removes the live transport handle for (roomID, userID), if
// a session for it still exists.
func (r *Registry) ClearConnection(roomID, userID uint32) {
	r.mu.Lock()
	room, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	sess, ok := room.users[userID]
	if ok {
		sess.transport = nil
	}
	r.mu.Unlock()
	if ok {
		r.notify("disconnected", roomID, userID)
	}
}

// fanoutTarget is one recipient of a forwarded datagram, captured outside
// the registry lock.
type fanoutTarget struct {
	userID    uint32
	transport Transport
	health    *sendHealth
}

// snapshotPool recycles the backing slices used for fan-out snapshots so a
// busy room does not allocate on every forwarded datagram.
var snapshotPool = sync.Pool{
	New: func() any {
		s := make([]fanoutTarget, 0, 8)
		return &s
	},
}

// snapshotPeers returns every other live-transport user of roomID besides
// senderID, taken under a read lock. The caller must return the slice to the
// pool via releaseSnapshot once done.
func (r *Registry) snapshotPeers(roomID, senderID uint32) []fanoutTarget {
	sp := snapshotPool.Get().(*[]fanoutTarget)
	targets := (*sp)[:0]

	r.mu.RLock()
	room, ok := r.rooms[roomID]
	if ok {
		for id, sess := range room.users {
			if id == senderID {
				continue
			}
			if sess.transport == nil {
				continue
			}
			targets = append(targets, fanoutTarget{userID: id, transport: sess.transport, health: &sess.health})
		}
	}
	r.mu.RUnlock()

	*sp = targets
	return targets
}

func releaseSnapshot(targets []fanoutTarget) {
	t := targets[:0]
	snapshotPool.Put(&t)
}
