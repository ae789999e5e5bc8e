package main

import "testing"

type fakeTransport struct {
	sent [][]byte
	fail bool
}

func (f *fakeTransport) SendDatagram(data []byte) error {
	if f.fail {
		return errFakeSend
	}
	cp := append([]byte(nil), data...)
	f.sent = append(f.sent, cp)
	return nil
}

var errFakeSend = &fakeSendErr{}

type fakeSendErr struct{}

func (*fakeSendErr) Error() string { return "fake send failure" }

func TestAdmitUserFailsWithoutRoom(t *testing.T) {
	reg := NewRegistry(nil)
	if reg.AdmitUser(7, 10, "t10") {
		t.Fatalf("expected AdmitUser to fail for nonexistent room")
	}
}

func TestAddRoomIdempotent(t *testing.T) {
	reg := NewRegistry(nil)
	reg.AddRoom(7)
	reg.AdmitUser(7, 10, "t10")
	reg.AddRoom(7) // idempotent, must not reset existing users
	users, ok := reg.GetRoomUsers(7)
	if !ok || len(users) != 1 {
		t.Fatalf("expected room to retain its user, got %v ok=%v", users, ok)
	}
}

func TestResolveTokenAndReplace(t *testing.T) {
	reg := NewRegistry(nil)
	reg.AddRoom(7)
	reg.AdmitUser(7, 10, "t10")

	room, user, ok := reg.ResolveToken("t10")
	if !ok || room != 7 || user != 10 {
		t.Fatalf("resolve mismatch: room=%d user=%d ok=%v", room, user, ok)
	}

	// Re-admitting with a new token purges the old one.
	reg.AdmitUser(7, 10, "t10-new")
	if _, _, ok := reg.ResolveToken("t10"); ok {
		t.Fatalf("old token should no longer resolve")
	}
	if _, _, ok := reg.ResolveToken("t10-new"); !ok {
		t.Fatalf("new token should resolve")
	}
}

func TestRemoveUserPurgesToken(t *testing.T) {
	reg := NewRegistry(nil)
	reg.AddRoom(7)
	reg.AdmitUser(7, 10, "t10")
	reg.RemoveUser(7, 10)

	if _, _, ok := reg.ResolveToken("t10"); ok {
		t.Fatalf("token must not resolve after user removal")
	}
	users, ok := reg.GetRoomUsers(7)
	if !ok || len(users) != 0 {
		t.Fatalf("expected empty room, got %v", users)
	}
}

func TestRemoveRoomPurgesAllTokens(t *testing.T) {
	reg := NewRegistry(nil)
	reg.AddRoom(7)
	reg.AdmitUser(7, 10, "t10")
	reg.AdmitUser(7, 11, "t11")

	reg.RemoveRoom(7)

	if _, _, ok := reg.ResolveToken("t10"); ok {
		t.Fatalf("t10 must be purged")
	}
	if _, _, ok := reg.ResolveToken("t11"); ok {
		t.Fatalf("t11 must be purged")
	}
	if _, ok := reg.GetRoomUsers(7); ok {
		t.Fatalf("expected no such room")
	}
}

func TestSetClearConnectionNoopsAfterRemoval(t *testing.T) {
	reg := NewRegistry(nil)
	reg.AddRoom(7)
	reg.AdmitUser(7, 10, "t10")
	reg.RemoveUser(7, 10)

	// Must not panic and must remain a no-op.
	reg.SetConnection(7, 10, &fakeTransport{})
	reg.ClearConnection(7, 10)
}

func TestSnapshotPeersExcludesSenderAndOfflineUsers(t *testing.T) {
	reg := NewRegistry(nil)
	reg.AddRoom(7)
	reg.AdmitUser(7, 10, "t10")
	reg.AdmitUser(7, 11, "t11")
	reg.AdmitUser(7, 12, "t12") // never connects

	tr10 := &fakeTransport{}
	tr11 := &fakeTransport{}
	reg.SetConnection(7, 10, tr10)
	reg.SetConnection(7, 11, tr11)

	targets := reg.snapshotPeers(7, 10)
	defer releaseSnapshot(targets)

	if len(targets) != 1 {
		t.Fatalf("expected exactly one peer target, got %d", len(targets))
	}
	if targets[0].userID != 11 {
		t.Fatalf("expected peer 11, got %d", targets[0].userID)
	}
}

func TestSnapshotPeersAfterRemoveRoomIsEmpty(t *testing.T) {
	reg := NewRegistry(nil)
	reg.AddRoom(7)
	reg.AdmitUser(7, 10, "t10")
	reg.AdmitUser(7, 11, "t11")
	reg.SetConnection(7, 11, &fakeTransport{})

	reg.RemoveRoom(7)

	targets := reg.snapshotPeers(7, 10)
	defer releaseSnapshot(targets)
	if len(targets) != 0 {
		t.Fatalf("expected no orphan transports after room removal, got %d", len(targets))
	}
}

type recordingAudit struct {
	events []string
}

func (a *recordingAudit) Record(event string, roomID, userID uint32) {
	a.events = append(a.events, event)
}

func TestAuditSinkReceivesLifecycleEvents(t *testing.T) {
	audit := &recordingAudit{}
	reg := NewRegistry(audit)
	reg.AddRoom(7)
	reg.AdmitUser(7, 10, "t10")
	reg.SetConnection(7, 10, &fakeTransport{})
	reg.ClearConnection(7, 10)
	reg.RemoveUser(7, 10)
	reg.RemoveRoom(7)

	want := []string{"room_added", "admitted", "authenticated", "disconnected", "removed", "room_removed"}
	if len(audit.events) != len(want) {
		t.Fatalf("expected %d audit events, got %d: %v", len(want), len(audit.events), audit.events)
	}
	for i, w := range want {
		if audit.events[i] != w {
			t.Fatalf("event %d: got %q, want %q", i, audit.events[i], w)
		}
	}
}
