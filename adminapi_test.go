package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func newTestAdminAPI() (*AdminAPI, *SFU) {
	sfu := NewSFU("127.0.0.1:0", nil, nil)
	return NewAdminAPI(sfu), sfu
}

func doJSON(api *AdminAPI, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.echo.ServeHTTP(rec, req)
	return rec
}

func TestAdminAPIAddRoomAndAdmitUser(t *testing.T) {
	api, sfu := newTestAdminAPI()

	rec := doJSON(api, "POST", "/rooms", addRoomRequest{RoomID: 7})
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(api, "POST", "/rooms/7/users", admitUserRequest{UserID: 10, Token: "t10"})
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	room, user, ok := sfu.registry.ResolveToken("t10")
	if !ok || room != 7 || user != 10 {
		t.Fatalf("expected token to resolve to (7, 10), got (%d, %d) ok=%v", room, user, ok)
	}
}

func TestAdminAPIAdmitUserNoSuchRoom(t *testing.T) {
	api, _ := newTestAdminAPI()

	rec := doJSON(api, "POST", "/rooms/99/users", admitUserRequest{UserID: 1, Token: "t1"})
	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAdminAPIGetRoomUsers(t *testing.T) {
	api, _ := newTestAdminAPI()

	doJSON(api, "POST", "/rooms", addRoomRequest{RoomID: 7})
	doJSON(api, "POST", "/rooms/7/users", admitUserRequest{UserID: 10, Token: "t10"})

	rec := doJSON(api, "GET", "/rooms/7/users", nil)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Users []uint32 `json:"users"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Users) != 1 || resp.Users[0] != 10 {
		t.Fatalf("expected users [10], got %v", resp.Users)
	}
}

func TestAdminAPIGetRoomUsersNoSuchRoom(t *testing.T) {
	api, _ := newTestAdminAPI()
	rec := doJSON(api, "GET", "/rooms/99/users", nil)
	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
