package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/eldtechnologies/chatrooms/internal/chatbot"
	"github.com/eldtechnologies/chatrooms/internal/handlers"
	"github.com/eldtechnologies/chatrooms/internal/moderation"
	"github.com/eldtechnologies/chatrooms/internal/notify"
	"github.com/eldtechnologies/chatrooms/internal/rooms"
	"github.com/eldtechnologies/chatrooms/internal/session"
	"github.com/eldtechnologies/chatrooms/internal/store"
	"github.com/eldtechnologies/chatrooms/internal/users"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	h, _ := newTestServer(t)
	return h
}

func newTestServer(t *testing.T) (http.Handler, handlers.Deps) {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := store.NewMemPebbleStore()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	eph := store.NewMemoryStore()

	mod, err := moderation.Load(ctx, db, []string{"root"}, logger)
	if err != nil {
		t.Fatal(err)
	}

	deps := handlers.Deps{
		Store:      db,
		Ephemeral:  eph,
		Rooms:      rooms.NewService(db, rooms.WithHashCost(bcrypt.MinCost)),
		Users:      users.NewDirectory(db),
		Sessions:   session.NewManager(eph, time.Minute),
		Moderation: mod,
		Bot:        chatbot.New(chatbot.Config{Name: "ModBot", BlockAfter: 2}, eph, mod, logger),
		Hub:        notify.NewHub(logger),
		Logger:     logger,
	}
	return NewRouter(logger, deps, Options{}), deps
}

func call(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func expect(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func login(t *testing.T, h http.Handler, nickname string) string {
	t.Helper()
	rec := call(t, h, http.MethodPost, "/login", "", map[string]string{"nickname": nickname})
	if rec.Code != http.StatusCreated && rec.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", nickname, rec.Code, rec.Body.String())
	}
	var resp handlers.LoginResponse
	decode(t, rec, &resp)
	return resp.Token
}

func createRoom(t *testing.T, h http.Handler, token string, body map[string]interface{}) handlers.RoomResponse {
	t.Helper()
	rec := call(t, h, http.MethodPost, "/rooms", token, body)
	expect(t, rec, http.StatusCreated)
	var room handlers.RoomResponse
	decode(t, rec, &room)
	return room
}

func TestLogin(t *testing.T) {
	h := newTestRouter(t)

	rec := call(t, h, http.MethodPost, "/login", "", map[string]string{"nickname": "  <b>alice</b> "})
	expect(t, rec, http.StatusCreated)
	var first handlers.LoginResponse
	decode(t, rec, &first)
	if first.Username != "alice" || first.Token == "" || !first.Created {
		t.Fatalf("unexpected login response %+v", first)
	}

	rec = call(t, h, http.MethodPost, "/login", "", map[string]string{"nickname": "alice"})
	expect(t, rec, http.StatusOK)

	expect(t, call(t, h, http.MethodPost, "/login", "", map[string]string{"nickname": "   "}), http.StatusBadRequest)
	expect(t, call(t, h, http.MethodPost, "/login", "", map[string]string{"nickname": "modbot"}), http.StatusConflict)

	rec = call(t, h, http.MethodGet, "/online", "", nil)
	expect(t, rec, http.StatusOK)
	var online handlers.OnlineResponse
	decode(t, rec, &online)
	if online.Count != 1 || online.Users[0] != "alice" {
		t.Fatalf("unexpected online list %+v", online)
	}

	expect(t, call(t, h, http.MethodPost, "/logout", first.Token, nil), http.StatusOK)
	expect(t, call(t, h, http.MethodPost, "/heartbeat", first.Token, nil), http.StatusUnauthorized)
}

func TestSessionRequired(t *testing.T) {
	h := newTestRouter(t)

	expect(t, call(t, h, http.MethodPost, "/rooms", "", map[string]string{"name": "x"}), http.StatusUnauthorized)
	expect(t, call(t, h, http.MethodPost, "/rooms", "bogus", map[string]string{"name": "x"}), http.StatusUnauthorized)
	expect(t, call(t, h, http.MethodGet, "/rooms", "", nil), http.StatusOK)
}

func TestPrivateRoomFlow(t *testing.T) {
	h := newTestRouter(t)
	alice := login(t, h, "alice")
	bob := login(t, h, "bob")
	carol := login(t, h, "carol")

	rec := call(t, h, http.MethodPost, "/rooms", alice, map[string]interface{}{
		"name": "Lounge", "is_public": false, "password": "pw", "topic": "late night",
	})
	expect(t, rec, http.StatusCreated)
	if strings.Contains(rec.Body.String(), "password_hash") || strings.Contains(rec.Body.String(), "$2a$") {
		t.Fatalf("password hash leaked: %s", rec.Body.String())
	}
	var room handlers.RoomResponse
	decode(t, rec, &room)
	if !room.HasPassword || room.Owner != "alice" || len(room.Members) != 1 {
		t.Fatalf("unexpected room %+v", room)
	}
	base := "/rooms/" + room.ID

	expect(t, call(t, h, http.MethodPost, base+"/join", bob, map[string]string{"password": "pw"}), http.StatusForbidden)
	expect(t, call(t, h, http.MethodPost, base+"/invite", bob, map[string]string{"username": "carol"}), http.StatusForbidden)
	expect(t, call(t, h, http.MethodPost, base+"/invite", alice, map[string]string{"username": "nobody"}), http.StatusNotFound)
	expect(t, call(t, h, http.MethodPost, base+"/invite", alice, map[string]string{"username": "bob"}), http.StatusOK)
	expect(t, call(t, h, http.MethodPost, base+"/join", bob, map[string]string{"password": "nope"}), http.StatusUnauthorized)

	rec = call(t, h, http.MethodPost, base+"/join", bob, map[string]string{"password": "pw"})
	expect(t, rec, http.StatusOK)
	var joined struct {
		Joined bool                  `json:"joined"`
		Room   handlers.RoomResponse `json:"room"`
	}
	decode(t, rec, &joined)
	if !joined.Joined || len(joined.Room.Members) != 2 || len(joined.Room.InvitedUsers) != 0 {
		t.Fatalf("unexpected join result %+v", joined)
	}

	expect(t, call(t, h, http.MethodPost, base+"/messages", bob, map[string]string{"body": "hello <script>x</script>there"}), http.StatusCreated)
	expect(t, call(t, h, http.MethodGet, base+"/messages", carol, nil), http.StatusForbidden)

	rec = call(t, h, http.MethodGet, base+"/messages", alice, nil)
	expect(t, rec, http.StatusOK)
	var page handlers.MessagesResponse
	decode(t, rec, &page)
	var found, welcomed bool
	for _, m := range page.Messages {
		if m.From == "bob" && m.Body == "hello there" {
			found = true
		}
		if m.Bot && strings.Contains(m.Body, "Welcome, bob") {
			welcomed = true
		}
	}
	if !found || !welcomed {
		t.Fatalf("expected bob's message and a welcome, got %+v", page.Messages)
	}

	expect(t, call(t, h, http.MethodPost, base+"/kick", bob, map[string]string{"username": "alice"}), http.StatusForbidden)
	expect(t, call(t, h, http.MethodPost, base+"/kick", alice, map[string]string{"username": "bob"}), http.StatusOK)
	expect(t, call(t, h, http.MethodPost, base+"/messages", bob, map[string]string{"body": "still here?"}), http.StatusForbidden)
	expect(t, call(t, h, http.MethodPost, base+"/invite", alice, map[string]string{"username": "bob"}), http.StatusForbidden)
	expect(t, call(t, h, http.MethodPost, base+"/unban", alice, map[string]string{"username": "bob"}), http.StatusOK)
	expect(t, call(t, h, http.MethodPost, base+"/invite", alice, map[string]string{"username": "bob"}), http.StatusOK)

	expect(t, call(t, h, http.MethodDelete, base, bob, nil), http.StatusForbidden)
	expect(t, call(t, h, http.MethodDelete, base, alice, nil), http.StatusOK)
	expect(t, call(t, h, http.MethodGet, base, "", nil), http.StatusNotFound)
}

func TestOwnerLeaveTransfersRoom(t *testing.T) {
	h := newTestRouter(t)
	alice := login(t, h, "alice")
	bob := login(t, h, "bob")

	room := createRoom(t, h, alice, map[string]interface{}{"name": "General"})
	base := "/rooms/" + room.ID
	expect(t, call(t, h, http.MethodPost, base+"/join", bob, nil), http.StatusOK)

	rec := call(t, h, http.MethodPost, base+"/leave", alice, nil)
	expect(t, rec, http.StatusOK)
	var left struct {
		Left     bool   `json:"left"`
		Deleted  bool   `json:"deleted"`
		NewOwner string `json:"new_owner"`
	}
	decode(t, rec, &left)
	if !left.Left || left.Deleted || left.NewOwner != "bob" {
		t.Fatalf("unexpected leave result %+v", left)
	}

	rec = call(t, h, http.MethodPost, base+"/leave", bob, nil)
	expect(t, rec, http.StatusOK)
	decode(t, rec, &left)
	if !left.Deleted {
		t.Fatalf("expected room to be deleted, got %+v", left)
	}
	expect(t, call(t, h, http.MethodGet, base, "", nil), http.StatusNotFound)
}

func TestUpdateRoomSettings(t *testing.T) {
	h := newTestRouter(t)
	alice := login(t, h, "alice")
	bob := login(t, h, "bob")
	room := createRoom(t, h, alice, map[string]interface{}{"name": "General", "password": "pw"})
	base := "/rooms/" + room.ID

	expect(t, call(t, h, http.MethodPatch, base, alice, map[string]interface{}{"owner": "bob"}), http.StatusBadRequest)
	expect(t, call(t, h, http.MethodPatch, base, bob, map[string]interface{}{"topic": "mine"}), http.StatusForbidden)

	rec := call(t, h, http.MethodPatch, base, alice, map[string]interface{}{"topic": "news", "password": "", "is_public": false})
	expect(t, rec, http.StatusOK)
	var updated handlers.RoomResponse
	decode(t, rec, &updated)
	if updated.Topic != "news" || updated.HasPassword || updated.IsPublic {
		t.Fatalf("settings not applied: %+v", updated)
	}
}

func TestOverlongRoomPasswordIsBadRequest(t *testing.T) {
	h := newTestRouter(t)
	alice := login(t, h, "alice")
	long := strings.Repeat("p", 80)

	expect(t, call(t, h, http.MethodPost, "/rooms", alice, map[string]interface{}{"name": "Vault", "password": long}), http.StatusBadRequest)

	room := createRoom(t, h, alice, map[string]interface{}{"name": "Vault"})
	expect(t, call(t, h, http.MethodPatch, "/rooms/"+room.ID, alice, map[string]interface{}{"password": long}), http.StatusBadRequest)
}

func TestBotWarnsThenBlocks(t *testing.T) {
	h := newTestRouter(t)
	alice := login(t, h, "alice")
	room := createRoom(t, h, alice, map[string]interface{}{"name": "General"})
	path := "/rooms/" + room.ID + "/messages"

	rec := call(t, h, http.MethodPost, path, alice, map[string]string{"body": "you idiot"})
	expect(t, rec, http.StatusUnprocessableEntity)
	var verdict handlers.ModerationResponse
	decode(t, rec, &verdict)
	if verdict.Level != 1 || verdict.Blocked || verdict.Reply == nil {
		t.Fatalf("unexpected first verdict %+v", verdict)
	}

	rec = call(t, h, http.MethodPost, path, alice, map[string]string{"body": "STUPID"})
	expect(t, rec, http.StatusUnprocessableEntity)
	decode(t, rec, &verdict)
	if !verdict.Blocked {
		t.Fatalf("expected block on second warning, got %+v", verdict)
	}

	expect(t, call(t, h, http.MethodPost, path, alice, map[string]string{"body": "sorry"}), http.StatusForbidden)
}

func TestAdminModeration(t *testing.T) {
	h := newTestRouter(t)
	root := login(t, h, "root")
	alice := login(t, h, "alice")
	bob := login(t, h, "bob")
	room := createRoom(t, h, alice, map[string]interface{}{"name": "General"})
	path := "/rooms/" + room.ID + "/messages"
	expect(t, call(t, h, http.MethodPost, "/rooms/"+room.ID+"/join", bob, nil), http.StatusOK)

	expect(t, call(t, h, http.MethodGet, "/admin/moderation", alice, nil), http.StatusForbidden)
	expect(t, call(t, h, http.MethodPost, "/admin/filters", root, map[string]string{"word": "darn"}), http.StatusOK)
	expect(t, call(t, h, http.MethodPost, path, bob, map[string]string{"body": "darn it"}), http.StatusCreated)

	rec := call(t, h, http.MethodGet, path, alice, nil)
	expect(t, rec, http.StatusOK)
	if strings.Contains(rec.Body.String(), "darn") || !strings.Contains(rec.Body.String(), "**** it") {
		t.Fatalf("filtered word not masked: %s", rec.Body.String())
	}

	expect(t, call(t, h, http.MethodPost, "/admin/blocks", root, map[string]string{"username": "bob"}), http.StatusOK)
	expect(t, call(t, h, http.MethodPost, path, bob, map[string]string{"body": "hi"}), http.StatusForbidden)
	rec = call(t, h, http.MethodGet, path, alice, nil)
	var page handlers.MessagesResponse
	decode(t, rec, &page)
	for _, m := range page.Messages {
		if m.From == "bob" {
			t.Fatalf("blocked user's message still visible: %+v", m)
		}
	}

	expect(t, call(t, h, http.MethodDelete, "/admin/blocks/bob", root, nil), http.StatusOK)
	rec = call(t, h, http.MethodGet, "/admin/moderation", root, nil)
	expect(t, rec, http.StatusOK)
	var snap moderation.Snapshot
	decode(t, rec, &snap)
	if len(snap.BlockedUsers) != 0 || len(snap.FilteredWords) != 1 || snap.Admins[0] != "root" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestRemoveFilterByBody(t *testing.T) {
	h := newTestRouter(t)
	root := login(t, h, "root")

	expect(t, call(t, h, http.MethodPost, "/admin/filters", root, map[string]string{"word": "a..b"}), http.StatusOK)
	expect(t, call(t, h, http.MethodPost, "/admin/filters", root, map[string]string{"word": "x//y"}), http.StatusOK)

	// The path form cannot carry these words
	expect(t, call(t, h, http.MethodDelete, "/admin/filters/a..b", root, nil), http.StatusBadRequest)

	expect(t, call(t, h, http.MethodDelete, "/admin/filters", root, map[string]string{"word": " a..b "}), http.StatusOK)
	rec := call(t, h, http.MethodDelete, "/admin/filters", root, map[string]string{"word": "x//y"})
	expect(t, rec, http.StatusOK)
	var snap moderation.Snapshot
	decode(t, rec, &snap)
	if len(snap.FilteredWords) != 0 {
		t.Fatalf("expected filter list to be empty, got %v", snap.FilteredWords)
	}

	expect(t, call(t, h, http.MethodDelete, "/admin/filters", root, map[string]string{"word": "  "}), http.StatusBadRequest)
}

func TestRenameCarriesMemberships(t *testing.T) {
	h := newTestRouter(t)
	alice := login(t, h, "alice")
	login(t, h, "bob")
	room := createRoom(t, h, alice, map[string]interface{}{"name": "General"})

	expect(t, call(t, h, http.MethodPost, "/profile/rename", alice, map[string]string{"nickname": "bob"}), http.StatusConflict)
	expect(t, call(t, h, http.MethodPost, "/profile/rename", alice, map[string]string{"nickname": "alicia"}), http.StatusOK)

	rec := call(t, h, http.MethodGet, "/rooms/"+room.ID, "", nil)
	var got handlers.RoomResponse
	decode(t, rec, &got)
	if got.Owner != "alicia" || got.Members[0] != "alicia" {
		t.Fatalf("room not updated after rename: %+v", got)
	}

	// Same token, new name.
	expect(t, call(t, h, http.MethodPost, "/rooms/"+room.ID+"/messages", alice, map[string]string{"body": "hi"}), http.StatusCreated)
	expect(t, call(t, h, http.MethodGet, "/profiles/alicia", "", nil), http.StatusOK)
	expect(t, call(t, h, http.MethodGet, "/profiles/alice", "", nil), http.StatusNotFound)
}

func TestHealthAndStats(t *testing.T) {
	h := newTestRouter(t)
	alice := login(t, h, "alice")
	createRoom(t, h, alice, map[string]interface{}{"name": "General"})

	expect(t, call(t, h, http.MethodGet, "/health", "", nil), http.StatusOK)

	rec := call(t, h, http.MethodGet, "/stats", "", nil)
	expect(t, rec, http.StatusOK)
	var stats handlers.StatsResponse
	decode(t, rec, &stats)
	if stats.TotalUsers != 1 || stats.TotalRooms != 1 || stats.PublicRooms != 1 || stats.OnlineUsers != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

type streamEvent struct {
	Type     string          `json:"type"`
	Username string          `json:"username"`
	Data     json.RawMessage `json:"data"`
}

func openEvents(t *testing.T, srv *httptest.Server, hub *notify.Hub, roomID, token string) *websocket.Conn {
	t.Helper()
	before := hub.Subscribers()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/" + roomID + "/events?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == before {
		if time.Now().After(deadline) {
			t.Fatal("subscription never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

// readUntilClosed returns the events received before the server closed the stream.
func readUntilClosed(t *testing.T, conn *websocket.Conn) []streamEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var events []streamEvent
	for {
		var evt streamEvent
		err := conn.ReadJSON(&evt)
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			return events
		}
		if err != nil {
			t.Fatalf("stream not closed cleanly after %d events: %v", len(events), err)
		}
		events = append(events, evt)
	}
}

func TestRemovedMembersStopStreaming(t *testing.T) {
	h, deps := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	alice := login(t, h, "alice")
	bob := login(t, h, "bob")
	carol := login(t, h, "carol")
	room := createRoom(t, h, alice, map[string]interface{}{"name": "Lounge"})
	base := "/rooms/" + room.ID
	expect(t, call(t, h, http.MethodPost, base+"/join", bob, nil), http.StatusOK)
	expect(t, call(t, h, http.MethodPost, base+"/join", carol, nil), http.StatusOK)

	bobStream := openEvents(t, srv, deps.Hub, room.ID, bob)
	carolStream := openEvents(t, srv, deps.Hub, room.ID, carol)

	expect(t, call(t, h, http.MethodPost, base+"/kick", alice, map[string]string{"username": "bob"}), http.StatusOK)
	expect(t, call(t, h, http.MethodPost, base+"/leave", carol, nil), http.StatusOK)
	expect(t, call(t, h, http.MethodPost, base+"/messages", alice, map[string]string{"body": "secret after kick"}), http.StatusCreated)

	bobEvents := readUntilClosed(t, bobStream)
	if len(bobEvents) == 0 || bobEvents[0].Type != "kick" || bobEvents[0].Username != "bob" {
		t.Fatalf("expected the kick notice before the stream closed, got %+v", bobEvents)
	}
	for name, events := range map[string][]streamEvent{"bob": bobEvents, "carol": readUntilClosed(t, carolStream)} {
		for _, evt := range events {
			if evt.Type == "message" {
				t.Fatalf("%s received a message after removal: %s", name, evt.Data)
			}
		}
	}
	if n := deps.Hub.Subscribers(); n != 0 {
		t.Fatalf("expected no open subscriptions, got %d", n)
	}
}
