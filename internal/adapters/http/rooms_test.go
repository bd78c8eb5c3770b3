package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/iftarcode/sfu-server/internal/app"
	"github.com/iftarcode/sfu-server/internal/config"
	"github.com/iftarcode/sfu-server/internal/signal"
	"github.com/iftarcode/sfu-server/internal/store"
)

func newTestEngine() (*gin.Engine, *API) {
	gin.SetMode(gin.TestMode)
	st := store.NewMemory()
	directory := app.NewDirectory(st, 6*time.Hour, time.Second, 100)
	relay := signal.NewRelay(st, signal.DefaultTTL)
	api := NewAPI(directory, relay, "test-secret", config.TURNConfig{
		STUNURLs: []string{"stun:stun.example.org:3478"},
	})

	r := gin.New()
	g := r.Group("/api")
	g.POST("/rooms", api.createRoom)
	g.GET("/rooms", api.listRooms)
	g.GET("/rooms/:code", api.getRoom)
	g.DELETE("/rooms/:code", api.deleteRoom)
	g.POST("/rooms/:code/join", api.joinRoom)
	g.GET("/rooms/:code/participants", api.listParticipants)
	g.GET("/rooms/:code/messages", api.listMessages)
	g.POST("/rooms/:code/messages", api.postMessage)
	g.GET("/rooms/:code/signal", api.pollSignals)
	g.POST("/rooms/:code/signal", api.postSignal)
	g.GET("/turn", api.turnCredentials)
	return r, api
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := map[string]json.RawMessage{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: bad response body %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, out
}

func createTestRoom(t *testing.T, r *gin.Engine) (code, hostToken string) {
	t.Helper()
	w, body := doJSON(t, r, http.MethodPost, "/api/rooms",
		`{"hostName":"Fathima","city":"Kochi","country":"India","maghribTime":"18:32"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create room: status %d, body %s", w.Code, w.Body.String())
	}
	var room struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body["room"], &room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	var token string
	if err := json.Unmarshal(body["hostToken"], &token); err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room.Code, token
}

func TestRoomEndpoints(t *testing.T) {
	r, _ := newTestEngine()

	code, token := createTestRoom(t, r)

	w, _ := doJSON(t, r, http.MethodGet, "/api/rooms/"+code, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get room: status %d", w.Code)
	}
	// Lookup is case-insensitive on the code.
	w, _ = doJSON(t, r, http.MethodGet, "/api/rooms/"+strings.ToLower(code), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get room lowercase: status %d", w.Code)
	}
	w, _ = doJSON(t, r, http.MethodGet, "/api/rooms/ZZZZZZ", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get unknown room: status %d, want 404", w.Code)
	}

	// Delete needs the host token.
	w, _ = doJSON(t, r, http.MethodDelete, "/api/rooms/"+code, "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("delete without token: status %d, want 401", w.Code)
	}
	w, _ = doJSON(t, r, http.MethodDelete, "/api/rooms/"+code, "", map[string]string{
		"Authorization": "Bearer " + token,
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete with token: status %d, want 204", w.Code)
	}
	w, _ = doJSON(t, r, http.MethodGet, "/api/rooms/"+code, "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get deleted room: status %d, want 404", w.Code)
	}
}

func TestListRoomsSkipsDeleted(t *testing.T) {
	r, _ := newTestEngine()

	code1, token1 := createTestRoom(t, r)
	code2, _ := createTestRoom(t, r)

	w, _ := doJSON(t, r, http.MethodDelete, "/api/rooms/"+code1, "", map[string]string{
		"Authorization": "Bearer " + token1,
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", w.Code)
	}

	w, body := doJSON(t, r, http.MethodGet, "/api/rooms", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list rooms: status %d", w.Code)
	}
	var rooms []struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body["rooms"], &rooms); err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].Code != code2 {
		t.Fatalf("list rooms = %v, want just %s", rooms, code2)
	}
}

func TestHostTokenScopedToRoom(t *testing.T) {
	r, _ := newTestEngine()

	code1, _ := createTestRoom(t, r)
	_, token2 := createTestRoom(t, r)

	w, _ := doJSON(t, r, http.MethodDelete, "/api/rooms/"+code1, "", map[string]string{
		"Authorization": "Bearer " + token2,
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("delete with other room's token: status %d, want 401", w.Code)
	}
}

func TestJoinNameConflict(t *testing.T) {
	r, _ := newTestEngine()
	code, _ := createTestRoom(t, r)

	w, _ := doJSON(t, r, http.MethodPost, "/api/rooms/"+code+"/join", `{"name":"Amina"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("join: status %d, body %s", w.Code, w.Body.String())
	}
	w, _ = doJSON(t, r, http.MethodPost, "/api/rooms/"+code+"/join", `{"name":"amina"}`, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("join duplicate name: status %d, want 409", w.Code)
	}
}

func TestMessagesRateLimited(t *testing.T) {
	r, _ := newTestEngine()
	code, _ := createTestRoom(t, r)

	w, _ := doJSON(t, r, http.MethodPost, "/api/rooms/"+code+"/messages",
		`{"sender":"Amina","text":"salaam"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("post message: status %d, body %s", w.Code, w.Body.String())
	}
	w, _ = doJSON(t, r, http.MethodPost, "/api/rooms/"+code+"/messages",
		`{"sender":"Amina","text":"again"}`, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("post message within interval: status %d, want 429", w.Code)
	}

	w, body := doJSON(t, r, http.MethodGet, "/api/rooms/"+code+"/messages", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list messages: status %d", w.Code)
	}
	var msgs []json.RawMessage
	if err := json.Unmarshal(body["messages"], &msgs); err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("list messages: %d entries, want 1", len(msgs))
	}
}

func TestSignalEndpoints(t *testing.T) {
	r, _ := newTestEngine()
	code, _ := createTestRoom(t, r)

	w, _ := doJSON(t, r, http.MethodPost, "/api/rooms/"+code+"/signal",
		`{"from":"p1","to":"p2","type":"renegotiate","payload":{}}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("post invalid signal kind: status %d, want 400", w.Code)
	}

	w, body := doJSON(t, r, http.MethodPost, "/api/rooms/"+code+"/signal",
		`{"from":"p1","to":"p2","type":"offer","payload":{"sdp":"x"}}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("post signal: status %d, body %s", w.Code, w.Body.String())
	}
	var id string
	if err := json.Unmarshal(body["id"], &id); err != nil || id == "" {
		t.Fatalf("post signal: no id in response %s", w.Body.String())
	}

	w, body = doJSON(t, r, http.MethodGet, "/api/rooms/"+code+"/signal?peerId=p2&since=0", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("poll signals: status %d", w.Code)
	}
	var sigs []signal.Message
	if err := json.Unmarshal(body["signals"], &sigs); err != nil {
		t.Fatalf("poll signals: %v", err)
	}
	if len(sigs) != 1 || sigs[0].ID != id {
		t.Fatalf("poll signals: got %d messages, want the one just sent", len(sigs))
	}

	// Addressed to p2, invisible to p3.
	w, body = doJSON(t, r, http.MethodGet, "/api/rooms/"+code+"/signal?peerId=p3&since=0", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("poll signals p3: status %d", w.Code)
	}
	if err := json.Unmarshal(body["signals"], &sigs); err != nil {
		t.Fatalf("poll signals p3: %v", err)
	}
	if len(sigs) != 0 {
		t.Fatalf("poll signals p3: got %d messages, want 0", len(sigs))
	}
}

func TestTURNStaticOnly(t *testing.T) {
	r, _ := newTestEngine()

	w, body := doJSON(t, r, http.MethodGet, "/api/turn", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("turn: status %d", w.Code)
	}
	var servers []iceServer
	if err := json.Unmarshal(body["iceServers"], &servers); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("turn: %d servers, want the static STUN entry", len(servers))
	}
}
