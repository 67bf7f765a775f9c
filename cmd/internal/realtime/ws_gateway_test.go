package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"inkwell/cmd/identity"
	"inkwell/cmd/internal/access"
	"inkwell/cmd/internal/auth/session"
	"inkwell/cmd/internal/notebook"
)

type stubVerifier struct {
	tokens map[string]session.AccessClaims
}

func (v *stubVerifier) VerifyAccess(token string) (session.AccessClaims, error) {
	claims, ok := v.tokens[token]
	if !ok {
		return session.AccessClaims{}, session.ErrBadSignature
	}
	return claims, nil
}

func newWSServer(t *testing.T) (*httptest.Server, *Hub, string) {
	t.Helper()
	ctx := context.Background()

	store := notebook.NewMemoryStore()
	nb := notebook.Notebook{ID: "nb1", OwnerID: "alice", Title: "Research"}
	if err := store.CreateNotebook(ctx, nb); err != nil {
		t.Fatalf("CreateNotebook: %v", err)
	}

	verifier := &stubVerifier{tokens: map[string]session.AccessClaims{
		"alice-token": {Principal: session.Principal{UserID: "alice", Role: identity.RoleUser}},
		"bob-token":   {Principal: session.Principal{UserID: "bob", Role: identity.RoleUser}},
	}}

	hub := NewHub(nil)
	g := NewWSGateway(nil, hub, verifier, access.NewResolver(notebook.NewAccessReader(store)))

	mux := http.NewServeMux()
	g.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, hub, nb.ID
}

func TestHandleWSRejectsBeforeUpgrade(t *testing.T) {
	srv, _, nbID := newWSServer(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"missing token", "/notebooks/" + nbID + "/events", http.StatusUnauthorized},
		{"bad token", "/notebooks/" + nbID + "/events?access_token=forged", http.StatusUnauthorized},
		{"unshared user", "/notebooks/" + nbID + "/events?access_token=bob-token", http.StatusForbidden},
		{"missing notebook", "/notebooks/ghost/events?access_token=alice-token", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Fatalf("status: got %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestHandleWSStreamsEvents(t *testing.T) {
	srv, hub, nbID := newWSServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + srv.URL[len("http"):] + "/notebooks/" + nbID + "/events?access_token=alice-token"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{"inkwell.events.v1"},
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// The subscription is registered during the handshake; give the server
	// loop a moment before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.subs[nbID])
		hub.mu.RUnlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	want := notebook.Event{
		Type:       notebook.EventNoteCreated,
		NotebookID: nbID,
		NoteID:     "n1",
		ActorID:    "alice",
		At:         time.Now().UTC().Truncate(time.Second),
	}
	hub.Publish(nbID, want)

	typ, payload, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("message type: %v", typ)
	}

	var got notebook.Event
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != want.Type || got.NoteID != want.NoteID || got.ActorID != want.ActorID {
		t.Fatalf("event: %+v", got)
	}
}

func TestHandshakeToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"bearer header", "Bearer tok-1", "", "tok-1"},
		{"case-insensitive scheme", "bearer tok-2", "", "tok-2"},
		{"query fallback", "", "tok-3", "tok-3"},
		{"header wins over query", "Bearer tok-4", "tok-5", "tok-4"},
		{"wrong scheme falls back", "Basic abc", "tok-6", "tok-6"},
		{"nothing", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/notebooks/nb1/events"
			if tt.query != "" {
				target += "?access_token=" + tt.query
			}
			r := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := handshakeToken(r); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
