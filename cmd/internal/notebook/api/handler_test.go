package notebookapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"inkwell/cmd/identity"
	"inkwell/cmd/internal/access"
	authapi "inkwell/cmd/internal/auth/api"
	"inkwell/cmd/internal/auth/session"
	"inkwell/cmd/internal/notebook"
)

type testEnv struct {
	mux     *http.ServeMux
	handler *Handler

	aliceToken string
	bobToken   string
	aliceID    string
	bobID      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	sessCfg := session.DefaultConfig()
	sessCfg.AccessSecret = []byte(strings.Repeat("a", 32))
	sessCfg.RefreshSecret = []byte(strings.Repeat("r", 32))
	sessions, err := session.NewService(sessCfg, session.NewMemoryStore(), nil, session.NewMetrics(nil))
	if err != nil {
		t.Fatalf("session.NewService: %v", err)
	}

	users := identity.NewMemoryStore()
	store := notebook.NewMemoryStore()
	svc := notebook.NewService(store, users, access.NewResolver(notebook.NewAccessReader(store)), nil, nil)

	h, err := NewHandler(nil, svc, 1<<20)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	gate := authapi.NewGate(sessions, authapi.Config{RefreshCookieName: "inkwell_refresh", CookiePath: "/"})
	mux := http.NewServeMux()
	h.Register(mux, gate)

	env := &testEnv{mux: mux, handler: h}

	for _, name := range []string{"alice", "bob"} {
		u, err := users.CreateUser(ctx, identity.CreateUserInput{Username: name, Password: "hunter2hunter2"})
		if err != nil {
			t.Fatalf("CreateUser(%s): %v", name, err)
		}
		issued, err := sessions.IssueSession(ctx, session.Principal{UserID: u.ID, Role: u.Role}, session.ClientContext{})
		if err != nil {
			t.Fatalf("IssueSession(%s): %v", name, err)
		}
		switch name {
		case "alice":
			env.aliceID, env.aliceToken = u.ID, issued.AccessToken
		case "bob":
			env.bobID, env.bobToken = u.ID, issued.AccessToken
		}
	}
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
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
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode: %v (body %s)", err, rec.Body)
	}
}

func apiErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeInto(t, rec, &out)
	return out.Error.Code
}

func (e *testEnv) createNotebook(t *testing.T, token, title string) notebookResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/notebooks", token, notebookRequest{Title: title})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create notebook: %d, body %s", rec.Code, rec.Body)
	}
	var nb notebookResponse
	decodeInto(t, rec, &nb)
	return nb
}

func TestNotebookRoutes(t *testing.T) {
	e := newTestEnv(t)
	nb := e.createNotebook(t, e.aliceToken, "Research")

	// Owner reads it back; a stranger gets 403; nobody sees ghosts.
	rec := e.do(t, http.MethodGet, "/notebooks/"+nb.ID, e.aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	rec = e.do(t, http.MethodGet, "/notebooks/"+nb.ID, e.bobToken, nil)
	if rec.Code != http.StatusForbidden || apiErrorCode(t, rec) != "not_shared" {
		t.Fatalf("stranger get: %d, body %s", rec.Code, rec.Body)
	}
	rec = e.do(t, http.MethodGet, "/notebooks/ghost", e.aliceToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("ghost get: %d", rec.Code)
	}

	// No token, no entry.
	rec = e.do(t, http.MethodGet, "/notebooks/"+nb.ID, "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous get: %d", rec.Code)
	}

	rec = e.do(t, http.MethodDelete, "/notebooks/"+nb.ID, e.aliceToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
}

func TestShareRoutes(t *testing.T) {
	e := newTestEnv(t)
	nb := e.createNotebook(t, e.aliceToken, "Shared")

	rec := e.do(t, http.MethodPost, "/notebooks/"+nb.ID+"/shares", e.aliceToken, shareRequest{UserID: e.bobID, Level: "read"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("share: %d, body %s", rec.Code, rec.Body)
	}

	// Duplicate grant conflicts; unknown grantee is a 404.
	rec = e.do(t, http.MethodPost, "/notebooks/"+nb.ID+"/shares", e.aliceToken, shareRequest{UserID: e.bobID, Level: "write"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate share: %d", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/notebooks/"+nb.ID+"/shares", e.aliceToken, shareRequest{UserID: "ghost", Level: "read"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("ghost grantee: %d", rec.Code)
	}

	// Bob can now read but not write.
	rec = e.do(t, http.MethodGet, "/notebooks/"+nb.ID, e.bobToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("bob get: %d", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/notebooks/"+nb.ID+"/notes", e.bobToken, noteRequest{Title: "Nope"})
	if rec.Code != http.StatusForbidden || apiErrorCode(t, rec) != "insufficient_permission" {
		t.Fatalf("bob create note: %d, body %s", rec.Code, rec.Body)
	}

	// Upgrade to write, then revoke.
	rec = e.do(t, http.MethodPut, "/notebooks/"+nb.ID+"/shares/"+e.bobID, e.aliceToken, shareLevelRequest{Level: "write"})
	if rec.Code != http.StatusOK {
		t.Fatalf("upgrade share: %d, body %s", rec.Code, rec.Body)
	}
	rec = e.do(t, http.MethodPost, "/notebooks/"+nb.ID+"/notes", e.bobToken, noteRequest{Title: "Allowed now"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("bob create after upgrade: %d, body %s", rec.Code, rec.Body)
	}

	rec = e.do(t, http.MethodDelete, "/notebooks/"+nb.ID+"/shares/"+e.bobID, e.aliceToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("revoke: %d", rec.Code)
	}
	rec = e.do(t, http.MethodGet, "/notebooks/"+nb.ID, e.bobToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("bob after revoke: %d", rec.Code)
	}

	// Only the owner manages shares.
	rec = e.do(t, http.MethodGet, "/notebooks/"+nb.ID+"/shares", e.bobToken, nil)
	if rec.Code != http.StatusForbidden || apiErrorCode(t, rec) != "owner_only" {
		t.Fatalf("bob list shares: %d, body %s", rec.Code, rec.Body)
	}
}

func TestNoteRoutes(t *testing.T) {
	e := newTestEnv(t)
	nb := e.createNotebook(t, e.aliceToken, "Notes")

	rec := e.do(t, http.MethodPost, "/notebooks/"+nb.ID+"/notes", e.aliceToken, noteRequest{Title: "Doc", Content: "v1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create note: %d, body %s", rec.Code, rec.Body)
	}
	var n noteResponse
	decodeInto(t, rec, &n)
	if n.LabelIDs == nil {
		t.Fatalf("label_ids must serialize as an array")
	}

	// Edit, inspect history, restore.
	rec = e.do(t, http.MethodPut, "/notes/"+n.ID, e.aliceToken, noteRequest{Title: "Doc", Content: "v2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update note: %d, body %s", rec.Code, rec.Body)
	}

	rec = e.do(t, http.MethodGet, "/notes/"+n.ID+"/history", e.aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d", rec.Code)
	}
	var hist []historyResponse
	decodeInto(t, rec, &hist)
	if len(hist) != 1 || hist[0].Content != "v1" {
		t.Fatalf("history: %+v", hist)
	}

	rec = e.do(t, http.MethodPost, "/notes/"+n.ID+"/restore/"+hist[0].ID, e.aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("restore: %d, body %s", rec.Code, rec.Body)
	}
	var restored noteResponse
	decodeInto(t, rec, &restored)
	if restored.Content != "v1" {
		t.Fatalf("restored content: %q", restored.Content)
	}

	rec = e.do(t, http.MethodDelete, "/notes/"+n.ID, e.aliceToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete note: %d", rec.Code)
	}
	rec = e.do(t, http.MethodGet, "/notes/"+n.ID, e.aliceToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted note: %d", rec.Code)
	}
}

func TestLabelRoutes(t *testing.T) {
	e := newTestEnv(t)
	nb := e.createNotebook(t, e.aliceToken, "Labelled")

	rec := e.do(t, http.MethodPost, "/labels", e.aliceToken, labelRequest{Name: "todo", Color: "#00ff00"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create label: %d, body %s", rec.Code, rec.Body)
	}
	var l labelResponse
	decodeInto(t, rec, &l)

	// Regular users cannot mint system labels.
	rec = e.do(t, http.MethodPost, "/labels", e.aliceToken, labelRequest{Name: "pinned", System: true})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("system label: %d", rec.Code)
	}

	// Attach and filter.
	rec = e.do(t, http.MethodPost, "/notebooks/"+nb.ID+"/notes", e.aliceToken, noteRequest{Title: "Tagged", LabelIDs: []string{l.ID}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("tagged note: %d, body %s", rec.Code, rec.Body)
	}
	e.do(t, http.MethodPost, "/notebooks/"+nb.ID+"/notes", e.aliceToken, noteRequest{Title: "Plain"})

	rec = e.do(t, http.MethodGet, "/notebooks/"+nb.ID+"/notes?labels="+l.ID, e.aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("filtered list: %d", rec.Code)
	}
	var notes []noteResponse
	decodeInto(t, rec, &notes)
	if len(notes) != 1 || notes[0].Title != "Tagged" {
		t.Fatalf("filtered notes: %+v", notes)
	}

	// A foreign label id in a note body fails the whole request.
	rec = e.do(t, http.MethodPost, "/notebooks/"+nb.ID+"/notes", e.bobToken, noteRequest{Title: "X", LabelIDs: []string{l.ID}})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("bob with alice's label: %d", rec.Code)
	}

	rec = e.do(t, http.MethodDelete, "/labels/"+l.ID, e.aliceToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete label: %d", rec.Code)
	}
}
