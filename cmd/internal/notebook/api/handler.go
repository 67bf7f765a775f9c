package notebookapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"inkwell/cmd/identity"
	"inkwell/cmd/internal/access"
	authapi "inkwell/cmd/internal/auth/api"
	"inkwell/cmd/internal/notebook"
)

// Handler wires the content REST routes to the notebook service.
type Handler struct {
	log          *slog.Logger
	svc          *notebook.Service
	maxBodyBytes int64
}

// NewHandler constructs a content Handler.
func NewHandler(log *slog.Logger, svc *notebook.Service, maxBodyBytes int64) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("notebookapi: nil service")
	}
	if log == nil {
		log = slog.Default()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &Handler{log: log, svc: svc, maxBodyBytes: maxBodyBytes}, nil
}

// Register wires routes onto mux, each behind the auth gate.
func (h *Handler) Register(mux *http.ServeMux, gate *authapi.Gate) {
	guard := func(fn http.HandlerFunc) http.Handler { return gate.Require(fn) }

	mux.Handle("POST /notebooks", guard(h.handleCreateNotebook))
	mux.Handle("GET /notebooks", guard(h.handleListNotebooks))
	mux.Handle("GET /notebooks/{id}", guard(h.handleGetNotebook))
	mux.Handle("PUT /notebooks/{id}", guard(h.handleUpdateNotebook))
	mux.Handle("DELETE /notebooks/{id}", guard(h.handleDeleteNotebook))

	mux.Handle("POST /notebooks/{id}/notes", guard(h.handleCreateNote))
	mux.Handle("GET /notebooks/{id}/notes", guard(h.handleListNotes))
	mux.Handle("GET /notes/{id}", guard(h.handleGetNote))
	mux.Handle("PUT /notes/{id}", guard(h.handleUpdateNote))
	mux.Handle("DELETE /notes/{id}", guard(h.handleDeleteNote))
	mux.Handle("GET /notes/{id}/history", guard(h.handleListHistory))
	mux.Handle("POST /notes/{id}/restore/{historyID}", guard(h.handleRestoreNote))

	mux.Handle("POST /notebooks/{id}/shares", guard(h.handleCreateShare))
	mux.Handle("GET /notebooks/{id}/shares", guard(h.handleListShares))
	mux.Handle("PUT /notebooks/{id}/shares/{userID}", guard(h.handleUpdateShare))
	mux.Handle("DELETE /notebooks/{id}/shares/{userID}", guard(h.handleRevokeShare))

	mux.Handle("POST /labels", guard(h.handleCreateLabel))
	mux.Handle("GET /labels", guard(h.handleListLabels))
	mux.Handle("DELETE /labels/{id}", guard(h.handleDeleteLabel))
}

func actorFrom(r *http.Request) (notebook.Actor, bool) {
	p, ok := authapi.PrincipalFrom(r.Context())
	if !ok {
		return notebook.Actor{}, false
	}
	return notebook.Actor{ID: p.UserID, Role: p.Role}, true
}

// writeDomainError maps domain errors onto the HTTP taxonomy:
// 404 not found, 403 denied, 409 conflict, 400 invalid input, 503 storage down.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, access.ErrNotFound), errors.Is(err, notebook.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, access.ErrForbidden):
		var denied *access.DeniedError
		if errors.As(err, &denied) {
			writeError(w, http.StatusForbidden, denied.Reason, "access denied")
			return
		}
		writeError(w, http.StatusForbidden, "forbidden", "access denied")
	case errors.Is(err, notebook.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "already exists")
	case errors.Is(err, notebook.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
	case errors.Is(err, notebook.ErrUnavailable), identity.IsUnavailable(err):
		h.log.WarnContext(r.Context(), "notebook.api.unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable")
	default:
		h.log.ErrorContext(r.Context(), "notebook.api.fail", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// ---- notebooks ----

func (h *Handler) handleCreateNotebook(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	var req notebookRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	nb, err := h.svc.CreateNotebook(r.Context(), actor, notebook.CreateNotebookInput{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNotebookResponse(nb))
}

func (h *Handler) handleListNotebooks(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	nbs, err := h.svc.ListNotebooks(r.Context(), actor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]notebookResponse, 0, len(nbs))
	for _, nb := range nbs {
		out = append(out, toNotebookResponse(nb))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetNotebook(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	nb, err := h.svc.GetNotebook(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotebookResponse(nb))
}

func (h *Handler) handleUpdateNotebook(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	var req notebookRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	nb, err := h.svc.UpdateNotebook(r.Context(), actor, r.PathValue("id"), notebook.CreateNotebookInput{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotebookResponse(nb))
}

func (h *Handler) handleDeleteNotebook(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	if err := h.svc.DeleteNotebook(r.Context(), actor, r.PathValue("id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- notes ----

func (h *Handler) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	var req noteRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	n, err := h.svc.CreateNote(r.Context(), actor, r.PathValue("id"), notebook.NoteInput{
		Title:    req.Title,
		Content:  req.Content,
		LabelIDs: req.LabelIDs,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNoteResponse(n))
}

func (h *Handler) handleListNotes(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	q := r.URL.Query()
	in := notebook.ListNotesInput{
		NotebookID: r.PathValue("id"),
		Limit:      queryInt(q.Get("limit")),
		Offset:     queryInt(q.Get("offset")),
	}
	if raw := strings.TrimSpace(q.Get("labels")); raw != "" {
		in.LabelIDs = strings.Split(raw, ",")
	}

	notes, err := h.svc.ListNotes(r.Context(), actor, in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]noteResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, toNoteResponse(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetNote(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	n, err := h.svc.GetNote(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(n))
}

func (h *Handler) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	var req noteRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	n, err := h.svc.UpdateNote(r.Context(), actor, r.PathValue("id"), notebook.NoteInput{
		Title:    req.Title,
		Content:  req.Content,
		LabelIDs: req.LabelIDs,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(n))
}

func (h *Handler) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	if err := h.svc.DeleteNote(r.Context(), actor, r.PathValue("id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	entries, err := h.svc.ListHistory(r.Context(), actor, r.PathValue("id"), queryInt(r.URL.Query().Get("limit")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toHistoryResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleRestoreNote(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	n, err := h.svc.RestoreNote(r.Context(), actor, r.PathValue("id"), r.PathValue("historyID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(n))
}

// ---- shares ----

func (h *Handler) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	var req shareRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	sh, err := h.svc.CreateShare(r.Context(), actor, r.PathValue("id"), notebook.ShareInput{
		UserID: strings.TrimSpace(req.UserID),
		Level:  access.Permission(strings.TrimSpace(req.Level)),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShareResponse(sh))
}

func (h *Handler) handleListShares(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	shares, err := h.svc.ListShares(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]shareResponse, 0, len(shares))
	for _, sh := range shares {
		out = append(out, toShareResponse(sh))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleUpdateShare(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	var req shareLevelRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	sh, err := h.svc.UpdateShare(r.Context(), actor, r.PathValue("id"), notebook.ShareInput{
		UserID: r.PathValue("userID"),
		Level:  access.Permission(strings.TrimSpace(req.Level)),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShareResponse(sh))
}

func (h *Handler) handleRevokeShare(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	if err := h.svc.RevokeShare(r.Context(), actor, r.PathValue("id"), r.PathValue("userID")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- labels ----

func (h *Handler) handleCreateLabel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	var req labelRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	l, err := h.svc.CreateLabel(r.Context(), actor, notebook.LabelInput{
		Name:   req.Name,
		Color:  req.Color,
		System: req.System,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLabelResponse(l))
}

func (h *Handler) handleListLabels(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	labels, err := h.svc.ListLabels(r.Context(), actor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]labelResponse, 0, len(labels))
	for _, l := range labels {
		out = append(out, toLabelResponse(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleDeleteLabel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return
	}

	if err := h.svc.DeleteLabel(r.Context(), actor, r.PathValue("id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
