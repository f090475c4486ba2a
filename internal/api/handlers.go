package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/blockref/internal/apperr"
	"github.com/starford/blockref/internal/refservice"
	"github.com/starford/blockref/internal/view"
)

// Handler holds API route handlers.
type Handler struct {
	svc      *refservice.Service
	display  view.Settings
	previews bool
}

// NewHandler creates a new Handler.
func NewHandler(svc *refservice.Service, display view.Settings, previews bool) *Handler {
	return &Handler{svc: svc, display: display, previews: previews}
}

// documentPath extracts the document path from the URL wildcard.
// Supports encoded slashes (e.g. topics%2Fnote.md).
func documentPath(r *http.Request) string {
	return unescape(strings.TrimPrefix(chi.URLParam(r, "*"), "/"))
}

func unescape(raw string) string {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List indexed documents
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, _ *http.Request) {
	ix := h.svc.Index()
	writeJSON(w, http.StatusOK, DocumentListResponse{
		Documents: ix.Documents(),
		Stats:     ix.Stats(),
	})
}

// RenderDocument handles GET /api/documents/*.
//
//	@Summary		Reference counters for one document
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	view.Document
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [get]
func (h *Handler) RenderDocument(w http.ResponseWriter, r *http.Request) {
	path := documentPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	doc, err := h.svc.Render(path, h.display, h.previews)
	if err != nil {
		writeError(w, "render document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GetDocument handles GET /api/keys/{key}.
//
//	@Summary		Anchors, references and sections of a document by key
//	@Tags			documents
//	@Produce		json
//	@Param			key	path		string	true	"Document key (basename without .md)"
//	@Success		200	{object}	refindex.DocumentView
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/keys/{key} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	dv, err := h.svc.Document(unescape(chi.URLParam(r, "key")))
	if err != nil {
		writeError(w, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, dv)
}

// GetAnchor handles GET /api/anchors/{doc}/{anchor}.
//
//	@Summary		Resolve an anchor and its reference set
//	@Tags			anchors
//	@Produce		json
//	@Param			doc		path		string	true	"Document key"
//	@Param			anchor	path		string	true	"Block id (^id) or heading text"
//	@Success		200		{object}	refindex.Entry
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/anchors/{doc}/{anchor} [get]
func (h *Handler) GetAnchor(w http.ResponseWriter, r *http.Request) {
	doc := unescape(chi.URLParam(r, "doc"))
	anchor := unescape(chi.URLParam(r, "anchor"))
	e, err := h.svc.Anchor(doc, anchor)
	if err != nil {
		writeError(w, "get anchor", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// FileOpened handles POST /api/events/open.
func (h *Handler) FileOpened(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decode(w, r, &req) {
		return
	}
	h.svc.FileOpened(req.Path)
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "scheduled"})
}

// FileChanged handles POST /api/events/change.
func (h *Handler) FileChanged(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decode(w, r, &req) {
		return
	}
	h.svc.FileChanged(req.Path)
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "scheduled"})
}

// FileDeleted handles POST /api/events/delete.
func (h *Handler) FileDeleted(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decode(w, r, &req) {
		return
	}
	h.svc.FileDeleted(req.Path)
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "scheduled"})
}

// LayoutChanged handles POST /api/events/layout.
func (h *Handler) LayoutChanged(w http.ResponseWriter, r *http.Request) {
	var req LayoutRequest
	if !decode(w, r, &req) {
		return
	}
	h.svc.LayoutChanged(req.Paths)
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "scheduled"})
}

// Typing handles POST /api/events/typing.
func (h *Handler) Typing(w http.ResponseWriter, _ *http.Request) {
	h.svc.Typed()
	w.WriteHeader(http.StatusNoContent)
}

// Reindex handles POST /api/reindex. Without a path query parameter it
// rebuilds the whole index and reports per-document failures without
// failing the request; with one it re-reads only that document.
//
//	@Summary		Rebuild the index from the vault
//	@Tags			index
//	@Produce		json
//	@Param			path	query		string	false	"Vault-relative path of a single document"
//	@Success		200		{object}	refindex.Stats
//	@Failure		400		{object}	map[string]string
//	@Failure		404		{object}	map[string]string
//	@Security		BearerAuth
//	@Router			/reindex [post]
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	if path := r.URL.Query().Get("path"); path != "" {
		req := PathRequest{Path: path}
		if err := req.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		if err := h.svc.Refresh(req.Path); err != nil {
			writeError(w, "reindex document", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"stats": h.svc.Index().Stats()})
		return
	}

	err := h.svc.Sync()
	stats := h.svc.Index().Stats()
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"stats": stats, "errors": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

// decode reads a JSON body into v and validates it, writing a 400 on
// failure.
func decode(w http.ResponseWriter, r *http.Request, v validation.Validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := v.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, apperr.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	slog.Error(op+" failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}
