package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/iceberg/internal/apperr"
	"github.com/starford/iceberg/internal/attachment"
	"github.com/starford/iceberg/internal/attachservice"
	"github.com/starford/iceberg/internal/webclip"
)

const maxJSONBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc     *attachservice.Service
	clipper *webclip.Fetcher
}

// NewHandler creates a new Handler. clipper may be nil to disable URL
// clipping.
func NewHandler(svc *attachservice.Service, clipper *webclip.Fetcher) *Handler {
	return &Handler{svc: svc, clipper: clipper}
}

// writeServiceError maps domain errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, op string, err error, attrs ...any) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, apperr.ErrInvalidKey), errors.Is(err, apperr.ErrInvalidKind):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apperr.ErrFetch):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		slog.Error(op+" failed", append(attrs, slog.String("error", err.Error()))...)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if vv, ok := v.(interface{ Validate() error }); ok {
		if err := vv.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return false
		}
	}
	return true
}

// ListAttachments handles GET /api/attachments.
//
//	@Summary		List attachments with optional pagination and kind filter
//	@Tags			attachments
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			kind	query		string	false	"Filter by kind"	Enums(text, link, image, sketch, audio, video, location)
//	@Success		200		{object}	AttachmentListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/attachments [get]
func (h *Handler) ListAttachments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.List(r.Context(), limit, offset, q.Get("kind"))
	if err != nil {
		writeServiceError(w, "list attachments", err)
		return
	}
	writeJSON(w, http.StatusOK, AttachmentListResponse{Attachments: items, Total: total})
}

// CreateAttachment handles POST /api/attachments.
//
//	@Summary		Create an attachment from inline content
//	@Tags			attachments
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateAttachmentRequest	true	"Attachment to create"
//	@Success		201		{object}	AttachmentDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/attachments [post]
func (h *Handler) CreateAttachment(w http.ResponseWriter, r *http.Request) {
	var req CreateAttachmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	kind, err := attachment.ParseKind(req.Kind)
	if err != nil {
		writeServiceError(w, "create attachment", err)
		return
	}
	d, err := h.svc.Save(r.Context(), kind, req.Content, req.Description)
	if err != nil {
		writeServiceError(w, "create attachment", err, slog.String("kind", req.Kind))
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// ClipAttachment handles POST /api/attachments/clip.
//
//	@Summary		Create an attachment from a URL or data URI
//	@Tags			attachments
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ClipRequest	true	"Source URL"
//	@Success		201		{object}	AttachmentDetail
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/attachments/clip [post]
func (h *Handler) ClipAttachment(w http.ResponseWriter, r *http.Request) {
	if h.clipper == nil {
		writeError(w, http.StatusNotImplemented, "clipping is disabled")
		return
	}
	var req ClipRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.clipper.Clip(r.Context(), req.URL, attachment.Kind(strings.ToLower(req.Kind)))
	if err != nil {
		writeServiceError(w, "clip attachment", err, slog.String("url", req.URL))
		return
	}
	desc := req.Description
	if desc == "" {
		desc = c.Description
	}
	d, err := h.svc.Save(r.Context(), c.Kind, string(c.Content), desc)
	if err != nil {
		writeServiceError(w, "clip attachment", err, slog.String("url", req.URL))
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// GetAttachment handles GET /api/attachments/{key}.
//
//	@Summary		Get attachment metadata
//	@Tags			attachments
//	@Produce		json
//	@Param			key	path		string	true	"Attachment key"
//	@Success		200	{object}	AttachmentDetail
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/attachments/{key} [get]
func (h *Handler) GetAttachment(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	d, err := h.svc.Get(r.Context(), key)
	if err != nil {
		writeServiceError(w, "get attachment", err, slog.String("key", key))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DeleteAttachment handles DELETE /api/attachments/{key}.
//
//	@Summary		Delete an attachment
//	@Tags			attachments
//	@Param			key	path	string	true	"Attachment key"
//	@Success		204	"Attachment deleted"
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/attachments/{key} [delete]
func (h *Handler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.svc.Delete(r.Context(), key); err != nil {
		writeServiceError(w, "delete attachment", err, slog.String("key", key))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Referrers handles GET /api/attachments/{key}/referrers.
//
//	@Summary		List documents that embed an attachment
//	@Tags			attachments
//	@Produce		json
//	@Param			key	path		string	true	"Attachment key"
//	@Success		200	{object}	ReferencesResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/attachments/{key}/referrers [get]
func (h *Handler) Referrers(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	refs, err := h.svc.Referrers(r.Context(), key)
	if err != nil {
		writeServiceError(w, "referrers", err, slog.String("key", key))
		return
	}
	writeJSON(w, http.StatusOK, ReferencesResponse{References: toReferences(refs)})
}

// Dangling handles GET /api/references/dangling.
//
//	@Summary		List document references to missing attachments
//	@Tags			attachments
//	@Produce		json
//	@Success		200	{object}	ReferencesResponse
//	@Security		BearerAuth
//	@Router			/references/dangling [get]
func (h *Handler) Dangling(w http.ResponseWriter, r *http.Request) {
	refs, err := h.svc.Dangling(r.Context())
	if err != nil {
		writeServiceError(w, "dangling references", err)
		return
	}
	writeJSON(w, http.StatusOK, ReferencesResponse{References: toReferences(refs)})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across attachment descriptions and text
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, "search", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: toSearchResults(results)})
}

// Outline handles POST /api/outline.
//
//	@Summary		Parse a document into headings, dates, attachment references and body elements
//	@Tags			outline
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OutlineRequest	true	"Document text"
//	@Success		200		{object}	OutlineResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/outline [post]
func (h *Handler) Outline(w http.ResponseWriter, r *http.Request) {
	var req OutlineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Outline(req.Text))
}

// HeadingAt handles POST /api/outline/heading.
//
//	@Summary		Find the heading that encloses a byte offset
//	@Tags			outline
//	@Accept			json
//	@Produce		json
//	@Param			body	body		HeadingRequest	true	"Document text and offset"
//	@Success		200		{object}	HeadingResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/outline/heading [post]
func (h *Handler) HeadingAt(w http.ResponseWriter, r *http.Request) {
	var req HeadingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	heading, err := h.svc.HeadingAt(req.Text, req.Offset)
	if err != nil {
		writeServiceError(w, "heading at", err)
		return
	}
	writeJSON(w, http.StatusOK, heading)
}

// Sweep handles POST /api/sweep.
//
//	@Summary		Remove orphaned attachment files
//	@Tags			maintenance
//	@Produce		json
//	@Param			dry_run	query		bool	false	"Report without removing"
//	@Success		200		{object}	SweepResponse
//	@Security		BearerAuth
//	@Router			/sweep [post]
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))
	report, err := h.svc.Sweep(r.Context(), attachment.SweepOptions{DryRun: dryRun})
	if err != nil {
		// Partial failures still carry a report.
		slog.Warn("sweep finished with errors", slog.String("error", err.Error()))
		if report == nil {
			writeServiceError(w, "sweep", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, report)
}
