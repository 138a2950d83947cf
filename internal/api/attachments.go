package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/iceberg/internal/attachment"
)

const maxUploadBytes = 50 << 20 // 50 MB

// UploadAttachment handles POST /api/attachments/upload (multipart/form-data,
// fields "file", "kind" and optional "description").
//
//	@Summary		Upload an attachment file
//	@Tags			attachments
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file		formData	file	true	"Content"
//	@Param			kind		formData	string	true	"Attachment kind"
//	@Param			description	formData	string	false	"Description"
//	@Success		201			{object}	AttachmentDetail
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/attachments/upload [post]
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid multipart")
		return
	}

	kind, err := attachment.ParseKind(r.FormValue("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing 'file' field in multipart form")
		return
	}
	defer file.Close()

	description := r.FormValue("description")
	if description == "" {
		description = header.Filename
	}

	d, err := h.svc.SaveReader(r.Context(), kind, file, description)
	if err != nil {
		writeServiceError(w, "upload attachment", err, slog.String("filename", header.Filename))
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// AttachmentContent handles GET /api/attachments/{key}/content.
//
//	@Summary		Download the raw content of an attachment
//	@Tags			attachments
//	@Produce		octet-stream
//	@Param			key	path	string	true	"Attachment key"
//	@Success		200	{file}	binary
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/attachments/{key}/content [get]
func (h *Handler) AttachmentContent(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	data, contentType, err := h.svc.Content(r.Context(), key)
	if err != nil {
		writeServiceError(w, "attachment content", err, slog.String("key", key))
		return
	}

	// Content never changes under a key.
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("ETag", strconv.Quote(key))
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
}
