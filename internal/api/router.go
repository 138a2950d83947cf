package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/iceberg/internal/attachservice"
	"github.com/starford/iceberg/internal/webclip"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// clipper, if nil, disables POST /attachments/clip.
func NewRouter(svc *attachservice.Service, clipper *webclip.Fetcher, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, clipper)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Attachments.
	r.Get("/attachments", h.ListAttachments)
	r.Post("/attachments", h.CreateAttachment)
	r.Post("/attachments/upload", h.UploadAttachment)
	r.Post("/attachments/clip", h.ClipAttachment)
	r.Get("/attachments/{key}", h.GetAttachment)
	r.Delete("/attachments/{key}", h.DeleteAttachment)
	r.Get("/attachments/{key}/content", h.AttachmentContent)
	r.Get("/attachments/{key}/referrers", h.Referrers)
	r.Get("/references/dangling", h.Dangling)

	// Search.
	r.Get("/search", h.Search)

	// Outline.
	r.Post("/outline", h.Outline)
	r.Post("/outline/heading", h.HeadingAt)

	// Maintenance.
	r.Post("/sweep", h.Sweep)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
