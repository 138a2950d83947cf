package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/iceberg/internal/attachment"
	"github.com/starford/iceberg/internal/attachservice"
	"github.com/starford/iceberg/internal/catalog"
	"github.com/starford/iceberg/internal/models"
)

func kindRule() validation.Rule {
	kinds := attachment.Kinds()
	vals := make([]any, len(kinds))
	for i, k := range kinds {
		vals[i] = string(k)
	}
	return validation.In(vals...).Error("must be one of text, link, image, sketch, audio, video, location")
}

// CreateAttachmentRequest is the request body for creating an attachment
// from inline content.
type CreateAttachmentRequest struct {
	Kind        string `json:"kind" example:"text" validate:"required"`
	Content     string `json:"content" example:"Buy milk"`
	Description string `json:"description" example:"shopping"`
}

// Validate checks the request fields.
func (r CreateAttachmentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Kind, validation.Required, kindRule()),
		validation.Field(&r.Description, validation.Length(0, 4096)),
	)
}

// ClipRequest is the request body for creating an attachment from a URL.
type ClipRequest struct {
	URL         string `json:"url" example:"https://example.com" validate:"required"`
	Kind        string `json:"kind,omitempty" example:"link"`
	Description string `json:"description,omitempty"`
}

// Validate checks the request fields.
func (r ClipRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required, validation.Length(1, 8192)),
		validation.Field(&r.Kind, kindRule()),
	)
}

// OutlineRequest is the request body for parsing a document.
type OutlineRequest struct {
	Text string `json:"text" example:"* TODO Write report"`
}

// HeadingRequest is the request body for locating the heading at an offset.
type HeadingRequest struct {
	Text   string `json:"text" example:"* Heading\nbody" validate:"required"`
	Offset int    `json:"offset" example:"12"`
}

// Validate checks the request fields.
func (r HeadingRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Offset, validation.Min(0)),
	)
}

// AttachmentDetail is the full attachment response type (aliased from the
// domain layer).
type AttachmentDetail = attachservice.AttachmentDetail

// AttachmentListItem is a lightweight item in a list response (aliased from
// the domain layer).
type AttachmentListItem = attachservice.AttachmentListItem

// AttachmentListResponse wraps paginated attachment listings.
type AttachmentListResponse struct {
	Attachments []AttachmentListItem `json:"attachments" validate:"required"`
	Total       int                  `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Key         string `json:"key" example:"0F8FAD5B-D9CB-469F-A165-70867728950E" validate:"required"`
	Kind        string `json:"kind" example:"text" validate:"required"`
	Description string `json:"description" example:"shopping"`
	Snippet     string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

func toSearchResults(in []catalog.SearchResult) []SearchResult {
	out := make([]SearchResult, len(in))
	for i, r := range in {
		out[i] = SearchResult(r)
	}
	return out
}

// Reference is a document that embeds an attachment.
type Reference struct {
	Document string `json:"document" example:"projects/trip.org" validate:"required"`
	Key      string `json:"key" example:"0F8FAD5B-D9CB-469F-A165-70867728950E" validate:"required"`
	Kind     string `json:"kind" example:"image" validate:"required"`
}

// ReferencesResponse wraps a list of references.
type ReferencesResponse struct {
	References []Reference `json:"references" validate:"required"`
}

func toReferences(in []models.Reference) []Reference {
	out := make([]Reference, len(in))
	for i, r := range in {
		out[i] = Reference(r)
	}
	return out
}

// OutlineResponse is the parsed structure of a document.
type OutlineResponse = attachservice.OutlineResult

// HeadingResponse describes one heading.
type HeadingResponse = attachservice.HeadingInfo

// SweepResponse summarises a sweep.
type SweepResponse = attachment.SweepReport
