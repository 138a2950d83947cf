package webclip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/starford/iceberg/internal/apperr"
	"github.com/starford/iceberg/internal/attachment"
)

// Clipping is attachment content derived from a URL.
type Clipping struct {
	Kind        attachment.Kind
	Content     []byte
	Description string
	Source      string
}

// Clip fetches rawURL and shapes it for kind. An empty kind is inferred from
// the media type. Links keep the URL and the page title; text clips of HTML
// pages are converted to Markdown; binary kinds must match their media type.
func (f *Fetcher) Clip(ctx context.Context, rawURL string, kind attachment.Kind) (*Clipping, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidKind, kind)
	}
	if kind == attachment.KindLocation {
		return nil, fmt.Errorf("%w: location cannot be clipped from a URL", apperr.ErrInvalidKind)
	}

	res, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		kind = KindFor(res.MediaType)
	}

	c := &Clipping{Kind: kind, Source: res.URL}
	switch kind {
	case attachment.KindLink:
		l := attachment.Link{URL: rawURL}
		if res.MediaType == "text/html" {
			l.Title = Title(res.Data)
		}
		c.Description = l.Title
		c.Content, err = json.Marshal(l)
		if err != nil {
			return nil, err
		}

	case attachment.KindText:
		switch {
		case res.MediaType == "text/html":
			md, mdErr := Markdown(res.Data, res.URL)
			if mdErr != nil {
				return nil, fmt.Errorf("%w: convert page: %v", apperr.ErrFetch, mdErr)
			}
			c.Content = []byte(md)
			c.Description = Title(res.Data)
		case strings.HasPrefix(res.MediaType, "text/") && utf8.Valid(res.Data):
			c.Content = res.Data
		default:
			return nil, fmt.Errorf("%w: %s is not text", apperr.ErrInvalidKind, res.MediaType)
		}

	default:
		if err := checkMedia(kind, res); err != nil {
			return nil, err
		}
		c.Content = res.Data
	}
	return c, nil
}

// KindFor maps a media type to the kind that stores it best.
func KindFor(mediaType string) attachment.Kind {
	switch {
	case mediaType == "image/png":
		return attachment.KindSketch
	case strings.HasPrefix(mediaType, "image/"):
		return attachment.KindImage
	case strings.HasPrefix(mediaType, "audio/"):
		return attachment.KindAudio
	case strings.HasPrefix(mediaType, "video/"):
		return attachment.KindVideo
	case mediaType == "text/html":
		return attachment.KindLink
	default:
		return attachment.KindText
	}
}

// checkMedia verifies that binary content belongs to kind, both by the
// declared media type and by sniffing the first bytes.
func checkMedia(kind attachment.Kind, res *Resource) error {
	var prefix string
	switch kind {
	case attachment.KindImage, attachment.KindSketch:
		prefix = "image/"
	case attachment.KindAudio:
		prefix = "audio/"
	case attachment.KindVideo:
		prefix = "video/"
	default:
		return fmt.Errorf("%w: %q", apperr.ErrInvalidKind, kind)
	}
	if !strings.HasPrefix(res.MediaType, prefix) {
		return fmt.Errorf("%w: %s does not fit %s", apperr.ErrInvalidKind, res.MediaType, kind)
	}
	// Sniffing only recognises raster images reliably.
	if prefix == "image/" && res.MediaType != "image/svg+xml" {
		detected := mediaType(http.DetectContentType(res.Data))
		if !strings.HasPrefix(detected, "image/") {
			return fmt.Errorf("%w: content does not match %s (detected: %s)", apperr.ErrFetch, res.MediaType, detected)
		}
	}
	return nil
}
