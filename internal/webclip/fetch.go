// Package webclip turns URLs into attachment content: data URIs are decoded,
// http(s) resources are downloaded with host checks, and HTML pages become
// link titles or Markdown text.
package webclip

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/iceberg/internal/apperr"
)

const (
	defaultMaxBytes = 10 << 20 // 10 MB
	maxRedirects    = 5
)

// Resource is a fetched body and its media type (without parameters).
type Resource struct {
	URL       string
	MediaType string
	Data      []byte
}

// Fetcher downloads remote resources. Outgoing requests share one token
// bucket so an agent looping over URLs cannot hammer a host.
type Fetcher struct {
	client        *http.Client
	limiter       *rate.Limiter
	maxBytes      int64
	allowLoopback bool
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithRateLimit sets the request rate and burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(f *Fetcher) { f.limiter = rate.NewLimiter(r, burst) }
}

// WithMaxBytes caps the size of a fetched body.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBytes = n }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.client.Timeout = d }
}

// NewFetcher returns a Fetcher with a 30s timeout, 2 requests/second and a
// 10 MB body limit unless overridden.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		limiter:  rate.NewLimiter(rate.Limit(2), 4),
		maxBytes: defaultMaxBytes,
	}
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   f.dialControl,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil // the dialed address must be the checked one
	transport.DialContext = dialer.DialContext

	f.client = &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (max %d)", maxRedirects)
			}
			return f.checkHost(req.URL.Hostname())
		},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch resolves rawURL, which may be a base64 data URI or an http(s) URL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Resource, error) {
	if strings.HasPrefix(rawURL, "data:") {
		mt, data, err := DecodeDataURI(rawURL)
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > f.maxBytes {
			return nil, fmt.Errorf("%w: data too large: %d bytes (max %d)", apperr.ErrFetch, len(data), f.maxBytes)
		}
		return &Resource{URL: rawURL, MediaType: mt, Data: data}, nil
	}
	return f.fetchHTTP(ctx, rawURL)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) (*Resource, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %v", apperr.ErrFetch, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q (only http/https)", apperr.ErrFetch, parsed.Scheme)
	}
	if err := f.checkHost(parsed.Hostname()); err != nil {
		return nil, err
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrFetch, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: download: %v", apperr.ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: download: HTTP %d", apperr.ErrFetch, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", apperr.ErrFetch, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", apperr.ErrFetch, f.maxBytes)
	}

	mt := mediaType(resp.Header.Get("Content-Type"))
	if mt == "" || mt == "application/octet-stream" {
		mt = mediaType(http.DetectContentType(data))
	}
	return &Resource{URL: resp.Request.URL.String(), MediaType: mt, Data: data}, nil
}

// DecodeDataURI parses a data:<mediatype>;base64,<data> URI.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest := strings.TrimPrefix(uri, "data:")
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: invalid data URI: missing comma separator", apperr.ErrFetch)
	}
	if !strings.HasSuffix(meta, ";base64") {
		return "", nil, fmt.Errorf("%w: only base64 data URIs are supported", apperr.ErrFetch)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return "", nil, fmt.Errorf("%w: invalid base64 data: %v", apperr.ErrFetch, err)
		}
	}

	mt := mediaType(strings.TrimSuffix(meta, ";base64"))
	if mt == "" {
		mt = mediaType(http.DetectContentType(data))
	}
	return mt, data, nil
}

func mediaType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	}
	return mt
}

// checkHost rejects blocked host names and literal addresses before any
// request is made. Resolved names are checked again at dial time.
func (f *Fetcher) checkHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("%w: blocked host %s", apperr.ErrFetch, host)
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return f.checkAddr(ip)
	}
	return nil
}

// dialControl runs for every connection attempt, after DNS resolution, so
// each address actually dialed is checked.
func (f *Fetcher) dialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", apperr.ErrFetch, address, err)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", apperr.ErrFetch, address, err)
	}
	return f.checkAddr(ip)
}

// checkAddr rejects loopback, private, link-local, multicast and unspecified
// addresses. IPv4-mapped IPv6 addresses are judged as IPv4.
func (f *Fetcher) checkAddr(ip netip.Addr) error {
	ip = ip.Unmap()
	switch {
	case ip.IsLoopback():
		if f.allowLoopback {
			return nil
		}
		return fmt.Errorf("%w: blocked host: loopback address %s", apperr.ErrFetch, ip)
	case ip.IsPrivate():
		return fmt.Errorf("%w: blocked host: private address %s", apperr.ErrFetch, ip)
	case ip.IsUnspecified(), ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(), ip.IsMulticast():
		return fmt.Errorf("%w: blocked host: %s", apperr.ErrFetch, ip)
	}
	return nil
}
