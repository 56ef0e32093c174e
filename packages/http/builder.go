package http

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/restwire/restwire/packages/core/config"
)

// Builder turns logical requests plus settings into transport options. One
// builder serves many requests; per-request state lives entirely in the
// returned options.
type Builder struct {
	jar   nethttp.CookieJar
	paths PathContext
	warnf WarnFunc
}

type BuilderOption func(*Builder)

// WithCookieJar sets the persistent jar attached to requests when the
// remember-cookies setting is enabled.
func WithCookieJar(jar nethttp.CookieJar) BuilderOption {
	return func(b *Builder) {
		b.jar = jar
	}
}

// WithPathContext sets the anchors for relative certificate paths.
func WithPathContext(paths PathContext) BuilderOption {
	return func(b *Builder) {
		b.paths = paths
	}
}

// WithWarnFunc routes non-fatal warnings somewhere other than stderr.
func WithWarnFunc(warnf WarnFunc) BuilderOption {
	return func(b *Builder) {
		b.warnf = warnf
	}
}

func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		warnf: defaultWarn,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Prepare builds the complete transport option set for one request. The
// caller's request is never mutated: headers are rewritten on a clone, and
// a reader body is materialized into option-owned bytes.
//
// Auth dispatch runs first, since it can strip the Authorization header and
// needs the final body for signing; certificate and proxy resolution follow
// and are independent of each other. Cognito resolution, if the request
// uses it, completes inside Prepare.
func (b *Builder) Prepare(ctx context.Context, req *Request, settings *config.Settings) (*TransportOptions, error) {
	if settings == nil {
		settings = config.DefaultSettings()
	}

	u, err := parseRequestURL(req.URL)
	if err != nil {
		return nil, err
	}

	body, err := materializeBody(req)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = nethttp.MethodGet
	}

	headers := req.Headers
	if headers == nil {
		headers = NewHeaderMap()
	}

	opts := &TransportOptions{
		Method:               method,
		URL:                  u,
		Headers:              headers.Clone(),
		Body:                 body,
		FollowRedirect:       settings.GetFollowRedirect(),
		StrictSSL:            settings.GetStrictSSL(),
		DecodeEscapedUnicode: settings.GetDecodeEscapedUnicode(),
	}
	if settings.TimeoutMs > 0 {
		opts.Timeout = time.Duration(settings.TimeoutMs) * time.Millisecond
	}
	if settings.GetRememberCookies() {
		opts.Jar = b.jar
	}

	if err := DispatchAuth(ctx, opts.Headers, opts); err != nil {
		return nil, err
	}

	paths := b.paths
	if req.Dir != "" && paths.RequestDir == "" {
		paths.RequestDir = req.Dir
	}
	opts.Certificate = ResolveCertificate(u, settings, paths, b.warnf)

	ResolveProxy(opts, u, settings)

	return opts, nil
}

// parseRequestURL validates the request URL up front so a malformed one
// fails before any network work.
func parseRequestURL(raw string) (*neturl.URL, error) {
	u, err := neturl.Parse(raw)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid URL %q", raw), Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ConfigError{Reason: fmt.Sprintf("unsupported URL scheme %q (only http and https are allowed)", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &ConfigError{Reason: fmt.Sprintf("URL %q has no host", raw)}
	}
	return u, nil
}

// materializeBody turns the request body into bytes. A reader body is
// fully read here; there is no streaming upload.
func materializeBody(req *Request) ([]byte, error) {
	if req.BodyReader != nil {
		body, err := io.ReadAll(req.BodyReader)
		if err != nil {
			return nil, &ConfigError{Reason: "reading request body", Err: err}
		}
		return body, nil
	}
	if req.Body != "" {
		return []byte(req.Body), nil
	}
	return nil, nil
}
