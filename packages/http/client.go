package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	nethttp "net/http"
	"net/http/httptrace"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxRedirects is the maximum number of redirects to follow
	DefaultMaxRedirects = 10
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool
	DefaultMaxIdleConns = 100
	// DefaultMaxIdleConnsPerHost is the maximum number of idle connections per host
	DefaultMaxIdleConnsPerHost = 10
	// DefaultIdleConnTimeout is how long idle connections stay in the pool
	DefaultIdleConnTimeout = 90 * time.Second
)

// Client dispatches prepared transport options. The transport itself is
// built per dispatch, since TLS, certificate and proxy configuration vary
// per request; only policy knobs live on the Client.
type Client struct {
	maxRedirects int
	warnf        WarnFunc
	logger       zerolog.Logger
}

type ClientOption func(*Client)

// WithMaxRedirects caps redirect following.
func WithMaxRedirects(max int) ClientOption {
	return func(c *Client) {
		c.maxRedirects = max
	}
}

// WithWarningHandler routes non-fatal dispatch warnings somewhere other
// than stderr.
func WithWarningHandler(warnf WarnFunc) ClientOption {
	return func(c *Client) {
		c.warnf = warnf
	}
}

// WithLogger attaches a structured logger. Dispatches log at Debug with a
// per-request correlation id.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		maxRedirects: DefaultMaxRedirects,
		warnf:        defaultWarn,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send dispatches one prepared request and consumes its response.
//
// For ordinary responses Send returns once the body has been fully decoded.
// For event-stream responses it returns as soon as metadata is available;
// the returned Response keeps growing as chunks arrive, until Done. In
// both cases a transport-level failure before resolution returns a
// *NetError and no Response.
func (c *Client) Send(ctx context.Context, opts *TransportOptions) (*Response, error) {
	cancel := func() {}
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}

	requestID := uuid.NewString()
	c.logger.Debug().
		Str("request_id", requestID).
		Str("method", opts.Method).
		Str("url", opts.URL.String()).
		Msg("dispatching request")

	start := time.Now()
	timer := &phaseTimer{start: start}
	ctx = httptrace.WithClientTrace(ctx, timer.trace())

	httpReq, err := buildHTTPRequest(ctx, opts)
	if err != nil {
		cancel()
		return nil, err
	}

	for _, hook := range opts.PreRequestHooks {
		if err := hook(ctx, httpReq); err != nil {
			cancel()
			return nil, err
		}
	}

	httpClient := &nethttp.Client{
		Transport:     c.buildTransport(opts),
		Jar:           opts.Jar,
		CheckRedirect: c.redirectPolicy(opts),
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, &NetError{URL: opts.URL.String(), Err: err}
	}

	// Post-response hooks may replace the response by resending once
	// (digest). Later hooks observe the replacement.
	finalReq := httpReq
	for _, hook := range opts.PostResponseHooks {
		retry, err := hook(ctx, resp, finalReq)
		if err != nil {
			drainAndClose(resp)
			cancel()
			return nil, err
		}
		if retry == nil {
			continue
		}
		drainAndClose(resp)
		resp, err = httpClient.Do(retry)
		if err != nil {
			cancel()
			return nil, &NetError{URL: opts.URL.String(), Err: err}
		}
		finalReq = retry
	}

	result := newResponse(buildEcho(requestID, finalReq, opts))
	decoder, eventStream := attachMetadata(result, resp)
	result.setTiming(timer.snapshot(time.Since(start)))

	c.logger.Debug().
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Bool("event_stream", eventStream).
		Dur("first_byte", result.Timing().FirstByte).
		Msg("response resolved")

	if eventStream {
		go func() {
			defer cancel()
			_ = consumeBody(result, resp, decoder, opts.DecodeEscapedUnicode, start)
		}()
		return result, nil
	}

	defer cancel()
	if err := consumeBody(result, resp, decoder, opts.DecodeEscapedUnicode, start); err != nil {
		return nil, err
	}
	return result, nil
}

// buildHTTPRequest converts transport options into the net/http request.
// Header names keep their stored spelling; net/http canonicalizes on the
// wire for HTTP/1.1 as usual. A Host header becomes the request Host.
func buildHTTPRequest(ctx context.Context, opts *TransportOptions) (*nethttp.Request, error) {
	var body io.Reader
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}

	req, err := nethttp.NewRequestWithContext(ctx, opts.Method, opts.URL.String(), body)
	if err != nil {
		return nil, &ConfigError{Reason: "building transport request", Err: err}
	}

	if opts.Headers != nil {
		for _, name := range opts.Headers.Names() {
			value := opts.Headers.Get(name)
			if strings.EqualFold(name, "Host") {
				req.Host = value
				continue
			}
			req.Header.Set(name, value)
		}
	}

	if opts.BasicAuth != nil {
		req.SetBasicAuth(opts.BasicAuth.Username, opts.BasicAuth.Password)
	}
	return req, nil
}

// buildEcho captures the effective outgoing request. Header casing is
// normalized to the first-seen spelling from the caller's header map;
// hook-injected headers keep their canonical names.
func buildEcho(id string, req *nethttp.Request, opts *TransportOptions) RequestEcho {
	var rawNames []string
	if opts.Headers != nil {
		rawNames = opts.Headers.Names()
	}
	headers := flattenHeader(req.Header)
	if req.Host != "" && req.Host != req.URL.Host {
		headers["Host"] = req.Host
	}
	return RequestEcho{
		ID:      id,
		Method:  req.Method,
		URL:     req.URL.String(),
		Headers: NormalizeHeaderCasing(rawNames, headers),
		Body:    opts.Body,
	}
}

func (c *Client) buildTransport(opts *TransportOptions) *nethttp.Transport {
	// One tls.Config serves both the proxy hop and the target, so a
	// relaxed proxy hop relaxes target verification as well.
	tlsConfig := &tls.Config{
		InsecureSkipVerify: !opts.StrictSSL,
	}
	if opts.Proxy != nil && opts.Proxy.URL.Scheme == "https" && !opts.Proxy.StrictSSL {
		tlsConfig.InsecureSkipVerify = true
	}

	if opts.Certificate != nil {
		cert, err := opts.Certificate.TLSCertificate()
		if err != nil {
			c.warnf("client certificate for %s could not be loaded: %v", opts.URL.Host, err)
		} else {
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	transport := &nethttp.Transport{
		TLSClientConfig:     tlsConfig,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
	}
	if opts.Proxy != nil {
		transport.Proxy = nethttp.ProxyURL(opts.Proxy.URL)
	}
	return transport
}

func (c *Client) redirectPolicy(opts *TransportOptions) func(*nethttp.Request, []*nethttp.Request) error {
	return func(req *nethttp.Request, via []*nethttp.Request) error {
		if !opts.FollowRedirect {
			return nethttp.ErrUseLastResponse
		}
		if len(via) >= c.maxRedirects {
			return nethttp.ErrUseLastResponse
		}
		return nil
	}
}

func drainAndClose(resp *nethttp.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// phaseTimer collects httptrace callbacks into a Timing. Redirect chains
// accumulate phase durations across hops.
type phaseTimer struct {
	start time.Time

	mu           sync.Mutex
	dnsStart     time.Time
	connectStart time.Time
	tlsStart     time.Time
	dns          time.Duration
	connect      time.Duration
	tls          time.Duration
	firstByte    time.Duration
}

func (p *phaseTimer) trace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			p.mu.Lock()
			p.dnsStart = time.Now()
			p.mu.Unlock()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			p.mu.Lock()
			if !p.dnsStart.IsZero() {
				p.dns += time.Since(p.dnsStart)
			}
			p.mu.Unlock()
		},
		ConnectStart: func(string, string) {
			p.mu.Lock()
			p.connectStart = time.Now()
			p.mu.Unlock()
		},
		ConnectDone: func(string, string, error) {
			p.mu.Lock()
			if !p.connectStart.IsZero() {
				p.connect += time.Since(p.connectStart)
			}
			p.mu.Unlock()
		},
		TLSHandshakeStart: func() {
			p.mu.Lock()
			p.tlsStart = time.Now()
			p.mu.Unlock()
		},
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			p.mu.Lock()
			if !p.tlsStart.IsZero() {
				p.tls += time.Since(p.tlsStart)
			}
			p.mu.Unlock()
		},
		GotFirstResponseByte: func() {
			p.mu.Lock()
			p.firstByte = time.Since(p.start)
			p.mu.Unlock()
		},
	}
}

func (p *phaseTimer) snapshot(total time.Duration) Timing {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Timing{
		DNS:       p.dns,
		Connect:   p.connect,
		TLS:       p.tls,
		FirstByte: p.firstByte,
		Total:     total,
	}
}
