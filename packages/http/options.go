package http

import (
	"context"
	"crypto/tls"
	"fmt"
	nethttp "net/http"
	"net/url"
	"time"

	"golang.org/x/crypto/pkcs12"
)

// PreRequestHook mutates the outgoing request just before it is sent.
type PreRequestHook func(ctx context.Context, req *nethttp.Request) error

// PostResponseHook observes the response to the initial send. A non-nil
// returned request is sent once in place of the original result; returning
// nil keeps the response as-is.
type PostResponseHook func(ctx context.Context, resp *nethttp.Response, req *nethttp.Request) (*nethttp.Request, error)

// BasicAuthCredentials holds credentials for basic auth
type BasicAuthCredentials struct {
	Username string
	Password string
}

// ClientCertificate holds resolved client certificate material: either a
// PEM cert/key pair or a PKCS#12 bundle, with an optional passphrase.
type ClientCertificate struct {
	Cert       []byte
	Key        []byte
	Pfx        []byte
	Passphrase string
}

// TLSCertificate converts the material into a tls.Certificate.
func (c *ClientCertificate) TLSCertificate() (tls.Certificate, error) {
	if len(c.Pfx) > 0 {
		key, cert, err := pkcs12.Decode(c.Pfx, c.Passphrase)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to decode pfx bundle: %w", err)
		}
		return tls.Certificate{
			Certificate: [][]byte{cert.Raw},
			PrivateKey:  key,
			Leaf:        cert,
		}, nil
	}
	cert, err := tls.X509KeyPair(c.Cert, c.Key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load cert/key pair: %w", err)
	}
	return cert, nil
}

// ProxyAgent is a forwarding agent bound to one proxy endpoint. Tunnel is
// set when the target URL is TLS, where the proxy must CONNECT instead of
// forwarding plain requests.
type ProxyAgent struct {
	URL       *url.URL
	StrictSSL bool
	Tunnel    bool
}

// TransportOptions is the fully-resolved per-request configuration handed
// to the network layer. It is built fresh for every dispatch and never
// shared between requests.
type TransportOptions struct {
	Method  string
	URL     *url.URL
	Headers *HeaderMap
	Body    []byte

	// Timeout <= 0 means no timeout.
	Timeout        time.Duration
	FollowRedirect bool

	// Jar is nil when cookie persistence is disabled.
	Jar nethttp.CookieJar

	// StrictSSL opts in to server certificate verification.
	StrictSSL bool

	Certificate *ClientCertificate
	Proxy       *ProxyAgent
	BasicAuth   *BasicAuthCredentials

	// Hooks run in registration order.
	PreRequestHooks   []PreRequestHook
	PostResponseHooks []PostResponseHook

	// DecodeEscapedUnicode is carried through to response consumption.
	DecodeEscapedUnicode bool
}

// AddPreRequestHook appends a hook run just before the request is sent.
func (o *TransportOptions) AddPreRequestHook(hook PreRequestHook) {
	o.PreRequestHooks = append(o.PreRequestHooks, hook)
}

// AddPostResponseHook appends a hook run after the initial response.
func (o *TransportOptions) AddPostResponseHook(hook PostResponseHook) {
	o.PostResponseHooks = append(o.PostResponseHooks, hook)
}
