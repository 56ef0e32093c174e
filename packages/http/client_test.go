package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	neturl "net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func optionsFor(t *testing.T, method, rawURL string) *TransportOptions {
	t.Helper()
	u, err := neturl.Parse(rawURL)
	require.NoError(t, err)
	return &TransportOptions{
		Method:  method,
		URL:     u,
		Headers: NewHeaderMap(),
	}
}

func TestSend_SimpleGET(t *testing.T) {
	body := `{"status":"ok"}`
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = io.WriteString(w, body)
	}))
	defer server.Close()

	resp, err := NewClient().Send(context.Background(), optionsFor(t, "GET", server.URL+"/items"))
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode())
	assert.Contains(t, resp.Status(), "200")
	assert.Equal(t, "HTTP/1.1", resp.Proto())
	assert.True(t, resp.IsSuccess())
	assert.False(t, resp.EventStream())
	assert.Equal(t, body, resp.Body())
	assert.Equal(t, []byte(body), resp.RawBody())
	assert.Equal(t, int64(len(body)), resp.BodySize())
	assert.Equal(t, "application/json; charset=utf-8", resp.ContentType())

	parsed, err := resp.BodyJSON()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "ok"}, parsed)

	// A fully-consumed response is already done.
	select {
	case <-resp.Done():
	default:
		t.Fatal("response should be done after Send returns")
	}
	assert.NoError(t, resp.Err())

	timing := resp.Timing()
	assert.Greater(t, timing.Total, time.Duration(0))
	assert.Greater(t, timing.FirstByte, time.Duration(0))
	assert.Equal(t, approximateHeaderSize(resp.Transport().Header), resp.HeaderSize())
}

func TestSend_PostBody(t *testing.T) {
	var received []byte
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		received, _ = io.ReadAll(r.Body)
	}))
	defer server.Close()

	opts := optionsFor(t, "POST", server.URL)
	opts.Body = []byte(`{"create":true}`)

	_, err := NewClient().Send(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, `{"create":true}`, string(received))
}

func TestSend_EchoKeepsAuthoredCasing(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {}))
	defer server.Close()

	opts := optionsFor(t, "GET", server.URL)
	opts.Headers.Set("x-trace-id", "t-123")
	opts.Headers.Set("ACCEPT", "application/json")

	resp, err := NewClient().Send(context.Background(), opts)
	require.NoError(t, err)

	echo := resp.Request()
	assert.NotEmpty(t, echo.ID, "every dispatch gets a correlation id")
	assert.Equal(t, "GET", echo.Method)
	assert.Equal(t, "t-123", echo.Headers["x-trace-id"], "authored lowercase spelling is preserved")
	assert.Equal(t, "application/json", echo.Headers["ACCEPT"])
	_, canonical := echo.Headers["X-Trace-Id"]
	assert.False(t, canonical)
}

func TestSend_HostHeaderOverride(t *testing.T) {
	var seenHost string
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		seenHost = r.Host
	}))
	defer server.Close()

	opts := optionsFor(t, "GET", server.URL)
	opts.Headers.Set("Host", "virtual.example")

	resp, err := NewClient().Send(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "virtual.example", seenHost)
	assert.Equal(t, "virtual.example", resp.Request().Headers["Host"])
}

func TestSend_BasicAuthOnWire(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "open sesame" {
			w.WriteHeader(nethttp.StatusUnauthorized)
		}
	}))
	defer server.Close()

	opts := optionsFor(t, "GET", server.URL)
	opts.BasicAuth = &BasicAuthCredentials{Username: "alice", Password: "open sesame"}

	resp, err := NewClient().Send(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode())
}

func TestSend_DigestEndToEnd(t *testing.T) {
	var requests atomic.Int32
	const challenge = `Digest realm="api", nonce="srv-nonce", qop="auth", opaque="opq"`

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		requests.Add(1)
		authz := r.Header.Get("Authorization")
		if authz == "" {
			w.Header().Set("WWW-Authenticate", challenge)
			w.WriteHeader(nethttp.StatusUnauthorized)
			return
		}

		sent := ParseWWWAuthenticate(authz)
		expected := &DigestAuth{
			Username: "alice",
			Password: "wonder",
			Realm:    "api",
			Nonce:    "srv-nonce",
			URI:      r.URL.RequestURI(),
			Qop:      sent["qop"],
			Nc:       sent["nc"],
			Cnonce:   sent["cnonce"],
			Method:   r.Method,
		}
		if sent["response"] != expected.ComputeDigestResponse() {
			w.WriteHeader(nethttp.StatusForbidden)
			return
		}
		_, _ = io.WriteString(w, "granted")
	}))
	defer server.Close()

	opts := optionsFor(t, "GET", server.URL+"/protected")
	opts.AddPostResponseHook(NewDigestAuthHook("alice", "wonder", nil))

	resp, err := NewClient().Send(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, "granted", resp.Body())
	assert.Equal(t, int32(2), requests.Load(), "one challenge, one answer")
}

func TestSend_NonSuccessIsNotAnError(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "down for maintenance")
	}))
	defer server.Close()

	resp, err := NewClient().Send(context.Background(), optionsFor(t, "GET", server.URL))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode())
	assert.True(t, resp.IsServerError())
	assert.Equal(t, "down for maintenance", resp.Body())
}

func TestSend_Redirects(t *testing.T) {
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/old", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.Redirect(w, r, "/new", nethttp.StatusFound)
	})
	mux.HandleFunc("/new", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		_, _ = io.WriteString(w, "landed")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	t.Run("followed", func(t *testing.T) {
		opts := optionsFor(t, "GET", server.URL+"/old")
		opts.FollowRedirect = true

		resp, err := NewClient().Send(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode())
		assert.Equal(t, "landed", resp.Body())
	})

	t.Run("disabled returns the redirect itself", func(t *testing.T) {
		opts := optionsFor(t, "GET", server.URL+"/old")
		opts.FollowRedirect = false

		resp, err := NewClient().Send(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, 302, resp.StatusCode())
		assert.True(t, resp.IsRedirect())
		assert.Equal(t, "/new", resp.Header("Location"))
	})

	t.Run("capped at max redirects", func(t *testing.T) {
		var hops atomic.Int32
		loop := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			hop := hops.Add(1)
			nethttp.Redirect(w, r, fmt.Sprintf("/hop/%d", hop), nethttp.StatusFound)
		}))
		defer loop.Close()

		opts := optionsFor(t, "GET", loop.URL)
		opts.FollowRedirect = true

		resp, err := NewClient(WithMaxRedirects(3)).Send(context.Background(), opts)
		require.NoError(t, err, "hitting the cap surfaces the last response, not an error")
		assert.Equal(t, 302, resp.StatusCode())
		assert.LessOrEqual(t, hops.Load(), int32(4))
	})
}

func TestSend_PreRequestHookFailureAborts(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		t.Error("request must not reach the server")
	}))
	defer server.Close()

	sentinel := errors.New("signing failed")
	opts := optionsFor(t, "GET", server.URL)
	opts.AddPreRequestHook(func(ctx context.Context, req *nethttp.Request) error {
		return sentinel
	})

	resp, err := NewClient().Send(context.Background(), opts)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, sentinel)
}

func TestSend_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {}))
	deadURL := server.URL
	server.Close()

	resp, err := NewClient().Send(context.Background(), optionsFor(t, "GET", deadURL))
	assert.Nil(t, resp)

	var netErr *NetError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, deadURL, netErr.URL)
}

func TestSend_Timeout(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		select {
		case <-blocked:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(blocked)

	opts := optionsFor(t, "GET", server.URL)
	opts.Timeout = 50 * time.Millisecond

	resp, err := NewClient().Send(context.Background(), opts)
	assert.Nil(t, resp)

	var netErr *NetError
	require.True(t, errors.As(err, &netErr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSend_CharsetDecoding(t *testing.T) {
	raw := []byte{'c', 'a', 'f', 0xE9}
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=iso-8859-1")
		_, _ = w.Write(raw)
	}))
	defer server.Close()

	resp, err := NewClient().Send(context.Background(), optionsFor(t, "GET", server.URL))
	require.NoError(t, err)

	assert.Equal(t, "café", resp.Body(), "text is decoded into utf-8")
	assert.Equal(t, raw, resp.RawBody(), "raw bytes stay as received")
	assert.Equal(t, int64(len(raw)), resp.BodySize(), "the counter counts raw bytes")
}

func TestSend_UnescapeUnicode(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"msg":"\u00e9 \u0022q\u0022"}`)
	}))
	defer server.Close()

	opts := optionsFor(t, "GET", server.URL)
	opts.DecodeEscapedUnicode = true

	resp, err := NewClient().Send(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, `{"msg":"é \"q\""}`, resp.Body())
}

func TestSend_CookieJar(t *testing.T) {
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/set", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.SetCookie(w, &nethttp.Cookie{Name: "session", Value: "s-1", Path: "/"})
	})
	var gotCookie string
	mux.HandleFunc("/check", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := NewClient()

	setOpts := optionsFor(t, "GET", server.URL+"/set")
	setOpts.Jar = jar
	_, err = client.Send(context.Background(), setOpts)
	require.NoError(t, err)

	checkOpts := optionsFor(t, "GET", server.URL+"/check")
	checkOpts.Jar = jar
	_, err = client.Send(context.Background(), checkOpts)
	require.NoError(t, err)

	assert.Equal(t, "s-1", gotCookie)
}

func TestSend_ThroughProxy(t *testing.T) {
	var sawAbsoluteForm bool
	proxy := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		sawAbsoluteForm = strings.HasPrefix(r.RequestURI, "http://")
		_, _ = io.WriteString(w, "via-proxy")
	}))
	defer proxy.Close()

	proxyURL, err := neturl.Parse(proxy.URL)
	require.NoError(t, err)

	opts := optionsFor(t, "GET", "http://target.invalid/path")
	opts.Proxy = &ProxyAgent{URL: proxyURL}

	resp, err := NewClient().Send(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "via-proxy", resp.Body())
	assert.True(t, sawAbsoluteForm, "proxied requests use the absolute request form")
}

func TestSend_EventStream(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: one\n\n")
		w.(nethttp.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = io.WriteString(w, "data: two\n\n")
	}))
	defer server.Close()

	resp, err := NewClient().Send(context.Background(), optionsFor(t, "GET", server.URL))
	require.NoError(t, err)

	assert.True(t, resp.EventStream())
	assert.Equal(t, 200, resp.StatusCode(), "resolved before the stream ended")

	select {
	case <-resp.Done():
		t.Fatal("stream cannot be done while the server holds it open")
	default:
	}

	require.Eventually(t, func() bool {
		return resp.BodySize() == int64(len("data: one\n\n"))
	}, 2*time.Second, 10*time.Millisecond)
	firstSize := resp.BodySize()
	assert.Contains(t, resp.Body(), "data: one")

	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, resp.Wait(ctx))

	assert.Contains(t, resp.Body(), "data: two")
	assert.GreaterOrEqual(t, resp.BodySize(), firstSize, "byte counter only grows")
	assert.NoError(t, resp.Err())
}

func TestSend_EventStreamClosedByCaller(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: live\n\n")
		w.(nethttp.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	resp, err := NewClient().Send(context.Background(), optionsFor(t, "GET", server.URL))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(resp.Body(), "data: live")
	}, 2*time.Second, 10*time.Millisecond)

	resp.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, resp.Wait(ctx), "caller close ends the stream cleanly")
	assert.NoError(t, resp.Err())

	// Closing again is harmless.
	resp.Close()
}
