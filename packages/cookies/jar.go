package cookies

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// Jar is an http.CookieJar backed by a Store. Matching semantics (domain,
// path, secure) come from net/http/cookiejar; the store only persists.
// Persisted cookies are loaded lazily per host the first time a request
// touches it, and every Set-Cookie is written through.
type Jar struct {
	mem   http.CookieJar
	store Store

	mu     sync.Mutex
	seeded map[string]bool
}

// NewJar builds a jar on top of store. A nil store yields a purely
// in-memory jar.
func NewJar(store Store) (*Jar, error) {
	mem, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &Jar{
		mem:    mem,
		store:  store,
		seeded: make(map[string]bool),
	}, nil
}

// SetCookies stores the cookies received in a response from u.
func (j *Jar) SetCookies(u *url.URL, received []*http.Cookie) {
	j.mem.SetCookies(u, received)
	if j.store != nil {
		// Persistence is best-effort: a broken store file should not fail
		// the request that carried the Set-Cookie.
		_ = j.store.Set(u, received...)
	}
}

// Cookies returns the cookies to send in a request to u.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.seedHost(u)
	return j.mem.Cookies(u)
}

func (j *Jar) seedHost(u *url.URL) {
	if j.store == nil {
		return
	}

	key := strings.ToLower(u.Hostname())
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.seeded[key] {
		return
	}
	j.seeded[key] = true

	persisted, err := j.store.Get(u)
	if err != nil || len(persisted) == 0 {
		return
	}
	// Replaying through SetCookies lets cookiejar apply its own domain and
	// public-suffix validation to whatever was on disk.
	j.mem.SetCookies(u, persisted)
}
