// Package cookies persists response cookies across invocations so request
// sequences can carry a session. The jar semantics come from
// net/http/cookiejar; storage is a SQLite file.
package cookies

import (
	"net/http"
	"net/url"
	"time"
)

// Store is the persistence surface for cookies. Implementations own their
// consistency guarantees; the pipeline performs no locking around overlapping
// Get/Set calls from concurrent requests.
type Store interface {
	// Get returns the stored cookies applicable to u's host, including
	// domain cookies set by a parent domain. Expired entries are dropped.
	Get(u *url.URL) ([]*http.Cookie, error)

	// Set persists the given cookies as received for u. A cookie with
	// MaxAge < 0 or an Expires in the past removes the stored entry.
	Set(u *url.URL, cookies ...*http.Cookie) error

	// Clear removes every stored cookie.
	Clear() error
}

// Entry is one persisted cookie row.
type Entry struct {
	// Host is the effective domain without a leading dot. HostOnly marks
	// cookies that apply to exactly this host rather than its subdomains.
	Host     string
	HostOnly bool

	Name  string
	Value string
	Path  string

	// Expires is zero for session cookies, which are persisted too so a
	// later invocation of the tool can resume a session.
	Expires time.Time

	Secure   bool
	HTTPOnly bool
}

// Cookie converts the entry back into the http.Cookie that reproduces its
// stored attributes when replayed into a jar.
func (e Entry) Cookie() *http.Cookie {
	c := &http.Cookie{
		Name:     e.Name,
		Value:    e.Value,
		Path:     e.Path,
		Expires:  e.Expires,
		Secure:   e.Secure,
		HttpOnly: e.HTTPOnly,
	}
	if !e.HostOnly {
		c.Domain = e.Host
	}
	return c
}
