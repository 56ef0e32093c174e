package cookies

import (
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "cookies.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestSQLiteStore_SetAndGet(t *testing.T) {
	store := openTestStore(t)
	u := mustURL(t, "https://api.example.com/users")

	err := store.Set(u, &http.Cookie{Name: "session", Value: "abc123", Path: "/"})
	require.NoError(t, err)

	got, err := store.Get(u)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "session", got[0].Name)
	assert.Equal(t, "abc123", got[0].Value)
}

func TestSQLiteStore_UpsertReplacesValue(t *testing.T) {
	store := openTestStore(t)
	u := mustURL(t, "https://api.example.com/")

	require.NoError(t, store.Set(u, &http.Cookie{Name: "session", Value: "old"}))
	require.NoError(t, store.Set(u, &http.Cookie{Name: "session", Value: "new"}))

	got, err := store.Get(u)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Value)
}

func TestSQLiteStore_DomainCookieVisibleToSubdomain(t *testing.T) {
	store := openTestStore(t)

	parent := mustURL(t, "https://example.com/")
	require.NoError(t, store.Set(parent, &http.Cookie{
		Name:   "tenant",
		Value:  "acme",
		Domain: ".example.com",
	}))

	got, err := store.Get(mustURL(t, "https://api.example.com/"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tenant", got[0].Name)
	assert.Equal(t, "example.com", got[0].Domain, "domain rows replay with their domain attribute")

	// A host-only cookie on the parent must not leak to the subdomain.
	require.NoError(t, store.Set(parent, &http.Cookie{Name: "local", Value: "1"}))
	got, err = store.Get(mustURL(t, "https://api.example.com/"))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteStore_ExpiredCookiesDropped(t *testing.T) {
	store := openTestStore(t)
	u := mustURL(t, "https://api.example.com/")

	require.NoError(t, store.Set(u, &http.Cookie{
		Name:    "gone",
		Value:   "x",
		Expires: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, store.Set(u, &http.Cookie{
		Name:    "kept",
		Value:   "y",
		Expires: time.Now().Add(time.Hour),
	}))

	got, err := store.Get(u)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].Name)
}

func TestSQLiteStore_NegativeMaxAgeDeletes(t *testing.T) {
	store := openTestStore(t)
	u := mustURL(t, "https://api.example.com/")

	require.NoError(t, store.Set(u, &http.Cookie{Name: "session", Value: "abc"}))
	require.NoError(t, store.Set(u, &http.Cookie{Name: "session", MaxAge: -1}))

	got, err := store.Get(u)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStore_Clear(t *testing.T) {
	store := openTestStore(t)
	u := mustURL(t, "https://api.example.com/")

	require.NoError(t, store.Set(u, &http.Cookie{Name: "a", Value: "1"}))
	require.NoError(t, store.Set(u, &http.Cookie{Name: "b", Value: "2"}))
	require.NoError(t, store.Clear())

	got, err := store.Get(u)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.db")
	u := mustURL(t, "https://api.example.com/")

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(u, &http.Cookie{Name: "session", Value: "abc123"}))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(u)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "abc123", got[0].Value)
}

func TestSQLiteStore_All(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Set(mustURL(t, "https://b.example.com/"), &http.Cookie{Name: "z", Value: "1"}))
	require.NoError(t, store.Set(mustURL(t, "https://a.example.com/"), &http.Cookie{Name: "s", Value: "2", Secure: true, HttpOnly: true}))

	entries, err := store.All()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.example.com", entries[0].Host)
	assert.True(t, entries[0].Secure)
	assert.True(t, entries[0].HTTPOnly)
	assert.True(t, entries[0].HostOnly)
	assert.Equal(t, "b.example.com", entries[1].Host)
}
