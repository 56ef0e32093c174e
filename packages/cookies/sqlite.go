package cookies

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS cookies (
	host      TEXT NOT NULL,
	host_only INTEGER NOT NULL DEFAULT 1,
	name      TEXT NOT NULL,
	value     TEXT NOT NULL,
	path      TEXT NOT NULL DEFAULT '/',
	expires   INTEGER NOT NULL DEFAULT 0,
	secure    INTEGER NOT NULL DEFAULT 0,
	http_only INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (host, path, name)
)`

// SQLiteStore persists cookies in a single SQLite file so sessions survive
// across invocations of the tool.
type SQLiteStore struct {
	db           *sql.DB
	path         string
	queryTimeout time.Duration
}

// OpenSQLite opens (creating if needed) the cookie store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie store: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open cookie store: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize cookie store: %w", err)
	}

	return &SQLiteStore{
		db:           db,
		path:         path,
		queryTimeout: 5 * time.Second,
	}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns the stored cookies applicable to u's host: exact-host rows
// plus domain rows for any parent domain. Expired rows are skipped; path,
// secure and domain-match filtering is left to the consuming jar, which
// receives the attributes via Entry.Cookie.
func (s *SQLiteStore) Get(u *url.URL) ([]*http.Cookie, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.queryTimeout)
	defer cancel()

	host := strings.ToLower(u.Hostname())
	rows, err := s.db.QueryContext(ctx, `
		SELECT host, host_only, name, value, path, expires, secure, http_only
		FROM cookies
		WHERE (host = ? OR (host_only = 0 AND ? LIKE '%.' || host))
		  AND (expires = 0 OR expires > ?)`,
		host, host, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("cookie query failed: %w", err)
	}
	defer rows.Close()

	var cookies []*http.Cookie
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		cookies = append(cookies, entry.Cookie())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cookie row iteration error: %w", err)
	}
	return cookies, nil
}

// Set persists cookies as received for u. Domain attributes widen the row
// key to the declared domain; otherwise the row is host-only.
func (s *SQLiteStore) Set(u *url.URL, cookies ...*http.Cookie) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.queryTimeout)
	defer cancel()

	now := time.Now()
	for _, c := range cookies {
		host := strings.ToLower(strings.TrimPrefix(c.Domain, "."))
		hostOnly := false
		if host == "" {
			host = strings.ToLower(u.Hostname())
			hostOnly = true
		}
		path := c.Path
		if path == "" {
			path = "/"
		}

		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) {
			if _, err := s.db.ExecContext(ctx,
				`DELETE FROM cookies WHERE host = ? AND path = ? AND name = ?`,
				host, path, c.Name); err != nil {
				return fmt.Errorf("cookie delete failed: %w", err)
			}
			continue
		}

		var expires int64
		switch {
		case c.MaxAge > 0:
			expires = now.Add(time.Duration(c.MaxAge) * time.Second).Unix()
		case !c.Expires.IsZero():
			expires = c.Expires.Unix()
		}

		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO cookies (host, host_only, name, value, path, expires, secure, http_only)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (host, path, name) DO UPDATE SET
				host_only = excluded.host_only,
				value     = excluded.value,
				expires   = excluded.expires,
				secure    = excluded.secure,
				http_only = excluded.http_only`,
			host, boolInt(hostOnly), c.Name, c.Value, path, expires,
			boolInt(c.Secure), boolInt(c.HttpOnly)); err != nil {
			return fmt.Errorf("cookie upsert failed: %w", err)
		}
	}
	return nil
}

// Clear removes every stored cookie.
func (s *SQLiteStore) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.queryTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM cookies`); err != nil {
		return fmt.Errorf("cookie clear failed: %w", err)
	}
	return nil
}

// All returns every non-expired entry, ordered by host then name. Used by
// the CLI to list the jar's contents.
func (s *SQLiteStore) All() ([]Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT host, host_only, name, value, path, expires, secure, http_only
		FROM cookies
		WHERE expires = 0 OR expires > ?
		ORDER BY host, name`,
		time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("cookie query failed: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cookie row iteration error: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		entry                      Entry
		hostOnly, secure, httpOnly int
		expires                    int64
	)
	if err := rows.Scan(&entry.Host, &hostOnly, &entry.Name, &entry.Value,
		&entry.Path, &expires, &secure, &httpOnly); err != nil {
		return Entry{}, fmt.Errorf("failed to scan cookie row: %w", err)
	}
	entry.HostOnly = hostOnly != 0
	entry.Secure = secure != 0
	entry.HTTPOnly = httpOnly != 0
	if expires != 0 {
		entry.Expires = time.Unix(expires, 0)
	}
	return entry, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
