package http

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
)

// DigestAuth contains the parameters needed for digest authentication
type DigestAuth struct {
	Username string
	Password string
	Realm    string
	Nonce    string
	URI      string
	Qop      string
	Nc       string
	Cnonce   string
	Opaque   string
	Method   string

	// Body is the request entity, hashed into HA2 for qop=auth-int.
	Body []byte
}

// NewDigestAuthHook returns a post-response hook implementing the digest
// challenge flow: on a 401 carrying a digest challenge, it computes the
// response and reissues the request once with the Authorization header set.
// Any other response, and the response to the retry itself, is left alone.
func NewDigestAuthHook(username, password string, body []byte) PostResponseHook {
	attempted := false
	return func(ctx context.Context, resp *nethttp.Response, req *nethttp.Request) (*nethttp.Request, error) {
		if attempted || resp.StatusCode != nethttp.StatusUnauthorized {
			return nil, nil
		}
		challenge := resp.Header.Get("WWW-Authenticate")
		if !strings.HasPrefix(strings.ToLower(challenge), "digest") {
			return nil, nil
		}
		attempted = true

		params := ParseWWWAuthenticate(challenge)
		auth := &DigestAuth{
			Username: username,
			Password: password,
			Realm:    params["realm"],
			Nonce:    params["nonce"],
			URI:      req.URL.RequestURI(),
			Qop:      selectQop(params["qop"]),
			Opaque:   params["opaque"],
			Method:   req.Method,
			Body:     body,
		}

		if auth.Qop != "" {
			auth.Nc = "00000001"
			cnonce, err := GenerateCnonce()
			if err != nil {
				return nil, err
			}
			auth.Cnonce = cnonce
		}

		retry := req.Clone(ctx)
		if retry.GetBody != nil {
			restored, err := retry.GetBody()
			if err != nil {
				return nil, err
			}
			retry.Body = restored
		}
		retry.Header.Set("Authorization", auth.BuildAuthorizationHeader())
		return retry, nil
	}
}

// selectQop picks the quality-of-protection directive from the server's
// offered list, preferring "auth" over "auth-int".
func selectQop(offered string) string {
	var hasAuth, hasAuthInt bool
	for _, qop := range strings.Split(offered, ",") {
		switch strings.TrimSpace(qop) {
		case "auth":
			hasAuth = true
		case "auth-int":
			hasAuthInt = true
		}
	}
	switch {
	case hasAuth:
		return "auth"
	case hasAuthInt:
		return "auth-int"
	}
	return ""
}

// ParseWWWAuthenticate parses the WWW-Authenticate header from a 401
// response into its key/value directives. Quoted values may contain commas,
// so splitting is quote-aware.
func ParseWWWAuthenticate(header string) map[string]string {
	result := make(map[string]string)

	if idx := strings.IndexByte(header, ' '); idx != -1 &&
		strings.EqualFold(header[:idx], "Digest") {
		header = header[idx+1:]
	}

	for _, part := range splitChallenge(header) {
		part = strings.TrimSpace(part)
		if idx := strings.Index(part, "="); idx != -1 {
			key := strings.TrimSpace(part[:idx])
			value := strings.TrimSpace(part[idx+1:])
			// Remove quotes if present
			value = strings.Trim(value, `"`)
			result[key] = value
		}
	}

	return result
}

// splitChallenge splits on commas that sit outside quoted strings.
func splitChallenge(header string) []string {
	var parts []string
	var start int
	inQuotes := false
	for i := 0; i < len(header); i++ {
		switch header[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				parts = append(parts, header[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, header[start:])
}

// ComputeDigestResponse calculates the digest response hash
func (d *DigestAuth) ComputeDigestResponse() string {
	// HA1 = MD5(username:realm:password)
	ha1 := md5Hash(fmt.Sprintf("%s:%s:%s", d.Username, d.Realm, d.Password))

	// HA2 = MD5(method:uri), with the entity hash appended for auth-int
	var ha2 string
	if d.Qop == "auth-int" {
		ha2 = md5Hash(fmt.Sprintf("%s:%s:%s", d.Method, d.URI, md5Hash(string(d.Body))))
	} else {
		ha2 = md5Hash(fmt.Sprintf("%s:%s", d.Method, d.URI))
	}

	// Response calculation depends on qop
	if d.Qop == "auth" || d.Qop == "auth-int" {
		// response = MD5(HA1:nonce:nc:cnonce:qop:HA2)
		return md5Hash(fmt.Sprintf("%s:%s:%s:%s:%s:%s", ha1, d.Nonce, d.Nc, d.Cnonce, d.Qop, ha2))
	}
	// response = MD5(HA1:nonce:HA2)
	return md5Hash(fmt.Sprintf("%s:%s:%s", ha1, d.Nonce, ha2))
}

// BuildAuthorizationHeader creates the Authorization header value
func (d *DigestAuth) BuildAuthorizationHeader() string {
	response := d.ComputeDigestResponse()

	parts := []string{
		fmt.Sprintf(`username="%s"`, d.Username),
		fmt.Sprintf(`realm="%s"`, d.Realm),
		fmt.Sprintf(`nonce="%s"`, d.Nonce),
		fmt.Sprintf(`uri="%s"`, d.URI),
		fmt.Sprintf(`response="%s"`, response),
	}

	if d.Qop != "" {
		parts = append(parts, fmt.Sprintf(`qop=%s`, d.Qop))
		parts = append(parts, fmt.Sprintf(`nc=%s`, d.Nc))
		parts = append(parts, fmt.Sprintf(`cnonce="%s"`, d.Cnonce))
	}

	if d.Opaque != "" {
		parts = append(parts, fmt.Sprintf(`opaque="%s"`, d.Opaque))
	}

	return "Digest " + strings.Join(parts, ", ")
}

// GenerateCnonce generates a random client nonce
func GenerateCnonce() (string, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func md5Hash(s string) string {
	h := md5.New()
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}
