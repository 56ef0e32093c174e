package http

import (
	"context"
	nethttp "net/http"
	"strings"

	"github.com/restwire/restwire/packages/auth/cognito"
)

// DispatchAuth inspects the Authorization header of the (already cloned)
// header map and rewrites it into transport directives or hooks on opts.
// Recognized schemes are consumed: the header is removed and replaced by
// basic credentials, a digest retry hook, an AWS signing hook, or a Cognito
// bearer hook. An unrecognized scheme leaves the header untouched so it
// reaches the wire as an ordinary header.
//
// Cognito resolution performs a token round trip and completes before
// DispatchAuth returns; opts.Body must already be materialized since the
// aws and digest hooks sign over it.
func DispatchAuth(ctx context.Context, headers *HeaderMap, opts *TransportOptions) error {
	value, ok := headers.Lookup("Authorization")
	if !ok {
		return nil
	}

	tokens := strings.Fields(value)
	if len(tokens) == 0 {
		return nil
	}

	switch strings.ToLower(tokens[0]) {
	case "basic":
		user, password, ok := splitCredentials(tokens[1:])
		if !ok {
			// Likely the already-encoded "Basic base64" form; not ours.
			return nil
		}
		headers.Del("Authorization")
		opts.BasicAuth = &BasicAuthCredentials{Username: user, Password: password}

	case "digest":
		user, password, ok := splitCredentials(tokens[1:])
		if !ok {
			return nil
		}
		headers.Del("Authorization")
		opts.AddPostResponseHook(NewDigestAuthHook(user, password, opts.Body))

	case "aws":
		creds, err := ParseAWSParams(tokens[1:])
		if err != nil {
			return &AuthError{Scheme: "aws", Err: err}
		}
		headers.Del("Authorization")
		opts.AddPreRequestHook(NewAWSAuthHook(creds, opts.Body))

	case "cognito":
		config, err := cognito.ParseAuthParams(tokens[1:])
		if err != nil {
			return &AuthError{Scheme: "cognito", Err: err}
		}
		token, err := cognito.NewProvider(config).GetToken(ctx)
		if err != nil {
			return &AuthError{Scheme: "cognito", Err: err}
		}
		headers.Del("Authorization")
		bearer := "Bearer " + token.Bearer()
		opts.AddPreRequestHook(func(ctx context.Context, req *nethttp.Request) error {
			req.Header.Set("Authorization", bearer)
			return nil
		})
	}

	return nil
}

// splitCredentials extracts user/password from the tokens after the scheme:
// either "user password words..." with the password tokens rejoined by
// single spaces, or a single "user:password" token split on the first colon.
func splitCredentials(tokens []string) (user, password string, ok bool) {
	if len(tokens) >= 2 {
		return tokens[0], strings.Join(tokens[1:], " "), true
	}
	if len(tokens) == 1 {
		if user, password, found := strings.Cut(tokens[0], ":"); found {
			return user, password, true
		}
	}
	return "", "", false
}
