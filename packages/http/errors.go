package http

import "fmt"

// ConfigError reports a request that cannot be dispatched as configured,
// such as an unparsable URL. It is raised before any network activity.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration: %s: %v", e.Reason, e.Err)
	}
	return "configuration: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AuthError reports a failure resolving authentication material before the
// request is sent: a cognito token that cannot be obtained, or a signature
// that cannot be computed.
type AuthError struct {
	Scheme string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s: %v", e.Scheme, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NetError reports a connection-level failure from the transport. It is
// never produced for a response that arrived, whatever its status code;
// non-2xx responses are normal results. The pipeline does not retry.
type NetError struct {
	URL string
	Err error
}

func (e *NetError) Error() string {
	return fmt.Sprintf("network: %s: %v", e.URL, e.Err)
}

func (e *NetError) Unwrap() error { return e.Err }
