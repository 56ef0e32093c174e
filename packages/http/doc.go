// Package http implements the restwire request-dispatch pipeline.
//
// It wraps the standard library's http package with additional features:
//   - Transport option building from logical requests plus settings
//   - Authorization scheme dispatch (basic, digest, aws, cognito)
//   - Proxy bypass rules and per-host client certificates
//   - Charset-aware streaming response decode
//   - Early resolution for event-stream responses
package http
