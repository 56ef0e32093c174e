// Package cmd implements the restwire CLI commands using Cobra.
//
// Available commands:
//   - send: Dispatch requests from request files or bare URLs
//   - validate: Check request file syntax without sending
//   - list: Display all requests defined in files
//   - diff: Compare two recorded dispatch files
//   - import: Convert curl, OpenAPI, Insomnia and Postman sources
//   - record: Capture live traffic through a reverse proxy
//   - echo: Run a local server that reflects requests
//   - cookies: Inspect and prune the persistent cookie jar
//   - init: Create a starter request file
//   - version: Show restwire version information
//
// The CLI supports flags for output formatting, repeated dispatch with
// latency statistics, and watch mode for development workflows.
package cmd
