// Package output renders dispatch results for people and machines.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output
//   - JSON: Machine-readable JSON documents, one per dispatch
//
// Both formatters also render run summaries for repeated dispatches and
// individual events for streaming responses.
package output
