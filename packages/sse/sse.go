// Package sse parses Server-Sent Events from event-stream responses. The
// transport is the dispatch pipeline; this package only frames the text
// into events, either from a complete transcript or by following a live
// response.
package sse

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/restwire/restwire/packages/http"
)

// Event is one framed server-sent event.
type Event struct {
	ID   string
	Type string
	Data string

	// Retry is the server-suggested reconnection delay in milliseconds,
	// zero when absent.
	Retry int
}

// Parse frames a complete event-stream transcript.
func Parse(text string) []Event {
	var s Scanner
	events := s.Feed(text)
	return append(events, s.Flush()...)
}

// Scanner frames events incrementally: chunks go in, completed events come
// out. A partial trailing line is carried to the next feed.
type Scanner struct {
	pending   string
	current   Event
	dataLines []string
}

// Feed consumes one chunk and returns the events it completed.
func (s *Scanner) Feed(chunk string) []Event {
	s.pending += chunk

	var events []Event
	for {
		line, rest, found := strings.Cut(s.pending, "\n")
		if !found {
			break
		}
		s.pending = rest
		if event, complete := s.processLine(strings.TrimSuffix(line, "\r")); complete {
			events = append(events, event)
		}
	}
	return events
}

// Flush ends the stream: the carried partial line is processed and an
// unterminated final event is emitted if it holds data.
func (s *Scanner) Flush() []Event {
	var events []Event
	if s.pending != "" {
		line := strings.TrimSuffix(s.pending, "\r")
		s.pending = ""
		if event, complete := s.processLine(line); complete {
			events = append(events, event)
		}
	}
	if len(s.dataLines) > 0 {
		s.current.Data = strings.Join(s.dataLines, "\n")
		events = append(events, s.current)
		s.current = Event{}
		s.dataLines = nil
	}
	return events
}

// processLine folds one line into the event under construction. A blank
// line completes the event, but only when data accumulated; events without
// data are not dispatched.
func (s *Scanner) processLine(line string) (Event, bool) {
	if line == "" {
		if len(s.dataLines) == 0 {
			return Event{}, false
		}
		event := s.current
		event.Data = strings.Join(s.dataLines, "\n")
		s.current = Event{}
		s.dataLines = nil
		return event, true
	}

	if strings.HasPrefix(line, ":") {
		return Event{}, false
	}

	field, value, found := strings.Cut(line, ":")
	if found {
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "event":
		s.current.Type = value
	case "data":
		s.dataLines = append(s.dataLines, value)
	case "id":
		s.current.ID = value
	case "retry":
		if ms, err := strconv.Atoi(value); err == nil {
			s.current.Retry = ms
		}
	}
	return Event{}, false
}

// followInterval is how often Follow samples a live response for new text.
const followInterval = 50 * time.Millisecond

// Follow frames events from a live event-stream response as they arrive,
// calling handler for each. It returns when the stream ends (with its
// terminal error) or when ctx is cancelled. The response body is sampled
// by snapshot, which suits human-scale streams; Follow does not Close the
// response.
func Follow(ctx context.Context, resp *http.Response, handler func(Event)) error {
	var scanner Scanner
	offset := 0

	deliver := func(events []Event) {
		for _, event := range events {
			handler(event)
		}
	}
	drainNew := func() {
		body := resp.Body()
		if len(body) > offset {
			deliver(scanner.Feed(body[offset:]))
			offset = len(body)
		}
	}

	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()

	for {
		drainNew()
		select {
		case <-resp.Done():
			drainNew()
			deliver(scanner.Flush())
			return resp.Err()
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
