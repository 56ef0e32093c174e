package http

import "io"

// Request is a logical HTTP request, as authored. The dispatch pipeline
// treats it as read-only: headers are cloned before any rewriting, so a
// Request can be reused for later sends by the caller.
type Request struct {
	Method  string
	URL     string
	Headers *HeaderMap

	// Body is a literal body. BodyReader, when non-nil, takes precedence and
	// is read fully into memory before the request is issued; there is no
	// streaming upload.
	Body       string
	BodyReader io.Reader

	// RawBody preserves the body bytes exactly as authored, before any
	// templating or materialization the caller may have applied.
	RawBody []byte

	// Name is a human-readable label for the request, used in logs and
	// reporting. Optional.
	Name string

	// Dir is the directory of the file that declared this request, used to
	// resolve relative certificate paths. Empty for ad-hoc requests.
	Dir string
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:  method,
		URL:     requestURL,
		Headers: NewHeaderMap(),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers.Set(key, value)
	return r
}

func (r *Request) SetBody(body string) *Request {
	r.Body = body
	r.RawBody = []byte(body)
	return r
}

func (r *Request) SetBodyReader(src io.Reader) *Request {
	r.BodyReader = src
	return r
}

func (r *Request) SetName(name string) *Request {
	r.Name = name
	return r
}

func (r *Request) SetDir(dir string) *Request {
	r.Dir = dir
	return r
}
