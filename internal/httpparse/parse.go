// Package httpparse implements the hand-written HTTP/1.1 request-line and
// header parser described in spec §4.2/§6. It is deliberately not built on
// net/http's own request parsing: the point of this package is the bespoke
// error taxonomy (400/414/501/505) the spec requires, which net/http does
// not produce.
package httpparse

import (
	"strings"

	"github.com/ripta/corehttp/internal/corerr"
)

// MaxHeaderBlock is the hard cap on request-line+header bytes (spec §4.2).
const MaxHeaderBlock = 4128

// terminator marks the end of the header block.
const terminator = "\r\n\r\n"

// DefaultMethods is the default allowed HTTP method set (spec §6),
// overridable via ParseOptions.
var DefaultMethods = map[string]bool{
	"OPTIONS": true,
	"GET":     true,
	"POST":    true,
	"PUT":     true,
	"DELETE":  true,
	"HEAD":    true,
	"TRACE":   true,
	"CONNECT": true,
}

// Result holds the parsed request line and headers, prior to the worker's
// post-parse normalization (Content-Length/Content-Type promotion, query
// and form decoding).
type Result struct {
	Method   string
	URI      string
	Protocol string
	// Headers in received order; header names are normalized to the
	// HTTP_FOO_BAR environment-key form, e.g. "Host" -> "HTTP_HOST".
	Headers []HeaderField
}

// HeaderField is one parsed header line, in environment-key form.
type HeaderField struct {
	EnvKey string
	Value  string
}

// Options configures the parser's allowed method set. A zero Options uses
// DefaultMethods.
type Options struct {
	AllowedMethods map[string]bool
}

// Parse parses raw (which must contain a complete \r\n\r\n-terminated
// header block, or will be rejected for exceeding MaxHeaderBlock) into a
// Result, or returns a *corerr.ParseError carrying the status code from
// spec §4.2's table.
func Parse(raw []byte, opts Options) (*Result, error) {
	allowed := opts.AllowedMethods
	if allowed == nil {
		allowed = DefaultMethods
	}

	idx := indexTerminator(raw)
	if idx < 0 {
		if len(raw) >= MaxHeaderBlock {
			return nil, &corerr.ParseError{Status: 414, Reason: "Request-URI Too Long"}
		}
		return nil, &corerr.ParseError{Status: 400, Reason: "Bad Request"}
	}

	block := raw[:idx]
	lines := strings.Split(string(block), "\r\n")
	if len(lines) == 0 {
		return nil, &corerr.ParseError{Status: 400, Reason: "Bad Request"}
	}

	requestLine := lines[0]
	tokens := strings.Split(requestLine, " ")
	if len(tokens) != 3 {
		return nil, &corerr.ParseError{Status: 400, Reason: "Bad Request"}
	}

	method := strings.ToUpper(tokens[0])
	if !allowed[method] {
		return nil, &corerr.ParseError{Status: 501, Reason: "Not Implemented"}
	}

	protocol := strings.ToUpper(tokens[2])
	if protocol != "HTTP/1.1" {
		return nil, &corerr.ParseError{Status: 505, Reason: "HTTP Version Not Supported"}
	}

	headers, err := parseHeaderLines(lines[1:])
	if err != nil {
		return nil, err
	}

	hasHost := false
	for _, h := range headers {
		if h.EnvKey == "HTTP_HOST" {
			hasHost = true
			break
		}
	}
	if !hasHost {
		return nil, &corerr.ParseError{Status: 400, Reason: "Bad Request"}
	}

	return &Result{
		Method:   method,
		URI:      tokens[1],
		Protocol: protocol,
		Headers:  headers,
	}, nil
}

// parseHeaderLines parses header lines (without the trailing blank line),
// handling colon-split, name normalization, and leading-whitespace
// continuation lines per spec §4.2/§9.
func parseHeaderLines(lines []string) ([]HeaderField, error) {
	var headers []HeaderField
	// haveAny records whether a header line has been parsed yet. A
	// continuation line seen before that has no header to attach to: it
	// is dropped and parsing continues (spec §9 Open Question resolution).
	haveAny := false

	for _, line := range lines {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			cont := strings.TrimLeft(line, " \t")
			if !haveAny {
				// First line is a continuation: drop it and keep
				// parsing.
				continue
			}
			headers[len(headers)-1].Value += cont
			continue
		}

		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return nil, &corerr.ParseError{Status: 400, Reason: "Bad Request"}
		}
		name := line[:colon]
		value := strings.TrimLeft(line[colon+1:], " \t")
		envKey := "HTTP_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))

		headers = append(headers, HeaderField{EnvKey: envKey, Value: value})
		haveAny = true
	}

	return headers, nil
}

// indexTerminator returns the byte offset of the first occurrence of
// "\r\n\r\n" in raw, or -1 if absent.
func indexTerminator(raw []byte) int {
	return strings.Index(string(raw), terminator)
}
