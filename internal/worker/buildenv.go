// Package worker implements the two concrete workers of spec §4.4/§4.5: an
// HTTP socket worker and a message-queue worker, both built on the same
// environment-normalization and pipeline-dispatch logic.
package worker

import (
	"bytes"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/ripta/corehttp/internal/httpenv"
	"github.com/ripta/corehttp/internal/httpparse"
)

// AdapterVersion/AdapterName self-describe this worker in the environment
// (spec §3 "adapter.version", "adapter.name").
const (
	AdapterVersion = "1.0"
	AdapterName    = "corehttp"
)

// ServerIdentity carries the per-process configuration values copied into
// every request environment (spec §3 SERVER_NAME/SERVER_PORT).
type ServerIdentity struct {
	Name string
	Port string
}

// PeerAddr carries the remote endpoint of one request (spec §3
// REMOTE_ADDR/REMOTE_PORT).
type PeerAddr struct {
	Addr string
	Port string
}

// BuildEnv builds the canonical request environment from a parsed request
// line/headers, performing the worker-side post-parse normalization of
// spec §4.2: Content-Length/Content-Type promotion, query-string decoding
// into adapter.get, and (for urlencoded bodies) form decoding into
// adapter.post. input is the connection's body stream positioned at the
// body's first byte; BuildEnv may consume and replace it with an
// equivalent stream if it must read ahead to decode a urlencoded body.
// When Content-Length is present, the stream ends after that many bytes.
func BuildEnv(parsed *httpparse.Result, server ServerIdentity, peer PeerAddr, input io.ReadCloser) (*httpenv.Env, error) {
	env := httpenv.New()

	env.SetString("REQUEST_METHOD", parsed.Method)
	env.SetString("REQUEST_URI", parsed.URI)

	path, query := splitPathQuery(parsed.URI)
	env.SetString("PATH_INFO", path)
	env.SetString("QUERY_STRING", query)

	env.SetString("SERVER_NAME", server.Name)
	env.SetString("SERVER_PORT", server.Port)
	env.SetString("REMOTE_ADDR", peer.Addr)
	env.SetString("REMOTE_PORT", peer.Port)
	env.SetString("HTTP_VERSION", "HTTP/1.1")

	env.SetString("adapter.version", AdapterVersion)
	env.SetString("adapter.name", AdapterName)
	env.SetString("adapter.url_scheme", "http")

	var contentLength int64
	var hasContentLength bool
	var contentType string

	for _, h := range parsed.Headers {
		switch h.EnvKey {
		case "HTTP_CONTENT_LENGTH":
			n, err := strconv.ParseInt(strings.TrimSpace(h.Value), 10, 64)
			if err == nil {
				contentLength = n
				hasContentLength = true
			}
			env.SetInt("CONTENT_LENGTH", n)
		case "HTTP_CONTENT_TYPE":
			contentType = h.Value
			env.SetString("CONTENT_TYPE", contentType)
		default:
			env.SetString(h.EnvKey, h.Value)
		}
	}

	if qs := env.GetString("QUERY_STRING"); qs != "" {
		env.Set("adapter.get", httpenv.Any(decodeForm(qs)))
	}

	if input != nil && hasContentLength {
		input = struct {
			io.Reader
			io.Closer
		}{io.LimitReader(input, contentLength), input}
	}

	if input != nil && hasContentLength && strings.HasPrefix(strings.ToLower(contentType), "application/x-www-form-urlencoded") {
		body, restored, err := peekBody(input, contentLength)
		if err != nil {
			return nil, err
		}
		env.Set("adapter.post", httpenv.Any(decodeForm(string(body))))
		input = restored
	}

	if input != nil {
		env.Set("adapter.input", httpenv.Stream(input))
	}

	return env, nil
}

// splitPathQuery splits a request target into its path and raw query
// components; the path is returned undecoded, as permitted by spec §3.
func splitPathQuery(uri string) (path, query string) {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i], uri[i+1:]
	}
	return uri, ""
}

// decodeForm percent-decodes a "k=v&k=v" body into a mapping from each key
// to its values, keeping a repeated key's values as a list in the order
// they appear (spec §4.2).
func decodeForm(raw string) map[string][]string {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return map[string][]string{}
	}
	return map[string][]string(values)
}

// peekBody reads up to n bytes from input for form decoding while
// preserving the stream for any subsequent read: the consumed prefix is
// glued back in front of whatever remains of input.
func peekBody(input io.ReadCloser, n int64) ([]byte, io.ReadCloser, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(input, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, nil, err
	}
	buf = buf[:read]

	restored := &restoredStream{
		reader: io.MultiReader(bytes.NewReader(buf), input),
		closer: input,
	}
	return buf, restored, nil
}

// restoredStream glues a read-ahead prefix back onto the remainder of the
// original stream so the body can still be consumed from its first byte.
type restoredStream struct {
	reader io.Reader
	closer io.Closer
}

func (r *restoredStream) Read(p []byte) (int, error) { return r.reader.Read(p) }
func (r *restoredStream) Close() error               { return r.closer.Close() }
