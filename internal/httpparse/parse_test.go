package httpparse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ripta/corehttp/internal/corerr"
)

func asParseError(t *testing.T, err error) *corerr.ParseError {
	t.Helper()
	var pe *corerr.ParseError
	require.ErrorAs(t, err, &pe)
	return pe
}

func TestParseValidRequest(t *testing.T) {
	raw := []byte("GET /foo?bar=baz HTTP/1.1\r\nHost: example.com\r\nX-Custom: value\r\n\r\n")
	res, err := Parse(raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, "GET", res.Method)
	assert.Equal(t, "/foo?bar=baz", res.URI)
	assert.Equal(t, "HTTP/1.1", res.Protocol)

	var gotHost, gotCustom bool
	for _, h := range res.Headers {
		if h.EnvKey == "HTTP_HOST" && h.Value == "example.com" {
			gotHost = true
		}
		if h.EnvKey == "HTTP_X_CUSTOM" && h.Value == "value" {
			gotCustom = true
		}
	}
	assert.True(t, gotHost)
	assert.True(t, gotCustom)
}

func TestParseMethodIsUppercased(t *testing.T) {
	raw := []byte("get / HTTP/1.1\r\nHost: x\r\n\r\n")
	res, err := Parse(raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, "GET", res.Method)
}

func TestParseProtocolVersionNotSupported(t *testing.T) {
	raw := []byte("GET / HTTP/1.0\r\nHost: x\r\n\r\n")
	_, err := Parse(raw, Options{})
	pe := asParseError(t, err)
	assert.Equal(t, 505, pe.Status)
	assert.Equal(t, "HTTP Version Not Supported", pe.Reason)
}

func TestParseUnknownMethod(t *testing.T) {
	raw := []byte("FROB / HTTP/1.1\r\nHost: x\r\n\r\n")
	_, err := Parse(raw, Options{})
	pe := asParseError(t, err)
	assert.Equal(t, 501, pe.Status)
}

func TestParseRequestLineWrongTokenCount(t *testing.T) {
	raw := []byte("GET / HTTP/1.1 extra\r\nHost: x\r\n\r\n")
	_, err := Parse(raw, Options{})
	pe := asParseError(t, err)
	assert.Equal(t, 400, pe.Status)
}

func TestParseHeaderLineMissingColon(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\nHost: x\r\nBadHeaderNoColon\r\n\r\n")
	_, err := Parse(raw, Options{})
	pe := asParseError(t, err)
	assert.Equal(t, 400, pe.Status)
}

func TestParseMissingHostHeader(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\nX-Other: x\r\n\r\n")
	_, err := Parse(raw, Options{})
	pe := asParseError(t, err)
	assert.Equal(t, 400, pe.Status)
}

func TestParseOversizeHeaderBlock(t *testing.T) {
	// 4200 bytes, no terminator.
	raw := []byte("GET / HTTP/1.1\r\nHost: x\r\nX-Pad: " + strings.Repeat("a", 4200))
	_, err := Parse(raw, Options{})
	pe := asParseError(t, err)
	assert.Equal(t, 414, pe.Status)
}

func TestParseContinuationLineAppendsToPreviousHeader(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\nHost: x\r\nX-Multi: firstpart\r\n secondpart\r\n\r\n")
	res, err := Parse(raw, Options{})
	require.NoError(t, err)

	var got string
	for _, h := range res.Headers {
		if h.EnvKey == "HTTP_X_MULTI" {
			got = h.Value
		}
	}
	assert.Equal(t, "firstpartsecondpart", got)
}

func TestParseLeadingContinuationIsDroppedButParsingContinues(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\n leading-continuation\r\nHost: x\r\n\r\n")
	res, err := Parse(raw, Options{})
	require.NoError(t, err)

	var gotHost bool
	for _, h := range res.Headers {
		if h.EnvKey == "HTTP_HOST" {
			gotHost = true
		}
	}
	assert.True(t, gotHost)
	assert.Len(t, res.Headers, 1)
}

func TestParseCustomAllowedMethods(t *testing.T) {
	raw := []byte("PATCH / HTTP/1.1\r\nHost: x\r\n\r\n")
	_, err := Parse(raw, Options{})
	pe := asParseError(t, err)
	assert.Equal(t, 501, pe.Status)

	res, err := Parse(raw, Options{AllowedMethods: map[string]bool{"PATCH": true}})
	require.NoError(t, err)
	assert.Equal(t, "PATCH", res.Method)
}

func TestParseAtMaxHeaderBlockWithTerminatorSucceeds(t *testing.T) {
	// Build a request exactly at the cap, terminated properly.
	base := "GET / HTTP/1.1\r\nHost: x\r\nX-Pad: "
	pad := strings.Repeat("a", MaxHeaderBlock-len(base)-len("\r\n\r\n"))
	raw := []byte(base + pad + "\r\n\r\n")
	require.LessOrEqual(t, len(raw), MaxHeaderBlock)

	_, err := Parse(raw, Options{})
	require.NoError(t, err)
}
