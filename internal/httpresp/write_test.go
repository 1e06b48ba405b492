package httpresp

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ripta/corehttp/internal/httpenv"
)

// sequenceReader returns each byte slice in order from a single Read call
// each, then io.EOF, modeling a stream whose reads arrive in distinct
// chunks (for exercising chunked transfer encoding deterministically).
type sequenceReader struct {
	chunks [][]byte
	i      int
}

func (s *sequenceReader) Read(p []byte) (int, error) {
	if s.i >= len(s.chunks) {
		return 0, io.EOF
	}
	n := copy(p, s.chunks[s.i])
	s.i++
	return n, nil
}

func (s *sequenceReader) Close() error { return nil }

func TestWriteSetsContentLengthForNonEmptyBuffer(t *testing.T) {
	var buf bytes.Buffer
	resp := httpenv.Response{Status: 200, Body: httpenv.BufferBody([]byte("hello"))}
	require.NoError(t, Write(&buf, resp, 0))

	out := buf.String()
	assert.Contains(t, out, "Content-Length: 5\r\n")
	assert.NotContains(t, out, "Transfer-Encoding")
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("hello")))
}

func TestWriteDoesNotOverrideExistingContentLength(t *testing.T) {
	var buf bytes.Buffer
	resp := httpenv.Response{
		Status:  200,
		Headers: httpenv.Headers{}.Set("Content-Length", "999"),
		Body:    httpenv.BufferBody([]byte("hello")),
	}
	require.NoError(t, Write(&buf, resp, 0))
	assert.Contains(t, buf.String(), "Content-Length: 999\r\n")
}

func TestWriteChunkedStream(t *testing.T) {
	var buf bytes.Buffer
	r := &sequenceReader{chunks: [][]byte{[]byte("abc"), []byte("de")}}
	resp := httpenv.Response{Status: 200, Body: httpenv.StreamBody(r)}
	require.NoError(t, Write(&buf, resp, 3))

	out := buf.String()
	idx := bytesIndexAfterHeaders(out)
	body := out[idx:]
	assert.Equal(t, "3\r\nabc\r\n2\r\nde\r\n0\r\n\r\n", body)
	assert.Contains(t, out, "Transfer-Encoding: chunked\r\n")
	assert.NotContains(t, out, "Content-Length")
}

func bytesIndexAfterHeaders(s string) int {
	idx := indexAll(s, "\r\n\r\n")
	return idx + 4
}

func indexAll(s, sep string) int {
	for i := 0; i+len(sep) <= len(s); i++ {
		if s[i:i+len(sep)] == sep {
			return i
		}
	}
	return -1
}

func TestWriteReasonPhraseFromTable(t *testing.T) {
	var buf bytes.Buffer
	resp := httpenv.Response{Status: 404, Body: httpenv.BufferBody(nil)}
	require.NoError(t, Write(&buf, resp, 0))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("HTTP/1.1 404 Not Found\r\n")))
}

func TestWriteUnknownCodeEmptyReason(t *testing.T) {
	var buf bytes.Buffer
	resp := httpenv.Response{Status: 799, Body: httpenv.BufferBody(nil)}
	require.NoError(t, Write(&buf, resp, 0))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("HTTP/1.1 799 \r\n")))
}

func TestWriteRoundTripsThroughStandardLibraryParser(t *testing.T) {
	var buf bytes.Buffer
	resp := httpenv.Response{
		Status:  201,
		Headers: httpenv.Headers{}.Set("X-Custom", "value"),
		Body:    httpenv.BufferBody([]byte("created")),
	}
	require.NoError(t, Write(&buf, resp, 0))

	parsed, err := http.ReadResponse(bufio.NewReader(&buf), nil)
	require.NoError(t, err)
	defer parsed.Body.Close()

	assert.Equal(t, 201, parsed.StatusCode)
	assert.Equal(t, "value", parsed.Header.Get("X-Custom"))

	body, err := io.ReadAll(parsed.Body)
	require.NoError(t, err)
	assert.Equal(t, "created", string(body))
}
