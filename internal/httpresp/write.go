// Package httpresp serializes a response triple (status, headers, body) to
// a wire writer per spec §4.3: status line, headers in insertion order, a
// blank line, then a buffered or chunked body.
package httpresp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/ripta/corehttp/internal/httpenv"
	"github.com/ripta/corehttp/internal/httpstatus"
)

// DefaultChunkSize is the read size used when streaming a chunked body.
const DefaultChunkSize = 4096

// Write serializes resp to w. If resp.Body is a finite, non-empty buffer
// and neither Content-Length nor Transfer-Encoding is already present,
// Content-Length is set. If resp.Body is a stream under the same
// condition, Transfer-Encoding: chunked is set instead. The body stream
// (if any) is closed after the last byte is written.
func Write(w io.Writer, resp httpenv.Response, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	headers := resp.Headers
	_, hasLength := headers.Get("Content-Length")
	_, hasTransferEncoding := headers.Get("Transfer-Encoding")

	if !hasLength && !hasTransferEncoding {
		if resp.Body.IsStream {
			headers = headers.Set("Transfer-Encoding", "chunked")
		} else if len(resp.Body.Buffer) > 0 {
			headers = headers.Set("Content-Length", strconv.Itoa(len(resp.Body.Buffer)))
		}
	}

	bw := bufio.NewWriter(w)

	reason := httpstatus.Reason(resp.Status)
	if _, err := fmt.Fprintf(bw, "HTTP/1.1 %d %s\r\n", resp.Status, reason); err != nil {
		return err
	}
	for _, h := range headers {
		if _, err := fmt.Fprintf(bw, "%s: %s\r\n", h.Name, h.Value); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}

	if resp.Body.IsStream {
		defer resp.Body.Stream.Close()
		chunked := true
		if v, ok := headers.Get("Transfer-Encoding"); !ok || v != "chunked" {
			chunked = false
		}
		if chunked {
			if err := writeChunked(bw, resp.Body.Stream, chunkSize); err != nil {
				return err
			}
		} else {
			buf := make([]byte, chunkSize)
			if _, err := io.CopyBuffer(bw, resp.Body.Stream, buf); err != nil {
				return err
			}
		}
	} else if len(resp.Body.Buffer) > 0 {
		if _, err := bw.Write(resp.Body.Buffer); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// writeChunked copies r to w as HTTP/1.1 chunked transfer-encoding,
// reading chunkSize bytes at a time and terminating with the zero-size
// chunk.
func writeChunked(w *bufio.Writer, r io.Reader, chunkSize int) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := fmt.Fprintf(w, "%x\r\n", n); werr != nil {
				return werr
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if _, werr := w.WriteString("\r\n"); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	_, err := w.WriteString("0\r\n\r\n")
	return err
}
