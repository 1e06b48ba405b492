package worker

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ripta/corehttp/internal/corerr"
)

// InboundFrame is one parsed message-queue request frame (spec §4.5/§6):
//
//	<uuid> SP <conn_id> SP <path> SP <hlen>:<headers-json>,<blen>:<body>,
type InboundFrame struct {
	UUID    string
	ConnID  string
	Path    string
	Headers map[string]any
	Body    []byte
}

// ParseInboundFrame parses raw per spec §4.5/§6/§9. The Open Question
// around the comma-separator check is resolved as authoritative here: a
// missing comma after either length-prefixed payload aborts the frame.
func ParseInboundFrame(raw []byte) (*InboundFrame, error) {
	s := string(raw)

	firstSpace := strings.IndexByte(s, ' ')
	if firstSpace < 0 {
		return nil, &corerr.FrameError{Reason: "missing uuid separator"}
	}
	uuid := s[:firstSpace]
	rest := s[firstSpace+1:]

	secondSpace := strings.IndexByte(rest, ' ')
	if secondSpace < 0 {
		return nil, &corerr.FrameError{Reason: "missing conn_id separator"}
	}
	connID := rest[:secondSpace]
	rest = rest[secondSpace+1:]

	thirdSpace := strings.IndexByte(rest, ' ')
	if thirdSpace < 0 {
		return nil, &corerr.FrameError{Reason: "missing path separator"}
	}
	path := rest[:thirdSpace]
	rest = rest[thirdSpace+1:]

	headersJSON, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return nil, err
	}
	body, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return nil, err
	}
	_ = rest

	var headers map[string]any
	if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
		return nil, &corerr.FrameError{Reason: "invalid headers json: " + err.Error()}
	}

	return &InboundFrame{
		UUID:    uuid,
		ConnID:  connID,
		Path:    path,
		Headers: headers,
		Body:    []byte(body),
	}, nil
}

// readLengthPrefixed parses one "<n>:<payload>," segment from the front of
// s, returning the payload and the remainder of s after the trailing
// comma. A missing comma is a hard parse error (spec §9 Open Question).
func readLengthPrefixed(s string) (payload string, remainder string, err error) {
	colon := strings.IndexByte(s, ':')
	if colon < 0 {
		return "", "", &corerr.FrameError{Reason: "missing length-prefix colon"}
	}
	n, perr := strconv.Atoi(s[:colon])
	if perr != nil || n < 0 {
		return "", "", &corerr.FrameError{Reason: "invalid length prefix"}
	}
	start := colon + 1
	end := start + n
	if end > len(s) {
		return "", "", &corerr.FrameError{Reason: "length prefix exceeds frame"}
	}
	payload = s[start:end]
	if end >= len(s) || s[end] != ',' {
		return "", "", &corerr.FrameError{Reason: "missing comma separator"}
	}
	remainder = s[end+1:]
	return payload, remainder, nil
}

// BuildOutboundFrame formats the outbound publish frame of spec §4.5/§6:
//
//	<uuid> <conn_id_len>:<conn_id>, <raw-http-response>
func BuildOutboundFrame(uuid, connID string, rawResponse []byte) []byte {
	var b strings.Builder
	b.WriteString(uuid)
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(len(connID)))
	b.WriteByte(':')
	b.WriteString(connID)
	b.WriteString(", ")
	b.Write(rawResponse)
	return []byte(b.String())
}

// EnvFromQueueHeaders builds the HTTP_* / SCRIPT_NAME / PATH_INFO
// environment entries from a queue-adapter frame's decoded headers JSON
// object (spec §6): METHOD, PATH, URI, PATTERN, QUERY, x-forwarded-for are
// recognized; remaining keys become HTTP_* entries.
func EnvFromQueueHeaders(headers map[string]any, path string) map[string]string {
	out := make(map[string]string, len(headers)+3)

	method, _ := headers["METHOD"].(string)
	uri, _ := headers["URI"].(string)
	pattern, _ := headers["PATTERN"].(string)
	query, _ := headers["QUERY"].(string)
	xff, _ := headers["x-forwarded-for"].(string)

	out["REQUEST_METHOD"] = method
	out["REQUEST_URI"] = uri
	out["QUERY_STRING"] = query
	if xff != "" {
		out["HTTP_X_FORWARDED_FOR"] = xff
	}

	scriptName := ""
	if pattern != "/" {
		scriptName = pattern
	}
	out["SCRIPT_NAME"] = scriptName

	trimmed := strings.TrimPrefix(path, pattern)
	trimmed = strings.Trim(trimmed, "/")
	out["PATH_INFO"] = "/" + trimmed

	for k, v := range headers {
		switch k {
		case "METHOD", "PATH", "URI", "PATTERN", "QUERY", "x-forwarded-for":
			continue
		default:
			sv, ok := v.(string)
			if !ok {
				continue
			}
			envKey := "HTTP_" + strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
			out[envKey] = sv
		}
	}

	return out
}
