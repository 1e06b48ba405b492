// Package httpenv defines the canonical per-request environment and
// response triple that flow through the pipeline builder (spec §3).
//
// Environment values are heterogeneous by design: string, integer, a byte
// buffer, or a readable stream handle. Rather than collapse them into a
// single stringly-typed map, each value carries an explicit Kind so callers
// can dispatch on it instead of guessing from a type assertion failure.
package httpenv

import "io"

// Kind discriminates the type of value held by a Value.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindBytes
	KindStream
	// KindAny holds an arbitrary Go value (used for adapter.get/adapter.post
	// decoded maps and similar structured extras that do not fit the other
	// four wire-level kinds).
	KindAny
)

// Value is a single tagged environment entry.
type Value struct {
	Kind   Kind
	Str    string
	Int    int64
	Bytes  []byte
	Stream io.ReadCloser
	Any    any
}

// String constructs a string-kind Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Int constructs an integer-kind Value.
func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }

// Bytes constructs a byte-buffer-kind Value.
func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

// Stream constructs a stream-kind Value.
func Stream(r io.ReadCloser) Value { return Value{Kind: KindStream, Stream: r} }

// Any constructs a Value wrapping an arbitrary Go value.
func Any(v any) Value { return Value{Kind: KindAny, Any: v} }

// Env is the canonical request environment: a mapping from string key to
// tagged value, built fresh per request and discarded after response write.
type Env struct {
	values map[string]Value
}

// New returns an empty environment.
func New() *Env {
	return &Env{values: make(map[string]Value)}
}

// Set stores v under key, overwriting any previous value.
func (e *Env) Set(key string, v Value) {
	e.values[key] = v
}

// SetString is a convenience for Set(key, String(s)).
func (e *Env) SetString(key, s string) { e.Set(key, String(s)) }

// SetInt is a convenience for Set(key, Int(i)).
func (e *Env) SetInt(key string, i int64) { e.Set(key, Int(i)) }

// Get returns the value at key and whether it was present.
func (e *Env) Get(key string) (Value, bool) {
	v, ok := e.values[key]
	return v, ok
}

// GetString returns the string-kind value at key, or "" if absent or of a
// different kind.
func (e *Env) GetString(key string) string {
	v, ok := e.values[key]
	if !ok || v.Kind != KindString {
		return ""
	}
	return v.Str
}

// GetInt returns the integer-kind value at key, or 0 if absent or of a
// different kind.
func (e *Env) GetInt(key string) int64 {
	v, ok := e.values[key]
	if !ok || v.Kind != KindInt {
		return 0
	}
	return v.Int
}

// Has reports whether key is present in the environment.
func (e *Env) Has(key string) bool {
	_, ok := e.values[key]
	return ok
}

// Delete removes key from the environment.
func (e *Env) Delete(key string) {
	delete(e.values, key)
}

// Keys returns all keys currently set. Order is unspecified.
func (e *Env) Keys() []string {
	keys := make([]string, 0, len(e.values))
	for k := range e.values {
		keys = append(keys, k)
	}
	return keys
}

// Header holds a single ordered header entry; case of Name is preserved.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered list of header entries, preserving insertion order
// per spec §3's response-triple requirement.
type Headers []Header

// Get returns the first value for name (case-insensitive), or "" if absent.
func (h Headers) Get(name string) (string, bool) {
	for _, kv := range h {
		if equalFold(kv.Name, name) {
			return kv.Value, true
		}
	}
	return "", false
}

// Set appends name:value, or replaces the first existing entry for name
// (case-insensitive) in place.
func (h Headers) Set(name, value string) Headers {
	for i, kv := range h {
		if equalFold(kv.Name, name) {
			h[i].Value = value
			return h
		}
	}
	return append(h, Header{Name: name, Value: value})
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Body is the response body: exactly one of Buffer (finite bytes) or
// Stream (a readable handle) is meaningful, selected by IsStream.
type Body struct {
	IsStream bool
	Buffer   []byte
	Stream   io.ReadCloser
}

// BufferBody wraps a finite byte buffer as a Body.
func BufferBody(b []byte) Body { return Body{Buffer: b} }

// StreamBody wraps a readable stream as a Body.
func StreamBody(r io.ReadCloser) Body { return Body{IsStream: true, Stream: r} }

// Response is the triple a pipeline invocation returns: status code in
// [100,599], ordered headers, and a body.
type Response struct {
	Status  int
	Headers Headers
	Body    Body
}

// Empty reports whether the response is the zero value (used by workers to
// detect "no response produced").
func (r Response) Empty() bool {
	return r.Status == 0 && len(r.Headers) == 0 && !r.Body.IsStream && len(r.Body.Buffer) == 0
}
