// Package endpointadapter adapts an ordinary net/http.Handler into a
// pipeline.Handler endpoint, so routers built on the wider Go HTTP
// ecosystem (demonstrated here with go-chi/chi) can terminate a
// corehttp pipeline instead of only a hand-written one (spec §9's
// supplemented "demo endpoint" feature).
package endpointadapter

import (
	"bytes"
	"net/http"
	"net/http/httptest"

	"github.com/ripta/corehttp/internal/httpenv"
)

// FromHTTPHandler wraps h as a pipeline endpoint. It reconstructs a
// net/http.Request from the canonical environment's REQUEST_METHOD,
// REQUEST_URI, and HTTP_* entries, runs h against an httptest recorder,
// and translates the recorded result back into a httpenv.Response.
func FromHTTPHandler(h http.Handler) func(env *httpenv.Env) (httpenv.Response, error) {
	return func(env *httpenv.Env) (httpenv.Response, error) {
		req := requestFromEnv(env)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return responseFromRecorder(rec), nil
	}
}

func requestFromEnv(env *httpenv.Env) *http.Request {
	method := env.GetString("REQUEST_METHOD")
	if method == "" {
		method = http.MethodGet
	}
	uri := env.GetString("REQUEST_URI")
	if uri == "" {
		uri = "/"
	}

	var body *bytes.Reader
	if v, ok := env.Get("adapter.input"); ok && v.Kind == httpenv.KindBytes {
		body = bytes.NewReader(v.Bytes)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, uri, body)
	if cl := env.GetInt("CONTENT_LENGTH"); cl > 0 {
		req.ContentLength = cl
	}
	if ct := env.GetString("CONTENT_TYPE"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	for _, key := range env.Keys() {
		const prefix = "HTTP_"
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		req.Header.Set(headerNameFromEnvKey(key[len(prefix):]), env.GetString(key))
	}
	return req
}

func headerNameFromEnvKey(envKey string) string {
	out := make([]byte, len(envKey))
	for i := 0; i < len(envKey); i++ {
		if envKey[i] == '_' {
			out[i] = '-'
		} else {
			out[i] = envKey[i]
		}
	}
	return string(out)
}

func responseFromRecorder(rec *httptest.ResponseRecorder) httpenv.Response {
	headers := httpenv.Headers{}
	for k, v := range rec.Header() {
		if len(v) > 0 {
			headers = headers.Set(k, v[0])
		}
	}
	return httpenv.Response{
		Status:  rec.Code,
		Headers: headers,
		Body:    httpenv.BufferBody(rec.Body.Bytes()),
	}
}
