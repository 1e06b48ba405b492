package middleware

import (
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/cors"

	"github.com/ripta/corehttp/internal/httpenv"
	"github.com/ripta/corehttp/internal/pipeline"
)

// CORS returns middleware applying go-chi/cors's preflight and
// simple-request handling, bridged onto the environment/response-triple
// shape via a synthetic net/http request/recorder pair (go-chi/cors
// itself is an http.Handler wrapper — there is no environment-native
// rewrite of its origin/method/header matching worth hand-rolling).
// Grounded on aras-group-co-aras-auth's NewCORSMiddleware.
func CORS(opts cors.Options) pipeline.Middleware {
	wrap := cors.New(opts)

	return func(next pipeline.Handler) pipeline.Handler {
		return func(env *httpenv.Env) (httpenv.Response, error) {
			req := httpRequestFromEnv(env)
			rec := httptest.NewRecorder()

			var (
				resp    httpenv.Response
				nextErr error
				called  bool
			)
			delegate := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				called = true
				resp, nextErr = next(env)
			})
			wrap.Handler(delegate).ServeHTTP(rec, req)

			if !called {
				// go-chi/cors short-circuited (e.g. an OPTIONS preflight).
				return responseFromRecorder(rec), nil
			}
			if nextErr != nil {
				return httpenv.Response{}, nextErr
			}
			for k, v := range rec.Header() {
				if len(v) > 0 {
					resp.Headers = resp.Headers.Set(k, v[0])
				}
			}
			return resp, nil
		}
	}
}

func httpRequestFromEnv(env *httpenv.Env) *http.Request {
	method := env.GetString("REQUEST_METHOD")
	if method == "" {
		method = http.MethodGet
	}
	uri := env.GetString("REQUEST_URI")
	if uri == "" {
		uri = "/"
	}
	req := httptest.NewRequest(method, uri, nil)
	for _, key := range env.Keys() {
		const prefix = "HTTP_"
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		req.Header.Set(envKeyToHeader(key[len(prefix):]), env.GetString(key))
	}
	return req
}

func envKeyToHeader(envKey string) string {
	out := make([]byte, len(envKey))
	upperNext := true
	for i := 0; i < len(envKey); i++ {
		c := envKey[i]
		if c == '_' {
			out[i] = '-'
			upperNext = true
			continue
		}
		if upperNext && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
		upperNext = false
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
