package middleware

import (
	"github.com/google/uuid"

	"github.com/ripta/corehttp/internal/httpenv"
	"github.com/ripta/corehttp/internal/pipeline"
)

// RequestIDEnvKey is the environment key RequestID stores the generated
// (or propagated) request ID under, for downstream middleware/endpoints
// and for Logging to pick up.
const RequestIDEnvKey = "request.id"

// RequestID returns middleware that assigns each request a UUID (reusing
// an inbound X-Request-Id header if the caller supplied one), stores it in
// the environment under RequestIDEnvKey, and echoes it back on the
// response.
func RequestID() pipeline.Middleware {
	return func(next pipeline.Handler) pipeline.Handler {
		return func(env *httpenv.Env) (httpenv.Response, error) {
			id := env.GetString("HTTP_X_REQUEST_ID")
			if id == "" {
				id = uuid.NewString()
			}
			env.SetString(RequestIDEnvKey, id)

			resp, err := next(env)
			if err != nil {
				return resp, err
			}
			resp.Headers = resp.Headers.Set("X-Request-Id", id)
			return resp, nil
		}
	}
}
