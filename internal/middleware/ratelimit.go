package middleware

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/ripta/corehttp/internal/httpenv"
	"github.com/ripta/corehttp/internal/pipeline"
)

// RateLimit returns middleware enforcing a token-bucket limit of rps
// requests per second with the given burst, keyed by REMOTE_ADDR. A
// single shared limiter is used when perClient is false; otherwise each
// distinct remote address gets its own bucket.
func RateLimit(rps float64, burst int, perClient bool) pipeline.Middleware {
	shared := rate.NewLimiter(rate.Limit(rps), burst)
	var mu sync.Mutex
	perKey := map[string]*rate.Limiter{}

	limiterFor := func(key string) *rate.Limiter {
		if !perClient {
			return shared
		}
		mu.Lock()
		defer mu.Unlock()
		l, ok := perKey[key]
		if !ok {
			l = rate.NewLimiter(rate.Limit(rps), burst)
			perKey[key] = l
		}
		return l
	}

	return func(next pipeline.Handler) pipeline.Handler {
		return func(env *httpenv.Env) (httpenv.Response, error) {
			key := env.GetString("REMOTE_ADDR")
			if !limiterFor(key).Allow() {
				return httpenv.Response{
					Status: 429,
					Body:   httpenv.BufferBody([]byte("Too Many Requests")),
				}, nil
			}
			return next(env)
		}
	}
}
