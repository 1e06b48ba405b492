package middleware

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ripta/corehttp/internal/httpenv"
	"github.com/ripta/corehttp/internal/pipeline"
)

// ClaimsEnvKey is the environment key JWTAuth stores the validated claims
// map under.
const ClaimsEnvKey = "auth.claims"

// JWTAuth returns middleware requiring a "Bearer <token>" Authorization
// header, validated with the HMAC secret, and stores the parsed claims in
// the environment for downstream handlers. Grounded on
// aras-group-co-aras-auth's AuthMiddleware.RequireAuth Bearer-prefix
// extraction, generalized from net/http onto the environment.
func JWTAuth(secret []byte) pipeline.Middleware {
	return func(next pipeline.Handler) pipeline.Handler {
		return func(env *httpenv.Env) (httpenv.Response, error) {
			header := env.GetString("HTTP_AUTHORIZATION")
			if !strings.HasPrefix(header, "Bearer ") {
				return unauthorized("authorization header required"), nil
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := jwt.MapClaims{}
			_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenSignatureInvalid
				}
				return secret, nil
			})
			if err != nil {
				return unauthorized("invalid or expired token"), nil
			}

			env.Set(ClaimsEnvKey, httpenv.Any(claims))
			return next(env)
		}
	}
}

func unauthorized(message string) httpenv.Response {
	return httpenv.Response{
		Status: 401,
		Body:   httpenv.BufferBody([]byte(message)),
	}
}
