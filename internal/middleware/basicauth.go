package middleware

import (
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/ripta/corehttp/internal/httpenv"
	"github.com/ripta/corehttp/internal/pipeline"
)

// PasswordLookup resolves a username to its bcrypt hash, reporting
// whether the user exists.
type PasswordLookup func(username string) (hash string, ok bool)

// BasicAuth returns middleware requiring RFC 7617 Basic authentication,
// checked against lookup's bcrypt hashes. Grounded on
// aras-group-co-aras-auth's pkg/password (bcrypt.CompareHashAndPassword).
func BasicAuth(realm string, lookup PasswordLookup) pipeline.Middleware {
	return func(next pipeline.Handler) pipeline.Handler {
		return func(env *httpenv.Env) (httpenv.Response, error) {
			header := env.GetString("HTTP_AUTHORIZATION")
			username, password, ok := parseBasicAuth(header)
			if !ok {
				return challengeResponse(realm), nil
			}

			hash, exists := lookup(username)
			if !exists {
				return challengeResponse(realm), nil
			}
			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
				return challengeResponse(realm), nil
			}

			env.SetString("auth.user", username)
			return next(env)
		}
	}
}

func parseBasicAuth(header string) (username, password string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func challengeResponse(realm string) httpenv.Response {
	return httpenv.Response{
		Status:  401,
		Headers: httpenv.Headers{}.Set("WWW-Authenticate", `Basic realm="`+realm+`"`),
		Body:    httpenv.BufferBody([]byte("Unauthorized")),
	}
}
