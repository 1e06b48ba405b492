package middleware

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ripta/corehttp/internal/httpenv"
	"github.com/ripta/corehttp/internal/pipeline"
)

func okHandler(body string) pipeline.Handler {
	return func(env *httpenv.Env) (httpenv.Response, error) {
		return httpenv.Response{Status: 200, Body: httpenv.BufferBody([]byte(body))}, nil
	}
}

func TestRequestIDGeneratesAndEchoes(t *testing.T) {
	h := RequestID()(okHandler("ok"))
	env := httpenv.New()

	resp, err := h(env)
	require.NoError(t, err)

	id, ok := resp.Headers.Get("X-Request-Id")
	require.True(t, ok)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, env.GetString(RequestIDEnvKey))
}

func TestRequestIDPropagatesInboundHeader(t *testing.T) {
	h := RequestID()(okHandler("ok"))
	env := httpenv.New()
	env.SetString("HTTP_X_REQUEST_ID", "trace-123")

	resp, err := h(env)
	require.NoError(t, err)
	id, _ := resp.Headers.Get("X-Request-Id")
	assert.Equal(t, "trace-123", id)
}

func TestRateLimitRejectsOverBurst(t *testing.T) {
	h := RateLimit(1, 1, false)(okHandler("ok"))
	env := httpenv.New()
	env.SetString("REMOTE_ADDR", "10.0.0.1")

	first, err := h(env)
	require.NoError(t, err)
	assert.Equal(t, 200, first.Status)

	second, err := h(env)
	require.NoError(t, err)
	assert.Equal(t, 429, second.Status)
}

func TestRateLimitPerClientIsolatesBuckets(t *testing.T) {
	h := RateLimit(1, 1, true)(okHandler("ok"))

	envA := httpenv.New()
	envA.SetString("REMOTE_ADDR", "10.0.0.1")
	envB := httpenv.New()
	envB.SetString("REMOTE_ADDR", "10.0.0.2")

	respA, err := h(envA)
	require.NoError(t, err)
	assert.Equal(t, 200, respA.Status)

	respB, err := h(envB)
	require.NoError(t, err)
	assert.Equal(t, 200, respB.Status, "distinct client should have its own bucket")
}

func TestBasicAuthRejectsMissingHeader(t *testing.T) {
	h := BasicAuth("corehttp", func(string) (string, bool) { return "", false })(okHandler("ok"))
	resp, err := h(httpenv.New())
	require.NoError(t, err)
	assert.Equal(t, 401, resp.Status)
}

func TestBasicAuthAcceptsValidCredentials(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("swordfish"), bcrypt.MinCost)
	require.NoError(t, err)

	lookup := func(user string) (string, bool) {
		if user == "alice" {
			return string(hash), true
		}
		return "", false
	}
	h := BasicAuth("corehttp", lookup)(okHandler("ok"))

	env := httpenv.New()
	env.SetString("HTTP_AUTHORIZATION", "Basic "+basicAuthHeader("alice", "swordfish"))

	resp, err := h(env)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "alice", env.GetString("auth.user"))
}

func TestJWTAuthRejectsMissingBearer(t *testing.T) {
	h := JWTAuth([]byte("secret"))(okHandler("ok"))
	resp, err := h(httpenv.New())
	require.NoError(t, err)
	assert.Equal(t, 401, resp.Status)
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	secret := []byte("test-secret")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	h := JWTAuth(secret)(okHandler("ok"))
	env := httpenv.New()
	env.SetString("HTTP_AUTHORIZATION", "Bearer "+signed)

	resp, err := h(env)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.True(t, env.Has(ClaimsEnvKey))
}

func TestValidateJSONRejectsMalformedBody(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
	}
	h := ValidateJSON(func() any { return &payload{} })(okHandler("ok"))

	env := httpenv.New()
	env.Set("adapter.input", httpenv.Bytes([]byte("not json")))

	resp, err := h(env)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.Status)
}

func TestValidateJSONRejectsMissingRequiredField(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
	}
	h := ValidateJSON(func() any { return &payload{} })(okHandler("ok"))

	env := httpenv.New()
	env.Set("adapter.input", httpenv.Bytes([]byte(`{}`)))

	resp, err := h(env)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.Status)
}

func TestValidateJSONAcceptsValidBody(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
	}
	var seen *payload
	next := func(env *httpenv.Env) (httpenv.Response, error) {
		v, _ := env.Get(DecodedBodyEnvKey)
		seen = v.Any.(*payload)
		return httpenv.Response{Status: 200}, nil
	}
	h := ValidateJSON(func() any { return &payload{} })(next)

	env := httpenv.New()
	env.Set("adapter.input", httpenv.Bytes([]byte(`{"name":"widget"}`)))

	resp, err := h(env)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	require.NotNil(t, seen)
	assert.Equal(t, "widget", seen.Name)
}

func TestCORSSetsHeadersOnSimpleRequest(t *testing.T) {
	h := CORS(cors.Options{
		AllowedOrigins: []string{"https://example.com"},
	})(okHandler("ok"))

	env := httpenv.New()
	env.SetString("REQUEST_METHOD", "GET")
	env.SetString("REQUEST_URI", "/widgets")
	env.SetString("HTTP_ORIGIN", "https://example.com")

	resp, err := h(env)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	origin, ok := resp.Headers.Get("Access-Control-Allow-Origin")
	require.True(t, ok)
	assert.Equal(t, "https://example.com", origin)
}

func TestCORSHandlesPreflightWithoutCallingNext(t *testing.T) {
	called := false
	next := func(env *httpenv.Env) (httpenv.Response, error) {
		called = true
		return httpenv.Response{Status: 200}, nil
	}
	h := CORS(cors.Options{
		AllowedOrigins: []string{"https://example.com"},
		AllowedMethods: []string{"GET", "POST"},
	})(next)

	env := httpenv.New()
	env.SetString("REQUEST_METHOD", "OPTIONS")
	env.SetString("REQUEST_URI", "/widgets")
	env.SetString("HTTP_ORIGIN", "https://example.com")
	env.SetString("HTTP_ACCESS_CONTROL_REQUEST_METHOD", "POST")

	resp, err := h(env)
	require.NoError(t, err)
	assert.False(t, called, "preflight should be answered by go-chi/cors without invoking next")
	assert.Equal(t, 200, resp.Status)
}

func basicAuthHeader(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}
