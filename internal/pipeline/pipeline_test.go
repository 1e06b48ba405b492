package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ripta/corehttp/internal/corerr"
	"github.com/ripta/corehttp/internal/httpenv"
)

// wrap builds a Middleware that prepends/appends the given strings around
// the successor's output, mirroring spec §8's "TESTDATA" scenarios.
func wrap(before, after string) Middleware {
	return func(next Handler) Handler {
		return func(env *httpenv.Env) (httpenv.Response, error) {
			in := env.GetString("input")
			env.SetString("input", before+in)
			resp, err := next(env)
			if err != nil {
				return resp, err
			}
			resp.Body.Buffer = append(resp.Body.Buffer, []byte(after)...)
			return resp, nil
		}
	}
}

func endpointAppending(suffix string) Handler {
	return func(env *httpenv.Env) (httpenv.Response, error) {
		in := env.GetString("input")
		return httpenv.Response{Status: 200, Body: httpenv.BufferBody([]byte(in + suffix))}, nil
	}
}

func TestEmptyPipelineReturnsEndpointDirectly(t *testing.T) {
	b := New()
	require.NoError(t, b.SetEndpoint(func(env *httpenv.Env) (httpenv.Response, error) {
		return httpenv.Response{Status: 200, Body: httpenv.BufferBody([]byte("R"))}, nil
	}))

	env := httpenv.New()
	env.SetString("input", "X")
	resp, err := b.Invoke(env)
	require.NoError(t, err)
	assert.Equal(t, "R", string(resp.Body.Buffer))
}

func TestTwoMiddlewareOnionOrder(t *testing.T) {
	b := New()
	require.NoError(t, b.Append(wrap("1", "1")))
	require.NoError(t, b.Append(wrap("2", "2")))
	require.NoError(t, b.SetEndpoint(endpointAppending("HANDLED")))

	env := httpenv.New()
	env.SetString("input", "TESTDATA")
	resp, err := b.Invoke(env)
	require.NoError(t, err)
	assert.Equal(t, "21TESTDATAHANDLED21", string(resp.Body.Buffer))
}

func TestPrependInsertsNewOutermostLayer(t *testing.T) {
	b := New()
	require.NoError(t, b.Append(wrap("1", "1")))
	require.NoError(t, b.Prepend(wrap("2", "2")))
	require.NoError(t, b.SetEndpoint(endpointAppending("HANDLED")))

	env := httpenv.New()
	env.SetString("input", "TESTDATA")
	resp, err := b.Invoke(env)
	require.NoError(t, err)
	assert.Equal(t, "12TESTDATAHANDLED12", string(resp.Body.Buffer))
}

func TestNoEndpointFails(t *testing.T) {
	b := New()
	_, err := b.Invoke(httpenv.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, corerr.ErrNoEndpoint))
}

func TestAppendRejectsNilMiddleware(t *testing.T) {
	b := New()
	err := b.Append(nil)
	assert.True(t, errors.Is(err, corerr.ErrInvalidArgument))
}

func TestSetEndpointRejectsNilHandler(t *testing.T) {
	b := New()
	err := b.SetEndpoint(nil)
	assert.True(t, errors.Is(err, corerr.ErrInvalidArgument))
}

func TestNewFromListEquivalentToManualConstruction(t *testing.T) {
	mws := []Middleware{wrap("1", "1"), wrap("2", "2")}
	b := NewFromList(mws, endpointAppending("HANDLED"))

	env := httpenv.New()
	env.SetString("input", "TESTDATA")
	resp, err := b.Invoke(env)
	require.NoError(t, err)
	assert.Equal(t, "21TESTDATAHANDLED21", string(resp.Body.Buffer))
}

func TestBuildCachesUntilMutated(t *testing.T) {
	b := New()
	var calls int
	require.NoError(t, b.Append(func(next Handler) Handler {
		calls++
		return next
	}))
	require.NoError(t, b.SetEndpoint(endpointAppending("")))

	_, err := b.Build()
	require.NoError(t, err)
	_, err = b.Build()
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "Build should not re-bind when nothing changed")

	require.NoError(t, b.Append(wrap("", "")))
	_, err = b.Build()
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "Build must re-bind after the middleware list changes")
}

func TestMiddlewareSeesSuccessorsFullResponseBeforeReturning(t *testing.T) {
	b := New()
	var seenBeforeReturn string
	require.NoError(t, b.Append(func(next Handler) Handler {
		return func(env *httpenv.Env) (httpenv.Response, error) {
			resp, err := next(env)
			seenBeforeReturn = string(resp.Body.Buffer)
			return resp, err
		}
	}))
	require.NoError(t, b.SetEndpoint(endpointAppending("END")))

	env := httpenv.New()
	env.SetString("input", "X")
	_, err := b.Invoke(env)
	require.NoError(t, err)
	assert.Equal(t, "XEND", seenBeforeReturn)
}
