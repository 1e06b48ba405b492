package endpointadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ripta/corehttp/internal/httpenv"
)

func TestDemoRouterRoutesByPathParam(t *testing.T) {
	endpoint := DemoRouter()

	env := httpenv.New()
	env.SetString("REQUEST_METHOD", "GET")
	env.SetString("REQUEST_URI", "/widgets/42")

	resp, err := endpoint(env)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Contains(t, string(resp.Body.Buffer), `"id":"42"`)
}

func TestDemoRouterHealthz(t *testing.T) {
	endpoint := DemoRouter()

	env := httpenv.New()
	env.SetString("REQUEST_METHOD", "GET")
	env.SetString("REQUEST_URI", "/healthz")

	resp, err := endpoint(env)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "ok", string(resp.Body.Buffer))
}

func TestDemoRouterUnknownRouteIs404(t *testing.T) {
	endpoint := DemoRouter()

	env := httpenv.New()
	env.SetString("REQUEST_METHOD", "GET")
	env.SetString("REQUEST_URI", "/nope")

	resp, err := endpoint(env)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.Status)
}
