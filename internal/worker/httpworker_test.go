package worker

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ripta/corehttp/internal/httpenv"
	"github.com/ripta/corehttp/internal/middleware"
)

func startTestWorker(t *testing.T, handler func(env *httpenv.Env) (httpenv.Response, error)) (addr string, stop chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := HTTPWorkerConfig{
		InheritedListener: ln,
		Server:            ServerIdentity{Name: "localhost", Port: "0"},
	}
	w := NewHTTPWorker(cfg, handler)
	stop = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(stop)
	}()

	t.Cleanup(func() {
		close(stop)
		<-done
	})

	return ln.Addr().String(), stop
}

func TestHTTPWorkerServesOneRequestPerConnection(t *testing.T) {
	addr, _ := startTestWorker(t, func(env *httpenv.Env) (httpenv.Response, error) {
		assert.Equal(t, "GET", env.GetString("REQUEST_METHOD"))
		assert.Equal(t, "example.com", env.GetString("HTTP_HOST"))
		return httpenv.Response{Status: 200, Body: httpenv.BufferBody([]byte("ok"))}, nil
	})

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestHTTPWorkerParseErrorResponse(t *testing.T) {
	addr, _ := startTestWorker(t, func(env *httpenv.Env) (httpenv.Response, error) {
		t.Fatal("handler should not be invoked on parse error")
		return httpenv.Response{}, nil
	})

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.0\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 505, resp.StatusCode)
	assert.Equal(t, "close", resp.Header.Get("Connection"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "HTTP Version Not Supported", string(body))
}

func TestHTTPWorkerDecodesQueryAndForm(t *testing.T) {
	var gotGet, gotPost map[string][]string
	addr, _ := startTestWorker(t, func(env *httpenv.Env) (httpenv.Response, error) {
		if v, ok := env.Get("adapter.get"); ok {
			gotGet, _ = v.Any.(map[string][]string)
		}
		if v, ok := env.Get("adapter.post"); ok {
			gotPost, _ = v.Any.(map[string][]string)
		}
		return httpenv.Response{Status: 200, Body: httpenv.BufferBody([]byte("ok"))}, nil
	})

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	body := "name=alice&tag=a&tag=b"
	req := "POST /search?q=widgets HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Content-Type: application/x-www-form-urlencoded\r\n" +
		"Content-Length: " + itoa(len(body)) + "\r\n\r\n" + body

	_, err = conn.Write([]byte(req))
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	assert.Equal(t, []string{"widgets"}, gotGet["q"])
	assert.Equal(t, []string{"alice"}, gotPost["name"])
	assert.Equal(t, []string{"a", "b"}, gotPost["tag"])
}

// TestHTTPWorkerValidateJSONAcceptsStreamedBody drives adapter.input through
// the real BuildEnv path (KindStream, not a hand-constructed KindBytes
// value) to confirm ValidateJSON works against what this worker actually
// produces.
func TestHTTPWorkerValidateJSONAcceptsStreamedBody(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
	}

	var seen *payload
	next := func(env *httpenv.Env) (httpenv.Response, error) {
		v, _ := env.Get(middleware.DecodedBodyEnvKey)
		seen = v.Any.(*payload)
		return httpenv.Response{Status: 200, Body: httpenv.BufferBody([]byte("ok"))}, nil
	}
	handler := middleware.ValidateJSON(func() any { return &payload{} })(next)

	addr, _ := startTestWorker(t, handler)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	body := `{"name":"widget"}`
	req := "POST /items HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Content-Type: application/json\r\n" +
		"Content-Length: " + itoa(len(body)) + "\r\n\r\n" + body

	_, err = conn.Write([]byte(req))
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	require.NotNil(t, seen)
	assert.Equal(t, "widget", seen.Name)
}
