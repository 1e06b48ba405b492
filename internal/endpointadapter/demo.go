package endpointadapter

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ripta/corehttp/internal/httpenv"
)

// DemoRouter builds a small go-chi/chi router exercising path parameters
// and method routing, wrapped as a pipeline endpoint by FromHTTPHandler.
// Demonstrates that a pipeline built around the hand-written HTTP/1.1
// parser can still terminate in an ordinary net/http router rather than a
// bespoke one.
func DemoRouter() func(env *httpenv.Env) (httpenv.Response, error) {
	r := chi.NewRouter()

	r.Get("/widgets/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return FromHTTPHandler(r)
}
