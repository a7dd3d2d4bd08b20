package pprof

import (
	"fmt"
	"github.com/gorilla/mux"
	"net/http"
	"net/http/pprof"
)

// ConstructRouter exposes the runtime profiles, it expects to be mounted with
// its prefix stripped.
func ConstructRouter() http.Handler {
	r := mux.NewRouter()

	r.PathPrefix("/cmdline").HandlerFunc(pprof.Cmdline)
	r.PathPrefix("/profile").HandlerFunc(pprof.Profile)
	r.PathPrefix("/symbol").HandlerFunc(pprof.Symbol)
	r.PathPrefix("/trace").HandlerFunc(pprof.Trace)
	r.PathPrefix("/").Handler(http.StripPrefix("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "" {
			r.URL.Path = fmt.Sprintf("/debug/pprof/%s", r.URL.Path)
		}

		pprof.Index(w, r)
	})))

	return r
}
