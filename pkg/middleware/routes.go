package middleware

import (
	"net/http"
	"strings"

	"civicfix/pkg/response"
)

var routeMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
}

// RouteErrors answers requests mux has no route for with the JSON envelope instead of
// ServeMux's plain text 404 and 405 bodies.
func RouteErrors(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pattern := mux.Handler(r); pattern != "" {
			mux.ServeHTTP(w, r)
			return
		}

		if allowed := allowedMethods(mux, r); len(allowed) > 0 {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", r.Method+" is not supported on "+r.URL.Path)
			return
		}
		response.Error(w, http.StatusNotFound, "Route not found", "")
	})
}

func allowedMethods(mux *http.ServeMux, r *http.Request) []string {
	var allowed []string
	for _, method := range routeMethods {
		if method == r.Method {
			continue
		}
		alt := r.Clone(r.Context())
		alt.Method = method
		if _, pattern := mux.Handler(alt); pattern != "" {
			allowed = append(allowed, method)
		}
	}
	return allowed
}
