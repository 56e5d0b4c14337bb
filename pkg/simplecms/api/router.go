// Package api exposes the simple-cms service over JSON HTTP using chi.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/metrics"
)

// Routes returns the API router:
//
//	POST   /accounts                     signup
//	POST   /accounts/authenticate        check credentials
//	GET    /accounts/{account}           account
//	DELETE /accounts/{account}           guarded account deletion
//	POST   /accounts/{account}/api_key   regenerate the API key
//	GET    /accounts/{account}/sites     sites of the account
//	POST   /sites                        create a site with its first admin
//	GET    /sites/{site}                 site
//	GET    /sites/{site}/memberships     memberships of the site
//	POST   /sites/{site}/memberships     add a membership
//	PATCH  /memberships/{membership}     guarded role change
//	DELETE /memberships/{membership}     guarded removal
//	*      /sites/{site}/content_types[/{slug}[/entries[/{entry}]]]
func Routes(service simplecms.Service, logger *slog.Logger) chi.Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Use(CountRequests)

	r.Mount("/accounts", NewAccountHandler(service, logger).Routes())
	r.Mount("/sites", NewSiteHandler(service, logger).Routes())
	r.Mount("/memberships", NewMembershipHandler(service, logger).Routes())

	return r
}

// RequestLogger logs one line per request with slog.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// CountRequests records every request in metrics.HTTPRequestsTotal, labelled
// by route pattern rather than raw path.
func CountRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
