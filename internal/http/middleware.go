package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"keyscan/pkg/metrics"
)

const opIDHeader = "X-Op-Id"

// instrument замеряет каждый запрос: op_id в заголовке и логе,
// длительность в лог и в гистограмму по шаблону маршрута.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		opID := r.Header.Get(opIDHeader)
		if opID == "" {
			opID = uuid.NewString()
		}
		w.Header().Set(opIDHeader, opID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		labels := map[string]string{"method": r.Method, "route": route}
		s.metrics.ObserveHistogram(metrics.HTTPRequestSeconds, labels, elapsed.Seconds())
		s.metrics.IncCounter(metrics.HTTPRequests, map[string]string{
			"method": r.Method,
			"route":  route,
			"code":   strconv.Itoa(status),
		}, 1)

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		slog.Log(r.Context(), level, "request",
			"op_id", opID,
			"method", r.Method,
			"route", route,
			"query", r.URL.RawQuery,
			"status", status,
			"duration", elapsed,
		)
	})
}
