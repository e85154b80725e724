package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		reqLog := h.requestLog(r)
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), logCtxKey{}, reqLog)))

		entry := reqLog.WithFields(logrus.Fields{
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start).String(),
		})
		if ww.Status() >= http.StatusInternalServerError {
			entry.Warn("http request")
			return
		}
		entry.Debug("http request")
	})
}

func (h *Handler) requestLog(r *http.Request) *logrus.Entry {
	return h.log.WithFields(logrus.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	})
}

type logCtxKey struct{}

// logFromContext returns the request's log entry, or the standard logger
// outside the router.
func logFromContext(ctx context.Context) logrus.FieldLogger {
	if entry, ok := ctx.Value(logCtxKey{}).(*logrus.Entry); ok {
		return entry
	}
	return logrus.StandardLogger()
}
