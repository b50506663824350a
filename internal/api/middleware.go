package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// accessLog logs one line per request.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// requireSecret rejects engine callbacks without the shared secret. It is
// a no-op when no secret is configured.
func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := s.opts.InboundSecret
		if want != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Webhook-Secret")), []byte(want)) != 1 {
			zap.L().Warn("webhook rejected: bad secret", zap.String("path", r.URL.Path))
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "invalid webhook secret"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
