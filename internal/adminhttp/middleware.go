package adminhttp

import (
	"context"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

func zerologCtx(ctx context.Context) *zerolog.Logger { return zerolog.Ctx(ctx) }

func (s *Server) buildMiddlewareChain(ctx context.Context) http.Handler {
	logger := zerologCtx(ctx)

	var h http.Handler = s.mux

	// CORS: the API is read-only, so a permissive policy is acceptable
	c := cors.New(cors.Options{AllowOriginFunc: func(_ string) bool { return true }, AllowedHeaders: []string{"*"}})
	h = c.Handler(h)

	h = s.rateLimit(h)

	// Logging + request metadata
	h = hlog.NewHandler(*logger)(h)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		logger.Info().
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("http")
	})(h)
	h = chimw.RequestID(h)
	h = chimw.RealIP(h)
	// Recoverer last to catch panics
	return chimw.Recoverer(h)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)

			return
		}

		next.ServeHTTP(w, r)
	})
}
