// Package adminhttp exposes a read-only status API over the running
// session: health, readiness, Prometheus metrics and session state.
package adminhttp

import (
	"context"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/render"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/bavix/camfleet/internal/config"
	"github.com/bavix/camfleet/internal/fleet"
	"github.com/bavix/camfleet/internal/version"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultIdleTimeout       = 10 * time.Second
	defaultWriteTimeout      = 15 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
)

type Server struct {
	addr      string
	mux       *mux.Router
	fleet     *fleet.Coordinator
	limiter   *rate.Limiter
	startTime time.Time
	version   string
	buildTime string
}

// NewServer builds the status server around a coordinator. The API is
// strictly read-only: session transitions happen through the host, never
// through HTTP.
func NewServer(httpConfig *config.HTTPConfig, coord *fleet.Coordinator) *Server {
	s := &Server{
		addr:      httpConfig.Listen,
		mux:       mux.NewRouter(),
		fleet:     coord,
		limiter:   rate.NewLimiter(rate.Limit(httpConfig.RateLimit), httpConfig.RateBurst),
		startTime: time.Now(),
		version:   version.GetVersion(),
		buildTime: version.GetBuildTime(),
	}

	s.routes()

	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/cameras", s.handleCameras).Methods(http.MethodGet)
	api.HandleFunc("/manifest", s.handleManifest).Methods(http.MethodGet)
	api.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	s.mux.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.mux.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

// Start binds the listener, installs the middleware chain and serves until
// the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	// Fast-fail if the port is occupied
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}

	_ = ln.Close()

	srv := s.createServer(ctx, s.buildMiddlewareChain(ctx))

	zerologCtx(ctx).Info().Str("addr", s.addr).Msg("http listen")

	go func() { _ = srv.ListenAndServe() }()

	return nil
}

func (s *Server) createServer(ctx context.Context, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
		WriteTimeout:      defaultWriteTimeout,
	}
	srv.BaseContext = func(_ net.Listener) context.Context { return ctx }

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(shutdownCtx)
		_ = srv.Close()
	}()

	return srv
}

type sessionDTO struct {
	State     string `json:"state"`
	Cameras   int    `json:"cameras"`
	Artifacts int    `json:"artifacts"`
	Uptime    string `json:"uptime"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, sessionDTO{
		State:     s.fleet.State().String(),
		Cameras:   len(s.fleet.Cameras()),
		Artifacts: len(s.fleet.Results()),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	})
}

type camerasResponse struct {
	Cameras []fleet.CameraInfo `json:"cameras"`
}

func (s *Server) handleCameras(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, camerasResponse{Cameras: s.fleet.Cameras()})
}

type manifestResponse struct {
	NewFiles map[string][]string `json:"new_files"`
	Results  []transferResultDTO `json:"results"`
}

type transferResultDTO struct {
	Identifier string `json:"identifier"`
	Filename   string `json:"filename"`
	Downloaded bool   `json:"downloaded"`
	Metadata   bool   `json:"metadata_downloaded"`
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	results := s.fleet.Results()

	out := make([]transferResultDTO, 0, len(results))
	for _, res := range results {
		out = append(out, transferResultDTO{
			Identifier: res.Identifier,
			Filename:   res.Filename,
			Downloaded: res.Downloaded,
			Metadata:   res.MetadataDownloaded,
		})
	}

	render.JSON(w, r, manifestResponse{NewFiles: s.fleet.Manifest(), Results: out})
}

type serverInfoDTO struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Uptime    string `json:"uptime"`
	BuildTime string `json:"build_time,omitempty"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, serverInfoDTO{
		Version:   s.version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		BuildTime: s.buildTime,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.version,
		"uptime":    time.Since(s.startTime).String(),
	})
}

// handleReady reports ready once the fleet is armed. A session that has
// ended stays not-ready: the process is expected to exit shortly after.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	state := s.fleet.State()

	if state != fleet.StateArmed && state != fleet.StateRecording {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]any{"ready": false, "state": state.String()})

		return
	}

	render.JSON(w, r, map[string]any{"ready": true, "state": state.String()})
}
