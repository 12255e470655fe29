package server

import (
	"context"
	"errors"
	"net/http"
	"path"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/retouch/retouch/configs"
)

// Server is a wrapper around chi router.
type Server struct {
	Router   *chi.Mux
	BasePath string
	DevMode  bool
	started  time.Time
	errMap   []mappedError
}

// New create a new server. Routes must be added manually before
// calling ListenAndServe.
func New(basePath string) *Server {
	basePath = path.Clean("/" + basePath)
	if !strings.HasSuffix(basePath, "/") {
		basePath += "/"
	}

	s := &Server{
		Router:   chi.NewRouter(),
		BasePath: basePath,
		DevMode:  configs.Config.Main.DevMode,
		started:  time.Now(),
	}

	s.Router.Use(
		middleware.Recoverer,
		middleware.RealIP,
		middleware.RequestID,
		Tracing,
		Logger(s.DevMode),
		SetRequestInfo,
	)

	return s
}

// AddRoute adds a new route to the server, prefixed with
// the BasePath.
func (s *Server) AddRoute(pattern string, handler http.Handler) {
	s.Router.Mount(path.Join(s.BasePath, pattern), handler)
}

// ListenAndServe starts the HTTP server and stops it when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Add the profiler in dev mode
	if s.DevMode {
		s.Router.Mount("/debug", middleware.Profiler())
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("stopping server")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Log returns a log entry including the request ID
func (s *Server) Log(r *http.Request) *log.Entry {
	e := log.WithField("@id", s.GetReqID(r))
	if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
		e = e.WithField("trace_id", sc.TraceID().String())
	}
	return e
}

// SysInfo describes the running service process.
type SysInfo struct {
	GoVersion  string        `json:"go_version"`
	Platform   string        `json:"platform"`
	CPUs       int           `json:"cpus"`
	Uptime     time.Duration `json:"uptime"`
	Goroutines int           `json:"goroutines"`
	MemAlloc   uint64        `json:"mem_alloc"`
	MemSys     uint64        `json:"mem_sys"`
	NumGC      uint32        `json:"num_gc"`
}

// SysInfo returns the process information. Memory is in bytes and the
// uptime in nanoseconds.
func (s *Server) SysInfo() SysInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SysInfo{
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		CPUs:       runtime.NumCPU(),
		Uptime:     time.Since(s.started),
		Goroutines: runtime.NumGoroutine(),
		MemAlloc:   m.Alloc,
		MemSys:     m.Sys,
		NumGC:      m.NumGC,
	}
}

// GetReqID returns the request ID.
func (s *Server) GetReqID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
