package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/dsicmd/internal/api/models"
	"github.com/smazurov/dsicmd/internal/dsicmd"
	"github.com/smazurov/dsicmd/internal/events"
	"github.com/smazurov/dsicmd/internal/led"
	"github.com/smazurov/dsicmd/internal/logging"
	"github.com/smazurov/dsicmd/internal/overlay"
	"github.com/smazurov/dsicmd/internal/version"
)

// PanelService is the panel surface the API drives. *compositor.Loop
// implements it.
type PanelService interface {
	Stats() dsicmd.Stats
	BltOffset() (overlay.BltInfo, error)
	SetBLT(ctx context.Context, enable bool) error
	Set3D(ctx context.Context, enabled bool, width, height int) error
	SetPower(ctx context.Context, on bool) error
	Pan(ctx context.Context) error
	Frames() uint64
	Errors() uint64
}

// Server is the Huma v2 API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	mu         sync.Mutex
	httpServer *http.Server
	panel      PanelService
	eventBus   *events.Bus
	options    *Options
	logger     *slog.Logger
}

// Options configures the API server.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Panel             PanelService
	EventBus          *events.Bus
	PrometheusHandler http.Handler   // Optional Prometheus metrics handler
	LEDController     led.Controller // Optional, enables /api/leds
	CORS              *CORSConfig    // Defaults to DefaultCORSConfig
}

// NewServer builds the API on a fresh ServeMux. Routes are registered
// immediately; nothing listens until Start.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	cors := DefaultCORSConfig()
	if opts.CORS != nil {
		cors = *opts.CORS
	}
	// Preflights never match a huma operation, so the mux answers them.
	AddCORSHandler(mux, cors)

	config := huma.DefaultConfig("dsicmd API", version.String())
	config.Info.Description = "Command-mode DSI panel session: status, write-back control and logs"
	config.Servers = []*huma.Server{} // relative paths, any host
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {Type: "http", Scheme: "basic"},
	}

	s := &Server{
		api:      humago.New(mux, config),
		mux:      mux,
		panel:    opts.Panel,
		eventBus: opts.EventBus,
		options:  opts,
		logger:   logging.GetLogger("api"),
	}

	s.api.UseMiddleware(NewCORSMiddleware(cors))
	s.api.UseMiddleware(requestLogger(s.logger))
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		s.api.UseMiddleware(s.basicAuth(opts.AuthUsername, opts.AuthPassword))
	}

	// Scrapes bypass huma and auth.
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	s.registerRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves the API on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	srv := &http.Server{Addr: addr, Handler: s.mux}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	return srv.ListenAndServe()
}

// Stop closes the listener and every open connection, including SSE streams.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Close()
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    noAuth(),
	}, func(context.Context, *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{Body: s.health()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    noAuth(),
	}, func(context.Context, *struct{}) (*models.VersionResponse, error) {
		v := version.Get()
		return &models.VersionResponse{Body: models.VersionData{
			Version:   v.Version,
			GitCommit: v.GitCommit,
			BuildDate: v.BuildDate,
			BuildID:   v.BuildID,
			GoVersion: v.GoVersion,
			Compiler:  v.Compiler,
			Platform:  v.Platform,
		}}, nil
	})

	s.registerPanelRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
	s.registerLEDRoutes()
}

func withAuth() []map[string][]string {
	return []map[string][]string{{"basicAuth": {}}}
}

// noAuth marks an operation public; the auth middleware skips it.
func noAuth() []map[string][]string {
	return []map[string][]string{}
}
