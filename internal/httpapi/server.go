package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/sublate/sublate/internal/config"
	"github.com/sublate/sublate/internal/pipeline"
)

type Server struct {
	pipeline *pipeline.Pipeline
	baseURL  string
	version  string

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithBaseURL(baseURL string) Option {
	return func(s *Server) {
		s.baseURL = baseURL
	}
}

func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

func NewServer(p *pipeline.Pipeline, opts ...Option) *Server {
	s := &Server{
		pipeline: p,
		baseURL:  "http://localhost:7000",
		version:  "1.0.0",
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /manifest.json", s.handleManifest)
	s.mux.HandleFunc("GET /{token}/manifest.json", s.handleManifest)
	s.mux.HandleFunc("GET /configure", s.handleConfigure)
	s.mux.HandleFunc("GET /{token}/configure", s.handleConfigure)
	s.mux.HandleFunc("GET /{token}/subtitles/{type}/{id}", s.handleSubtitles)
	s.mux.HandleFunc("GET /{token}/subtitles/{type}/{id}/{extra}", s.handleSubtitles)
	s.mux.HandleFunc("GET /{token}/srt/{type}/{id}", s.handleSRT)
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/configure", http.StatusFound)
	})
}

// userConfig decodes the request's config token.
func userConfig(r *http.Request) (*config.UserConfig, error) {
	return config.DecodeUserConfig(r.PathValue("token"))
}
