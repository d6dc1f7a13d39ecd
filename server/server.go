package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-http-utils/etag"
	"github.com/sirupsen/logrus"

	"github.com/micha91/music-assistant-server/config"
	"github.com/micha91/music-assistant-server/manifest"
	"github.com/micha91/music-assistant-server/source"
)

// Server exposes the provider manifests and provider configurations over
// HTTP. Manifest bundles come from the attached source repositories and
// are refreshed in the background; configurations are managed through the
// config controller.
type Server struct {
	Registry        *manifest.Registry
	Config          *config.Controller
	Repositories    []source.Repository
	RefreshInterval time.Duration
	AuthKey         string
	cancel          context.CancelFunc

	mu          sync.RWMutex
	refreshErrs map[string]error
}

// NewServer refreshes every repository once, loads the fetched manifest
// bundles into the registry, and starts a background refresh goroutine
// per repository.
func NewServer(
	ctx context.Context,
	registry *manifest.Registry,
	controller *config.Controller,
	repositories []source.Repository,
	refreshInterval time.Duration,
) *Server {
	if refreshInterval < 5*time.Second {
		logrus.Warn("refresh interval too low, setting it to 5 seconds")
		refreshInterval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	server := &Server{
		Registry:        registry,
		Config:          controller,
		Repositories:    repositories,
		RefreshInterval: refreshInterval,
		cancel:          cancel,
		refreshErrs:     make(map[string]error),
	}
	for _, repo := range server.Repositories {
		if err := repo.Refresh(); err != nil {
			logrus.WithError(err).Error("error refreshing repository")
			server.setRefreshErr(repo.GetName(), err)
			continue
		}
		// Manifests are registered once at startup and read-only
		// thereafter; later refreshes only update the raw bundles.
		if err := registry.LoadBundle(repo.GetRawData()); err != nil {
			logrus.WithError(err).Errorf("error loading manifest bundle from %s", repo.GetName())
		}
	}
	for _, repo := range server.Repositories {
		go server.refresh(ctx, repo, refreshInterval)
	}
	return server
}

func (s *Server) refresh(ctx context.Context, repository source.Repository, refreshInterval time.Duration) {
	ticker := time.NewTicker(refreshInterval)
	for {
		select {
		case <-ticker.C:
			err := repository.Refresh()
			if err != nil {
				logrus.WithError(err).Error("error refreshing repository")
			}
			s.setRefreshErr(repository.GetName(), err)
		case <-ctx.Done():
			ticker.Stop()
			return
		}
	}
}

func (s *Server) setRefreshErr(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.refreshErrs, name)
		return
	}
	s.refreshErrs[name] = err
}

// Stop cancels the background refresh goroutines.
func (s *Server) Stop() {
	s.cancel()
}

// Start serves the HTTP API on addr. Responses carry ETags; when an auth
// key is configured every request must present it in X-API-KEY.
func (s *Server) Start(addr string) {
	logrus.Info("Starting server")

	handlers := s.CreateHandlers()
	handler := etag.Handler(handlers, false)
	if s.AuthKey != "" {
		handler = Auth(handler, s.AuthKey)
	}

	err := http.ListenAndServe(addr, handler)
	if err != nil {
		logrus.WithError(err).Fatal("error starting server")
	}
}

// CreateHandlers builds the route table. Raw manifest bundles are served
// under /manifests/<source name>; the typed manifest and configuration
// API lives under /providers and /config.
func (s *Server) CreateHandlers() http.Handler {
	mux := http.NewServeMux()
	for _, repo := range s.Repositories {
		repo := repo
		mux.HandleFunc("GET /manifests/"+repo.GetName(), func(w http.ResponseWriter, r *http.Request) {
			if _, err := w.Write(repo.GetRawData()); err != nil {
				logrus.WithError(err).Error("error writing response")
			}
		})
	}
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /providers/available", s.listAvailable)
	mux.HandleFunc("GET /providers/available/{domain}", s.getAvailable)
	mux.HandleFunc("GET /config/providers", s.listConfigs)
	mux.HandleFunc("POST /config/providers", s.createConfig)
	mux.HandleFunc("GET /config/providers/{instance}", s.getConfig)
	mux.HandleFunc("PUT /config/providers/{instance}", s.updateConfig)
	mux.HandleFunc("DELETE /config/providers/{instance}", s.deleteConfig)
	return mux
}

// Auth is a middleware that checks if the request is authenticated.
// If not, it returns a 401 Unauthorized response.
func Auth(next http.Handler, authKey string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-KEY")
		if key == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if key != authKey {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
