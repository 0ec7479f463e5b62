package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/cardshot/internal/delivery/http/handler"
	"github.com/user/cardshot/internal/delivery/http/router"
)

var ErrNotStarted = errors.New("document host is not started")

// Server hosts rendered documents on a loopback port for the browser page.
type Server struct {
	store      *handler.DocumentStore
	router     http.Handler
	httpServer *http.Server
	baseURL    string
	logger     *zap.Logger
}

func NewServer(logger *zap.Logger) *Server {
	store := handler.NewDocumentStore()
	return &Server{
		store:  store,
		router: router.New(handler.NewHandler(store, logger), logger),
		logger: logger,
	}
}

// Start listens on an ephemeral 127.0.0.1 port and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen for document host: %w", err)
	}
	s.baseURL = "http://" + ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Document host stopped", zap.Error(err))
		}
	}()

	s.logger.Debug("Document host listening", zap.String("url", s.baseURL))
	return nil
}

// Host stores html and returns the URL the page should load. Relative links
// in the document resolve against assetDir.
func (s *Server) Host(html string, assetDir string) (string, error) {
	if s.httpServer == nil {
		return "", ErrNotStarted
	}
	id := s.store.Put(handler.Document{HTML: html, AssetDir: assetDir})
	return fmt.Sprintf("%s/documents/%d/", s.baseURL, id), nil
}

// BaseURL returns the root URL of the host, empty before Start.
func (s *Server) BaseURL() string {
	return s.baseURL
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
