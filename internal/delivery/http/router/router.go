package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/user/cardshot/internal/delivery/http/handler"
	"github.com/user/cardshot/internal/delivery/http/middleware"
)

func New(h *handler.Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)

	r.Get("/documents/{id}/*", h.HandleDocument)

	return r
}
