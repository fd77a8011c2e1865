package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/smartcanteen/api/internal/config"
	"github.com/smartcanteen/api/internal/database"
	"github.com/smartcanteen/api/internal/handler"
	mw "github.com/smartcanteen/api/internal/middleware"
	"github.com/smartcanteen/api/internal/ws"
)

// Store is everything the handlers read and write.
// Satisfied by *database.Queries.
type Store interface {
	handler.AuthStore
	handler.MenuStore
}

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(cfg *config.Config, store Store, orders handler.OrderServicer, forecaster handler.Forecaster, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	authHandler := handler.NewAuthHandler(store, cfg.JWTSecret, handler.WithStaffRegistration(cfg.AllowStaffRegistration))
	authHandler.RegisterRoutes(r)

	menuHandler := handler.NewMenuHandler(store)
	menuHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	orderHandler := handler.NewOrderHandler(orders)
	forecastHandler := handler.NewForecastHandler(forecaster)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		orderHandler.RegisterRoutes(r)

		// Staff-only routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireStaff())
			menuHandler.RegisterStaffRoutes(r)
			orderHandler.RegisterStaffRoutes(r)
			forecastHandler.RegisterRoutes(r)
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}

var _ Store = (*database.Queries)(nil)
