package router

import (
	"net/http"

	"github.com/campus-eats/api/internal/config"
	"github.com/campus-eats/api/internal/database"
	"github.com/campus-eats/api/internal/enum"
	"github.com/campus-eats/api/internal/handler"
	mw "github.com/campus-eats/api/internal/middleware"
	"github.com/campus-eats/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	menuHandler := handler.NewMenuHandler(queries)

	// Menu browsing: public, but staff with a token see unavailable items too.
	r.Group(func(r chi.Router) {
		r.Use(mw.MaybeAuthenticate(cfg.JWTSecret))
		menuHandler.RegisterReadRoutes(r)
	})

	// Order lifecycle engine shared by the student and staff surfaces.
	newOrderStore := func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}
	orderService := service.NewOrderService(pool, newOrderStore, queries, service.NewStoreMenuGate(queries))

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Student order surface
		orderHandler := handler.NewOrderHandler(orderService)
		r.Route("/orders", orderHandler.RegisterRoutes)

		// Staff/manager order workflow
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.RoleStaff, enum.RoleManager))
			staffHandler := handler.NewStaffOrderHandler(orderService)
			r.Route("/staff/orders", staffHandler.RegisterRoutes)
			r.Patch("/menu/{id}/toggle", menuHandler.ToggleAvailability)
		})

		// Manager-only menu management
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.RoleManager))
			menuHandler.RegisterManageRoutes(r)
		})
	})

	return r
}
