package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/veldt/genforge/internal/api"
	apimiddleware "github.com/veldt/genforge/internal/api/middleware"
)

// setupRouter configures and returns the application's HTTP router.
func (app *application) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	// Handlers
	taskHandler := api.NewTaskHandler(app.taskService, app.logger)
	creditHandler := api.NewCreditHandler(
		app.creditLedger,
		app.ledgerStore,
		app.taskService,
		app.config.Cost.InitialBalance,
		app.logger,
	)
	authMiddleware := apimiddleware.NewAuthMiddleware(app.jwtService)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Route("/tasks", func(r chi.Router) {
				r.Post("/", taskHandler.CreateTask)
				r.Get("/", taskHandler.ListTasks)
				r.Get("/{id}", taskHandler.GetTask)
				r.Post("/{id}/start", taskHandler.StartTask)
				r.Post("/{id}/cancel", taskHandler.CancelTask)
			})

			r.Route("/credits", func(r chi.Router) {
				r.Get("/balance", creditHandler.GetBalance)
				r.Post("/account", creditHandler.CreateAccount)
				r.Get("/tasks/{id}", creditHandler.TaskLedger)
			})
		})
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}
