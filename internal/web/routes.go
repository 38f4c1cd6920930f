package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/facewatch/internal/web/handlers"
	"github.com/kozaktomas/facewatch/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	identitiesHandler := handlers.NewIdentitiesHandler(s.services.Registry, s.services.Security, s.logger)
	recognizeHandler := handlers.NewRecognizeHandler(s.services.Recognition, s.logger)
	securityHandler := handlers.NewSecurityHandler(s.services.Security, s.logger)
	historyHandler := handlers.NewHistoryHandler(s.services.Activity, s.logger)
	reportsHandler := handlers.NewReportsHandler(s.services.Reports, s.logger)
	nfcHandler := handlers.NewNFCHandler(s.services.NFC, s.services.Security, s.logger)

	// Health check and metrics (no auth required)
	s.router.Get("/health", handlers.HealthCheck)
	s.router.Get("/api/v1/health", handlers.HealthCheck)
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(s.verifier))

		// Registry
		r.Get("/identities", identitiesHandler.List)
		r.Get("/identities/search", identitiesHandler.Search)
		r.Get("/identities/{id}", identitiesHandler.Get)
		r.Get("/identities/{id}/similar", identitiesHandler.Similar)

		// Recognition
		r.Post("/recognize", recognizeHandler.Recognize)

		// Security overlay
		r.Get("/security-status/{id}", securityHandler.GetStatus)
		r.Get("/security-stats", securityHandler.Stats)
		r.Get("/security-events", securityHandler.Events)

		// NFC tags
		r.Get("/nfc/status/{id}", nfcHandler.Status)

		// Audit projections
		r.Get("/search-history", historyHandler.SearchHistory)
		r.Get("/activity-logs", historyHandler.ActivityLogs)
		r.Get("/activity-logs/stats", historyHandler.ActivityStats)

		// Reports
		r.Post("/reports/save", reportsHandler.Save)
		r.Post("/reports/submit", reportsHandler.Submit)
		r.Get("/reports", reportsHandler.List)
		r.Get("/reports/person/{id}", reportsHandler.ListByIdentity)
		r.Get("/reports/{id}", reportsHandler.Get)
		r.Delete("/reports/{id}", reportsHandler.Delete)

		// Fines
		r.Get("/fines", reportsHandler.ListFines)
		r.Get("/fines/stats", reportsHandler.FineStats)
		r.Get("/fines/person/{id}", reportsHandler.ListFinesByIdentity)

		// Admin only
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Post("/enroll", identitiesHandler.Enroll)
			r.Delete("/identities/{id}", identitiesHandler.Delete)

			r.Put("/security-status/{id}", securityHandler.SetStatus)
			r.Post("/block/{id}", securityHandler.Block)
			r.Post("/wanted/{id}", securityHandler.Wanted)
			r.Delete("/clear-all", securityHandler.ClearAll)

			r.Post("/nfc/register", nfcHandler.Register)
			r.Put("/nfc/toggle/{id}", nfcHandler.Toggle)
			r.Post("/nfc/toggle-status", nfcHandler.ToggleStatus)

			r.Put("/fines/{id}", reportsHandler.UpdateFine)
			r.Put("/fines/{id}/status", reportsHandler.UpdateFineStatus)
			r.Delete("/fines/{id}", reportsHandler.DeleteFine)
		})
	})
}
