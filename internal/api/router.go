package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/adscope/adscope/internal/api/handler"
	mw "github.com/adscope/adscope/internal/api/middleware"
)

// Handlers bundles the route handlers the router mounts.
type Handlers struct {
	Ad         *handler.AdHandler
	Analysis   *handler.AnalysisHandler
	Generation *handler.GenerationHandler
	Merge      *handler.MergeHandler
	Export     *handler.ExportHandler
	Competitor *handler.CompetitorHandler
	Events     *handler.EventsHandler
	Health     *handler.HealthHandler
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(h Handlers, apiKey string, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(middleware.Timeout(5 * time.Minute))

	// CORS for the dashboard frontend
	r.Use(mw.CORS)

	// Health endpoints (no auth)
	r.Get("/health", h.Health.Live)
	r.Get("/ready", h.Health.Ready)

	// API v1 (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		// System stats
		r.Get("/stats", h.Health.Stats)
		r.Get("/queue", h.Ad.Queue)

		// Activity feed
		r.Get("/events", h.Events.List)
		r.Get("/events/recent", h.Events.Recent)
		r.Get("/events/stats", h.Events.Stats)
		r.Get("/events/stream", h.Events.Stream)

		// Ad fetch and download history
		r.Post("/ads/fetch", h.Ad.Fetch)
		r.Get("/ads/history", h.Ad.History)
		r.Delete("/ads/history/{entryID}", h.Ad.DeleteEntry)

		// Per-ad analysis, session state, clip selection and merges
		r.Route("/ads/{adID}", func(r chi.Router) {
			r.Post("/analyze", h.Analysis.Analyze)
			r.Get("/analysis", h.Analysis.Current)
			r.Delete("/analysis", h.Analysis.Delete)
			r.Get("/analysis/history", h.Analysis.History)
			r.Get("/analysis/version/{version}", h.Analysis.Version)
			r.Post("/analysis/regenerate", h.Analysis.Regenerate)
			r.Post("/analysis/followup", h.Analysis.Followup)
			r.Delete("/cache", h.Analysis.ClearCache)

			r.Get("/session", h.Analysis.Session)
			r.Put("/session/video", h.Analysis.SelectVideo)
			r.Put("/session/prompts", h.Analysis.SavePrompts)

			r.Post("/selection/toggle", h.Merge.ToggleClip)
			r.Get("/selection", h.Merge.Selection)
			r.Delete("/selection", h.Merge.ClearSelection)
			r.Post("/merge", h.Merge.Merge)
			r.Get("/merges", h.Merge.ListMerges)
			r.Post("/bulk-download", h.Merge.BulkDownload)
			r.Post("/send-to-editor", h.Merge.SendToEditor)
		})

		// Video generation
		r.Post("/generations", h.Generation.Submit)
		r.Post("/generations/batch", h.Generation.SubmitBatch)
		r.Get("/generations/models", h.Generation.Models)
		r.Get("/generations/tasks", h.Generation.Tasks)
		r.Get("/generations/tasks/{taskID}", h.Generation.TaskStatus)
		r.Delete("/generations/tasks/{taskID}", h.Generation.CancelTask)
		r.Post("/generations/reconcile", h.Generation.Reconcile)
		r.Post("/generations/{generationID}/restore", h.Generation.Restore)
		r.Delete("/generations/{generationID}", h.Generation.Delete)

		// Merged clip artifacts stored upstream
		r.Get("/merged-videos", h.Merge.MergedVideos)

		// Bundle export
		r.Post("/export", h.Export.Start)
		r.Get("/export/status", h.Export.Status)
		r.Post("/export/cancel", h.Export.Cancel)
		r.Get("/export/download", h.Export.Download)

		// Competitor tracking and ad search (upstream passthrough)
		r.Get("/competitors", h.Competitor.List)
		r.Post("/competitors", h.Competitor.Add)
		r.Delete("/competitors/{competitorID}", h.Competitor.Delete)
		r.Get("/search/ads", h.Competitor.Search)
	})

	return r
}
