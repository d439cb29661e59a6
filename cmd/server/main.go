// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/pushleopard-backend/internal/app"
	"github.com/unclebandit/pushleopard-backend/internal/config"
	"github.com/unclebandit/pushleopard-backend/internal/controller"
	"github.com/unclebandit/pushleopard-backend/internal/handler"
	"github.com/unclebandit/pushleopard-backend/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewStructured("error", "json").Error("Failed to load config", map[string]interface{}{"error": err})
		os.Exit(1)
	}
	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to start", map[string]interface{}{"error": err})
		os.Exit(1)
	}
	defer a.Close()

	// Without a broker the server consumes its own async jobs.
	if cfg.Queue.Driver == "memory" {
		if err := a.StartConsumers(); err != nil {
			log.Error("Failed to subscribe consumers", map[string]interface{}{"error": err})
			os.Exit(1)
		}
	}

	campaignController := &controller.CampaignController{
		CampaignService: a.Campaigns,
		Dispatcher:      a.Dispatcher,
		Registration:    a.Registration,
		Logger:          log,
	}
	campaignHandler := handler.NewCampaignHandler(a.Campaigns, log)

	srv := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      routes(a, campaignController, campaignHandler),
		ReadTimeout:  config.GetDuration(cfg.HTTP.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.HTTP.WriteTimeout),
	}

	go func() {
		log.Info("Server running", map[string]interface{}{"address": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server stopped", map[string]interface{}{"error": err})
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", map[string]interface{}{"error": err})
	}
}

func routes(a *app.App, c *controller.CampaignController, h *handler.CampaignHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(handler.Instrument)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.DB.PingContext(r.Context()); err != nil {
			handler.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		handler.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Campaign routes
	r.Post("/campaigns", c.CreateCampaign)
	r.Get("/campaigns", h.ListCampaignsHandler)
	r.Get("/campaigns/{id}", h.GetCampaignHandlerWithStats)
	r.Get("/campaigns/{id}/deliveries", h.ListDeliveriesHandler)
	r.Post("/campaigns/{id}/submit", c.SubmitCampaign)
	r.Post("/campaigns/{id}/dispatch", c.DispatchCampaign)
	r.Post("/campaigns/{id}/cancel", c.CancelCampaign)
	r.Post("/campaigns/{id}/clicks", c.TrackClick)

	r.Post("/recipients", c.RegisterRecipient)
	r.Get("/stats/overview", h.OverviewHandler)
	return r
}
