package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"pulseboard/internal/config"
	"pulseboard/internal/controllers"
	"pulseboard/internal/middleware"
	"pulseboard/internal/routes"
	"pulseboard/internal/services"
	"pulseboard/web"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 5 * time.Second

// newEngine builds a gin engine with the shared middleware stack
func newEngine(server config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.SecurityHeadersMiddleware(server.TLSCert != ""))
	r.Use(middleware.CORSMiddleware(server.AllowedOrigins))
	r.Use(middleware.IPWhitelistMiddleware(middleware.NewIPWhitelist(server.AllowedIPs)))
	if server.RateLimit > 0 {
		r.Use(middleware.RateLimitMiddleware(middleware.NewRateLimiter(server.RateLimit, server.RateBurst)))
	}
	return r
}

// runDashboard starts the refresh scheduler and serves the dashboard until ctx ends
func runDashboard(ctx context.Context, cfg *config.Config) error {
	loc, err := cfg.Dashboard.Location()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	telemetry := services.NewTelemetry(reg)

	hub := services.NewWebSocketHub(telemetry)
	defer hub.Stop()

	labeler := services.Labeler{
		Bucket:   cfg.Dashboard.LabelBucket,
		Layout:   cfg.Dashboard.LabelLayout,
		Location: loc,
	}
	buffer := services.NewSeriesBuffer(cfg.Dashboard.Capacity, labeler)
	fetcher := services.NewHTTPFetcher(cfg.Dashboard.Endpoint, cfg.Dashboard.FetchTimeout, loc)
	scheduler := services.NewScheduler(fetcher, buffer, hub, services.SchedulerConfig{
		Interval:       cfg.Dashboard.PollInterval,
		MinBusy:        cfg.Dashboard.MinBusy,
		EnforceMinBusy: cfg.Dashboard.EnforceMinBusy,
		DiscardStale:   cfg.Dashboard.DiscardStale,
	}, telemetry)

	security := middleware.NewSecurityLogger()
	var validator middleware.TokenValidator
	var apiGuards []gin.HandlerFunc
	if cfg.Auth.Enabled {
		auth, err := services.NewAuthService(cfg.Auth.Secret, cfg.Auth.SecretFile, cfg.Auth.TokenExpiry)
		if err != nil {
			return err
		}
		validator = auth
		apiGuards = append(apiGuards, middleware.TokenAuthMiddleware(auth, security))
		log.Println("[AUTH] Token required for /ws and /api")
	}

	tmpl, err := web.Templates()
	if err != nil {
		return fmt.Errorf("parsing templates: %w", err)
	}

	r := newEngine(cfg.Server)
	r.SetHTMLTemplate(tmpl)
	routes.RegisterDashboardRoutes(r, controllers.NewDashboardController(scheduler, cfg.Auth.Enabled), web.Static(), reg, apiGuards...)
	routes.RegisterWebSocketRoutes(r, controllers.NewWebSocketController(hub, validator, security, cfg.Server.AllowedOrigins))

	log.Printf("[SCHED] Polling %s every %v (window: %d points)", fetcher.Endpoint(), cfg.Dashboard.PollInterval, buffer.Capacity())
	scheduler.Start(ctx)
	defer scheduler.Stop()

	return serve(ctx, cfg.Server.Addr, cfg.Server.TLSCert, cfg.Server.TLSKey, r)
}

// runAgent records local readings and serves them until ctx ends
func runAgent(ctx context.Context, cfg *config.Config) error {
	reader := services.NewHostReader(cfg.Agent.DiskPath)
	cache := services.NewReadingCache(reader.Read, cfg.Agent.CacheTTL)
	recorder := services.NewRecorder(reader.Read, cfg.Agent.HistorySize, cache)

	recorder.Start(cfg.Agent.SampleInterval)
	defer recorder.Stop()

	r := newEngine(cfg.Server)
	routes.RegisterAgentRoutes(r, controllers.NewAgentController(recorder, cache))

	log.Printf("[AGENT] Serving %s metrics for %s", cfg.Agent.DiskPath, cfg.Agent.Addr)
	return serve(ctx, cfg.Agent.Addr, cfg.Server.TLSCert, cfg.Server.TLSKey, r)
}

// serve runs handler on addr until ctx is cancelled, then shuts down gracefully
func serve(ctx context.Context, addr, certFile, keyFile string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if certFile != "" {
			log.Printf("Listening on https://%s", addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			log.Printf("Listening on http://%s", addr)
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
