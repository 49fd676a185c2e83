package main

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"roulette-pilot/internal/auth"
	"roulette-pilot/internal/config"
	"roulette-pilot/internal/logging"
	"roulette-pilot/internal/session"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal().Err(err).Msg("load server config failed")
	}
	engineCfg, err := config.LoadEngine()
	if err != nil {
		log.Fatal().Err(err).Msg("load engine config failed")
	}

	authClient := auth.NewClient(engineCfg.AuthURL, engineCfg.AuthTimeout)
	registry := session.NewRegistry(engineCfg, authClient.Authenticate, log.Logger)
	registry.StartJanitor(context.Background(), time.Minute)

	r := newRouter(registry)
	logRoutes(r)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
	log.Fatal().Err(server.ListenAndServe()).Msg("server stopped")
}

func newRouter(reg *session.Registry) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(apiLogMiddleware()).Get("/healthz", healthHandler())

	r.Route("/api/sessions/{user_id}", func(r chi.Router) {
		r.Use(apiLogMiddleware())
		r.Post("/connect", connectHandler(reg))
		r.Delete("/", disconnectHandler(reg))
		r.Post("/operation/start", startOperationHandler(reg))
		r.Post("/operation/stop", stopOperationHandler(reg))
		r.Get("/logs", logsHandler(reg))
		r.Get("/report", reportHandler(reg))
		r.Delete("/report", resetReportHandler(reg))
		r.Get("/status", statusHandler(reg))
	})
	return r
}

func logRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 16)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
