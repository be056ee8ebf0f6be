package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"monrelay/internal/auth"
	"monrelay/internal/config"
	"monrelay/internal/db"
	"monrelay/internal/handlers"
	"monrelay/internal/relay"
	"monrelay/internal/ws"
)

func main() {
	cfg := config.Load()

	relayCfg := relay.Config{
		ViewerIdleTimeout: cfg.ViewerIdleTimeout(),
		AgentIdleTimeout:  cfg.AgentIdleTimeout(),
		ReapInterval:      cfg.ReapInterval(),
	}

	// Event log is optional: no DSN, no database
	if cfg.DB.DSN != "" {
		pool, err := db.New(cfg.DB.DSN)
		if err != nil {
			panic(err)
		}
		defer pool.Close()
		relayCfg.Events = &relay.PGEventLog{DB: pool}
	}

	rl := relay.New(relayCfg)
	rl.Start()
	defer rl.Close()

	r := chi.NewRouter()

	// CORS (for Vite / browser)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://localhost:3000",
		},
		AllowedMethods: []string{
			"GET", "POST", "PUT", "DELETE", "OPTIONS",
		},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
		},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	// WebSocket paths
	r.Get("/ws/monitor", ws.Viewer(rl, cfg))
	r.Get("/ws/agent", ws.Agent(rl))

	// Diagnostics
	sessionsHandler := &handlers.SessionsHandler{Relay: rl}
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.JWT.Secret))

		r.Get("/api/sessions", sessionsHandler.GetSessions)
		r.Get("/api/sessions/{hostKey}", sessionsHandler.GetSessionByHost)
	})

	log.Println("🚀 monitoring relay listening on", cfg.HTTP.Addr)
	http.ListenAndServe(cfg.HTTP.Addr, r)
}
