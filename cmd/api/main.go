package main

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"isp-saas.com/routersync/internal/handlers"
	"isp-saas.com/routersync/internal/middleware"
	"isp-saas.com/routersync/internal/routeros"
	"isp-saas.com/routersync/internal/status"
	"isp-saas.com/routersync/internal/store"
	"isp-saas.com/routersync/internal/syncer"
	"isp-saas.com/routersync/pkg/database"
	"isp-saas.com/routersync/pkg/logger"
	"isp-saas.com/routersync/pkg/redis"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger
	log := logger.New()
	log.Info("Starting Router Sync Engine API v1.0.0...")

	// Connect to database
	db, err := database.Connect()
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()
	log.Info("Database connected successfully")

	// Run migrations
	if err := db.RunMigrations("./migrations"); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}
	log.Info("Migrations completed")

	// Connect to Redis (status cache + rate limiting)
	redisClient, err := redis.Connect()
	if err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}
	defer redisClient.Close()
	log.Info("Redis connected successfully")

	st := store.New(db)

	// Router session plumbing
	probeTimeout := envSeconds("ROUTER_PROBE_TIMEOUT", 2)
	dialTimeout := envSeconds("ROUTER_DIAL_TIMEOUT", 10)
	queryTimeout := envSeconds("ROUTER_QUERY_TIMEOUT", 5)
	pullTimeout := envSeconds("ROUTER_PULL_TIMEOUT", 10)
	aggressiveTimeout := envSeconds("ROUTER_AGGRESSIVE_TIMEOUT", 20)
	statusTTL := envSeconds("ROUTER_STATUS_TTL", 30)
	batchSize := envInt("ROUTER_BATCH_SIZE", 100)

	manager := routeros.NewManager(log, probeTimeout)
	manager.SetHooks(
		func() {
			if p, err := st.ActiveConnectionProfile(); err == nil {
				st.TouchConnected(p.ID, time.Now())
			}
		},
		func() {
			if p, err := st.ActiveConnectionProfile(); err == nil {
				st.TouchDisconnected(p.ID, time.Now())
			}
		},
	)

	client := routeros.NewClient(manager)
	batch := routeros.NewBatchReader(client, batchSize, pullTimeout)
	orch := syncer.New(st, client, batch, log, queryTimeout)
	trigger := syncer.NewTrigger(orch, manager, st, log)
	statusCache := status.NewCache(redisClient, client, log, statusTTL, queryTimeout, aggressiveTimeout)

	// Best-effort initial session; auto-sync stays dormant until it is up
	if profile, err := st.ActiveConnectionProfile(); err == nil {
		if err := manager.Connect(routeros.DialConfig{
			Host:     profile.Host,
			Port:     profile.Port,
			Username: profile.Username,
			Password: profile.Password,
			UseTLS:   profile.UseTLS,
			Timeout:  dialTimeout,
		}); err != nil {
			log.Warn("Initial router connect failed", "error", err.Error())
		}
	} else {
		log.Warn("No active connection profile configured")
	}

	// Initialize handlers
	h := handlers.New(db, st, manager, orch, trigger, statusCache, log, dialTimeout)

	// Create router
	r := mux.NewRouter()

	// ============== PUBLIC ROUTES (No Auth) ==============
	r.HandleFunc("/api/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/api/auth/login", h.Login).Methods("POST")
	r.HandleFunc("/api/auth/register", h.Register).Methods("POST")

	// ============== PROTECTED ROUTES (JWT Auth) ==============
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware)

	// Router connection profiles
	api.HandleFunc("/router", h.GetConnectionProfiles).Methods("GET")
	api.HandleFunc("/router", h.CreateConnectionProfile).Methods("POST")
	api.HandleFunc("/router/connect", h.ConnectRouter).Methods("POST")
	api.HandleFunc("/router/disconnect", h.DisconnectRouter).Methods("POST")
	api.HandleFunc("/router/health", h.RouterHealth).Methods("GET")
	api.HandleFunc("/router/{id}", h.GetConnectionProfile).Methods("GET")
	api.HandleFunc("/router/{id}", h.UpdateConnectionProfile).Methods("PUT")
	api.HandleFunc("/router/{id}/activate", h.ActivateConnectionProfile).Methods("POST")
	api.HandleFunc("/router/{id}/test", h.TestConnectionProfile).Methods("POST")

	// Service profiles
	api.HandleFunc("/profiles", h.GetProfiles).Methods("GET")
	api.HandleFunc("/profiles", h.CreateProfile).Methods("POST")
	api.HandleFunc("/profiles/{id}", h.GetProfile).Methods("GET")
	api.HandleFunc("/profiles/{id}", h.UpdateProfile).Methods("PUT")
	api.HandleFunc("/profiles/{id}", h.DeleteProfile).Methods("DELETE")
	api.HandleFunc("/profiles/{id}/push", h.PushProfile).Methods("POST")

	// Secrets
	api.HandleFunc("/secrets", h.GetSecrets).Methods("GET")
	api.HandleFunc("/secrets", h.CreateSecret).Methods("POST")
	api.HandleFunc("/secrets/{id}", h.GetSecret).Methods("GET")
	api.HandleFunc("/secrets/{id}", h.UpdateSecret).Methods("PUT")
	api.HandleFunc("/secrets/{id}", h.DeleteSecret).Methods("DELETE")
	api.HandleFunc("/secrets/{id}/suspend", h.SuspendSecret).Methods("POST")
	api.HandleFunc("/secrets/{id}/restore", h.RestoreSecret).Methods("POST")
	api.HandleFunc("/secrets/{id}/push", h.PushSecret).Methods("POST")
	api.HandleFunc("/secrets/{id}/sessions", h.GetSecretSessions).Methods("GET")

	// Sync
	api.HandleFunc("/sync/pull/{kind}", h.PullEntities).Methods("POST")
	api.HandleFunc("/sync/sessions", h.SyncSessions).Methods("POST")

	// Live status (rate limited: the dashboard polls these hard)
	rl := middleware.NewRateLimiter(redisClient, envInt("RATE_LIMIT", 120), time.Minute)
	statusAPI := api.PathPrefix("/status").Subrouter()
	statusAPI.Use(rl.Middleware)
	statusAPI.HandleFunc("/{username}", h.GetStatus).Methods("GET")
	statusAPI.HandleFunc("/{username}/refresh", h.ForceRefreshStatus).Methods("POST")
	statusAPI.HandleFunc("/{username}/aggressive", h.AggressiveRefreshStatus).Methods("POST")

	// CORS configuration
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	// Get port from environment
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Handler:      c.Handler(r),
		Addr:         ":" + port,
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("Server starting", "port", port)

	if err := srv.ListenAndServe(); err != nil {
		log.Fatal("Server failed", "error", err)
	}
}

func envInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func envSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(envInt(key, defaultValue)) * time.Second
}
