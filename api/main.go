package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"edgeroute/api/config"
	"edgeroute/api/consul"
	ecron "edgeroute/api/cron"
	"edgeroute/api/distribute"
	"edgeroute/api/geoip"
	"edgeroute/api/handler"
	"edgeroute/api/health"
	"edgeroute/api/hub"
	"edgeroute/api/logging"
	"edgeroute/api/saga"
	"edgeroute/api/storage"
	"edgeroute/api/store"
)

func main() {
	cfg := config.Load()
	if path := os.Getenv("EDGEROUTE_CONFIG"); path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	logging.Setup(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	db, events := openStore(cfg)
	defer db.Close()

	locator, err := geoip.Open(cfg.GeoIPPath, cfg.GeoCacheSize)
	if err != nil {
		log.Fatalf("geoip: %v", err)
	}
	defer locator.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	allowedOrigins := cfg.Origins()
	ws := hub.New(allowedOrigins)
	go ws.Run(ctx)

	monitor := &health.Monitor{Nodes: db, WS: ws, Timeout: cfg.StoreTimeout}
	poller := &health.Poller{
		Monitor:   monitor,
		Events:    events,
		Interval:  cfg.ReconcileInterval,
		Retention: cfg.EventRetention,
	}
	go poller.Run(ctx)

	dist := &distribute.Distributor{Source: db, Publishers: publishers(ctx, cfg)}
	scheduler := ecron.New(ws)
	if err := scheduler.Add(handler.PublishJob, cfg.PublishSchedule, 2*time.Minute, dist.Run); err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	scheduler.Start()

	h := handler.New(db, events, locator, ws, cfg, monitor, dist, scheduler)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	// Optional bearer token auth when EDGEROUTE_API_TOKEN is set
	if cfg.APIToken != "" {
		r.Use(bearerAuth(cfg.APIToken))
		log.Println("API token auth enabled")
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"version": Version})
		})

		// Node-facing endpoints authenticate with tokens and keys of their own.
		r.Get("/connect/{token}", h.Connect)
		r.Post("/poll", h.Poll)

		r.Post("/health/reconcile", h.Reconcile)
		r.Get("/nodes", h.ListNodes)
		r.Post("/nodes", h.CreateNode)
		r.Route("/nodes/{id}", func(r chi.Router) {
			r.Use(handler.ValidateID)
			r.Get("/", h.GetNode)
			r.Delete("/", h.DeleteNode)
			r.Post("/assign", h.AssignNode)
		})
		r.Get("/domains", h.ListDomains)
		r.Post("/domains", h.CreateDomain)
		r.Route("/domains/{id}", func(r chi.Router) {
			r.Use(handler.ValidateID)
			r.Get("/", h.GetDomain)
			r.Delete("/", h.DeleteDomain)
			r.Get("/assignments", h.DomainAssignments)
			r.Get("/zone", h.DomainZone)
		})
		r.Get("/map", h.RoutingMap)
		r.Get("/events", h.ListEvents)
		r.Get("/events/{sagaId}", h.GetSagaEvents)
		r.Get("/publish", h.PublishStatus)
		r.Post("/publish", h.Publish)
	})

	r.Get("/ws", ws.HandleConnect)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	srv := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("edgeroute %s listening on %s:%s (store: %s)", Version, cfg.BindAddr, cfg.Port, cfg.Store)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	scheduler.Stop()
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}

func openStore(cfg *config.Config) (store.Store, saga.Store) {
	switch cfg.Store {
	case "bolt":
		db, err := store.OpenBolt(cfg.BoltPath)
		if err != nil {
			log.Fatalf("bolt: %v", err)
		}
		events, err := saga.NewBoltStore(db.Bolt)
		if err != nil {
			log.Fatalf("bolt events: %v", err)
		}
		return db, events
	default:
		db, err := store.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		if err := store.Migrate(db); err != nil {
			log.Fatalf("migration: %v", err)
		}
		return db, saga.NewPostgresStore(db.Pool)
	}
}

// publishers returns the configured distribution targets. A target that
// cannot be reached at startup is still registered; publish runs report it.
func publishers(ctx context.Context, cfg *config.Config) []distribute.Publisher {
	var out []distribute.Publisher

	if cfg.ConsulAddr != "" {
		c, err := consul.NewClient(cfg.ConsulAddr, cfg.ConsulPrefix)
		if err != nil {
			log.Printf("WARNING: consul unavailable (%v)", err)
		} else {
			log.Println("consul publishing to " + cfg.ConsulAddr)
			out = append(out, c)
		}
	}

	if cfg.S3Endpoint != "" {
		s3Client, err := storage.NewClient(storage.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			log.Printf("WARNING: S3 storage unavailable (%v)", err)
		} else {
			bctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := s3Client.EnsureBucket(bctx); err != nil {
				log.Printf("WARNING: S3 bucket: %v", err)
			}
			cancel()
			log.Println("S3 storage connected at " + s3Client.Endpoint())
			out = append(out, s3Client)
		}
	}
	return out
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptFromAuth(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(auth[7:]), []byte(token)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func exemptFromAuth(path string) bool {
	switch path {
	case "/ws", "/metrics", "/api/health", "/api/version", "/api/poll":
		return true
	}
	return strings.HasPrefix(path, "/api/connect/")
}
