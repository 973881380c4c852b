// verdesync runs the UrbanismoVerde local sync core: the local cache,
// pending-operation queue and background synchronizer, fronted by a small
// HTTP API for the client application.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/tecnicfitia/urbanismoverde/internal/cache"
	"github.com/tecnicfitia/urbanismoverde/internal/config"
	"github.com/tecnicfitia/urbanismoverde/internal/connectivity"
	"github.com/tecnicfitia/urbanismoverde/internal/logging"
	"github.com/tecnicfitia/urbanismoverde/internal/remote"
	"github.com/tecnicfitia/urbanismoverde/internal/services"
	"github.com/tecnicfitia/urbanismoverde/internal/store"
	"github.com/tecnicfitia/urbanismoverde/internal/syncer"
	"github.com/tecnicfitia/urbanismoverde/internal/syncqueue"
)

func main() {
	ctx := context.Background()

	godotenv.Load()
	logging.Init(os.Stdout, logrus.InfoLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Error("failed to load config", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		logging.Error("failed to open local store", err)
		os.Exit(1)
	}
	defer st.Close()

	gateway := remote.NewClient(&remote.Config{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.APIToken,
		Timeout: cfg.RemoteTimeout,
	})

	monitor := connectivity.NewProbeMonitor(gateway.Ping, cfg.ProbeInterval)
	monitor.Start(ctx)
	defer monitor.Stop()

	cacheSvc := cache.NewService(st)
	queue := syncqueue.NewWithMaxRetries(st, cfg.MaxRetries)

	sync := syncer.New(cacheSvc, queue, gateway, monitor, &syncer.Config{
		Interval:  cfg.SyncInterval,
		PullLimit: cfg.PullLimit,
	})

	hub := NewWSHub()
	sub := sync.Subscribe(hub.BroadcastStatus)
	defer sub.Unsubscribe()

	sync.Start(ctx)
	defer sync.Stop()

	entities := services.NewEntityService(cacheSvc, queue, gateway, monitor)
	api := &API{
		zones:    services.NewZoneService(entities),
		entities: entities,
		syncer:   sync,
		cache:    cacheSvc,
	}

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Route("/zones", func(r chi.Router) {
		r.Post("/", api.CreateZone)
		r.Get("/", api.ListZones)
		r.Get("/{id}", api.GetZone)
		r.Put("/{id}", api.UpdateZone)
		r.Delete("/{id}", api.DeleteZone)
	})

	router.Route("/collections/{collection}", func(r chi.Router) {
		r.Post("/", api.SaveEntity)
		r.Get("/", api.ListEntities)
		r.Get("/{id}", api.GetEntity)
		r.Put("/{id}", api.SaveEntity)
		r.Delete("/{id}", api.DeleteEntity)
	})

	router.Get("/sync/status", api.SyncStatus)
	router.Post("/sync/now", api.SyncNow)
	router.Get("/metrics", api.Metrics)
	router.Get("/ws", hub.HandleWS)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logging.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logging.Info("verdesync listening", map[string]interface{}{"port": cfg.ServerPort})
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logging.Error("server error", err)
		os.Exit(1)
	}
}
