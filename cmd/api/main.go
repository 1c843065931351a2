package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campusconnect.org/internal/audit"
	"campusconnect.org/internal/auth"
	"campusconnect.org/internal/config"
	"campusconnect.org/internal/httpapi"
	"campusconnect.org/internal/obs"
	"campusconnect.org/internal/store/pg"
	"campusconnect.org/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "none"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DSN == "" {
		log.Fatal("missing DSN: set CAMPUS_PG_DSN")
	}

	store, err := pg.Open(cfg.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	hub := stream.New()
	recorder := audit.NewRecorder(store, hub)

	svc, err := auth.NewService(store, auth.ServiceConfig{
		SigningSecret: cfg.SigningSecret,
		Issuer:        cfg.Issuer,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	}, auth.WithAuditor(recorder))
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(svc, store, hub, httpapi.ReadyProbe{DB: store.DB()}, version)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting campusconnect-auth %s (%s) on %s", version, cfg.Env, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
