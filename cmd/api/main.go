package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"datavault.org/internal/auth"
	"datavault.org/internal/httpapi"
	"datavault.org/internal/obs"
	"datavault.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	// .env is a dev convenience; real deployments set the environment.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("DATAVAULT_AUTH_SECRET")
	if secret == "" {
		log.Fatal("DATAVAULT_AUTH_SECRET is required")
	}
	dsn := os.Getenv("DATAVAULT_PG_DSN")
	if dsn == "" {
		log.Fatal("DATAVAULT_PG_DSN is required")
	}
	addr := os.Getenv("DATAVAULT_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	// self-heal the builtin permission catalog; non-fatal before migrations
	ensureCtx, ensureCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.EnsurePermissions(ensureCtx, auth.BuiltinPermissionNames); err != nil {
		log.Printf("ensure permissions: %v", err)
	}
	ensureCancel()

	codec, err := auth.NewCodec([]byte(secret))
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	authSvc, err := auth.NewService(store, codec)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, authSvc, store, store)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting datavault-api %s on %s", version, srv.Addr)

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
