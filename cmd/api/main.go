package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"toolvault.org/internal/auth"
	"toolvault.org/internal/httpapi"
	"toolvault.org/internal/lifecycle"
	"toolvault.org/internal/obs"
	"toolvault.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		repo   lifecycle.Repository
		users  auth.Store
		probe  httpapi.ReadyProbe
		closer func()
	)
	if dsn := os.Getenv("TOOLVAULT_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		repo = store
		users = store
		probe = httpapi.ReadyProbe{DB: store.DB()}
		closer = func() { _ = store.Close() }
	} else {
		// single-process mode: volatile repository plus a bootstrap admin
		mem := lifecycle.NewInMemory()
		userStore := auth.NewInMemory()
		seedBootstrapAdmin(userStore)
		repo = mem
		users = userStore
		closer = func() {}
	}

	svc := lifecycle.New(repo)
	api := httpapi.New(svc, users, probe, version)

	handler := api.Handler()
	handler = httpapi.RateLimit(handler, rateBurst(), ratePerSecond())
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler)
	handler = httpapi.RequestID(handler)

	addr := os.Getenv("TOOLVAULT_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting toolvault-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	obs.SetReady(false)
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	closer()
	log.Println("Stopped")
}

// seedBootstrapAdmin creates the initial admin account in volatile mode so
// the API is reachable without migrations.
func seedBootstrapAdmin(users *auth.InMemory) {
	email := strings.TrimSpace(os.Getenv("TOOLVAULT_ADMIN_EMAIL"))
	password := os.Getenv("TOOLVAULT_ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Println("no bootstrap admin configured; set TOOLVAULT_ADMIN_EMAIL and TOOLVAULT_ADMIN_PASSWORD")
		return
	}
	if _, err := users.CreateUser(context.Background(), email, password, auth.RoleAdmin); err != nil {
		log.Fatalf("seed bootstrap admin: %v", err)
	}
	log.Printf("bootstrap admin %s seeded", email)
}

func rateBurst() int {
	return envInt("TOOLVAULT_RATE_BURST", 50)
}

func ratePerSecond() int {
	return envInt("TOOLVAULT_RATE_PER_SECOND", 25)
}

func envInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
