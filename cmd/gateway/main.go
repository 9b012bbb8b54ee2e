package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/electoral-office/fieldsync/internal/buildinfo"
	"github.com/electoral-office/fieldsync/internal/gateway"
	"github.com/electoral-office/fieldsync/internal/logging"

	_ "modernc.org/sqlite"
)

type gatewayConfig struct {
	Port         string
	Upstream     string
	CachePath    string
	CacheVersion string
	Precache     []string
}

func loadConfig() gatewayConfig {
	return gatewayConfig{
		Port:         getEnv("GATEWAY_PORT", "8080"),
		Upstream:     getEnv("GATEWAY_UPSTREAM", "http://127.0.0.1:8000"),
		CachePath:    getEnv("GATEWAY_CACHE_PATH", "gateway-cache.db"),
		CacheVersion: getEnv("GATEWAY_CACHE_VERSION", "v1"),
		Precache:     splitList(getEnv("GATEWAY_PRECACHE", "/dashboard/,/offline/")),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	ctx := context.Background()

	buildinfo.PrintBuildData(os.Stdout)
	godotenv.Load()

	cfg := loadConfig()
	logger := logging.NewTextLogger(os.Stderr, slog.LevelInfo)

	db, err := sql.Open("sqlite", cfg.CachePath)
	if err != nil {
		log.Fatalf("Failed to open cache database: %v", err)
	}
	defer db.Close()

	cache, err := gateway.NewCacheStore(ctx, db, gateway.CachePrefix+cfg.CacheVersion, logger)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}

	gw, err := gateway.New(cfg.Upstream, cache, logger)
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}

	if err := gw.Activate(ctx); err != nil {
		log.Fatalf("Failed to activate cache version: %v", err)
	}
	gw.Warm(ctx, cfg.Precache)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: gw.Router(),
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down gateway...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("Gateway listening on port %s, upstream %s", cfg.Port, cfg.Upstream)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Gateway error: %v", err)
	}

	log.Println("Gateway stopped gracefully")
}
