package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hermod-im/server/internal/auth"
	"github.com/hermod-im/server/internal/config"
	"github.com/hermod-im/server/internal/db"
	httphandler "github.com/hermod-im/server/internal/http"
	"github.com/hermod-im/server/internal/http/handlers"
	"github.com/hermod-im/server/internal/keyring"
	"github.com/hermod-im/server/internal/middleware"
	"github.com/hermod-im/server/internal/register"
	"github.com/hermod-im/server/internal/repo"
	"github.com/hermod-im/server/internal/sms"
	"github.com/hermod-im/server/internal/verify"

	_ "github.com/lib/pq"
)

func main() {
	// Env vars override anything in .env.
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	store, err := newStore(cfg, database)
	if err != nil {
		log.Fatalf("Failed to initialize verification store: %v", err)
	}

	kr, err := keyring.Load(cfg.SigningKeyFile, []keyring.DomainKey{
		{Domain: cfg.Domain, FingerprintHint: cfg.SigningKeyFingerprint},
	}, cfg.SigningKeyPassphrase)
	if err != nil {
		log.Fatalf("Failed to load signing key: %v", err)
	}

	provider, err := newProvider(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize SMS provider: %v", err)
	}
	log.Printf("SMS provider %q, sender %s", cfg.SMSProvider, provider.SenderID())

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service := register.NewService(
		store,
		provider,
		kr,
		repo.NewAccountRepo(database),
		jwtService,
		register.NewStats(promReg),
	)

	domains := []register.DomainInfo{{Domain: cfg.Domain, RegisterEnabled: cfg.RegisterEnabled}}
	ipLimiter := middleware.NewKeyLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)
	registerHandler := handlers.NewRegisterHandler(service, domains, cfg.CodeTTL, ipLimiter)

	var metrics http.Handler
	if cfg.MetricsEnabled {
		metrics = promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})
	}

	router := httphandler.NewRouter(registerHandler, jwtService, metrics)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s, domain %s", cfg.Port, cfg.Domain)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// newStore selects the verification code backend.
func newStore(cfg *config.Config, database *sql.DB) (verify.Store, error) {
	switch cfg.VerificationStore {
	case "postgres":
		return repo.NewVerificationRepo(database, cfg.CodeTTL, cfg.CodeLength), nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		return verify.NewRedisStore(client, cfg.CodeTTL, cfg.CodeLength), nil
	case "memory":
		log.Println("WARNING: in-memory verification store, codes are lost on restart")
		return verify.NewMemoryStore(cfg.CodeTTL, cfg.CodeLength), nil
	default:
		return nil, fmt.Errorf("unsupported store %q", cfg.VerificationStore)
	}
}

// newProvider builds the SMS provider from the registry and its optional
// YAML config file.
func newProvider(cfg *config.Config) (sms.Provider, error) {
	providerCfg, err := sms.LoadConfig(cfg.SMSProviderConfig)
	if err != nil {
		return nil, err
	}
	return sms.New(cfg.SMSProvider, providerCfg)
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the repo root)")
	}

	absDir, _ := filepath.Abs(migrationDir)
	log.Printf("Running migrations from %s", absDir)

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
