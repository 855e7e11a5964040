// Command pagepulsed is the hosted Pagepulse archive service.
// It serves the run ingest and query API, the collector webhook
// endpoint, and a health check.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/pagepulse/pagepulse/internal/api"
	"github.com/pagepulse/pagepulse/internal/archive"
	"github.com/pagepulse/pagepulse/internal/blob"
	"github.com/pagepulse/pagepulse/internal/ingest"
	"github.com/pagepulse/pagepulse/internal/notify"
	"github.com/pagepulse/pagepulse/internal/platform"
	"github.com/pagepulse/pagepulse/internal/webhook"
	"github.com/pagepulse/pagepulse/pkg/kpi"
)

type config struct {
	Port             string
	DatabaseURL      string
	APIKeys          []string
	WebhookSecret    string
	StorageBackend   string
	StoragePath      string
	StorageBucket    string
	StorageRegion    string
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	KPIConfigPath    string
	NotifyURL        string
	NotifySecret     string
}

func loadConfig() config {
	cfg := config{
		Port:             envOrDefault("PORT", "8080"),
		DatabaseURL:      envOrDefault("PAGEPULSE_DATABASE_URL", "postgres://localhost:5432/pagepulse?sslmode=disable"),
		WebhookSecret:    os.Getenv("PAGEPULSE_WEBHOOK_SECRET"),
		StorageBackend:   envOrDefault("PAGEPULSE_STORAGE_BACKEND", "local"),
		StoragePath:      envOrDefault("PAGEPULSE_STORAGE_PATH", "/var/lib/pagepulse/blobs"),
		StorageBucket:    os.Getenv("PAGEPULSE_STORAGE_BUCKET"),
		StorageRegion:    os.Getenv("PAGEPULSE_STORAGE_REGION"),
		StorageEndpoint:  os.Getenv("PAGEPULSE_STORAGE_ENDPOINT"),
		StorageAccessKey: os.Getenv("PAGEPULSE_STORAGE_ACCESS_KEY"),
		StorageSecretKey: os.Getenv("PAGEPULSE_STORAGE_SECRET_KEY"),
		KPIConfigPath:    os.Getenv("PAGEPULSE_KPI_CONFIG"),
		NotifyURL:        os.Getenv("PAGEPULSE_NOTIFY_URL"),
		NotifySecret:     os.Getenv("PAGEPULSE_NOTIFY_SECRET"),
	}
	for _, k := range strings.Split(os.Getenv("PAGEPULSE_API_KEYS"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			cfg.APIKeys = append(cfg.APIKeys, k)
		}
	}
	return cfg
}

func main() {
	cfg := loadConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "open database", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		fatal(logger, "ping database", err)
	}
	if err := platform.AutoMigrate(db); err != nil {
		fatal(logger, "migrate database", err)
	}

	storage, err := openStorage(ctx, cfg)
	if err != nil {
		fatal(logger, "open blob storage", err)
	}

	archiveSvc := archive.NewService(db)
	ingestSvc := ingest.NewService(archiveSvc, storage, logger)

	var notifier api.Notifier
	if cfg.NotifyURL != "" {
		notifier = notify.NewClient(cfg.NotifyURL, []byte(cfg.NotifySecret))
	}

	kpiConfig := watchKPIConfig(ctx, cfg.KPIConfigPath, logger)

	handler := api.NewHandler(archiveSvc, ingestSvc, nil, kpiConfig, notifier, logger)
	apiMux := http.NewServeMux()
	handler.RegisterRoutes(apiMux)

	auth := api.APIKeyAuth(cfg.APIKeys)

	mux := http.NewServeMux()
	mux.Handle("/api/", auth(apiMux))
	mux.Handle("POST /webhook/collector", webhook.NewHandler([]byte(cfg.WebhookSecret), ingestSvc, archiveSvc, logger))
	mux.HandleFunc("GET /healthz", healthHandler(db))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.CORS(api.RequestLog(logger)(mux)),
	}

	go func() {
		logger.Info("starting pagepulsed", "addr", srv.Addr, "storage", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, "listen", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

func openStorage(ctx context.Context, cfg config) (blob.Client, error) {
	switch cfg.StorageBackend {
	case "", "local":
		return blob.NewLocalStorage(cfg.StoragePath), nil
	case "s3":
		return blob.NewS3Storage(ctx, blob.S3Config{
			Bucket:    cfg.StorageBucket,
			Region:    cfg.StorageRegion,
			Endpoint:  cfg.StorageEndpoint,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
		})
	case "gcs":
		return blob.NewGCSStorage(ctx, cfg.StorageBucket)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want local, s3, or gcs)", cfg.StorageBackend)
	}
}

// watchKPIConfig loads the scoring config and hot-reloads it whenever
// the file changes, so rescoring picks up threshold edits without a
// restart. The returned getter is safe for concurrent use; a nil return
// means no config file is set and built-in defaults apply.
func watchKPIConfig(ctx context.Context, path string, logger *slog.Logger) func() *kpi.Config {
	if path == "" {
		return nil
	}

	cfg, err := kpi.Load(path)
	if err != nil {
		fatal(logger, "load kpi config", err)
	}

	current := &atomic.Pointer[kpi.Config]{}
	current.Store(cfg)

	go func() {
		if err := kpi.Watch(ctx, path, logger, func(next *kpi.Config) {
			current.Store(next)
		}); err != nil {
			logger.Error("kpi watch stopped", "err", err)
		}
	}()

	return current.Load
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
