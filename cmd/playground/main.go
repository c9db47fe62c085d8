package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"playground-gateway/internal/cache"
	"playground-gateway/internal/handlers"
	"playground-gateway/internal/httpserver"
	"playground-gateway/internal/metrics"
	"playground-gateway/internal/stack"
	"playground-gateway/pkg/logging/logging"
)

type Config struct {
	Port          string        `yaml:"port"`
	StackEndpoint string        `yaml:"llama_stack_endpoint"`
	CacheBackend  string        `yaml:"cache_backend"` // "memory" or "redis"
	RedisAddr     string        `yaml:"redis_addr"`
	DiscoveryTTL  time.Duration `yaml:"discovery_ttl"`
	StreamTimeout time.Duration `yaml:"stream_timeout"`

	KeycloakURL   string `yaml:"keycloak_url"`
	KeycloakRealm string `yaml:"keycloak_realm"`
	AppURL        string `yaml:"app_url"`
}

// LoadConfig layers defaults, the optional CONFIG_FILE, and finally the
// environment, so deployment env vars always win.
func LoadConfig() (Config, error) {
	cfg := Config{
		Port:          "8501",
		StackEndpoint: "http://localhost:8321",
		CacheBackend:  "memory",
		RedisAddr:     "127.0.0.1:6379",
		DiscoveryTTL:  5 * time.Minute,
		StreamTimeout: 5 * time.Minute,
		KeycloakRealm: "master",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, err
		}
	}

	overlay(&cfg.Port, "PORT")
	overlay(&cfg.StackEndpoint, "LLAMA_STACK_ENDPOINT")
	overlay(&cfg.CacheBackend, "CACHE_BACKEND")
	overlay(&cfg.RedisAddr, "REDIS_ADDR")
	overlayDuration(&cfg.DiscoveryTTL, "DISCOVERY_TTL")
	overlayDuration(&cfg.StreamTimeout, "STREAM_TIMEOUT")
	overlay(&cfg.KeycloakURL, "KEYCLOAK_URL")
	overlay(&cfg.KeycloakRealm, "KEYCLOAK_REALM")
	overlay(&cfg.AppURL, "APP_URL")

	return cfg, nil
}

// providerData collects the inference-provider API keys present in the
// environment; they ride to the stack on every request's provider-data
// header.
func providerData() map[string]string {
	keys := map[string]string{
		"fireworks_api_key":     os.Getenv("FIREWORKS_API_KEY"),
		"together_api_key":      os.Getenv("TOGETHER_API_KEY"),
		"sambanova_api_key":     os.Getenv("SAMBANOVA_API_KEY"),
		"openai_api_key":        os.Getenv("OPENAI_API_KEY"),
		"tavily_search_api_key": os.Getenv("TAVILY_SEARCH_API_KEY"),
	}
	data := map[string]string{}
	for k, v := range keys {
		if v != "" {
			data[k] = v
		}
	}
	return data
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("playground exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg, err := LoadConfig()
	if err != nil {
		logger.Error("config load failed", zap.Error(err))
		return err
	}

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("llama_stack_endpoint", cfg.StackEndpoint),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Duration("discovery_ttl", cfg.DiscoveryTTL),
		zap.Duration("stream_timeout", cfg.StreamTimeout),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.CacheBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.RedisAddr),
		)
	}

	// ----- Discovery cache -----
	store := cache.NewStore(cache.Config{
		Backend: cfg.CacheBackend,
		TTL:     cfg.DiscoveryTTL,
		Prefix:  "playground",
	}, redisClient)
	store = cache.NewLoggingStore(store)

	// ----- Upstream client factory -----
	factory := &stack.Factory{
		BaseURL:      cfg.StackEndpoint,
		ProviderData: providerData(),
		Cache:        store,
		DiscoveryTTL: cfg.DiscoveryTTL,
		Logger:       logger,
	}

	// ----- Handlers -----
	h := handlers.New(factory, cfg.StreamTimeout)
	h.KeycloakURL = cfg.KeycloakURL
	h.KeycloakRealm = cfg.KeycloakRealm
	h.AppURL = cfg.AppURL
	h.StackEndpoint = cfg.StackEndpoint

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, h)

	// ----- HTTP server -----
	// WriteTimeout must cover the longest event stream, not a single
	// response write.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.StreamTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting playground",
		zap.String("addr", srv.Addr),
		zap.String("llama_stack_endpoint", cfg.StackEndpoint),
	)

	// Start server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

// overlay replaces dst with the environment value when set.
func overlay(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overlayDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
