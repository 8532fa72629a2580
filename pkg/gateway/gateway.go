// Package gateway provides a reusable Rundeck notification gateway that
// can be embedded into other Go applications.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/lei/rundeck-notify/internal/api"
	"github.com/lei/rundeck-notify/internal/config"
	"github.com/lei/rundeck-notify/internal/models"
	"github.com/lei/rundeck-notify/internal/service"
	"github.com/lei/rundeck-notify/pkg/logger"
)

// Gateway represents a notification gateway instance that can be
// embedded in applications
type Gateway struct {
	config  *Config
	service *service.Service
	router  http.Handler
	server  *http.Server
	logger  *logger.Logger
}

// Config holds the configuration for the Gateway
type Config struct {
	// Server configuration
	Server ServerConfig

	// Authentication configuration
	Auth AuthConfig

	// Sites is the registry of named Rundeck installations
	Sites []*models.Site

	// Logger configuration
	Logging LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// APIKeys is a list of API keys for authentication
	APIKeys []APIKey
}

// APIKey represents an API key for authentication
type APIKey struct {
	Name string
	Key  string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
}

// New creates a new Gateway instance with the provided configuration
func New(cfg *Config) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if len(cfg.Sites) == 0 {
		return nil, fmt.Errorf("at least one rundeck site is required")
	}

	// Initialize logger
	appLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	// Initialize service layer, validating every site up front
	svc, err := service.NewService(cfg.Sites, appLogger)
	if err != nil {
		return nil, fmt.Errorf("initialize sites: %w", err)
	}
	appLogger.Info("initialized site registry", "sites", len(cfg.Sites))

	// Initialize API layer
	handlers := api.NewHandlers(svc)

	configAPIKeys := make([]config.APIKey, len(cfg.Auth.APIKeys))
	for i, key := range cfg.Auth.APIKeys {
		configAPIKeys[i] = config.APIKey{
			Name: key.Name,
			Key:  key.Key,
		}
	}
	authMiddleware := api.NewAuthMiddleware(configAPIKeys)
	loggingMiddleware := api.NewLoggingMiddleware(appLogger)
	router := api.NewRouter(handlers, authMiddleware, loggingMiddleware)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Gateway{
		config:  cfg,
		service: svc,
		router:  router,
		server:  srv,
		logger:  appLogger,
	}, nil
}

// Start starts the HTTP server
// This is a blocking call that will run until the context is canceled or an error occurs
func (g *Gateway) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	// Start server in goroutine
	go func() {
		g.logger.Info("starting http server", "port", g.config.Server.Port)
		serverErrors <- g.server.ListenAndServe()
	}()

	// Wait for context cancellation or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		g.logger.Info("shutdown signal received")

		// Graceful shutdown with 30s timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := g.server.Shutdown(shutdownCtx); err != nil {
			g.server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		g.logger.Info("server stopped gracefully")
		return nil
	}
}

// Handler returns the http.Handler for the gateway
// Use this if you want to integrate the gateway into an existing HTTP server
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Service returns the underlying service layer
// Use this for direct programmatic access to gateway functionality
func (g *Gateway) Service() *service.Service {
	return g.service
}

// NewFromConfigFile creates a Gateway instance from a YAML
// configuration file and the site registry file. Environment variables
// referenced in either file are expanded while loading.
func NewFromConfigFile(configFile, sitesFile string) (*Gateway, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	sites, err := config.LoadSites(sitesFile)
	if err != nil {
		return nil, fmt.Errorf("load sites: %w", err)
	}

	apiKeys := make([]APIKey, len(cfg.Auth.APIKeys))
	for i, k := range cfg.Auth.APIKeys {
		apiKeys[i] = APIKey{Name: k.Name, Key: k.Key}
	}

	return New(&Config{
		Server: ServerConfig{
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		Auth:  AuthConfig{APIKeys: apiKeys},
		Sites: sites,
		Logging: LoggingConfig{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		},
	})
}

// NewFromEnv creates a Gateway instance from environment variables and
// the site registry file. Recognized variables: GATEWAY_PORT,
// GATEWAY_API_KEY, GATEWAY_API_KEY_NAME, LOG_LEVEL, LOG_FORMAT.
func NewFromEnv(sitesFile string) (*Gateway, error) {
	sites, err := config.LoadSites(sitesFile)
	if err != nil {
		return nil, fmt.Errorf("load sites: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Sites: sites,
		Logging: LoggingConfig{
			Level:  os.Getenv("LOG_LEVEL"),
			Format: os.Getenv("LOG_FORMAT"),
		},
	}

	if port := os.Getenv("GATEWAY_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid GATEWAY_PORT %q", port)
		}
		cfg.Server.Port = p
	}

	if key := os.Getenv("GATEWAY_API_KEY"); key != "" {
		name := os.Getenv("GATEWAY_API_KEY_NAME")
		if name == "" {
			name = "default"
		}
		cfg.Auth.APIKeys = []APIKey{{Name: name, Key: key}}
	}

	return New(cfg)
}
