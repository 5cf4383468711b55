package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"ledger-service/internal/config"
	"ledger-service/internal/domain"
	"ledger-service/internal/handler"
	"ledger-service/internal/middleware"
	"ledger-service/internal/repository"
	"ledger-service/internal/service"
	"ledger-service/internal/validation"
	"ledger-service/migrations"
)

// Server represents the HTTP server
type Server struct {
	router *mux.Router
	server *http.Server
	db     *sql.DB
	cache  *redis.Client
	logger *slog.Logger
	port   string
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, db, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = newRedisClient(context.Background(), cfg.RedisURL)
		if err != nil {
			if db != nil {
				db.Close()
			}
			return nil, err
		}
		logger.Info("Idempotency cache enabled", "ttl", cfg.IdempotencyTTL)
	}

	return &Server{
		router: NewRouter(cfg, store, cache, logger),
		db:     db,
		cache:  cache,
		logger: logger,
	}, nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (domain.Store, *sql.DB, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		logger.Warn("Using in-memory storage; data is lost on restart")
		return repository.NewMemoryStore(repository.DefaultAccountTypes()...), nil, nil
	}

	// Initialize database connection
	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test database connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, err
	}

	logger.Info("Successfully connected to database")

	if cfg.AutoMigrate {
		if err := migrations.Apply(context.Background(), db); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("Database migrations applied")
	}

	return repository.NewStore(db, logger), db, nil
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// NewRouter wires services and handlers over the given store. cache may be nil,
// which disables idempotent replay.
func NewRouter(cfg *config.Config, store domain.Store, cache *redis.Client, logger *slog.Logger) *mux.Router {
	limits, fallbacks := cfg.Limits()
	for _, name := range fallbacks {
		logger.Warn("Malformed amount setting, using default", "setting", name)
	}

	// Initialize services
	accountService := service.NewAccountService(store, cfg.DefaultAccountNo, logger)
	transactionService := service.NewTransactionService(store, accountService, validation.NewValidator(limits), logger)

	// Initialize handlers
	accountHandler := handler.NewAccountHandler(accountService)
	transactionHandler := handler.NewTransactionHandler(transactionService)

	// Setup router
	router := mux.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))

	users := router.PathPrefix("/users/{user_id:[0-9]+}").Subrouter()
	if cache != nil {
		users.Use(middleware.Idempotency(cache, cfg.IdempotencyTTL, logger))
	}

	users.HandleFunc("/account", accountHandler.GetAccount).Methods("GET")
	users.HandleFunc("/deposits", transactionHandler.Deposit).Methods("POST")
	users.HandleFunc("/withdrawals", transactionHandler.Withdraw).Methods("POST")
	users.HandleFunc("/transactions", transactionHandler.Report).Methods("GET")

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods("GET")

	return router
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port string) (string, error) {
	// Create listener first to get actual port
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	// Get the actual port being used
	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	// Create HTTP server
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server", "port", s.port)

	// Start server in background
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server failed to start", "error", err)
		}
	}()

	return s.port, nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var err error
	// Drain in-flight requests before closing their dependencies
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return err
}

// GetPort returns the port the server is listening on
func (s *Server) GetPort() string {
	return s.port
}

// GetBaseURL returns the base URL for the server
func (s *Server) GetBaseURL() string {
	return "http://localhost:" + s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// NewLogger builds the JSON logger at the given level, falling back to info.
func NewLogger(level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// StartServer starts the server with the given configuration
func StartServer(cfg *config.Config) (*Server, string, error) {
	var logger *slog.Logger
	if cfg.ServerPort == "0" {
		// Test environment - use discard logger
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = NewLogger(cfg.LogLevel)
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	// Start the server and get the actual port
	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		return nil, "", err
	}

	return server, port, nil
}
