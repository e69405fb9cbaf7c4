package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"diffsync-server/internal/config"
	"diffsync-server/internal/discovery"
	"diffsync-server/internal/domain"
	"diffsync-server/internal/handler"
	"diffsync-server/internal/middleware"
	"diffsync-server/internal/registry"
	"diffsync-server/internal/relay"
	"diffsync-server/internal/repository"
	"diffsync-server/internal/service"
	"diffsync-server/internal/synchronizer"
	"diffsync-server/internal/websocket"
	"diffsync-server/pkg/jwt"
	"diffsync-server/pkg/textdiff"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/cenkalti/backoff"
	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const version = "1.0.0"

// documentSync is a synchronizer that can also decode wire content.
type documentSync[T, D any] interface {
	synchronizer.Synchronizer[T, D]
	synchronizer.ContentCodec[T]
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	switch synchronizer.Kind(cfg.Sync.DocumentType) {
	case synchronizer.KindJSON:
		err = run[json.RawMessage, domain.PatchOperation](cfg, synchronizer.NewJSONSynchronizer())
	default:
		err = run[string, domain.Diff](cfg, synchronizer.NewTextSynchronizer(newDiffMatchPatch(cfg.Sync)))
	}
	if err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func newDiffMatchPatch(cfg config.SyncConfig) *textdiff.DiffMatchPatch {
	dmp := textdiff.New()
	dmp.DiffTimeout = cfg.DiffTimeout
	dmp.PatchMargin = cfg.PatchMargin
	dmp.MatchThreshold = cfg.MatchThreshold
	dmp.MatchDistance = cfg.MatchDistance
	return dmp
}

func run[T, D any](cfg *config.Config, sync documentSync[T, D]) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore[T, D](ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Failed to close store: %v", err)
		}
	}()

	engine := service.NewSyncEngine[T, D](store, sync)
	listeners := registry.New[handler.Listener]()

	wsManager := websocket.NewManager(
		cfg.WebSocket.MaxConnections,
		cfg.WebSocket.MaxMessageSize,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
	)

	syncHandler := handler.NewSyncHandler[T, D](engine, sync, listeners, cfg.Sync.FanOutConcurrency)
	wsManager.SetMessageHandler(syncHandler)
	go wsManager.Run(ctx)

	var nodeID string
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if _, err := rdb.Ping(ctx).Result(); err != nil {
			return fmt.Errorf("could not connect to Redis: %w", err)
		}
		log.Printf("Connected to Redis at %s", cfg.Redis.Addr)

		rl := relay.New(rdb, cfg.Redis.Channel)
		nodeID = rl.NodeID()
		syncHandler.SetPublisher(rl)
		go func() {
			// The originating client is connected to another node, so every
			// local listener is notified.
			notify := func(documentID, _ string) { syncHandler.NotifyListeners(documentID, "") }
			if err := rl.Run(ctx, notify); err != nil {
				log.Printf("[Relay] Stopped: %v", err)
			}
		}()
	}

	wsHandler := handler.NewWebSocketHandler(
		wsManager,
		cfg.JWT.Secret,
		cfg.JWT.Required,
		cfg.WebSocket.ReadBufferSize,
		cfg.WebSocket.WriteBufferSize,
	)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.AuthMiddleware(cfg.JWT.Secret, cfg.JWT.Required))

	api.HandleFunc("/documents/{id}", syncHandler.GetDocument).Methods("GET", "OPTIONS")
	api.HandleFunc("/sync", syncHandler.Sync).Methods("POST", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)

	r.HandleFunc("/health", healthHandler(cfg, wsManager, listeners)).Methods("GET")
	r.HandleFunc("/", rootHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	if cfg.Discovery.Enabled {
		port, err := strconv.Atoi(cfg.Server.Port)
		if err != nil {
			return fmt.Errorf("invalid PORT for discovery: %w", err)
		}
		announcement, err := discovery.Announce(
			cfg.Discovery.Instance,
			cfg.Discovery.Service,
			cfg.Discovery.Domain,
			port,
			discovery.Info{Version: version, DocumentType: cfg.Sync.DocumentType, NodeID: nodeID},
		)
		if err != nil {
			log.Printf("[Discovery] %v", err)
		} else {
			defer announcement.Shutdown()
		}
	}

	if cfg.JWT.Required && cfg.Server.Env == "development" {
		if token, err := jwt.GenerateToken("dev-client", cfg.JWT.Expiration, cfg.JWT.Secret); err == nil {
			log.Printf("Development token (expires in %v): %s", cfg.JWT.Expiration, token)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Starting DiffSync Server on %s (env: %s, documents: %s, store: %s)",
			addr, cfg.Server.Env, cfg.Sync.DocumentType, cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("server failed to start: %w", err)
	}

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	cancel()
	<-wsManager.Done()
	syncHandler.Shutdown()
	listeners.Clear()

	log.Println("Server stopped gracefully")
	return nil
}

func openStore[T, D any](ctx context.Context, cfg *config.Config) (repository.DataStore[T, D], error) {
	switch cfg.Store.Driver {
	case "couchdb":
		couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.Host,
			cfg.Database.Port,
		)

		client, err := kivik.New("couch", couchURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
		}

		exists, err := client.DBExists(ctx, cfg.Database.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to check database existence: %w", err)
		}
		if !exists {
			if err := client.CreateDB(ctx, cfg.Database.Name); err != nil {
				return nil, fmt.Errorf("failed to create database: %w", err)
			}
			log.Printf("Created database: %s", cfg.Database.Name)
		}

		log.Printf("Connected to CouchDB at %s:%s", cfg.Database.Host, cfg.Database.Port)
		return repository.NewCouchStore[T, D](client, cfg.Database.Name), nil

	case "bolt":
		store, err := repository.NewBoltStore[T, D](cfg.Store.BoltPath)
		if err != nil {
			return nil, err
		}
		log.Printf("Opened bolt store at %s", cfg.Store.BoltPath)
		return store, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to database: %w", err)
		}
		store := repository.NewPostgresStore[T, D](pool)

		policy := backoff.NewExponentialBackOff()
		policy.MaxElapsedTime = 30 * time.Second
		err = backoff.RetryNotify(func() error {
			if err := pool.Ping(ctx); err != nil {
				return err
			}
			return store.EnsureSchema(ctx)
		}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
			log.Printf("PostgreSQL not ready: %v, retrying in %v", err, wait)
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to prepare PostgreSQL: %w", err)
		}

		log.Println("Connected to PostgreSQL successfully.")
		return store, nil

	default:
		log.Println("Using in-memory store")
		return repository.NewMemoryStore[T, D](), nil
	}
}

func healthHandler(cfg *config.Config, manager *websocket.Manager, listeners *registry.Registry[handler.Listener]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":       "healthy",
			"service":      "diffsync-server",
			"documentType": cfg.Sync.DocumentType,
			"store":        cfg.Store.Driver,
			"connections":  manager.ClientCount(),
			"documents":    len(listeners.Documents()),
		})
	}
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"DiffSync Server API","version":"` + version + `","endpoints":{"/ws":"WebSocket","/api/v1/documents/{id}":"GET","/api/v1/sync":"POST","/health":"GET"}}`))
}
