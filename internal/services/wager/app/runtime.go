package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/halvedgames/coinduel/internal/services/wager/ledger"
	"github.com/halvedgames/coinduel/internal/services/wager/ledger/ledgertest"
	"github.com/halvedgames/coinduel/internal/services/wager/reconcile"
	"github.com/halvedgames/coinduel/internal/services/wager/registry"
	"github.com/halvedgames/coinduel/internal/services/wager/storage"
	wagersqlite "github.com/halvedgames/coinduel/internal/services/wager/storage/sqlite"
)

// RuntimeConfig controls wagerd startup, dependencies, and reconciliation
// policy.
type RuntimeConfig struct {
	Port             int
	DBPath           string
	PollInterval     time.Duration
	PropagationDelay time.Duration
	CompletionGrace  time.Duration
	MaxMissedPolls   int
	FeeRateBps       int64
	Retention        time.Duration

	// Ledger overrides the ledger client. Nil selects the in-memory dev
	// ledger so the service runs end-to-end without external dependencies.
	Ledger ledger.Client
	// Signer authorizes stake transfers. Nil means unsigned stakes.
	Signer ledger.Signer
	// OnReady, when set, receives the wired service once dependencies are up.
	OnReady func(*Service)
}

const (
	defaultWagerdPort = 8094
	defaultWagerdDB   = "data/wagerd.db"
)

// Run starts wagerd runtime dependencies and the reconciliation loop.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultWagerdPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultWagerdDB
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create wagerd storage dir: %w", err)
		}
	}

	historyStore, err := wagersqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open wagerd sqlite store: %w", err)
	}
	defer func() {
		if closeErr := historyStore.Close(); closeErr != nil {
			log.Printf("close wagerd sqlite store: %v", closeErr)
		}
	}()

	ledgerClient := cfg.Ledger
	if ledgerClient == nil {
		log.Printf("wagerd using in-memory dev ledger")
		ledgerClient = ledgertest.NewFake()
	}

	reg := registry.New()
	var completedStore storage.CompletedSessionStore = historyStore
	engine := reconcile.New(reg, ledgerClient, completedStore, reconcile.Config{
		PollInterval:     cfg.PollInterval,
		PropagationDelay: cfg.PropagationDelay,
		CompletionGrace:  cfg.CompletionGrace,
		MaxMissedPolls:   cfg.MaxMissedPolls,
		FeeRateBps:       cfg.FeeRateBps,
		Retention:        cfg.Retention,
	})
	service := NewService(reg, ledgerClient, cfg.Signer, completedStore, engine)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on wagerd port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("wagerd.reconcile", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	if cfg.OnReady != nil {
		cfg.OnReady(service)
	}

	log.Printf("wagerd listening at %v", listener.Addr())
	return engine.Run(ctx)
}
