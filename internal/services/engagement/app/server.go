// Package app wires the engagement engine runtime: storage, the decision
// orchestrator, the follow-up polling loop, and the health gRPC server.
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

	"github.com/loopline-hq/loopline/internal/platform/id"
	"github.com/loopline-hq/loopline/internal/platform/timeouts"
	"github.com/loopline-hq/loopline/internal/services/engagement/domain"
	engagementoracle "github.com/loopline-hq/loopline/internal/services/engagement/oracle"
	engagementsqlite "github.com/loopline-hq/loopline/internal/services/engagement/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeConfig controls engagement startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port          int
	DBPath        string
	OracleURL     string
	OracleModel   string
	OracleAPIKey  string
	OracleTimeout time.Duration
	PollInterval  time.Duration
	PollBatch     int

	MinInterval       time.Duration
	StrikeWindow      time.Duration
	StrikeCap         int
	ResponseWindow    time.Duration
	DormancyThreshold int
	RankingSize       int
	DeclineExtension  time.Duration
	UnavailableRetry  time.Duration
}

const (
	defaultEngagementPort = 8092
	defaultEngagementDB   = "data/engagement.db"
)

// Run starts engagement runtime dependencies and the follow-up loop.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultEngagementPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultEngagementDB
	}
	if cfg.OracleTimeout <= 0 {
		cfg.OracleTimeout = timeouts.OracleRequest
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create engagement storage dir: %w", err)
		}
	}

	store, err := engagementsqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open engagement sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close engagement sqlite store: %v", closeErr)
		}
	}()

	domainCfg := domain.Config{
		MinInterval:       cfg.MinInterval,
		StrikeWindow:      cfg.StrikeWindow,
		StrikeCap:         cfg.StrikeCap,
		ResponseWindow:    cfg.ResponseWindow,
		DormancyThreshold: cfg.DormancyThreshold,
		RankingSize:       cfg.RankingSize,
		DeclineExtension:  cfg.DeclineExtension,
		UnavailableRetry:  cfg.UnavailableRetry,
	}

	var decisionOracle domain.Oracle
	if strings.TrimSpace(cfg.OracleURL) != "" {
		decisionOracle = engagementoracle.NewClient(engagementoracle.Config{
			DecisionsURL: cfg.OracleURL,
			Model:        cfg.OracleModel,
			APIKey:       cfg.OracleAPIKey,
		})
	} else {
		log.Printf("engagement: no oracle url configured, using static oracle")
		decisionOracle = engagementoracle.NewStatic()
	}

	orchestrator := BuildOrchestrator(store, decisionOracle, domainCfg, cfg.OracleTimeout)

	loop := NewLoop(orchestrator, store, nil, LoopConfig{
		PollInterval: cfg.PollInterval,
		PollBatch:    cfg.PollBatch,
	}, nil)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on engagement port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("engagement.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Printf("engagement server listening at %v", listener.Addr())
	return loop.Run(ctx)
}

// BuildOrchestrator wires a decision orchestrator over one SQLite store.
func BuildOrchestrator(store *engagementsqlite.Store, decisionOracle domain.Oracle, cfg domain.Config, oracleTimeout time.Duration) *domain.Orchestrator {
	return domain.NewOrchestrator(domain.OrchestratorDeps{
		Throttle:      domain.NewThrottle(store, store, store, nil, cfg),
		Ranker:        domain.NewRanker(store, store, nil, nil, cfg),
		Tracker:       domain.NewTracker(store, store, store, store, nil, cfg),
		Resolver:      domain.NewResolver(store, store, nil),
		Oracle:        decisionOracle,
		Opportunities: store,
		Attempts:      store,
		FollowUps:     store,
		Messages:      store,
		Profile:       store,
		Audit:         store,
		Triggers:      store,
		NewID:         id.NewID,
		OracleTimeout: oracleTimeout,
	}, cfg)
}
