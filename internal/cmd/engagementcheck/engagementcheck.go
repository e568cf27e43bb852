// Package engagementcheck provides a CLI that runs one engagement check
// against a local engagement database and prints the decision.
package engagementcheck

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	entrypoint "github.com/loopline-hq/loopline/internal/platform/cmd"
	"github.com/loopline-hq/loopline/internal/platform/id"
	"github.com/loopline-hq/loopline/internal/services/engagement/app"
	"github.com/loopline-hq/loopline/internal/services/engagement/domain"
	engagementoracle "github.com/loopline-hq/loopline/internal/services/engagement/oracle"
	engagementsqlite "github.com/loopline-hq/loopline/internal/services/engagement/storage/sqlite"
)

// Config holds engagement check command configuration.
type Config struct {
	DBPath        string        `env:"LOOPLINE_ENGAGEMENT_DB_PATH" envDefault:"data/engagement.db"`
	UserID        string        `env:"LOOPLINE_ENGAGEMENT_CHECK_USER"`
	TriggerID     string        `env:"LOOPLINE_ENGAGEMENT_CHECK_TRIGGER"`
	OracleURL     string        `env:"LOOPLINE_ENGAGEMENT_ORACLE_URL"`
	OracleModel   string        `env:"LOOPLINE_ENGAGEMENT_ORACLE_MODEL"`
	OracleAPIKey  string        `env:"LOOPLINE_ENGAGEMENT_ORACLE_API_KEY"`
	OracleTimeout time.Duration `env:"LOOPLINE_ENGAGEMENT_ORACLE_TIMEOUT" envDefault:"30s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The engagement SQLite database path")
	fs.StringVar(&cfg.UserID, "user", cfg.UserID, "The user to check")
	fs.StringVar(&cfg.TriggerID, "trigger", cfg.TriggerID, "The trigger id; generated when empty")
	fs.StringVar(&cfg.OracleURL, "oracle-url", cfg.OracleURL, "The decision oracle endpoint URL; static oracle when empty")
	fs.StringVar(&cfg.OracleModel, "oracle-model", cfg.OracleModel, "The decision oracle model variant")
	fs.DurationVar(&cfg.OracleTimeout, "oracle-timeout", cfg.OracleTimeout, "Decision oracle request timeout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes one engagement check and writes the decision to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	userID := strings.TrimSpace(cfg.UserID)
	if userID == "" {
		return fmt.Errorf("user is required")
	}
	triggerID := strings.TrimSpace(cfg.TriggerID)
	if triggerID == "" {
		generated, err := id.NewID()
		if err != nil {
			return fmt.Errorf("generate trigger id: %w", err)
		}
		triggerID = "manual:" + generated
	}

	store, err := engagementsqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open engagement sqlite store: %w", err)
	}
	defer store.Close()

	var decisionOracle domain.Oracle
	if strings.TrimSpace(cfg.OracleURL) != "" {
		decisionOracle = engagementoracle.NewClient(engagementoracle.Config{
			DecisionsURL: cfg.OracleURL,
			Model:        cfg.OracleModel,
			APIKey:       cfg.OracleAPIKey,
		})
	} else {
		decisionOracle = engagementoracle.NewStatic()
	}

	orchestrator := app.BuildOrchestrator(store, decisionOracle, domain.DefaultConfig(), cfg.OracleTimeout)
	result, err := orchestrator.RunCheck(ctx, userID, triggerID)
	if err != nil {
		return fmt.Errorf("run check: %w", err)
	}

	fmt.Fprintf(out, "user: %s\n", userID)
	fmt.Fprintf(out, "trigger: %s\n", triggerID)
	fmt.Fprintf(out, "outcome: %s\n", result.Outcome)
	if !result.NextCheckAt.IsZero() {
		fmt.Fprintf(out, "next check: %s\n", result.NextCheckAt.Format(time.RFC3339))
	}
	for _, thread := range result.Threads {
		fmt.Fprintf(out, "thread %d: %s %s %s\n", thread.Priority, thread.ItemType, thread.ItemID, thread.Guidance)
	}
	return nil
}
