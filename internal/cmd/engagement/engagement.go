// Package engagement parses engagement command flags and launches the
// engagement runtime.
package engagement

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/loopline-hq/loopline/internal/platform/cmd"
	engagementserver "github.com/loopline-hq/loopline/internal/services/engagement/app"
)

// Config holds engagement command configuration.
type Config struct {
	Port          int           `env:"LOOPLINE_ENGAGEMENT_PORT" envDefault:"8092"`
	DBPath        string        `env:"LOOPLINE_ENGAGEMENT_DB_PATH" envDefault:"data/engagement.db"`
	OracleURL     string        `env:"LOOPLINE_ENGAGEMENT_ORACLE_URL"`
	OracleModel   string        `env:"LOOPLINE_ENGAGEMENT_ORACLE_MODEL"`
	OracleAPIKey  string        `env:"LOOPLINE_ENGAGEMENT_ORACLE_API_KEY"`
	OracleTimeout time.Duration `env:"LOOPLINE_ENGAGEMENT_ORACLE_TIMEOUT" envDefault:"30s"`
	PollInterval  time.Duration `env:"LOOPLINE_ENGAGEMENT_POLL_INTERVAL" envDefault:"2s"`
	PollBatch     int           `env:"LOOPLINE_ENGAGEMENT_POLL_BATCH" envDefault:"20"`

	MinInterval       time.Duration `env:"LOOPLINE_ENGAGEMENT_MIN_INTERVAL" envDefault:"168h"`
	StrikeWindow      time.Duration `env:"LOOPLINE_ENGAGEMENT_STRIKE_WINDOW" envDefault:"2160h"`
	StrikeCap         int           `env:"LOOPLINE_ENGAGEMENT_STRIKE_CAP" envDefault:"3"`
	ResponseWindow    time.Duration `env:"LOOPLINE_ENGAGEMENT_RESPONSE_WINDOW" envDefault:"0"`
	DormancyThreshold int           `env:"LOOPLINE_ENGAGEMENT_DORMANCY_THRESHOLD" envDefault:"2"`
	RankingSize       int           `env:"LOOPLINE_ENGAGEMENT_RANKING_SIZE" envDefault:"10"`
	DeclineExtension  time.Duration `env:"LOOPLINE_ENGAGEMENT_DECLINE_EXTENSION" envDefault:"720h"`
	UnavailableRetry  time.Duration `env:"LOOPLINE_ENGAGEMENT_UNAVAILABLE_RETRY" envDefault:"24h"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The engagement health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The engagement SQLite database path")
	fs.StringVar(&cfg.OracleURL, "oracle-url", cfg.OracleURL, "The decision oracle endpoint URL")
	fs.StringVar(&cfg.OracleModel, "oracle-model", cfg.OracleModel, "The decision oracle model variant")
	fs.DurationVar(&cfg.OracleTimeout, "oracle-timeout", cfg.OracleTimeout, "Decision oracle request timeout")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Follow-up poll interval")
	fs.IntVar(&cfg.PollBatch, "poll-batch", cfg.PollBatch, "Maximum follow-ups claimed per poll")
	fs.DurationVar(&cfg.MinInterval, "min-interval", cfg.MinInterval, "Minimum gap between proactive contacts")
	fs.DurationVar(&cfg.StrikeWindow, "strike-window", cfg.StrikeWindow, "Window for counting unanswered contacts")
	fs.IntVar(&cfg.StrikeCap, "strike-cap", cfg.StrikeCap, "Unanswered contacts before pausing a user")
	fs.DurationVar(&cfg.ResponseWindow, "response-window", cfg.ResponseWindow, "Response window per contact, zero for unconstrained")
	fs.IntVar(&cfg.DormancyThreshold, "dormancy-threshold", cfg.DormancyThreshold, "Presentations before an opportunity goes dormant")
	fs.IntVar(&cfg.RankingSize, "ranking-size", cfg.RankingSize, "Priority ranking projection size")
	fs.DurationVar(&cfg.DeclineExtension, "decline-extension", cfg.DeclineExtension, "Default recheck delay after an oracle decline")
	fs.DurationVar(&cfg.UnavailableRetry, "unavailable-retry", cfg.UnavailableRetry, "Recheck delay after a collaborator failure")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the engagement runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEngagement, func(context.Context) error {
		return engagementserver.Run(ctx, engagementserver.RuntimeConfig{
			Port:              cfg.Port,
			DBPath:            cfg.DBPath,
			OracleURL:         cfg.OracleURL,
			OracleModel:       cfg.OracleModel,
			OracleAPIKey:      cfg.OracleAPIKey,
			OracleTimeout:     cfg.OracleTimeout,
			PollInterval:      cfg.PollInterval,
			PollBatch:         cfg.PollBatch,
			MinInterval:       cfg.MinInterval,
			StrikeWindow:      cfg.StrikeWindow,
			StrikeCap:         cfg.StrikeCap,
			ResponseWindow:    cfg.ResponseWindow,
			DormancyThreshold: cfg.DormancyThreshold,
			RankingSize:       cfg.RankingSize,
			DeclineExtension:  cfg.DeclineExtension,
			UnavailableRetry:  cfg.UnavailableRetry,
		})
	})
}
