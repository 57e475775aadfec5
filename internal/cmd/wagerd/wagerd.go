// Package wagerd parses wagerd command flags and launches the wager runtime.
package wagerd

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/halvedgames/coinduel/internal/platform/cmd"
	wagerapp "github.com/halvedgames/coinduel/internal/services/wager/app"
)

// Config holds wagerd command configuration.
type Config struct {
	Port             int           `env:"COINDUEL_WAGERD_PORT" envDefault:"8094"`
	DBPath           string        `env:"COINDUEL_WAGERD_DB_PATH" envDefault:"data/wagerd.db"`
	PollInterval     time.Duration `env:"COINDUEL_WAGERD_POLL_INTERVAL" envDefault:"2s"`
	PropagationDelay time.Duration `env:"COINDUEL_WAGERD_PROPAGATION_DELAY" envDefault:"3s"`
	CompletionGrace  time.Duration `env:"COINDUEL_WAGERD_COMPLETION_GRACE" envDefault:"90s"`
	MaxMissedPolls   int           `env:"COINDUEL_WAGERD_MAX_MISSED_POLLS" envDefault:"3"`
	FeeRateBps       int64         `env:"COINDUEL_WAGERD_FEE_RATE_BPS" envDefault:"500"`
	Retention        time.Duration `env:"COINDUEL_WAGERD_RETENTION" envDefault:"15m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The wagerd health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The wagerd SQLite database path")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Ledger reconciliation poll interval")
	fs.DurationVar(&cfg.PropagationDelay, "propagation-delay", cfg.PropagationDelay, "Follow-up poll delay after local actions")
	fs.DurationVar(&cfg.CompletionGrace, "completion-grace", cfg.CompletionGrace, "Age before a drawn session counts as settled")
	fs.IntVar(&cfg.MaxMissedPolls, "max-missed-polls", cfg.MaxMissedPolls, "Consecutive missed polls before a session fails")
	fs.Int64Var(&cfg.FeeRateBps, "fee-rate-bps", cfg.FeeRateBps, "Platform fee in basis points")
	fs.DurationVar(&cfg.Retention, "retention", cfg.Retention, "Terminal session retention in the live registry")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the wagerd runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWagerd, func(context.Context) error {
		return wagerapp.Run(ctx, wagerapp.RuntimeConfig{
			Port:             cfg.Port,
			DBPath:           cfg.DBPath,
			PollInterval:     cfg.PollInterval,
			PropagationDelay: cfg.PropagationDelay,
			CompletionGrace:  cfg.CompletionGrace,
			MaxMissedPolls:   cfg.MaxMissedPolls,
			FeeRateBps:       cfg.FeeRateBps,
			Retention:        cfg.Retention,
		})
	})
}
