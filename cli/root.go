// Package cli implements the savings command line: the HTTP server and
// one-shot engine commands that share its configuration.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/warp/savings-engine/config"
	"github.com/warp/savings-engine/events/amqp"
	"github.com/warp/savings-engine/interest"
	"github.com/warp/savings-engine/logging"
	"github.com/warp/savings-engine/store/sqlite"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// rootOptions are the persistent flags. Empty means "use config".
type rootOptions struct {
	configPath string
	dbPath     string
	logLevel   string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     "savings",
		Short:   "Interest accrual engine for children's savings accounts",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (\":memory:\" for in-memory)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newAccrueCommand(opts),
		newProjectCommand(opts),
		newMigrateCommand(opts),
	)

	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// load reads config, applies flags and any command-specific overrides, then
// validates.
func (o *rootOptions) load(overrides ...func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.Database.Path = o.dbPath
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	for _, apply := range overrides {
		apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// engine is everything a command needs to run accrual against the database.
type engine struct {
	log       *logrus.Logger
	store     *sqlite.Store
	writer    *interest.LedgerWriter
	scheduler *interest.Scheduler
	publisher *amqp.Publisher
}

func openEngine(cfg *config.Config) (*engine, error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	rates, err := cfg.Accrual.RateTable()
	if err != nil {
		return nil, fmt.Errorf("rate table: %w", err)
	}

	st, err := openStore(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	e := &engine{log: log, store: st}
	e.writer = interest.NewLedgerWriter(st,
		interest.WithWriteTimeout(cfg.Accrual.WriteTimeout),
		interest.WithWriterLogger(log),
	)

	schedOpts := []interest.SchedulerOption{interest.WithWriter(e.writer)}
	if cfg.AMQP.URL != "" {
		pub, err := amqp.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			st.Close()
			return nil, err
		}
		e.publisher = pub
		schedOpts = append(schedOpts, interest.WithPublisher(pub))
		log.WithField("exchange", cfg.AMQP.Exchange).Info("publishing interest events")
	}
	e.scheduler = interest.NewScheduler(st, rates, log, schedOpts...)

	log.WithField("db", cfg.Database.Path).Debug("engine ready")
	return e, nil
}

// openStore opens and migrates the database, creating its directory first.
func openStore(path string) (*sqlite.Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	return sqlite.New(path)
}

func (e *engine) Close() error {
	if e.publisher != nil {
		if err := e.publisher.Close(); err != nil {
			e.log.WithError(err).Warn("closing AMQP publisher")
		}
	}
	return e.store.Close()
}
