package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"yogastudio/internal/adapters/storage"
	journalStore "yogastudio/internal/adapters/storage/journal"
	"yogastudio/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

var errNoJournal = errors.New("no journal configured: set YOGA_JOURNAL_PATH or pass --journal")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries state shared by every subcommand.
type app struct {
	cfg        config.Config
	configPath string
	logLevel   string
	journal    string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "harness",
		Short:         "Scenario mock backend for the yoga studio app",
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.LogLevel = a.logLevel
			}
			if a.journal != "" {
				cfg.JournalPath = a.journal
			}
			a.cfg = cfg
			installLogger(cmd.ErrOrStderr(), cfg.SlogLevel())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (toml, yaml or json)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	root.PersistentFlags().StringVar(&a.journal, "journal", "", "journal database path")

	root.AddCommand(
		newServeCmd(a),
		newCheckCmd(a),
		newRunsCmd(a),
		newReportCmd(a),
	)
	return root
}

// installLogger routes slog through a charmbracelet handler for terminal output.
func installLogger(w io.Writer, level slog.Level) {
	logger := log.NewWithOptions(w, log.Options{
		Level:           log.Level(level),
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "harness",
	})
	slog.SetDefault(slog.New(logger))
}

// openJournal opens the configured journal store.
// POST: the returned close func releases the database
func (a *app) openJournal() (*journalStore.SQLiteStore, func() error, error) {
	if a.cfg.JournalPath == "" {
		return nil, nil, errNoJournal
	}
	db, err := storage.Open(a.cfg.JournalPath)
	if err != nil {
		return nil, nil, err
	}
	return journalStore.NewSQLiteStore(storage.NewTimedDB(db)), db.Close, nil
}
