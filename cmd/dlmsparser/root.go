package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Terminal3D/DLMS-Parser/internal/dlms"
	"github.com/Terminal3D/DLMS-Parser/internal/history"
	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/config"
	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/database"
	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/logging"
	"github.com/Terminal3D/DLMS-Parser/internal/pipeline"
	"github.com/Terminal3D/DLMS-Parser/internal/translator"

	// Registers the embedded SQL migrations with the database package.
	_ "github.com/Terminal3D/DLMS-Parser/migrations"
)

// errHistoryDisabled is returned by history commands when history.enabled is false.
var errHistoryDisabled = errors.New("parse history is disabled (history.enabled: false)")

// cliOptions holds the persistent flags shared by every subcommand.
type cliOptions struct {
	configPath string
	noHistory  bool
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   "dlmsparser",
		Short: "Decode DLMS/COSEM APDUs from hex",
		Long: `dlmsparser decodes DLMS/COSEM application PDUs (AARQ, AARE, Get, Set,
Action) from hexadecimal input into structured records.

Run "dlmsparser serve" for the HTTP/WebSocket service, or use the one-shot
commands to decode frames from the terminal.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"configuration file (default "+config.DefaultPath+", overridden by "+config.EnvPrefix+"CONFIG)")
	root.PersistentFlags().BoolVar(&opts.noHistory, "no-history", false,
		"do not record one-shot decodes in the parse history")

	root.AddCommand(
		newServeCmd(opts),
		newParseCmd(opts),
		newBatchCmd(opts),
		newValidateCmd(),
		newClassifyCmd(),
		newHistoryCmd(opts),
		newMigrateCmd(opts),
		newHashPasswordCmd(),
	)

	return root
}

// loadConfig resolves and loads configuration for one-shot commands.
// A missing file falls back to defaults.
func (o *cliOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(config.ResolvePath(o.configPath))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// cliLogger logs to the command's stderr so stdout stays clean for output.
func cliLogger(cmd *cobra.Command, cfg *config.Config) *logging.Logger {
	logCfg := cfg.Logging
	logCfg.Format = "text"
	return logging.NewWithWriter(logCfg, version, cmd.ErrOrStderr())
}

// openDatabase opens the configured SQLite database without migrating it.
func openDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// openHistory opens the configured database and returns its history
// repository. The returned close function must be called when done.
func openHistory(ctx context.Context, cfg *config.Config) (*history.SQLiteRepository, func(), error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	closeDB := func() {
		//nolint:errcheck // best-effort close on exit
		db.Close()
	}
	return history.NewSQLiteRepository(db.DB, cfg.History.MaxEntries), closeDB, nil
}

// newParser builds a dlms.Parser from the parser section of cfg.
func newParser(cfg *config.Config, logger *logging.Logger) (*dlms.Parser, error) {
	return dlms.NewParserWithOptions(dlms.ParserOptions{
		Decoder:          translator.New(),
		BatchConcurrency: cfg.Parser.BatchConcurrency,
		MaxBatchSize:     cfg.Parser.MaxBatchSize,
		MaxFrameBytes:    cfg.Parser.MaxFrameBytes,
		Logger:           logger,
	})
}

// openPipeline builds the decode pipeline used by one-shot commands.
// Decodes are recorded as history.SourceCLI unless history is disabled
// or --no-history is set.
func (o *cliOptions) openPipeline(cmd *cobra.Command) (*pipeline.Pipeline, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := cliLogger(cmd, cfg)

	parser, err := newParser(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	if o.noHistory || !cfg.History.Enabled {
		return pipeline.New(parser, nil, nil, nil, log), func() {}, nil
	}

	repo, closeDB, err := openHistory(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return pipeline.New(parser, repo, nil, nil, log), closeDB, nil
}

// decodeFailure turns a decode error into the message the user sees.
func decodeFailure(err error) error {
	p := dlms.ProblemFrom(err)
	if p.Detail == "" {
		return errors.New(p.Message)
	}
	return fmt.Errorf("%s: %s", p.Message, p.Detail)
}
