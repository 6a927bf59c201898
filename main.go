package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nonsonwune/examresults/cache"
	"github.com/nonsonwune/examresults/config"
	"github.com/nonsonwune/examresults/database"
	"github.com/nonsonwune/examresults/ingest"
	"github.com/nonsonwune/examresults/loader"
	"github.com/nonsonwune/examresults/logging"
	"github.com/nonsonwune/examresults/migrations"
	"github.com/nonsonwune/examresults/query"
	"github.com/nonsonwune/examresults/ranking"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	envFile  string
	logLevel string
}

// app is the wired service graph behind the commands.
type app struct {
	config *config.Config
	logger *zap.Logger
	db     *sql.DB
	engine *ranking.Engine
	query  *query.Service
	ingest *ingest.Service
}

// open loads the configuration, connects to the store and migrates it.
func (o *globalOptions) open(ctx context.Context) (*app, error) {
	var files []string
	if o.envFile != "" {
		files = append(files, o.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := migrations.InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	engine := ranking.New(db, ranking.Config{
		Timeout:           cfg.Ingest.Timeout,
		SessionnaireFloor: cfg.Query.SessionnaireFloor,
	}, logger)
	q := query.New(db, engine, cache.New(cfg.Query.CacheTTL, cache.SystemClock), cfg.Thresholds, logger)
	l := loader.New(db, loader.Config{
		BatchSize: cfg.Ingest.BatchSize,
		Timeout:   cfg.Ingest.Timeout,
	}, logger)
	in := ingest.New(l, engine, q, ingest.Config{
		MaxUploadBytes: cfg.Ingest.MaxUploadBytes,
		MinYear:        cfg.Ingest.MinYear,
		MaxYear:        cfg.Ingest.MaxYear,
	}, logger)

	logger.Debug("store ready",
		zap.String("driver", cfg.Database.Driver),
		zap.Int("thresholds", cfg.Thresholds.Len()))
	return &app{config: cfg, logger: logger, db: db, engine: engine, query: q, ingest: in}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
	a.db.Close()
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "examresults",
		Short:         "Publish BAC and BREVET exam results",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Environment file to load (default .env)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newAnalyzeCmd(opts),
		newImportCmd(opts),
		newClearCmd(opts),
		newRanksCmd(opts),
		newAuditCmd(opts),
		newUploadsCmd(opts),
		newLookupCmd(opts),
		newRankingCmd(opts),
		newLeaderboardCmd(opts),
		newStatsCmd(opts),
		newSchoolCmd(opts),
		newRegionCmd(opts),
		newMenuCmd(opts),
	)
	return root
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
