package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nonsonwune/examresults/importer"
	"github.com/nonsonwune/examresults/ingest"
	"github.com/nonsonwune/examresults/models"
	"github.com/nonsonwune/examresults/query"
	"github.com/nonsonwune/examresults/server"
)

const shutdownTimeout = 15 * time.Second

// cohortFlags select one (year, exam type) cohort.
type cohortFlags struct {
	year int
	exam string
}

func (f *cohortFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.year, "year", 0, "Exam year (required)")
	cmd.Flags().StringVar(&f.exam, "exam", "", "Exam type: BAC or BREVET (required)")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("exam")
}

func (f *cohortFlags) examType() models.ExamType { return models.ExamType(f.exam) }

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the results and admin HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				srv := server.New(server.Config{
					Addr:           a.config.HTTPAddr,
					RateLimitRPS:   a.config.Query.RateLimitRPS,
					RateLimitBurst: a.config.Query.RateLimitBurst,
					MaxUploadBytes: a.config.Ingest.MaxUploadBytes,
				}, a.query, a.ingest, a.db, a.logger)

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				errCh := make(chan error, 1)
				go func() { errCh <- srv.ListenAndServe() }()

				select {
				case err := <-errCh:
					return err
				case <-ctx.Done():
				}
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown: %w", err)
				}
				return <-errCh
			})
		},
	}
}

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or verify the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", a.config.Database.Driver)
				return nil
			})
		},
	}
}

func newAnalyzeCmd(opts *globalOptions) *cobra.Command {
	var exam string
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Inspect a workbook and suggest a column mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("error opening file: %w", err)
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				analysis, err := a.ingest.Analyze(data, models.ExamType(exam))
				if err != nil {
					return err
				}
				displayAnalysis(cmd.OutOrStdout(), analysis)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&exam, "exam", "", "Exam type: BAC or BREVET (required)")
	_ = cmd.MarkFlagRequired("exam")
	return cmd
}

type importOptions struct {
	cohort      cohortFlags
	mappingFile string
	positional  bool
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	var o importOptions
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Ingest a results workbook into a cohort",
		Long: "Ingest a results workbook. Columns come from --mapping when given, " +
			"from the fixed positional layout with --positional, and otherwise from the suggested mapping.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("error opening file: %w", err)
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				mapping, err := o.resolveMapping(a, data)
				if err != nil {
					return err
				}
				outcome, err := a.ingest.Ingest(ctx, ingest.Request{
					Data:     data,
					FileName: filepath.Base(args[0]),
					Year:     o.cohort.year,
					ExamType: o.cohort.examType(),
					Mapping:  mapping,
				})
				if outcome != nil {
					displayOutcome(cmd.OutOrStdout(), outcome)
				}
				return err
			})
		},
	}
	o.cohort.register(cmd)
	cmd.Flags().StringVar(&o.mappingFile, "mapping", "", "JSON file mapping fields to column headers")
	cmd.Flags().BoolVar(&o.positional, "positional", false, "Ignore headers and read columns by position")
	cmd.MarkFlagsMutuallyExclusive("mapping", "positional")
	return cmd
}

func (o *importOptions) resolveMapping(a *app, data []byte) (importer.Mapping, error) {
	switch {
	case o.positional:
		return nil, nil
	case o.mappingFile != "":
		raw, err := os.ReadFile(o.mappingFile)
		if err != nil {
			return nil, fmt.Errorf("error reading mapping: %w", err)
		}
		var mapping importer.Mapping
		if err := json.Unmarshal(raw, &mapping); err != nil {
			return nil, importer.NewError(importer.ErrMissingMapping, "mapping %s is not valid JSON: %v", o.mappingFile, err)
		}
		return mapping, nil
	}
	analysis, err := a.ingest.Analyze(data, o.cohort.examType())
	if err != nil {
		return nil, err
	}
	a.logger.Info("using suggested mapping", zap.Any("mapping", analysis.SuggestedMapping))
	return analysis.SuggestedMapping, nil
}

func newClearCmd(opts *globalOptions) *cobra.Command {
	var (
		cohort cohortFlags
		yes    bool
	)
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every student and the upload record of a cohort",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirm(cmd, fmt.Sprintf("Delete all %s %d results?", strings.ToUpper(cohort.exam), cohort.year)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Clear cancelled.")
				return nil
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				deleted, err := a.ingest.Clear(ctx, cohort.year, cohort.examType())
				if err != nil {
					return err
				}
				color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Deleted %d students\n", deleted)
				return nil
			})
		},
	}
	cohort.register(cmd)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newRanksCmd(opts *globalOptions) *cobra.Command {
	var cohort cohortFlags
	cmd := &cobra.Command{
		Use:   "ranks",
		Short: "Recalculate the ranks of a cohort",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.ingest.RecalculateRanks(ctx, cohort.year, cohort.examType())
				if err != nil {
					return err
				}
				displayRecalc(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	cohort.register(cmd)
	return cmd
}

func newAuditCmd(opts *globalOptions) *cobra.Command {
	var (
		cohort cohortFlags
		fix    bool
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Find admission flags that contradict the decision text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if fix {
					report, err := a.ingest.Repair(ctx, cohort.year, cohort.examType(), false)
					if err != nil {
						return err
					}
					displayRepair(cmd.OutOrStdout(), report)
					return nil
				}
				found, err := a.ingest.Audit(ctx, cohort.year, cohort.examType())
				if err != nil {
					return err
				}
				displayInconsistencies(cmd.OutOrStdout(), found)
				return nil
			})
		},
	}
	cohort.register(cmd)
	cmd.Flags().BoolVar(&fix, "fix", false, "Rewrite the contradicting flags")
	return cmd
}

func newUploadsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "uploads",
		Short: "List the published cohorts and their source files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				uploads, err := a.ingest.Uploads(ctx)
				if err != nil {
					return err
				}
				displayUploads(cmd.OutOrStdout(), uploads)
				return nil
			})
		},
	}
}

func newLookupCmd(opts *globalOptions) *cobra.Command {
	var cohort cohortFlags
	cmd := &cobra.Command{
		Use:   "lookup MATRICULE",
		Short: "Show the result of one student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				student, err := a.query.FindStudent(ctx, args[0], cohort.year, cohort.examType())
				if err != nil {
					return err
				}
				displayStudent(cmd.OutOrStdout(), student)
				return nil
			})
		},
	}
	cohort.register(cmd)
	return cmd
}

func newRankingCmd(opts *globalOptions) *cobra.Command {
	var cohort cohortFlags
	cmd := &cobra.Command{
		Use:   "ranking MATRICULE",
		Short: "Show the section, school and general ranks of a student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				r, err := a.query.CandidateRanking(ctx, args[0], cohort.year, cohort.examType())
				if err != nil {
					return err
				}
				displayCandidateRanking(cmd.OutOrStdout(), r)
				return nil
			})
		},
	}
	cohort.register(cmd)
	return cmd
}

func newLeaderboardCmd(opts *globalOptions) *cobra.Command {
	var (
		cohort cohortFlags
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the best admitted students",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				board, err := a.query.Leaderboard(ctx, cohort.year, cohort.examType(), limit)
				if err != nil {
					return err
				}
				displayLeaderboard(cmd.OutOrStdout(), board)
				return nil
			})
		},
	}
	cohort.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "Students per board (default 10, max 100)")
	return cmd
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	var cohort cohortFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cohort statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				stats, err := a.query.Statistics(ctx, cohort.year, cohort.examType())
				if err != nil {
					return err
				}
				displayStatistics(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}
	cohort.register(cmd)
	return cmd
}

func newSchoolCmd(opts *globalOptions) *cobra.Command {
	var cohort cohortFlags
	cmd := &cobra.Command{
		Use:   "school ETABLISSEMENT",
		Short: "List the students of an etablissement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				students, err := a.query.StudentsBySchool(ctx, args[0], cohort.year, cohort.examType())
				if err != nil {
					return err
				}
				displayStudents(cmd.OutOrStdout(), args[0], students)
				return nil
			})
		},
	}
	cohort.register(cmd)
	return cmd
}

func newRegionCmd(opts *globalOptions) *cobra.Command {
	var (
		cohort   cohortFlags
		section  string
		page     int
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "region [WILAYA]",
		Short: "List the students of a wilaya, or every wilaya and its etablissements",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if len(args) == 0 {
					index, err := a.query.RegionIndex(ctx, cohort.year, cohort.examType())
					if err != nil {
						return err
					}
					displayRegionIndex(cmd.OutOrStdout(), index)
					return nil
				}
				res, err := a.query.StudentsByRegion(ctx, query.RegionQuery{
					Wilaya:   args[0],
					Year:     cohort.year,
					ExamType: cohort.examType(),
					Section:  section,
					Page:     page,
					PageSize: pageSize,
				})
				if err != nil {
					return err
				}
				displayRegionPage(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	cohort.register(cmd)
	cmd.Flags().StringVar(&section, "section", "", "Only this section")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", query.DefaultPageSize, "Students per page")
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s (y/n): ", prompt)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	return strings.ToLower(strings.TrimSpace(answer)) == "y"
}
