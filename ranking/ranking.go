// Package ranking maintains the ordinal rank of every student and derives the
// leaderboard, statistics and per-candidate ranking views of a cohort.
package ranking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nonsonwune/examresults/database"
	"github.com/nonsonwune/examresults/logging"
	"github.com/nonsonwune/examresults/models"
)

const (
	DefaultLeaderboardLimit  = 10
	MaxLeaderboardLimit      = 100
	DefaultSessionnaireFloor = 8.0
	// SampleSize bounds the examples returned by Recalculate and Repair.
	SampleSize = 5
)

// ErrNotFound is returned when a candidate does not exist in the cohort.
var ErrNotFound = errors.New("student not found")

// Config tunes the engine.
type Config struct {
	Timeout           time.Duration
	SessionnaireFloor float64
}

// Engine computes ranks and aggregates over the students table.
type Engine struct {
	db     *sql.DB
	config Config
	logger *zap.Logger
}

// New returns an Engine. A zero SessionnaireFloor selects the default.
func New(db *sql.DB, config Config, logger *zap.Logger) *Engine {
	if config.SessionnaireFloor == 0 {
		config.SessionnaireFloor = DefaultSessionnaireFloor
	}
	return &Engine{db: db, config: config, logger: logging.OrNop(logger)}
}

// RankChange is one rank rewritten by Recalculate.
type RankChange struct {
	Matricule string  `json:"matricule"`
	Moyenne   float64 `json:"moyenne"`
	OldRank   int     `json:"old_rank"`
	NewRank   int     `json:"new_rank"`
}

// RecalcResult summarises a rank recomputation.
type RecalcResult struct {
	Total        int          `json:"total"`
	UpdatedCount int          `json:"updated_count"`
	Samples      []RankChange `json:"samples"`
}

type rankedRow struct {
	matricule string
	moyenne   float64
	rang      int
}

// Recalculate orders the cohort by moyenne descending, then matricule
// ascending, and stores rank = position + 1 for every student whose stored
// rank differs. Running it twice in a row writes nothing the second time.
func (e *Engine) Recalculate(ctx context.Context, year int, examType models.ExamType) (*RecalcResult, error) {
	uow, err := database.Begin(ctx, e.db, e.config.Timeout)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	rows, err := uow.Tx().QueryContext(uow.Context(),
		`SELECT matricule, moyenne, rang FROM students WHERE year = $1 AND exam_type = $2`,
		year, string(examType))
	if err != nil {
		return nil, fmt.Errorf("error querying cohort: %w", err)
	}
	var cohort []rankedRow
	for rows.Next() {
		var r rankedRow
		if err := rows.Scan(&r.matricule, &r.moyenne, &r.rang); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning cohort: %w", err)
		}
		cohort = append(cohort, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading cohort: %w", err)
	}

	slices.SortFunc(cohort, compareRanked)

	result := &RecalcResult{Total: len(cohort), Samples: []RankChange{}}
	var stmt *sql.Stmt
	for i, r := range cohort {
		rank := i + 1
		if r.rang == rank {
			continue
		}
		if stmt == nil {
			stmt, err = uow.Tx().PrepareContext(uow.Context(),
				`UPDATE students SET rang = $1 WHERE matricule = $2 AND year = $3 AND exam_type = $4`)
			if err != nil {
				return nil, fmt.Errorf("error preparing rank update: %w", err)
			}
			defer stmt.Close()
		}
		if _, err := stmt.ExecContext(uow.Context(), rank, r.matricule, year, string(examType)); err != nil {
			return nil, fmt.Errorf("error updating rank of %s: %w", r.matricule, err)
		}
		result.UpdatedCount++
		if len(result.Samples) < SampleSize {
			result.Samples = append(result.Samples, RankChange{
				Matricule: r.matricule, Moyenne: r.moyenne, OldRank: r.rang, NewRank: rank,
			})
		}
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}
	e.logger.Info("ranks recalculated",
		zap.Int("year", year), zap.String("exam_type", examType.String()),
		zap.Int("total", result.Total), zap.Int("updated", result.UpdatedCount))
	return result, nil
}

func compareRanked(a, b rankedRow) int {
	switch {
	case a.moyenne > b.moyenne:
		return -1
	case a.moyenne < b.moyenne:
		return 1
	}
	return strings.Compare(a.matricule, b.matricule)
}

// AdmittedPredicate returns the SQL predicate deciding admission: the stored flag, or
// moyenne >= score when a threshold is configured for the cohort.
func AdmittedPredicate(args *database.Args, threshold *models.ScoreThreshold) string {
	if threshold == nil {
		return "admis"
	}
	return "moyenne >= " + args.Add(threshold.Score)
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return Round2(float64(part) / float64(total) * 100)
}

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
