package ranking

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nonsonwune/examresults/database"
	"github.com/nonsonwune/examresults/models"
)

// Statistics computes the cohort totals and the section and wilaya
// breakdowns (sections only for BAC). The queries run concurrently.
func (e *Engine) Statistics(ctx context.Context, year int, examType models.ExamType, threshold *models.ScoreThreshold) (*models.Statistics, error) {
	stats := &models.Statistics{Year: year, ExamType: examType}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.totals(gctx, stats, threshold)
	})
	if examType.HasSections() {
		g.Go(func() error {
			bySection, err := e.groupStats(gctx, year, examType, "section", threshold)
			stats.BySection = bySection
			return err
		})
	}
	g.Go(func() error {
		byWilaya, err := e.groupStats(gctx, year, examType, "wilaya", threshold)
		stats.ByWilaya = byWilaya
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

func (e *Engine) totals(ctx context.Context, stats *models.Statistics, threshold *models.ScoreThreshold) error {
	var args database.Args
	admitted := AdmittedPredicate(&args, threshold)
	// The admitted expression appears twice; its placeholder is reused.
	query := fmt.Sprintf(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN %[1]s THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN NOT (%[1]s) AND moyenne >= %[2]s THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(moyenne), 0),
			COALESCE(MIN(moyenne), 0),
			COALESCE(MAX(moyenne), 0)
		FROM students
		WHERE year = %[3]s AND exam_type = %[4]s`,
		admitted, args.Add(e.config.SessionnaireFloor), args.Add(stats.Year), args.Add(string(stats.ExamType)))

	var avg, minScore, maxScore float64
	err := e.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Total, &stats.Admitted, &stats.Sessionnaires, &avg, &minScore, &maxScore)
	if err != nil {
		return fmt.Errorf("error querying cohort totals: %w", err)
	}
	stats.AdmissionRate = percent(stats.Admitted, stats.Total)
	stats.SessionnaireRate = percent(stats.Sessionnaires, stats.Total)
	stats.AverageScore = Round2(avg)
	stats.MinScore = minScore
	stats.MaxScore = maxScore
	return nil
}
