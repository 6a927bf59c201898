package ranking

import (
	"context"
	"fmt"

	"github.com/nonsonwune/examresults/database"
	"github.com/nonsonwune/examresults/models"
)

// NormalizeLimit clamps a requested leaderboard size.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLeaderboardLimit
	case limit > MaxLeaderboardLimit:
		return MaxLeaderboardLimit
	}
	return limit
}

// Leaderboard returns the best admitted students. BAC cohorts are grouped by
// section, each group carrying statistics over all of its students. Sections
// without an admitted student are left out. BREVET cohorts get a single flat
// list.
func (e *Engine) Leaderboard(ctx context.Context, year int, examType models.ExamType, limit int, threshold *models.ScoreThreshold) (*models.Leaderboard, error) {
	limit = NormalizeLimit(limit)
	board := &models.Leaderboard{Year: year, ExamType: examType, Limit: limit}

	if !examType.HasSections() {
		students, err := e.topAdmitted(ctx, year, examType, nil, limit, threshold)
		if err != nil {
			return nil, err
		}
		board.Students = students
		return board, nil
	}

	stats, err := e.groupStats(ctx, year, examType, "section", threshold)
	if err != nil {
		return nil, err
	}
	board.Sections = make(map[string]models.SectionBoard, len(stats))
	for _, st := range stats {
		if st.Admitted == 0 {
			continue
		}
		section := st.Name
		students, err := e.topAdmitted(ctx, year, examType, &section, limit, threshold)
		if err != nil {
			return nil, err
		}
		board.Sections[section] = models.SectionBoard{Students: students, Stats: st}
	}
	return board, nil
}

func (e *Engine) topAdmitted(ctx context.Context, year int, examType models.ExamType, section *string, limit int, threshold *models.ScoreThreshold) ([]models.Student, error) {
	var args database.Args
	query := `SELECT ` + database.StudentColumns + ` FROM students
		WHERE year = ` + args.Add(year) + ` AND exam_type = ` + args.Add(string(examType))
	if section != nil {
		query += ` AND section = ` + args.Add(*section)
	}
	query += ` AND ` + AdmittedPredicate(&args, threshold) + `
		ORDER BY moyenne DESC, matricule ASC
		LIMIT ` + args.Add(limit)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying leaderboard: %w", err)
	}
	students, err := database.ScanStudents(rows)
	if err != nil {
		return nil, err
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, nil
}

// groupStats aggregates the cohort by column ("section" or "wilaya"), largest
// group first. Students without a value for column are left out.
func (e *Engine) groupStats(ctx context.Context, year int, examType models.ExamType, column string, threshold *models.ScoreThreshold) ([]models.GroupStats, error) {
	if column != "section" && column != "wilaya" {
		return nil, fmt.Errorf("unsupported grouping column %q", column)
	}

	var args database.Args
	query := fmt.Sprintf(`
		SELECT %[1]s AS name,
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN %[2]s THEN 1 ELSE 0 END), 0) AS admitted,
			COALESCE(AVG(moyenne), 0) AS average
		FROM students
		WHERE year = %[3]s AND exam_type = %[4]s AND %[1]s IS NOT NULL AND %[1]s <> ''
		GROUP BY %[1]s
		ORDER BY total DESC, name ASC`,
		column, AdmittedPredicate(&args, threshold), args.Add(year), args.Add(string(examType)))

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying %s statistics: %w", column, err)
	}
	defer rows.Close()

	stats := []models.GroupStats{}
	for rows.Next() {
		var st models.GroupStats
		var avg float64
		if err := rows.Scan(&st.Name, &st.Total, &st.Admitted, &avg); err != nil {
			return nil, fmt.Errorf("error scanning %s statistics: %w", column, err)
		}
		st.AdmissionRate = percent(st.Admitted, st.Total)
		st.AverageScore = Round2(avg)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
