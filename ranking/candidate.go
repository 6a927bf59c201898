package ranking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nonsonwune/examresults/database"
	"github.com/nonsonwune/examresults/models"
)

// CandidateRanking positions one student: within their section and their
// school for BAC, within the whole cohort for BREVET. A rank is the number of
// students with a strictly greater moyenne plus one.
func (e *Engine) CandidateRanking(ctx context.Context, matricule string, year int, examType models.ExamType) (*models.CandidateRanking, error) {
	var moyenne float64
	var section, etablissement string
	err := e.db.QueryRowContext(ctx, `
		SELECT moyenne, section, etablissement FROM students
		WHERE matricule = $1 AND year = $2 AND exam_type = $3`,
		matricule, year, string(examType)).Scan(&moyenne, &section, &etablissement)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s (%s %d)", ErrNotFound, matricule, examType, year)
	}
	if err != nil {
		return nil, fmt.Errorf("error querying candidate: %w", err)
	}

	ranking := &models.CandidateRanking{Matricule: matricule, ExamType: examType, Moyenne: moyenne}

	if !examType.HasSections() {
		ranking.GeneralRank, ranking.GeneralTotal, err = e.rankWithin(ctx, year, examType, "", "", moyenne)
		if err != nil {
			return nil, err
		}
		return ranking, nil
	}

	ranking.SectionRank, ranking.SectionTotal, err = e.rankWithin(ctx, year, examType, "section", section, moyenne)
	if err != nil {
		return nil, err
	}
	ranking.SchoolRank, ranking.SchoolTotal, err = e.rankWithin(ctx, year, examType, "etablissement", etablissement, moyenne)
	if err != nil {
		return nil, err
	}
	return ranking, nil
}

// rankWithin counts the population selected by column = value (the whole
// cohort when column is empty) and how many of it score above moyenne.
func (e *Engine) rankWithin(ctx context.Context, year int, examType models.ExamType, column, value string, moyenne float64) (rank, total int, err error) {
	var args database.Args
	query := `SELECT COUNT(*), COALESCE(SUM(CASE WHEN moyenne > ` + args.Add(moyenne) + ` THEN 1 ELSE 0 END), 0)
		FROM students WHERE year = ` + args.Add(year) + ` AND exam_type = ` + args.Add(string(examType))
	switch column {
	case "":
	case "section", "etablissement":
		query += ` AND ` + column + ` = ` + args.Add(value)
	default:
		return 0, 0, fmt.Errorf("unsupported ranking column %q", column)
	}

	var above int
	if err := e.db.QueryRowContext(ctx, query, args...).Scan(&total, &above); err != nil {
		return 0, 0, fmt.Errorf("error computing rank: %w", err)
	}
	return above + 1, total, nil
}
