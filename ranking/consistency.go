package ranking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nonsonwune/examresults/database"
	"github.com/nonsonwune/examresults/decision"
	"github.com/nonsonwune/examresults/models"
)

// Inconsistency is a student whose stored admission flag disagrees with the
// verdict of its decision text.
type Inconsistency struct {
	Matricule    string  `json:"matricule"`
	DecisionText string  `json:"decision_text"`
	Moyenne      float64 `json:"moyenne"`
	Stored       bool    `json:"stored_admis"`
	Expected     bool    `json:"expected_admis"`
}

// RepairReport summarises an admission repair.
type RepairReport struct {
	Checked      int             `json:"checked"`
	Inconsistent int             `json:"inconsistent"`
	Fixed        int             `json:"fixed"`
	DryRun       bool            `json:"dry_run"`
	Samples      []Inconsistency `json:"samples"`
}

// Audit lists every student of the cohort whose admis flag does not match
// decision.IsAdmitted(decision_text).
func (e *Engine) Audit(ctx context.Context, year int, examType models.ExamType) ([]Inconsistency, int, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT matricule, decision_text, moyenne, admis FROM students
		WHERE year = $1 AND exam_type = $2
		ORDER BY matricule`, year, string(examType))
	if err != nil {
		return nil, 0, fmt.Errorf("error querying decisions: %w", err)
	}
	defer rows.Close()

	found := []Inconsistency{}
	checked := 0
	for rows.Next() {
		var inc Inconsistency
		if err := rows.Scan(&inc.Matricule, &inc.DecisionText, &inc.Moyenne, &inc.Stored); err != nil {
			return nil, 0, fmt.Errorf("error scanning decision: %w", err)
		}
		checked++
		inc.Expected = decision.IsAdmitted(inc.DecisionText)
		if inc.Expected != inc.Stored {
			found = append(found, inc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error reading decisions: %w", err)
	}
	return found, checked, nil
}

// Repair re-derives admis from the decision text for every inconsistent
// student. With dryRun nothing is written.
func (e *Engine) Repair(ctx context.Context, year int, examType models.ExamType, dryRun bool) (*RepairReport, error) {
	found, checked, err := e.Audit(ctx, year, examType)
	if err != nil {
		return nil, err
	}

	report := &RepairReport{
		Checked:      checked,
		Inconsistent: len(found),
		DryRun:       dryRun,
		Samples:      found[:min(len(found), SampleSize)],
	}
	if dryRun || len(found) == 0 {
		return report, nil
	}

	uow, err := database.Begin(ctx, e.db, e.config.Timeout)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	stmt, err := uow.Tx().PrepareContext(uow.Context(),
		`UPDATE students SET admis = $1 WHERE matricule = $2 AND year = $3 AND exam_type = $4`)
	if err != nil {
		return nil, fmt.Errorf("error preparing admission update: %w", err)
	}
	defer stmt.Close()

	for _, inc := range found {
		if _, err := stmt.ExecContext(uow.Context(), inc.Expected, inc.Matricule, year, string(examType)); err != nil {
			return nil, fmt.Errorf("error updating admission of %s: %w", inc.Matricule, err)
		}
		report.Fixed++
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	e.logger.Info("admission flags repaired",
		zap.Int("year", year), zap.String("exam_type", examType.String()),
		zap.Int("checked", checked), zap.Int("fixed", report.Fixed))
	return report, nil
}
