package loader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nonsonwune/examresults/database"
	"github.com/nonsonwune/examresults/models"
)

// SaveProvenance records which file last populated a cohort.
func (l *Loader) SaveProvenance(ctx context.Context, year int, examType models.ExamType, fileName string, count int) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO uploads (year, exam_type, file_name, student_count, uploaded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (year, exam_type) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			student_count = EXCLUDED.student_count,
			uploaded_at = EXCLUDED.uploaded_at`,
		year, string(examType), fileName, count, l.now().UTC())
	if err != nil {
		return fmt.Errorf("error saving upload provenance: %w", err)
	}
	return nil
}

// Uploads lists the provenance of every cohort, newest year first.
func (l *Loader) Uploads(ctx context.Context) ([]models.Upload, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT year, exam_type, file_name, student_count, uploaded_at
		FROM uploads
		ORDER BY year DESC, exam_type`)
	if err != nil {
		return nil, fmt.Errorf("error querying uploads: %w", err)
	}
	defer rows.Close()

	var uploads []models.Upload
	for rows.Next() {
		var u models.Upload
		var examType string
		if err := rows.Scan(&u.Year, &examType, &u.FileName, &u.StudentCount, &u.UploadedAt); err != nil {
			return nil, fmt.Errorf("error scanning upload: %w", err)
		}
		u.ExamType = models.ExamType(examType)
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// Clear deletes a cohort and its provenance in one transaction and returns the
// number of students removed. An empty cohort is not an error.
func (l *Loader) Clear(ctx context.Context, year int, examType models.ExamType) (int64, error) {
	uow, err := database.Begin(ctx, l.db, l.config.Timeout)
	if err != nil {
		return 0, err
	}
	defer uow.Rollback()

	res, err := uow.Exec(`DELETE FROM students WHERE year = $1 AND exam_type = $2`, year, string(examType))
	if err != nil {
		return 0, fmt.Errorf("error deleting students: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error counting deleted students: %w", err)
	}
	if _, err := uow.Exec(`DELETE FROM uploads WHERE year = $1 AND exam_type = $2`, year, string(examType)); err != nil {
		return 0, fmt.Errorf("error deleting upload record: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return 0, err
	}

	l.logger.Info("cohort cleared",
		zap.Int("year", year), zap.String("exam_type", examType.String()), zap.Int64("deleted", deleted))
	return deleted, nil
}
