// Package loader persists parsed students in bulk and maintains the upload
// provenance of each cohort.
package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nonsonwune/examresults/database"
	"github.com/nonsonwune/examresults/logging"
	"github.com/nonsonwune/examresults/models"
)

const (
	DefaultBatchSize = 500
	DefaultTimeout   = 10 * time.Minute
	// MaxReportedErrors bounds UploadResult.Errors.
	MaxReportedErrors = 20
)

// Config controls batching of an upload.
type Config struct {
	BatchSize int
	Timeout   time.Duration
}

// Loader writes students to the store.
type Loader struct {
	db     *sql.DB
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// UploadResult reports what a single Upload wrote.
type UploadResult struct {
	UploadedCount   int      `json:"uploaded_count"`
	FailedCount     int      `json:"failed_count"`
	Errors          []string `json:"errors,omitempty"`
	Batches         int      `json:"batches"`
	FallbackBatches int      `json:"fallback_batches"`
}

func (r *UploadResult) addError(msg string) {
	r.FailedCount++
	if len(r.Errors) < MaxReportedErrors {
		r.Errors = append(r.Errors, msg)
	}
}

// New returns a Loader. Zero config values fall back to the defaults.
func New(db *sql.DB, config Config, logger *zap.Logger) *Loader {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Loader{db: db, config: config, logger: logging.OrNop(logger), now: time.Now}
}

var upsertQuery = `INSERT INTO students (` + database.StudentColumns + `)
	VALUES (` + placeholders(1, database.StudentColumnCount) + `)
	ON CONFLICT (matricule, year, exam_type) DO UPDATE SET
		nom_complet = EXCLUDED.nom_complet,
		ecole = EXCLUDED.ecole,
		etablissement = EXCLUDED.etablissement,
		moyenne = EXCLUDED.moyenne,
		rang = EXCLUDED.rang,
		admis = EXCLUDED.admis,
		decision_text = EXCLUDED.decision_text,
		section = EXCLUDED.section,
		wilaya = EXCLUDED.wilaya,
		rang_etablissement = EXCLUDED.rang_etablissement,
		lieu_naissance = EXCLUDED.lieu_naissance,
		date_naissance = EXCLUDED.date_naissance,
		updated_at = EXCLUDED.updated_at`

// Upload writes students in one transaction. Each batch is first tried as a
// single multi-row insert; a batch that fails or collides with existing keys is
// replayed record by record as upserts so one bad record cannot sink the rest.
// A non-nil error means nothing was committed.
func (l *Loader) Upload(ctx context.Context, students []models.Student) (*UploadResult, error) {
	result := &UploadResult{}
	if len(students) == 0 {
		return result, nil
	}

	uow, err := database.Begin(ctx, l.db, l.config.Timeout)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	now := l.now().UTC()
	for i := range students {
		students[i].UpdatedAt = now
	}

	for start := 0; start < len(students); start += l.config.BatchSize {
		end := min(start+l.config.BatchSize, len(students))
		batch := students[start:end]
		result.Batches++

		inserted, err := l.insertBatch(uow, result.Batches, batch)
		if err == nil && inserted == len(batch) {
			result.UploadedCount += len(batch)
			continue
		}
		if err := uow.Context().Err(); err != nil {
			return nil, fmt.Errorf("upload aborted: %w", err)
		}

		if err != nil {
			l.logger.Warn("bulk insert failed, retrying batch record by record",
				zap.Int("batch", result.Batches), zap.Int("size", len(batch)), zap.Error(err))
		} else {
			l.logger.Debug("batch collides with existing records, upserting",
				zap.Int("batch", result.Batches), zap.Int("inserted", inserted), zap.Int("size", len(batch)))
		}
		result.FallbackBatches++

		for i := range batch {
			s := &batch[i]
			err := uow.Savepoint(uow.Context(), fmt.Sprintf("record_%d", start+i), func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, upsertQuery, database.StudentArgs(s)...)
				return err
			})
			if err != nil {
				if ctxErr := uow.Context().Err(); ctxErr != nil {
					return nil, fmt.Errorf("upload aborted: %w", ctxErr)
				}
				l.logger.Warn("record upsert failed",
					zap.String("matricule", s.Matricule), zap.Int("year", s.Year),
					zap.String("exam_type", s.ExamType.String()), zap.Error(err))
				result.addError(fmt.Sprintf("matricule %s: %v", s.Matricule, err))
				continue
			}
			result.UploadedCount++
		}
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	l.logger.Info("students uploaded",
		zap.Int("uploaded", result.UploadedCount),
		zap.Int("failed", result.FailedCount),
		zap.Int("batches", result.Batches),
		zap.Int("fallback_batches", result.FallbackBatches))
	return result, nil
}

func (l *Loader) insertBatch(uow *database.UnitOfWork, n int, batch []models.Student) (int, error) {
	var inserted int64
	err := uow.Savepoint(uow.Context(), fmt.Sprintf("batch_%d", n), func(ctx context.Context, tx *sql.Tx) error {
		query, args := bulkInsert(batch)
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		inserted, err = res.RowsAffected()
		return err
	})
	return int(inserted), err
}

func bulkInsert(batch []models.Student) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(batch)*database.StudentColumnCount)

	b.WriteString("INSERT INTO students (")
	b.WriteString(database.StudentColumns)
	b.WriteString(") VALUES ")
	for i := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		b.WriteString(placeholders(len(args)+1, database.StudentColumnCount))
		b.WriteString(")")
		args = append(args, database.StudentArgs(&batch[i])...)
	}
	b.WriteString(" ON CONFLICT (matricule, year, exam_type) DO NOTHING")
	return b.String(), args
}

// placeholders renders "$from, ..., $(from+n-1)".
func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ", ")
}
