// Package ingest orchestrates spreadsheet ingestion and the administrative
// maintenance of published cohorts.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nonsonwune/examresults/importer"
	"github.com/nonsonwune/examresults/loader"
	"github.com/nonsonwune/examresults/logging"
	"github.com/nonsonwune/examresults/models"
	"github.com/nonsonwune/examresults/ranking"
)

// Status tells callers how much of an ingestion reached the store.
type Status string

const (
	// StatusUnchanged: nothing was written.
	StatusUnchanged Status = "unchanged"
	// StatusPartial: some records were written, others were rejected.
	StatusPartial Status = "partial"
	// StatusComplete: every row of the file was written.
	StatusComplete Status = "complete"
)

const (
	DefaultMaxUploadBytes = 20 << 20
	DefaultMinYear        = 2000
	DefaultMaxYear        = 2100
)

// Invalidator drops cached query results of a cohort.
type Invalidator interface {
	Invalidate(year int, examType models.ExamType)
}

// Config bounds the accepted input.
type Config struct {
	MaxUploadBytes int64
	MinYear        int
	MaxYear        int
}

// Service runs ingestions against a loader and a ranking engine.
type Service struct {
	loader *loader.Loader
	engine *ranking.Engine
	cache  Invalidator
	config Config
	logger *zap.Logger
}

// New returns a Service. cache may be nil.
func New(l *loader.Loader, engine *ranking.Engine, cache Invalidator, config Config, logger *zap.Logger) *Service {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if config.MinYear == 0 {
		config.MinYear = DefaultMinYear
	}
	if config.MaxYear == 0 {
		config.MaxYear = DefaultMaxYear
	}
	return &Service{loader: l, engine: engine, cache: cache, config: config, logger: logging.OrNop(logger)}
}

// Request is one file to ingest. An empty Mapping selects the positional
// column layout.
type Request struct {
	Data     []byte
	FileName string
	Year     int
	ExamType models.ExamType
	Mapping  importer.Mapping
}

// Outcome is the structured result of Ingest.
type Outcome struct {
	Status          Status                `json:"status"`
	Year            int                   `json:"year"`
	ExamType        models.ExamType       `json:"exam_type"`
	FileName        string                `json:"file_name"`
	UploadedCount   int                   `json:"uploaded_count"`
	FailedCount     int                   `json:"failed_count"`
	Errors          []string              `json:"errors"`
	RowErrors       []string              `json:"row_errors"`
	RowErrorCount   int                   `json:"row_error_count"`
	Stats           *importer.ImportStats `json:"stats"`
	Ranks           *ranking.RecalcResult `json:"ranks,omitempty"`
	ProvenanceSaved bool                  `json:"provenance_saved"`
	Duration        time.Duration         `json:"duration_ns"`
}

func (s *Service) checkInput(size int, year int, examType models.ExamType) (models.ExamType, error) {
	if size == 0 {
		return "", importer.NewError(importer.ErrEmptyFile, "uploaded file is empty")
	}
	if int64(size) > s.config.MaxUploadBytes {
		return "", importer.NewError(importer.ErrFileTooLarge, "file is %d bytes, limit is %d", size, s.config.MaxUploadBytes)
	}
	exam, err := models.ParseExamType(string(examType))
	if err != nil {
		return "", err
	}
	if year < s.config.MinYear || year > s.config.MaxYear {
		return "", importer.NewError(importer.ErrInvalidYear, "year %d outside %d-%d", year, s.config.MinYear, s.config.MaxYear)
	}
	return exam, nil
}

// Analyze inspects a workbook and proposes a mapping. Nothing is persisted.
func (s *Service) Analyze(data []byte, examType models.ExamType) (*importer.Analysis, error) {
	if len(data) == 0 {
		return nil, importer.NewError(importer.ErrEmptyFile, "uploaded file is empty")
	}
	if int64(len(data)) > s.config.MaxUploadBytes {
		return nil, importer.NewError(importer.ErrFileTooLarge, "file is %d bytes, limit is %d", len(data), s.config.MaxUploadBytes)
	}
	exam, err := models.ParseExamType(string(examType))
	if err != nil {
		return nil, err
	}
	return importer.Analyze(data, exam)
}

// Ingest parses and persists a file. Input errors (size, year, exam type,
// unreadable file, bad mapping, no valid row) return a nil Outcome and leave
// the store untouched. A transaction failure returns an unchanged Outcome
// together with the error. Otherwise the Outcome tells whether the file went in
// completely or partially.
func (s *Service) Ingest(ctx context.Context, req Request) (*Outcome, error) {
	started := time.Now()
	exam, err := s.checkInput(len(req.Data), req.Year, req.ExamType)
	if err != nil {
		return nil, err
	}

	sheet, err := importer.ReadSheet(req.Data)
	if err != nil {
		return nil, err
	}
	if err := importer.ValidateMapping(sheet, req.Mapping); err != nil {
		return nil, err
	}
	parsed, err := importer.Parse(sheet, req.Mapping, exam, req.Year)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Status:        StatusUnchanged,
		Year:          req.Year,
		ExamType:      exam,
		FileName:      req.FileName,
		Errors:        []string{},
		RowErrors:     parsed.Errors,
		RowErrorCount: parsed.ErrorCount,
		Stats:         parsed.Stats,
	}
	if outcome.RowErrors == nil {
		outcome.RowErrors = []string{}
	}

	log := s.logger.With(zap.Int("year", req.Year), zap.String("exam_type", exam.String()), zap.String("file", req.FileName))
	log.Info("ingesting file",
		zap.Int("rows", parsed.Stats.TotalProcessed),
		zap.Int("valid", parsed.Stats.ValidRecords),
		zap.Int("skipped", parsed.Stats.SkippedRecords),
		zap.Int("coercion_warnings", parsed.Stats.CoercionWarnings))

	uploaded, err := s.loader.Upload(ctx, parsed.Students)
	if err != nil {
		outcome.Duration = time.Since(started)
		log.Error("ingestion rolled back", zap.Error(err))
		return outcome, fmt.Errorf("ingestion of %s failed: %w", req.FileName, err)
	}
	outcome.UploadedCount = uploaded.UploadedCount
	outcome.FailedCount = uploaded.FailedCount
	outcome.Errors = append(outcome.Errors, uploaded.Errors...)

	switch {
	case outcome.UploadedCount == 0:
		outcome.Status = StatusUnchanged
	case outcome.FailedCount > 0 || outcome.RowErrorCount > 0:
		outcome.Status = StatusPartial
	default:
		outcome.Status = StatusComplete
	}

	// Post-commit steps never change the outcome status.
	if outcome.UploadedCount > 0 {
		// Bookkeeping runs even when the caller has gone away.
		post := context.WithoutCancel(ctx)
		if err := s.loader.SaveProvenance(post, req.Year, exam, req.FileName, outcome.UploadedCount); err != nil {
			log.Warn("upload provenance not saved", zap.Error(err))
		} else {
			outcome.ProvenanceSaved = true
		}

		ranks, err := s.engine.Recalculate(post, req.Year, exam)
		if err != nil {
			log.Warn("rank recalculation failed", zap.Error(err))
		} else {
			outcome.Ranks = ranks
		}
		s.invalidate(req.Year, exam)
	}

	outcome.Duration = time.Since(started)
	log.Info("ingestion finished",
		zap.String("status", string(outcome.Status)),
		zap.Int("uploaded", outcome.UploadedCount),
		zap.Int("failed", outcome.FailedCount),
		zap.Duration("duration", outcome.Duration))
	return outcome, nil
}

func (s *Service) invalidate(year int, examType models.ExamType) {
	if s.cache != nil {
		s.cache.Invalidate(year, examType)
	}
}

func parseCohort(year int, examType models.ExamType) (models.ExamType, error) {
	if year <= 0 {
		return "", importer.NewError(importer.ErrInvalidYear, "year %d", year)
	}
	return models.ParseExamType(strings.TrimSpace(string(examType)))
}

// Clear deletes a cohort. Clearing an empty cohort returns 0.
func (s *Service) Clear(ctx context.Context, year int, examType models.ExamType) (int64, error) {
	exam, err := parseCohort(year, examType)
	if err != nil {
		return 0, err
	}
	deleted, err := s.loader.Clear(ctx, year, exam)
	if err != nil {
		return 0, err
	}
	s.invalidate(year, exam)
	return deleted, nil
}

// RecalculateRanks recomputes the ranks of a cohort.
func (s *Service) RecalculateRanks(ctx context.Context, year int, examType models.ExamType) (*ranking.RecalcResult, error) {
	exam, err := parseCohort(year, examType)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Recalculate(ctx, year, exam)
	if err != nil {
		return nil, err
	}
	if res.UpdatedCount > 0 {
		s.invalidate(year, exam)
	}
	return res, nil
}

// Audit lists the students whose admission flag contradicts their decision text.
func (s *Service) Audit(ctx context.Context, year int, examType models.ExamType) ([]ranking.Inconsistency, error) {
	exam, err := parseCohort(year, examType)
	if err != nil {
		return nil, err
	}
	found, _, err := s.engine.Audit(ctx, year, exam)
	return found, err
}

// Repair re-derives admission flags from decision texts.
func (s *Service) Repair(ctx context.Context, year int, examType models.ExamType, dryRun bool) (*ranking.RepairReport, error) {
	exam, err := parseCohort(year, examType)
	if err != nil {
		return nil, err
	}
	report, err := s.engine.Repair(ctx, year, exam, dryRun)
	if err != nil {
		return nil, err
	}
	if report.Fixed > 0 {
		s.invalidate(year, exam)
	}
	return report, nil
}

// Uploads lists the provenance of the published cohorts.
func (s *Service) Uploads(ctx context.Context) ([]models.Upload, error) {
	return s.loader.Uploads(ctx)
}
