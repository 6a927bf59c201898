// Package query serves the read side of published results: candidate lookup,
// leaderboards, statistics and the school and region listings.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nonsonwune/examresults/cache"
	"github.com/nonsonwune/examresults/database"
	"github.com/nonsonwune/examresults/logging"
	"github.com/nonsonwune/examresults/models"
	"github.com/nonsonwune/examresults/ranking"
)

var (
	// ErrNotFound is returned when a student does not exist in the cohort.
	ErrNotFound = ranking.ErrNotFound
	// ErrInvalidQuery is returned for malformed query parameters.
	ErrInvalidQuery = errors.New("invalid query")
)

// ThresholdSource supplies the configured passing score of a cohort, if any.
type ThresholdSource interface {
	For(year int, examType models.ExamType) *models.ScoreThreshold
}

// Service answers result queries. Results are cached per cohort and
// concurrent identical queries share one database round trip.
type Service struct {
	db         *sql.DB
	engine     *ranking.Engine
	cache      cache.Cache
	thresholds ThresholdSource
	group      singleflight.Group
	logger     *zap.Logger

	mu          sync.Mutex
	generations map[string]uint64 // cohort prefix -> invalidation count
}

// New returns a Service. A nil cache disables caching and nil thresholds
// keep the stored admission flags.
func New(db *sql.DB, engine *ranking.Engine, c cache.Cache, thresholds ThresholdSource, logger *zap.Logger) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	return &Service{
		db:          db,
		engine:      engine,
		cache:       c,
		thresholds:  thresholds,
		logger:      logging.OrNop(logger),
		generations: make(map[string]uint64),
	}
}

func cohortPrefix(year int, examType models.ExamType) string {
	return fmt.Sprintf("%s:%d:", examType, year)
}

func cacheKey(year int, examType models.ExamType, parts ...any) string {
	var b strings.Builder
	b.WriteString(cohortPrefix(year, examType))
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprint(&b, p)
	}
	return b.String()
}

// keyPrefix returns the cohort prefix of a cache key.
func keyPrefix(key string) string {
	first := strings.IndexByte(key, ':')
	if first < 0 {
		return key
	}
	second := strings.IndexByte(key[first+1:], ':')
	if second < 0 {
		return key
	}
	return key[:first+second+2]
}

func (s *Service) generation(prefix string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[prefix]
}

// store caches value unless the cohort was invalidated since gen was read.
func (s *Service) store(prefix string, gen uint64, key string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[prefix] != gen {
		return false
	}
	s.cache.Set(key, value)
	return true
}

// cached returns the cached value of key or computes it once for all
// concurrent callers. The computation outlives a caller that goes away. A
// result computed across an Invalidate of its cohort is returned but not
// cached, and callers arriving after the Invalidate do not join it.
func cached[T any](ctx context.Context, s *Service, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := s.cache.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	prefix := keyPrefix(key)
	gen := s.generation(prefix)
	detached := context.WithoutCancel(ctx)
	v, err, shared := s.group.Do(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		t, err := fn(detached)
		if err != nil {
			return nil, err
		}
		if !s.store(prefix, gen, key, t) {
			s.logger.Debug("stale result not cached", zap.String("key", key))
		}
		return t, nil
	})
	if shared {
		s.logger.Debug("query shared", zap.String("key", key))
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate drops every cached result of a cohort. Computations already
// running for the cohort will not cache their results.
func (s *Service) Invalidate(year int, examType models.ExamType) {
	prefix := cohortPrefix(year, examType)
	s.mu.Lock()
	s.generations[prefix]++
	n := s.cache.ExpirePrefix(prefix)
	s.mu.Unlock()
	s.logger.Debug("cache invalidated",
		zap.Int("year", year), zap.String("exam_type", examType.String()), zap.Int("entries", n))
}

func (s *Service) threshold(year int, examType models.ExamType) *models.ScoreThreshold {
	if s.thresholds == nil {
		return nil
	}
	return s.thresholds.For(year, examType)
}

// applyThreshold replaces the displayed admission flag when a threshold is
// configured. Storage is never touched.
func applyThreshold(students []models.Student, th *models.ScoreThreshold) {
	if th == nil {
		return
	}
	for i := range students {
		students[i].Admis = th.Admitted(students[i].Moyenne)
	}
}

func validateCohort(year int, examType models.ExamType) error {
	if year <= 0 {
		return fmt.Errorf("%w: year %d", ErrInvalidQuery, year)
	}
	if _, err := models.ParseExamType(string(examType)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return nil
}

// FindStudent looks a candidate up by matricule.
func (s *Service) FindStudent(ctx context.Context, matricule string, year int, examType models.ExamType) (*models.Student, error) {
	matricule = strings.TrimSpace(matricule)
	if matricule == "" {
		return nil, fmt.Errorf("%w: empty matricule", ErrInvalidQuery)
	}
	if err := validateCohort(year, examType); err != nil {
		return nil, err
	}

	return cached(ctx, s, cacheKey(year, examType, "student", matricule), func(ctx context.Context) (*models.Student, error) {
		row := s.db.QueryRowContext(ctx, `SELECT `+database.StudentColumns+` FROM students
			WHERE matricule = $1 AND year = $2 AND exam_type = $3`, matricule, year, string(examType))
		student, err := database.ScanStudent(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s (%s %d)", ErrNotFound, matricule, examType, year)
		}
		if err != nil {
			return nil, fmt.Errorf("error querying student: %w", err)
		}
		one := []models.Student{*student}
		applyThreshold(one, s.threshold(year, examType))
		return &one[0], nil
	})
}

// Leaderboard returns the top admitted students of a cohort.
func (s *Service) Leaderboard(ctx context.Context, year int, examType models.ExamType, limit int) (*models.Leaderboard, error) {
	if err := validateCohort(year, examType); err != nil {
		return nil, err
	}
	limit = ranking.NormalizeLimit(limit)

	return cached(ctx, s, cacheKey(year, examType, "leaderboard", limit), func(ctx context.Context) (*models.Leaderboard, error) {
		th := s.threshold(year, examType)
		board, err := s.engine.Leaderboard(ctx, year, examType, limit, th)
		if err != nil {
			return nil, err
		}
		applyThreshold(board.Students, th)
		for _, sb := range board.Sections {
			applyThreshold(sb.Students, th)
		}
		return board, nil
	})
}

// Statistics returns the aggregate figures of a cohort.
func (s *Service) Statistics(ctx context.Context, year int, examType models.ExamType) (*models.Statistics, error) {
	if err := validateCohort(year, examType); err != nil {
		return nil, err
	}
	return cached(ctx, s, cacheKey(year, examType, "statistics"), func(ctx context.Context) (*models.Statistics, error) {
		return s.engine.Statistics(ctx, year, examType, s.threshold(year, examType))
	})
}

// CandidateRanking positions a candidate within their populations.
func (s *Service) CandidateRanking(ctx context.Context, matricule string, year int, examType models.ExamType) (*models.CandidateRanking, error) {
	matricule = strings.TrimSpace(matricule)
	if matricule == "" {
		return nil, fmt.Errorf("%w: empty matricule", ErrInvalidQuery)
	}
	if err := validateCohort(year, examType); err != nil {
		return nil, err
	}
	return cached(ctx, s, cacheKey(year, examType, "ranking", matricule), func(ctx context.Context) (*models.CandidateRanking, error) {
		return s.engine.CandidateRanking(ctx, matricule, year, examType)
	})
}
