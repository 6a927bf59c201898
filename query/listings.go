package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/nonsonwune/examresults/database"
	"github.com/nonsonwune/examresults/models"
	"github.com/nonsonwune/examresults/ranking"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// RegionQuery selects one page of the students of a wilaya, optionally
// narrowed to a section.
type RegionQuery struct {
	Wilaya   string
	Year     int
	ExamType models.ExamType
	Section  string
	Page     int
	PageSize int
}

func (q *RegionQuery) normalize() error {
	q.Wilaya = strings.TrimSpace(q.Wilaya)
	q.Section = strings.TrimSpace(q.Section)
	if q.Wilaya == "" {
		return fmt.Errorf("%w: empty wilaya", ErrInvalidQuery)
	}
	if err := validateCohort(q.Year, q.ExamType); err != nil {
		return err
	}
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PageSize <= 0:
		q.PageSize = DefaultPageSize
	case q.PageSize > MaxPageSize:
		q.PageSize = MaxPageSize
	}
	return nil
}

// StudentsBySchool lists the students of an etablissement, best first.
func (s *Service) StudentsBySchool(ctx context.Context, etablissement string, year int, examType models.ExamType) ([]models.Student, error) {
	etablissement = strings.TrimSpace(etablissement)
	if etablissement == "" {
		return nil, fmt.Errorf("%w: empty etablissement", ErrInvalidQuery)
	}
	if err := validateCohort(year, examType); err != nil {
		return nil, err
	}

	return cached(ctx, s, cacheKey(year, examType, "school", etablissement), func(ctx context.Context) ([]models.Student, error) {
		rows, err := s.db.QueryContext(ctx, `SELECT `+database.StudentColumns+` FROM students
			WHERE etablissement = $1 AND year = $2 AND exam_type = $3
			ORDER BY moyenne DESC, matricule ASC`, etablissement, year, string(examType))
		if err != nil {
			return nil, fmt.Errorf("error querying school: %w", err)
		}
		students, err := database.ScanStudents(rows)
		if err != nil {
			return nil, err
		}
		if students == nil {
			students = []models.Student{}
		}
		applyThreshold(students, s.threshold(year, examType))
		return students, nil
	})
}

// StudentsByRegion returns one page of a wilaya with the totals of the whole
// (section-filtered) population and the sections present in the wilaya.
func (s *Service) StudentsByRegion(ctx context.Context, q RegionQuery) (*models.RegionPage, error) {
	if err := q.normalize(); err != nil {
		return nil, err
	}
	key := cacheKey(q.Year, q.ExamType, "region", q.Wilaya, q.Section, q.Page, q.PageSize)

	return cached(ctx, s, key, func(ctx context.Context) (*models.RegionPage, error) {
		th := s.threshold(q.Year, q.ExamType)
		page := &models.RegionPage{Wilaya: q.Wilaya, Page: q.Page, PageSize: q.PageSize}

		var args database.Args
		admitted := ranking.AdmittedPredicate(&args, th)
		where := `wilaya = ` + args.Add(q.Wilaya) + ` AND year = ` + args.Add(q.Year) + ` AND exam_type = ` + args.Add(string(q.ExamType))
		if q.Section != "" {
			where += ` AND section = ` + args.Add(q.Section)
		}
		var avg float64
		err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*), COALESCE(SUM(CASE WHEN `+admitted+` THEN 1 ELSE 0 END), 0), COALESCE(AVG(moyenne), 0)
			FROM students WHERE `+where, args...).Scan(&page.TotalCount, &page.AdmittedCount, &avg)
		if err != nil {
			return nil, fmt.Errorf("error counting region: %w", err)
		}
		page.AverageScore = ranking.Round2(avg)
		page.TotalPages = (page.TotalCount + q.PageSize - 1) / q.PageSize

		var listArgs database.Args
		listWhere := `wilaya = ` + listArgs.Add(q.Wilaya) + ` AND year = ` + listArgs.Add(q.Year) + ` AND exam_type = ` + listArgs.Add(string(q.ExamType))
		if q.Section != "" {
			listWhere += ` AND section = ` + listArgs.Add(q.Section)
		}
		rows, err := s.db.QueryContext(ctx, `SELECT `+database.StudentColumns+` FROM students
			WHERE `+listWhere+`
			ORDER BY moyenne DESC, matricule ASC
			LIMIT `+listArgs.Add(q.PageSize)+` OFFSET `+listArgs.Add((q.Page-1)*q.PageSize), listArgs...)
		if err != nil {
			return nil, fmt.Errorf("error querying region: %w", err)
		}
		page.Students, err = database.ScanStudents(rows)
		if err != nil {
			return nil, err
		}
		if page.Students == nil {
			page.Students = []models.Student{}
		}
		applyThreshold(page.Students, th)

		page.Sections, err = s.distinct(ctx, `SELECT DISTINCT section FROM students
			WHERE wilaya = $1 AND year = $2 AND exam_type = $3 AND section <> ''
			ORDER BY section`, q.Wilaya, q.Year, string(q.ExamType))
		if err != nil {
			return nil, err
		}
		return page, nil
	})
}

// RegionIndex maps every wilaya of a cohort to its etablissements, both sorted.
func (s *Service) RegionIndex(ctx context.Context, year int, examType models.ExamType) (map[string][]string, error) {
	if err := validateCohort(year, examType); err != nil {
		return nil, err
	}
	return cached(ctx, s, cacheKey(year, examType, "regions"), func(ctx context.Context) (map[string][]string, error) {
		rows, err := s.db.QueryContext(ctx, `
			SELECT DISTINCT wilaya, etablissement FROM students
			WHERE year = $1 AND exam_type = $2 AND wilaya IS NOT NULL AND wilaya <> ''
			ORDER BY wilaya, etablissement`, year, string(examType))
		if err != nil {
			return nil, fmt.Errorf("error querying regions: %w", err)
		}
		defer rows.Close()

		index := map[string][]string{}
		for rows.Next() {
			var wilaya, etablissement string
			if err := rows.Scan(&wilaya, &etablissement); err != nil {
				return nil, fmt.Errorf("error scanning region: %w", err)
			}
			schools := index[wilaya]
			if etablissement != "" {
				schools = append(schools, etablissement)
			}
			if schools == nil {
				schools = []string{}
			}
			index[wilaya] = schools
		}
		return index, rows.Err()
	})
}

func (s *Service) distinct(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying distinct values: %w", err)
	}
	defer rows.Close()
	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("error scanning distinct value: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
