package importer

import (
	"fmt"
	"math"

	"github.com/nonsonwune/examresults/decision"
	"github.com/nonsonwune/examresults/models"
)

// MaxReportedErrors bounds the row messages returned to the operator.
const MaxReportedErrors = 20

// PositionalDefaults locates fields when the mapping does not name a usable
// header. Column 6 held the legacy admis flag, which is never read. A default
// column already claimed by a mapped field is not read again; that field stays
// empty.
var PositionalDefaults = map[Field]int{
	FieldMatricule:         0,
	FieldNomComplet:        1,
	FieldEcole:             2,
	FieldEtablissement:     3,
	FieldMoyenne:           4,
	FieldRang:              5,
	FieldDecision:          7,
	FieldSection:           8,
	FieldWilaya:            9,
	FieldRangEtablissement: 10,
	FieldLieuNaissance:     11,
	FieldDateNaissance:     12,
}

// Row error categories counted in ImportStats.
const (
	ErrTypeMissingMatricule  = "missing_matricule"
	ErrTypeMissingNomComplet = "missing_nom_complet"
	ErrTypeDuplicate         = "duplicate_matricule"
)

// ImportStats counts what happened to the rows of one file.
type ImportStats struct {
	TotalProcessed   int            `json:"total_processed"`
	ValidRecords     int            `json:"valid_records"`
	SkippedRecords   int            `json:"skipped_records"`
	CoercionWarnings int            `json:"coercion_warnings"`
	ErrorsByType     map[string]int `json:"errors_by_type"`
}

func NewImportStats() *ImportStats {
	return &ImportStats{ErrorsByType: make(map[string]int)}
}

func (s *ImportStats) AddError(errType string) {
	s.ErrorsByType[errType]++
	s.SkippedRecords++
}

// ParseResult holds the valid students of a file and the diagnostics of the
// rejected rows. Errors keeps the first MaxReportedErrors messages while
// ErrorCount counts all of them.
type ParseResult struct {
	Students   []models.Student `json:"-"`
	Errors     []string         `json:"errors"`
	ErrorCount int              `json:"error_count"`
	Stats      *ImportStats     `json:"stats"`
}

func (r *ParseResult) addError(errType string, format string, args ...any) {
	r.Stats.AddError(errType)
	r.ErrorCount++
	if len(r.Errors) < MaxReportedErrors {
		r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	}
}

// Parse turns sheet rows into validated students. Rows missing a matricule or
// a name, or repeating a matricule already seen in the file, are skipped and
// reported. Unparsable numbers fall back to zero and count as coercion
// warnings. ErrNoValidRecords is returned when no row survives.
func Parse(sheet *Sheet, mapping Mapping, examType models.ExamType, year int) (*ParseResult, error) {
	cols := resolveColumns(sheet, mapping)
	result := &ParseResult{Stats: NewImportStats()}
	seen := make(map[string]int, len(sheet.Rows))

	for _, row := range sheet.Rows {
		result.Stats.TotalProcessed++

		matricule := row.Cell(cols[FieldMatricule]).AsText()
		if matricule == "" {
			result.addError(ErrTypeMissingMatricule, "row %d: missing matricule", row.Number)
			continue
		}
		nom := row.Cell(cols[FieldNomComplet]).AsText()
		if nom == "" {
			result.addError(ErrTypeMissingNomComplet, "row %d: missing nom_complet for matricule %s", row.Number, matricule)
			continue
		}
		if first, dup := seen[matricule]; dup {
			result.addError(ErrTypeDuplicate, "row %d: duplicate matricule %s (first seen on row %d)", row.Number, matricule, first)
			continue
		}
		seen[matricule] = row.Number

		student, warnings := buildStudent(row, cols, examType, year)
		student.Matricule = matricule
		student.NomComplet = nom
		result.Stats.CoercionWarnings += warnings
		result.Students = append(result.Students, student)
	}

	result.Stats.ValidRecords = len(result.Students)
	if len(result.Students) == 0 {
		return result, withDetail(ErrNoValidRecords,
			fmt.Sprintf("no valid student record in %d rows (%d rejected)", result.Stats.TotalProcessed, result.ErrorCount), nil)
	}
	return result, nil
}

func buildStudent(row Row, cols map[Field]int, examType models.ExamType, year int) (models.Student, int) {
	warnings := 0
	number := func(f Field) (float64, bool) {
		c := row.Cell(cols[f])
		v, ok := c.AsFloat()
		if !ok && !c.IsEmpty() {
			warnings++
		}
		return v, ok
	}

	s := models.Student{
		Ecole:         row.Cell(cols[FieldEcole]).AsText(),
		Etablissement: row.Cell(cols[FieldEtablissement]).AsText(),
		DecisionText:  row.Cell(cols[FieldDecision]).AsText(),
		Section:       row.Cell(cols[FieldSection]).AsText(),
		Year:          year,
		ExamType:      examType,
	}
	s.Admis = decision.IsAdmitted(s.DecisionText)
	if examType == models.ExamBrevet {
		s.Section = models.BrevetSection
	}

	s.Moyenne, _ = number(FieldMoyenne)
	if rang, ok := number(FieldRang); ok {
		s.Rang = int(math.Round(rang))
	}
	if rang, ok := number(FieldRangEtablissement); ok {
		v := int(math.Round(rang))
		s.RangEtablissement = &v
	}
	s.Wilaya = optionalText(row.Cell(cols[FieldWilaya]))
	s.LieuNaissance = optionalText(row.Cell(cols[FieldLieuNaissance]))
	if d, ok := row.Cell(cols[FieldDateNaissance]).AsDate(); ok {
		s.DateNaissance = &d
	}
	return s, warnings
}

func optionalText(c Cell) *string {
	if c.IsEmpty() {
		return nil
	}
	v := c.AsText()
	return &v
}

// resolveColumns picks, per field, the mapped header's index or the
// positional default. A positional default already taken by a mapped field is
// left unread (-1).
func resolveColumns(sheet *Sheet, mapping Mapping) map[Field]int {
	cols := make(map[Field]int, len(PositionalDefaults))
	claimed := make(map[int]bool, len(mapping))
	for field := range PositionalDefaults {
		if header := mapping[field]; header != "" {
			if idx := sheet.ColumnIndex(header); idx >= 0 {
				cols[field] = idx
				claimed[idx] = true
			}
		}
	}
	for field, pos := range PositionalDefaults {
		if _, ok := cols[field]; ok {
			continue
		}
		if claimed[pos] {
			cols[field] = -1
			continue
		}
		cols[field] = pos
	}
	return cols
}

// ValidateMapping checks a user mapping before any row is parsed: every named
// header must exist and the identity fields must be mapped.
func ValidateMapping(sheet *Sheet, mapping Mapping) error {
	if len(mapping) == 0 {
		return nil
	}
	for field, header := range mapping {
		if header == "" {
			continue
		}
		if sheet.ColumnIndex(header) < 0 {
			return withDetail(ErrUnknownColumn,
				fmt.Sprintf("column %q mapped to %s is not in the file", header, field),
				map[string]string{"field": string(field), "column": header})
		}
	}
	for _, f := range []Field{FieldMatricule, FieldNomComplet} {
		if mapping[f] == "" {
			return withDetail(ErrMissingMapping, fmt.Sprintf("field %s must be mapped", f),
				map[string]string{"field": string(f)})
		}
	}
	return nil
}
