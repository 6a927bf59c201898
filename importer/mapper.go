package importer

import (
	"strings"

	"github.com/nonsonwune/examresults/decision"
	"github.com/nonsonwune/examresults/models"
)

// Field is a canonical student field a spreadsheet column can be mapped to.
type Field string

const (
	FieldMatricule         Field = "matricule"
	FieldNomComplet        Field = "nom_complet"
	FieldEcole             Field = "ecole"
	FieldEtablissement     Field = "etablissement"
	FieldMoyenne           Field = "moyenne"
	FieldRang              Field = "rang"
	FieldDecision          Field = "decision"
	FieldSection           Field = "section"
	FieldWilaya            Field = "wilaya"
	FieldRangEtablissement Field = "rang_etablissement"
	FieldLieuNaissance     Field = "lieu_naissance"
	FieldDateNaissance     Field = "date_naissance"
)

// Mapping assigns spreadsheet headers to canonical fields.
type Mapping map[Field]string

// FieldPattern lists the header names recognised for a field.
type FieldPattern struct {
	Field    Field
	Patterns []string
}

// FieldPatterns drives the suggested mapping. Within a pass fields are
// resolved in this order and a header claimed once is not offered again.
var FieldPatterns = []FieldPattern{
	{FieldMatricule, []string{"matricule", "num bac", "numero", "num", "identifiant", "id", "code candidat"}},
	{FieldNomComplet, []string{"nom complet", "nom prenom", "nom", "prenom", "name", "full name", "candidat", "eleve"}},
	{FieldSection, []string{"section", "serie", "filiere", "branche", "specialite"}},
	{FieldMoyenne, []string{"moybac", "moyenne", "moy", "note", "score", "average", "mean"}},
	{FieldEcole, []string{"ecole", "centre examen", "centre", "center", "school", "institution"}},
	{FieldEtablissement, []string{"etablissement", "etab", "lycee", "college", "establishment"}},
	{FieldWilaya, []string{"wilaya", "region", "province", "state", "departement"}},
	{FieldDecision, []string{"decision", "resultat", "result", "statut", "status", "observation"}},
	{FieldRangEtablissement, []string{"rang etablissement", "rang etab", "school rank"}},
	{FieldRang, []string{"rang", "rank", "classement", "position"}},
	{FieldLieuNaissance, []string{"lieu naissance", "lieu nais", "lieunais", "birthplace", "place of birth"}},
	{FieldDateNaissance, []string{"date naissance", "date naiss", "datenaiss", "naissance", "birth", "dob"}},
}

// RequiredFields returns the fields an exam type needs mapped.
func RequiredFields(examType models.ExamType) []Field {
	fields := []Field{FieldMatricule, FieldNomComplet, FieldSection, FieldMoyenne, FieldEcole, FieldEtablissement, FieldWilaya, FieldDecision}
	if examType.HasSections() {
		return fields
	}
	out := make([]Field, 0, len(fields)-1)
	for _, f := range fields {
		if f != FieldSection {
			out = append(out, f)
		}
	}
	return out
}

// OptionalFields returns fields that may stay unmapped.
func OptionalFields() []Field {
	return []Field{FieldDateNaissance, FieldLieuNaissance, FieldRang, FieldRangEtablissement}
}

// SampleSize is the number of data rows echoed back by Analyze.
const SampleSize = 3

// Analysis is the first phase of an import: what the file looks like and how
// its columns could be mapped.
type Analysis struct {
	SheetName        string              `json:"sheet_name"`
	Columns          []string            `json:"columns"`
	SampleRows       []map[string]string `json:"sample_rows"`
	SuggestedMapping Mapping             `json:"suggested_mapping"`
	RequiredFields   []Field             `json:"required_fields"`
	OptionalFields   []Field             `json:"optional_fields"`
	UnmappedFields   []Field             `json:"unmapped_fields"`
	TotalRows        int                 `json:"total_rows"`
}

// Analyze reads a workbook and proposes a column mapping. Nothing is persisted.
func Analyze(data []byte, examType models.ExamType) (*Analysis, error) {
	sheet, err := ReadSheet(data)
	if err != nil {
		return nil, err
	}
	return AnalyzeSheet(sheet, examType), nil
}

// AnalyzeSheet is Analyze on an already parsed sheet.
func AnalyzeSheet(sheet *Sheet, examType models.ExamType) *Analysis {
	a := &Analysis{
		SheetName:        sheet.Name,
		Columns:          append([]string(nil), sheet.Headers...),
		SuggestedMapping: SuggestMapping(sheet.Headers),
		RequiredFields:   RequiredFields(examType),
		OptionalFields:   OptionalFields(),
		TotalRows:        len(sheet.Rows),
	}
	if !examType.HasSections() {
		delete(a.SuggestedMapping, FieldSection)
	}

	for i := 0; i < len(sheet.Rows) && i < SampleSize; i++ {
		sample := make(map[string]string, len(sheet.Headers))
		for j, h := range sheet.Headers {
			sample[h] = sheet.Rows[i].Cell(j).AsText()
		}
		a.SampleRows = append(a.SampleRows, sample)
	}

	for _, f := range a.RequiredFields {
		if _, ok := a.SuggestedMapping[f]; !ok {
			a.UnmappedFields = append(a.UnmappedFields, f)
		}
	}
	return a
}

// SuggestMapping matches headers against FieldPatterns. Exact (normalized)
// matches are assigned first for every field, then remaining fields take the
// first free header that contains one of their patterns or is contained in one.
func SuggestMapping(headers []string) Mapping {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = normalizeHeader(h)
	}

	claimed := make(map[int]bool, len(headers))
	mapping := make(Mapping)
	passes := []func(h, p string) bool{
		func(h, p string) bool { return h == p },
		func(h, p string) bool { return strings.Contains(h, p) || strings.Contains(p, h) },
	}
	for _, match := range passes {
		for _, fp := range FieldPatterns {
			if _, done := mapping[fp.Field]; done {
				continue
			}
			if idx := matchHeader(normalized, claimed, fp.Patterns, match); idx >= 0 {
				claimed[idx] = true
				mapping[fp.Field] = headers[idx]
			}
		}
	}
	return mapping
}

func matchHeader(headers []string, claimed map[int]bool, patterns []string, match func(h, p string) bool) int {
	for i, h := range headers {
		if claimed[i] || h == "" {
			continue
		}
		for _, p := range patterns {
			if match(h, p) {
				return i
			}
		}
	}
	return -1
}

func normalizeHeader(h string) string {
	h = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(h)
	return decision.Normalize(h)
}
