package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonsonwune/examresults/models"
)

func TestSuggestMapping_FrenchHeaders(t *testing.T) {
	headers := []string{"Num_Bac", "Nom Complet", "Série", "MoyBac", "École", "Établissement", "Wilaya", "Décision", "Rang Etablissement", "Rang", "Lieu Naissance", "Date Naissance"}

	m := SuggestMapping(headers)

	assert.Equal(t, Mapping{
		FieldMatricule:         "Num_Bac",
		FieldNomComplet:        "Nom Complet",
		FieldSection:           "Série",
		FieldMoyenne:           "MoyBac",
		FieldEcole:             "École",
		FieldEtablissement:     "Établissement",
		FieldWilaya:            "Wilaya",
		FieldDecision:          "Décision",
		FieldRangEtablissement: "Rang Etablissement",
		FieldRang:              "Rang",
		FieldLieuNaissance:     "Lieu Naissance",
		FieldDateNaissance:     "Date Naissance",
	}, m)
}

func TestSuggestMapping_SubstringAndUnmatched(t *testing.T) {
	headers := []string{"ID", "Name", "School", "Average score", "Decision", "Commentaire"}

	m := SuggestMapping(headers)

	assert.Equal(t, "ID", m[FieldMatricule])
	assert.Equal(t, "Name", m[FieldNomComplet])
	assert.Equal(t, "School", m[FieldEcole])
	assert.Equal(t, "Average score", m[FieldMoyenne])
	assert.Equal(t, "Decision", m[FieldDecision])
	_, ok := m[FieldEtablissement]
	assert.False(t, ok, "etablissement should stay unmapped")
	_, ok = m[FieldWilaya]
	assert.False(t, ok, "wilaya should stay unmapped")
	_, ok = m[FieldSection]
	assert.False(t, ok, "section should stay unmapped")
}

func TestSuggestMapping_EnglishSchoolHeaders(t *testing.T) {
	m := SuggestMapping([]string{"Student ID", "Full Name", "Exam Center", "Establishment", "Score", "Result"})

	assert.Equal(t, Mapping{
		FieldMatricule:     "Student ID",
		FieldNomComplet:    "Full Name",
		FieldEcole:         "Exam Center",
		FieldEtablissement: "Establishment",
		FieldMoyenne:       "Score",
		FieldDecision:      "Result",
	}, m)

	m = SuggestMapping([]string{"ID", "Name", "Institution", "College"})
	assert.Equal(t, "Institution", m[FieldEcole])
	assert.Equal(t, "College", m[FieldEtablissement])
}

func TestSuggestMapping_ExactBeatsEarlierSubstring(t *testing.T) {
	m := SuggestMapping([]string{"Moyenne generale", "Nom du pere", "Moy", "Nom"})
	assert.Equal(t, "Moy", m[FieldMoyenne], "a later exact header wins over an earlier partial one")
	assert.Equal(t, "Nom", m[FieldNomComplet])

	m = SuggestMapping([]string{"Moyenne generale", "Nom"})
	assert.Equal(t, "Moyenne generale", m[FieldMoyenne], "partial match when no exact header exists")
}

func TestSuggestMapping_HeaderClaimedOnce(t *testing.T) {
	m := SuggestMapping([]string{"Rang"})
	assert.Equal(t, Mapping{FieldRang: "Rang"}, m, "exact matches win over substring matches")

	m = SuggestMapping([]string{"Classement"})
	assert.Equal(t, Mapping{FieldRang: "Classement"}, m)

	m = SuggestMapping([]string{"Rang", "Rang etab"})
	assert.Equal(t, "Rang etab", m[FieldRangEtablissement])
	assert.Equal(t, "Rang", m[FieldRang])
}

func TestRequiredFields(t *testing.T) {
	bac := RequiredFields(models.ExamBAC)
	brevet := RequiredFields(models.ExamBrevet)

	assert.Contains(t, bac, FieldSection)
	assert.NotContains(t, brevet, FieldSection)
	assert.Len(t, bac, 8)
	assert.Len(t, brevet, 7)
	assert.NotContains(t, bac, FieldDateNaissance)
}

func TestAnalyze(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"Matricule", "Nom", "Ecole", "Etablissement", "Moyenne", "Decision", "Section"},
		{"1", "A", "E1", "L1", 12.5, "Admis", "SN"},
		{"2", "B", "E1", "L1", 8, "Sessionnaire", "SN"},
		{"3", "C", "E2", "L2", 14, "Admis", "LM"},
		{"4", "D", "E2", "L2", 6, "Echec", "LM"},
	})

	a, err := Analyze(data, models.ExamBAC)
	require.NoError(t, err)

	assert.Equal(t, 4, a.TotalRows)
	assert.Len(t, a.Columns, 7)
	require.Len(t, a.SampleRows, SampleSize)
	assert.Equal(t, "Admis", a.SampleRows[0]["Decision"])
	assert.Equal(t, "12.5", a.SampleRows[0]["Moyenne"])
	assert.Equal(t, "Section", a.SuggestedMapping[FieldSection])
	assert.Equal(t, []Field{FieldWilaya}, a.UnmappedFields)

	brevet, err := Analyze(data, models.ExamBrevet)
	require.NoError(t, err)
	_, ok := brevet.SuggestedMapping[FieldSection]
	assert.False(t, ok)
	assert.NotContains(t, brevet.RequiredFields, FieldSection)
}

func TestAnalyze_PropagatesSheetErrors(t *testing.T) {
	_, err := Analyze(buildWorkbook(t, [][]any{{"Matricule"}}), models.ExamBAC)
	assert.ErrorIs(t, err, ErrEmptyFile)
}
