package importer

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonsonwune/examresults/models"
)

func TestParse_MappedScenario(t *testing.T) {
	sheet := mustSheet(t, [][]string{
		row("ID", "Name", "School", "Score", "Decision"),
		row("123", "Jane Doe", "Lycee X", "15.5", "Admis"),
	})
	mapping := Mapping{
		FieldMatricule:  "ID",
		FieldNomComplet: "Name",
		FieldEcole:      "School",
		FieldMoyenne:    "Score",
		FieldDecision:   "Decision",
	}

	res, err := Parse(sheet, mapping, models.ExamBAC, 2024)
	require.NoError(t, err)
	require.Len(t, res.Students, 1)

	s := res.Students[0]
	assert.Equal(t, "123", s.Matricule)
	assert.Equal(t, "Jane Doe", s.NomComplet)
	assert.Equal(t, "Lycee X", s.Ecole)
	assert.InDelta(t, 15.5, s.Moyenne, 1e-9)
	assert.True(t, s.Admis)
	assert.Equal(t, "Admis", s.DecisionText)
	assert.Equal(t, 2024, s.Year)
	assert.Equal(t, models.ExamBAC, s.ExamType)
	assert.Empty(t, s.Etablissement, "positional column 3 is claimed by Score")
	assert.Zero(t, res.ErrorCount)
}

func TestResolveColumns_ClaimedDefaultIsSkipped(t *testing.T) {
	sheet := mustSheet(t, [][]string{
		row("ID", "Name", "Centre", "Note"),
		row("7", "Ali", "C1", "12"),
	})
	cols := resolveColumns(sheet, Mapping{
		FieldMatricule:  "ID",
		FieldNomComplet: "Name",
		FieldMoyenne:    "Note",
	})

	assert.Equal(t, 3, cols[FieldMoyenne])
	assert.Equal(t, -1, cols[FieldEtablissement], "column 3 already holds the moyenne")
	assert.Equal(t, 2, cols[FieldEcole])
	assert.Equal(t, 5, cols[FieldRang])

	res, err := Parse(sheet, Mapping{
		FieldMatricule:  "ID",
		FieldNomComplet: "Name",
		FieldMoyenne:    "Note",
	}, models.ExamBrevet, 2024)
	require.NoError(t, err)
	require.Len(t, res.Students, 1)
	assert.Equal(t, "C1", res.Students[0].Ecole)
	assert.Empty(t, res.Students[0].Etablissement)
}

func TestParse_PartialFailure(t *testing.T) {
	gofakeit.Seed(42)
	rows := [][]string{row("Matricule", "Nom", "Ecole", "Etablissement", "Moyenne")}
	for i, m := range matricules(100, "BAC") {
		rows = append(rows, row(m, gofakeit.Name(), "Centre A", "Lycee B", fmt.Sprintf("%.2f", gofakeit.Float64Range(0, 20))))
		if i%20 == 0 {
			rows = append(rows, row("", gofakeit.Name(), "Centre A", "Lycee B", "10"))
		}
	}

	res, err := Parse(mustSheet(t, rows), nil, models.ExamBAC, 2024)
	require.NoError(t, err)

	assert.Len(t, res.Students, 100)
	assert.Equal(t, 5, res.ErrorCount)
	assert.Len(t, res.Errors, 5)
	assert.Equal(t, 5, res.Stats.ErrorsByType[ErrTypeMissingMatricule])
	assert.Equal(t, 105, res.Stats.TotalProcessed)
	assert.Equal(t, 100, res.Stats.ValidRecords)
	assert.Contains(t, res.Errors[0], "missing matricule")
}

func TestParse_DuplicatesAndMissingName(t *testing.T) {
	sheet := mustSheet(t, [][]string{
		row("Matricule", "Nom"),
		row("A1", "Awa"),
		row("A2", ""),
		row("A1", "Awa bis"),
		row("a1", "Lower case is another candidate"),
	})

	res, err := Parse(sheet, nil, models.ExamBAC, 2023)
	require.NoError(t, err)

	require.Len(t, res.Students, 2)
	assert.Equal(t, "A1", res.Students[0].Matricule)
	assert.Equal(t, "a1", res.Students[1].Matricule)
	assert.Equal(t, 2, res.ErrorCount)
	assert.Equal(t, 1, res.Stats.ErrorsByType[ErrTypeDuplicate])
	assert.Equal(t, 1, res.Stats.ErrorsByType[ErrTypeMissingNomComplet])
	assert.Equal(t, "row 4: duplicate matricule A1 (first seen on row 2)", res.Errors[1])
}

func TestParse_PositionalDefaults(t *testing.T) {
	sheet := mustSheet(t, [][]string{
		row("c0", "c1", "c2", "c3", "c4", "c5", "c6", "c7", "c8", "c9", "c10", "c11", "c12"),
		row("M1", "Awa Ba", "Centre 1", "Lycee 1", "13,75", "4", "TRUE", "Réussi", "SN", "Nouakchott", "2", "Kiffa", "38000"),
	})

	res, err := Parse(sheet, Mapping{}, models.ExamBAC, 2024)
	require.NoError(t, err)
	require.Len(t, res.Students, 1)

	s := res.Students[0]
	assert.Equal(t, "Centre 1", s.Ecole)
	assert.Equal(t, "Lycee 1", s.Etablissement)
	assert.InDelta(t, 13.75, s.Moyenne, 1e-9)
	assert.Equal(t, 4, s.Rang)
	assert.True(t, s.Admis)
	assert.Equal(t, "SN", s.Section)
	require.NotNil(t, s.Wilaya)
	assert.Equal(t, "Nouakchott", *s.Wilaya)
	require.NotNil(t, s.RangEtablissement)
	assert.Equal(t, 2, *s.RangEtablissement)
	require.NotNil(t, s.LieuNaissance)
	assert.Equal(t, "Kiffa", *s.LieuNaissance)
	require.NotNil(t, s.DateNaissance)
	assert.Equal(t, "2004-01-14", *s.DateNaissance)
}

func TestParse_AdmisNeverReadFromSource(t *testing.T) {
	sheet := mustSheet(t, [][]string{
		row("c0", "c1", "c2", "c3", "c4", "c5", "admis", "decision"),
		row("M1", "Awa", "", "", "9", "", "true", "Echec"),
		row("M2", "Bob", "", "", "11", "", "false", "Admis"),
	})

	res, err := Parse(sheet, nil, models.ExamBAC, 2024)
	require.NoError(t, err)
	assert.False(t, res.Students[0].Admis)
	assert.True(t, res.Students[1].Admis)
}

func TestParse_BrevetSectionForced(t *testing.T) {
	sheet := mustSheet(t, [][]string{
		row("Matricule", "Nom", "Serie"),
		row("B1", "Awa", "Sciences"),
	})

	res, err := Parse(sheet, Mapping{FieldMatricule: "Matricule", FieldNomComplet: "Nom", FieldSection: "Serie"}, models.ExamBrevet, 2024)
	require.NoError(t, err)
	assert.Equal(t, models.BrevetSection, res.Students[0].Section)
}

func TestParse_NumericCoercionDefaults(t *testing.T) {
	sheet := mustSheet(t, [][]string{
		row("Matricule", "Nom", "Moyenne", "Rang", "RangEtab"),
		row("M1", "Awa", "abs", "n/a", "?"),
		row("M2", "Bob", "", "", ""),
	})
	mapping := Mapping{
		FieldMatricule:         "Matricule",
		FieldNomComplet:        "Nom",
		FieldMoyenne:           "Moyenne",
		FieldRang:              "Rang",
		FieldRangEtablissement: "RangEtab",
	}

	res, err := Parse(sheet, mapping, models.ExamBAC, 2024)
	require.NoError(t, err)
	require.Len(t, res.Students, 2)

	for _, s := range res.Students {
		assert.Zero(t, s.Moyenne)
		assert.Zero(t, s.Rang)
		assert.Nil(t, s.RangEtablissement)
	}
	assert.Equal(t, 3, res.Stats.CoercionWarnings, "only non-empty unparsable cells are counted")
	assert.Zero(t, res.ErrorCount)
}

func TestParse_NoValidRecords(t *testing.T) {
	sheet := mustSheet(t, [][]string{row("Matricule", "Nom"), row("", "Awa"), row("M1", "")})

	res, err := Parse(sheet, nil, models.ExamBAC, 2024)
	assert.ErrorIs(t, err, ErrNoValidRecords)
	require.NotNil(t, res)
	assert.Equal(t, 2, res.ErrorCount)
}

func TestParse_ErrorListIsBounded(t *testing.T) {
	rows := [][]string{row("Matricule", "Nom")}
	for i := 0; i < MaxReportedErrors+15; i++ {
		rows = append(rows, row("", "x"+strconv.Itoa(i)))
	}
	rows = append(rows, row("OK", "Valid"))

	res, err := Parse(mustSheet(t, rows), nil, models.ExamBAC, 2024)
	require.NoError(t, err)
	assert.Len(t, res.Errors, MaxReportedErrors)
	assert.Equal(t, MaxReportedErrors+15, res.ErrorCount)
}

func TestValidateMapping(t *testing.T) {
	sheet := mustSheet(t, [][]string{row("ID", "Name"), row("1", "a")})

	assert.NoError(t, ValidateMapping(sheet, nil))
	assert.NoError(t, ValidateMapping(sheet, Mapping{FieldMatricule: "ID", FieldNomComplet: "Name"}))
	assert.ErrorIs(t, ValidateMapping(sheet, Mapping{FieldMatricule: "ID", FieldNomComplet: "Nom"}), ErrUnknownColumn)
	assert.ErrorIs(t, ValidateMapping(sheet, Mapping{FieldMatricule: "ID"}), ErrMissingMapping)
}
