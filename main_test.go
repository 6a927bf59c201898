package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonsonwune/examresults/importer/xlsxtest"
	"github.com/nonsonwune/examresults/query"
)

// setupCLI points the configuration at a fresh SQLite file.
func setupCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_PATH", filepath.Join(dir, "results.db"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("CACHE_TTL", "0s")
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func bacFile(t *testing.T, dir string) string {
	t.Helper()
	return writeFile(t, dir, "bac2024.xlsx", xlsxtest.Workbook(t, [][]any{
		{"Matricule", "Nom Complet", "Etablissement", "Moyenne", "Decision", "Section", "Wilaya"},
		{"1001", "Awa Ba", "Lycee Nord", 15.2, "Admis", "SN", "Nouakchott"},
		{"1002", "Sidi Sow", "Lycee Nord", 9.1, "Sessionnaire", "SN", "Nouakchott"},
		{"1003", "Mariem Diallo", "Lycee Sud", 12.75, "Admis", "LM", "Trarza"},
	}))
}

func TestImportAndQueryCommands(t *testing.T) {
	dir := setupCLI(t)
	file := bacFile(t, dir)

	out, err := run(t, "", "analyze", file, "--exam", "bac")
	require.NoError(t, err)
	assert.Contains(t, out, "3 data rows")
	assert.Contains(t, out, "Nom Complet")

	out, err = run(t, "", "import", file, "--year", "2024", "--exam", "BAC")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Import complete")

	out, err = run(t, "", "lookup", "1003", "--year", "2024", "--exam", "BAC")
	require.NoError(t, err)
	assert.Contains(t, out, "Mariem Diallo")
	assert.Contains(t, out, "12.75")
	assert.Contains(t, out, "Trarza")

	out, err = run(t, "", "ranking", "1002", "--year", "2024", "--exam", "BAC")
	require.NoError(t, err)
	assert.Contains(t, out, "2 / 2")

	out, err = run(t, "", "stats", "--year", "2024", "--exam", "BAC")
	require.NoError(t, err)
	assert.Contains(t, out, "2 (66.67%)")
	assert.Contains(t, out, "By wilaya")

	out, err = run(t, "", "leaderboard", "--year", "2024", "--exam", "BAC", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Section LM")
	assert.Contains(t, out, "Section SN")

	out, err = run(t, "", "school", "Lycee Nord", "--year", "2024", "--exam", "BAC")
	require.NoError(t, err)
	assert.Contains(t, out, "Lycee Nord: 2 students")

	out, err = run(t, "", "region", "--year", "2024", "--exam", "BAC")
	require.NoError(t, err)
	assert.Contains(t, out, "Nouakchott")

	out, err = run(t, "", "region", "Nouakchott", "--year", "2024", "--exam", "BAC", "--page-size", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Page 1 of 2")

	out, err = run(t, "", "uploads")
	require.NoError(t, err)
	assert.Contains(t, out, "bac2024.xlsx")
}

func TestImportMappingSources(t *testing.T) {
	dir := setupCLI(t)
	file := writeFile(t, dir, "brevet.xlsx", xlsxtest.Workbook(t, [][]any{
		{"ID", "Candidat", "Centre", "College", "Note", "Rang", "", "Resultat", "", "Region"},
		{"B1", "Ali Sy", "Centre 1", "College A", 11.5, 1, "", "Admis", "", "Adrar"},
		{"B2", "Ina Fall", "Centre 1", "College A", 8.25, 2, "", "Ajourné", "", "Adrar"},
	}))

	out, err := run(t, "", "import", file, "--year", "2023", "--exam", "BREVET", "--positional")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Import complete")

	out, err = run(t, "", "lookup", "B1", "--year", "2023", "--exam", "BREVET")
	require.NoError(t, err)
	assert.Contains(t, out, "College A")

	mapping := writeFile(t, dir, "mapping.json", []byte(`{"matricule":"ID","nom_complet":"Candidat","moyenne":"Note","decision":"Resultat"}`))
	out, err = run(t, "", "import", file, "--year", "2022", "--exam", "BREVET", "--mapping", mapping)
	require.NoError(t, err, out)

	out, err = run(t, "", "lookup", "B2", "--year", "2022", "--exam", "BREVET")
	require.NoError(t, err)
	assert.Contains(t, out, "Ina Fall")

	broken := writeFile(t, dir, "broken.json", []byte(`{"matricule":`))
	_, err = run(t, "", "import", file, "--year", "2022", "--exam", "BREVET", "--mapping", broken)
	assert.ErrorContains(t, err, "MISSING_MAPPING")

	_, err = run(t, "", "import", file, "--year", "2022", "--exam", "BREVET", "--mapping", mapping, "--positional")
	assert.Error(t, err)
}

func TestClearAskForConfirmation(t *testing.T) {
	dir := setupCLI(t)
	_, err := run(t, "", "import", bacFile(t, dir), "--year", "2024", "--exam", "BAC")
	require.NoError(t, err)

	out, err := run(t, "n\n", "clear", "--year", "2024", "--exam", "BAC")
	require.NoError(t, err)
	assert.Contains(t, out, "Clear cancelled.")

	_, err = run(t, "", "lookup", "1001", "--year", "2024", "--exam", "BAC")
	require.NoError(t, err)

	out, err = run(t, "y\n", "clear", "--year", "2024", "--exam", "BAC")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 3 students")

	_, err = run(t, "", "lookup", "1001", "--year", "2024", "--exam", "BAC")
	assert.ErrorIs(t, err, query.ErrNotFound)
}

func TestMaintenanceCommands(t *testing.T) {
	dir := setupCLI(t)
	_, err := run(t, "", "import", bacFile(t, dir), "--year", "2024", "--exam", "BAC")
	require.NoError(t, err)

	out, err := run(t, "", "ranks", "--year", "2024", "--exam", "BAC")
	require.NoError(t, err)
	assert.Contains(t, out, "0 of 3 ranks changed")

	out, err = run(t, "", "audit", "--year", "2024", "--exam", "BAC")
	require.NoError(t, err)
	assert.Contains(t, out, "Every admission flag matches its decision.")

	out, err = run(t, "", "audit", "--fix", "--year", "2024", "--exam", "BAC")
	require.NoError(t, err)
	assert.Contains(t, out, "Checked 3, inconsistent 0, fixed 0")

	out, err = run(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date (sqlite3)")
}

func TestCommandErrors(t *testing.T) {
	setupCLI(t)

	_, err := run(t, "", "lookup", "1001", "--year", "2024", "--exam", "CAP")
	assert.Error(t, err)

	_, err = run(t, "", "stats", "--exam", "BAC")
	assert.ErrorContains(t, err, `"year" not set`)

	_, err = run(t, "", "import", "missing.xlsx", "--year", "2024", "--exam", "BAC")
	assert.ErrorContains(t, err, "error opening file")

	t.Setenv("DB_DRIVER", "oracle")
	_, err = run(t, "", "uploads")
	assert.Error(t, err)
}

func TestMenu(t *testing.T) {
	dir := setupCLI(t)
	_, err := run(t, "", "import", bacFile(t, dir), "--year", "2024", "--exam", "BAC")
	require.NoError(t, err)

	input := strings.Join([]string{
		"5",
		"1", "bac", "2024",
		"2", "1001",
		"2", "nobody",
		"42",
		"9",
	}, "\n") + "\n"
	out, err := run(t, input, "menu")
	require.NoError(t, err)
	assert.Contains(t, out, "Select a cohort first.")
	assert.Contains(t, out, "Exam Results (BAC 2024)")
	assert.Contains(t, out, "Awa Ba")
	assert.Contains(t, out, "Error:")
	assert.Contains(t, out, "Invalid choice. Please try again.")
	assert.Contains(t, out, "Goodbye!")

	out, err = run(t, "", "menu")
	require.NoError(t, err, "end of input leaves the menu")
	assert.Contains(t, out, "Enter your choice")
}
