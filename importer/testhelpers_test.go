package importer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nonsonwune/examresults/importer/xlsxtest"
)

// buildWorkbook writes rows into the first sheet of a new workbook.
func buildWorkbook(t *testing.T, rows [][]any) []byte {
	return xlsxtest.Workbook(t, rows)
}

func mustSheet(t *testing.T, rows [][]string) *Sheet {
	t.Helper()
	s, err := NewSheet(rows)
	require.NoError(t, err)
	return s
}

func row(values ...string) []string { return values }

func matricules(n int, prefix string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%05d", prefix, i+1)
	}
	return out
}
