package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/nonsonwune/examresults/importer"
	"github.com/nonsonwune/examresults/ingest"
	"github.com/nonsonwune/examresults/models"
	"github.com/nonsonwune/examresults/ranking"
)

var (
	title   = color.New(color.FgCyan, color.Bold)
	heading = color.New(color.FgYellow)
	success = color.New(color.FgGreen)
	warning = color.New(color.FgRed)
)

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func score(v float64) string { return fmt.Sprintf("%.2f", v) }

func rank(pos, total int) string {
	if pos == 0 {
		return "-"
	}
	return fmt.Sprintf("%d / %d", pos, total)
}

func displayStudent(w io.Writer, s *models.Student) {
	title.Fprintf(w, "\n%s - %s %d\n", s.NomComplet, s.ExamType, s.Year)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.AppendBulk([][]string{
		{"Matricule", s.Matricule},
		{"Moyenne", score(s.Moyenne)},
		{"Rang", strconv.Itoa(s.Rang)},
		{"Admis", yesNo(s.Admis)},
		{"Decision", s.DecisionText},
		{"Section", s.Section},
		{"Etablissement", s.Etablissement},
		{"Ecole", s.Ecole},
		{"Wilaya", orDash(s.Wilaya)},
		{"Lieu de naissance", orDash(s.LieuNaissance)},
		{"Date de naissance", orDash(s.DateNaissance)},
	})
	table.Render()
}

func displayCandidateRanking(w io.Writer, r *models.CandidateRanking) {
	title.Fprintf(w, "\nRanking of %s (moyenne %s)\n", r.Matricule, score(r.Moyenne))
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Scope", "Rank"})
	if r.ExamType.HasSections() {
		table.Append([]string{"Section", rank(r.SectionRank, r.SectionTotal)})
	}
	table.Append([]string{"Etablissement", rank(r.SchoolRank, r.SchoolTotal)})
	if r.GeneralRank > 0 {
		table.Append([]string{"General", rank(r.GeneralRank, r.GeneralTotal)})
	}
	table.Render()
}

func studentsTable(w io.Writer, students []models.Student) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Rank", "Matricule", "Name", "Moyenne", "Section", "Etablissement", "Decision"})
	for _, s := range students {
		table.Append([]string{
			strconv.Itoa(s.Rang),
			s.Matricule,
			s.NomComplet,
			score(s.Moyenne),
			s.Section,
			s.Etablissement,
			s.DecisionText,
		})
	}
	table.Render()
}

func displayLeaderboard(w io.Writer, b *models.Leaderboard) {
	title.Fprintf(w, "\nTop %d admitted - %s %d\n", b.Limit, b.ExamType, b.Year)
	if len(b.Sections) == 0 && len(b.Students) == 0 {
		warning.Fprintln(w, "No admitted student.")
		return
	}
	if b.Students != nil {
		studentsTable(w, b.Students)
		return
	}
	names := make([]string, 0, len(b.Sections))
	for name := range b.Sections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		board := b.Sections[name]
		heading.Fprintf(w, "\nSection %s: %d admitted of %d (%.2f%%)\n",
			name, board.Stats.Admitted, board.Stats.Total, board.Stats.AdmissionRate)
		studentsTable(w, board.Students)
	}
}

func groupTable(w io.Writer, label string, groups []models.GroupStats) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{label, "Total", "Admitted", "Rate", "Avg Score"})
	for _, g := range groups {
		table.Append([]string{
			g.Name,
			strconv.Itoa(g.Total),
			strconv.Itoa(g.Admitted),
			fmt.Sprintf("%.2f%%", g.AdmissionRate),
			score(g.AverageScore),
		})
	}
	table.Render()
}

func displayStatistics(w io.Writer, s *models.Statistics) {
	title.Fprintf(w, "\nStatistics - %s %d\n", s.ExamType, s.Year)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.AppendBulk([][]string{
		{"Candidates", strconv.Itoa(s.Total)},
		{"Admitted", fmt.Sprintf("%d (%.2f%%)", s.Admitted, s.AdmissionRate)},
		{"Sessionnaires", fmt.Sprintf("%d (%.2f%%)", s.Sessionnaires, s.SessionnaireRate)},
		{"Average", score(s.AverageScore)},
		{"Min / Max", score(s.MinScore) + " / " + score(s.MaxScore)},
	})
	table.Render()

	if len(s.BySection) > 0 {
		heading.Fprintln(w, "\nBy section")
		groupTable(w, "Section", s.BySection)
	}
	if len(s.ByWilaya) > 0 {
		heading.Fprintln(w, "\nBy wilaya")
		groupTable(w, "Wilaya", s.ByWilaya)
	}
}

func displayStudents(w io.Writer, etablissement string, students []models.Student) {
	title.Fprintf(w, "\n%s: %d students\n", etablissement, len(students))
	studentsTable(w, students)
}

func displayRegionIndex(w io.Writer, index map[string][]string) {
	names := make([]string, 0, len(index))
	for name := range index {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Wilaya", "Etablissements"})
	table.SetAutoWrapText(false)
	for _, name := range names {
		table.Append([]string{name, strings.Join(index[name], ", ")})
	}
	table.Render()
}

func displayRegionPage(w io.Writer, p *models.RegionPage) {
	title.Fprintf(w, "\n%s: %d students, %d admitted, average %s\n",
		p.Wilaya, p.TotalCount, p.AdmittedCount, score(p.AverageScore))
	if len(p.Sections) > 0 {
		fmt.Fprintf(w, "Sections: %s\n", strings.Join(p.Sections, ", "))
	}
	studentsTable(w, p.Students)
	fmt.Fprintf(w, "Page %d of %d\n", p.Page, p.TotalPages)
}

func displayAnalysis(w io.Writer, a *importer.Analysis) {
	title.Fprintf(w, "\nSheet %q: %d data rows\n", a.SheetName, a.TotalRows)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Required", "Suggested Column"})
	fields := append(append([]importer.Field(nil), a.RequiredFields...), a.OptionalFields...)
	required := make(map[importer.Field]bool, len(a.RequiredFields))
	for _, f := range a.RequiredFields {
		required[f] = true
	}
	for _, f := range fields {
		col := a.SuggestedMapping[f]
		if col == "" {
			col = "-"
		}
		table.Append([]string{string(f), yesNo(required[f]), col})
	}
	table.Render()

	if len(a.UnmappedFields) > 0 {
		names := make([]string, len(a.UnmappedFields))
		for i, f := range a.UnmappedFields {
			names[i] = string(f)
		}
		warning.Fprintf(w, "Unmapped required fields: %s\n", strings.Join(names, ", "))
	}

	if len(a.SampleRows) > 0 {
		heading.Fprintln(w, "\nSample rows")
		sample := tablewriter.NewWriter(w)
		sample.SetHeader(a.Columns)
		for _, row := range a.SampleRows {
			cells := make([]string, len(a.Columns))
			for i, c := range a.Columns {
				cells[i] = row[c]
			}
			sample.Append(cells)
		}
		sample.Render()
	}
}

func displayOutcome(w io.Writer, o *ingest.Outcome) {
	status := success
	if o.Status != ingest.StatusComplete {
		status = warning
	}
	status.Fprintf(w, "\nImport %s: %s %d from %s\n", o.Status, o.ExamType, o.Year, o.FileName)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Uploaded", strconv.Itoa(o.UploadedCount)})
	table.Append([]string{"Failed", strconv.Itoa(o.FailedCount)})
	table.Append([]string{"Row errors", strconv.Itoa(o.RowErrorCount)})
	if o.Stats != nil {
		table.Append([]string{"Rows processed", strconv.Itoa(o.Stats.TotalProcessed)})
		table.Append([]string{"Coercion warnings", strconv.Itoa(o.Stats.CoercionWarnings)})
	}
	if o.Ranks != nil {
		table.Append([]string{"Ranks updated", strconv.Itoa(o.Ranks.UpdatedCount)})
	}
	table.Append([]string{"Duration", o.Duration.Round(time.Millisecond).String()})
	table.Render()

	for _, msg := range o.RowErrors {
		warning.Fprintln(w, "  "+msg)
	}
	for _, msg := range o.Errors {
		warning.Fprintln(w, "  "+msg)
	}
}

func displayUploads(w io.Writer, uploads []models.Upload) {
	if len(uploads) == 0 {
		warning.Fprintln(w, "No cohort has been published.")
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Year", "Exam", "File", "Students", "Uploaded At"})
	for _, u := range uploads {
		table.Append([]string{
			strconv.Itoa(u.Year),
			string(u.ExamType),
			u.FileName,
			strconv.Itoa(u.StudentCount),
			u.UploadedAt.Format("2006-01-02 15:04"),
		})
	}
	table.Render()
}

func displayRecalc(w io.Writer, r *ranking.RecalcResult) {
	success.Fprintf(w, "%d of %d ranks changed\n", r.UpdatedCount, r.Total)
	if len(r.Samples) == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Matricule", "Moyenne", "Old Rank", "New Rank"})
	for _, c := range r.Samples {
		table.Append([]string{c.Matricule, score(c.Moyenne), strconv.Itoa(c.OldRank), strconv.Itoa(c.NewRank)})
	}
	table.Render()
}

func inconsistencyTable(w io.Writer, found []ranking.Inconsistency) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Matricule", "Decision", "Moyenne", "Stored", "Expected"})
	for _, i := range found {
		table.Append([]string{i.Matricule, i.DecisionText, score(i.Moyenne), yesNo(i.Stored), yesNo(i.Expected)})
	}
	table.Render()
}

func displayInconsistencies(w io.Writer, found []ranking.Inconsistency) {
	if len(found) == 0 {
		success.Fprintln(w, "Every admission flag matches its decision.")
		return
	}
	warning.Fprintf(w, "%d admission flags contradict their decision\n", len(found))
	inconsistencyTable(w, found)
}

func displayRepair(w io.Writer, r *ranking.RepairReport) {
	success.Fprintf(w, "Checked %d, inconsistent %d, fixed %d\n", r.Checked, r.Inconsistent, r.Fixed)
	if len(r.Samples) > 0 {
		inconsistencyTable(w, r.Samples)
	}
}
