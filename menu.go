package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nonsonwune/examresults/models"
	"github.com/nonsonwune/examresults/query"
)

func newMenuCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Browse published results interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				m := &menu{
					app: a,
					in:  bufio.NewScanner(cmd.InOrStdin()),
					out: cmd.OutOrStdout(),
				}
				return m.run(ctx)
			})
		},
	}
}

type menu struct {
	app    *app
	in     *bufio.Scanner
	out    io.Writer
	year   int
	exam   models.ExamType
	closed bool
}

func (m *menu) display() {
	title.Fprintf(m.out, "\n=== Exam Results (%s %d) ===\n", m.exam, m.year)
	fmt.Fprintln(m.out, "1. Select Cohort")
	fmt.Fprintln(m.out, "2. Search Student")
	fmt.Fprintln(m.out, "3. Student Ranking")
	fmt.Fprintln(m.out, "4. Leaderboard")
	fmt.Fprintln(m.out, "5. Statistics")
	fmt.Fprintln(m.out, "6. Students by Etablissement")
	fmt.Fprintln(m.out, "7. Students by Wilaya")
	fmt.Fprintln(m.out, "8. Published Cohorts")
	fmt.Fprintln(m.out, "9. Exit")
	fmt.Fprint(m.out, "\nEnter your choice (1-9): ")
}

func (m *menu) read() string {
	if !m.in.Scan() {
		m.closed = true
		return ""
	}
	return strings.TrimSpace(m.in.Text())
}

func (m *menu) prompt(label string) string {
	fmt.Fprint(m.out, label)
	return m.read()
}

func (m *menu) run(ctx context.Context) error {
	for {
		m.display()
		choice := m.read()
		if m.closed {
			return nil
		}
		if choice == "9" {
			success.Fprintln(m.out, "Goodbye!")
			return nil
		}
		if choice != "1" && choice != "8" && m.year == 0 {
			warning.Fprintln(m.out, "Select a cohort first.")
			continue
		}

		var err error
		switch choice {
		case "1":
			m.selectCohort()
		case "2":
			var s *models.Student
			if s, err = m.app.query.FindStudent(ctx, m.prompt("Matricule: "), m.year, m.exam); err == nil {
				displayStudent(m.out, s)
			}
		case "3":
			var r *models.CandidateRanking
			if r, err = m.app.query.CandidateRanking(ctx, m.prompt("Matricule: "), m.year, m.exam); err == nil {
				displayCandidateRanking(m.out, r)
			}
		case "4":
			var b *models.Leaderboard
			if b, err = m.app.query.Leaderboard(ctx, m.year, m.exam, 0); err == nil {
				displayLeaderboard(m.out, b)
			}
		case "5":
			var s *models.Statistics
			if s, err = m.app.query.Statistics(ctx, m.year, m.exam); err == nil {
				displayStatistics(m.out, s)
			}
		case "6":
			name := m.prompt("Etablissement: ")
			var students []models.Student
			if students, err = m.app.query.StudentsBySchool(ctx, name, m.year, m.exam); err == nil {
				displayStudents(m.out, name, students)
			}
		case "7":
			var p *models.RegionPage
			p, err = m.app.query.StudentsByRegion(ctx, query.RegionQuery{
				Wilaya:   m.prompt("Wilaya: "),
				Year:     m.year,
				ExamType: m.exam,
			})
			if err == nil {
				displayRegionPage(m.out, p)
			}
		case "8":
			var uploads []models.Upload
			if uploads, err = m.app.ingest.Uploads(ctx); err == nil {
				displayUploads(m.out, uploads)
			}
		default:
			warning.Fprintln(m.out, "Invalid choice. Please try again.")
		}
		if err != nil {
			warning.Fprintf(m.out, "Error: %v\n", err)
		}
	}
}

func (m *menu) selectCohort() {
	exam, err := models.ParseExamType(m.prompt("Exam type (BAC/BREVET): "))
	if err != nil {
		warning.Fprintf(m.out, "Error: %v\n", err)
		return
	}
	year, err := strconv.Atoi(m.prompt("Year (e.g., 2024): "))
	if err != nil || year <= 0 {
		warning.Fprintln(m.out, "Invalid year.")
		return
	}
	m.year, m.exam = year, exam
}
