package models

import (
	"errors"
	"fmt"
	"strings"
)

// ExamType identifies an exam cohort family.
type ExamType string

const (
	ExamBAC    ExamType = "BAC"
	ExamBrevet ExamType = "BREVET"
)

// BrevetSection is stored in the section column of every BREVET record.
const BrevetSection = "BREVET"

// ErrInvalidExamType is returned when an exam type is neither BAC nor BREVET.
var ErrInvalidExamType = errors.New("invalid exam type")

// ParseExamType accepts "bac", "Brevet", ... and returns the canonical value.
func ParseExamType(s string) (ExamType, error) {
	switch ExamType(strings.ToUpper(strings.TrimSpace(s))) {
	case ExamBAC:
		return ExamBAC, nil
	case ExamBrevet:
		return ExamBrevet, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidExamType, s)
}

func (e ExamType) String() string { return string(e) }

// HasSections reports whether students of this exam are grouped by section.
func (e ExamType) HasSections() bool { return e == ExamBAC }

// Cohort is the set of students sharing a year and an exam type.
type Cohort struct {
	Year     int      `json:"year"`
	ExamType ExamType `json:"exam_type"`
}

func (c Cohort) String() string {
	return fmt.Sprintf("%s-%d", c.ExamType, c.Year)
}
