package database

import (
	"database/sql"
	"fmt"

	"github.com/nonsonwune/examresults/models"
)

// StudentColumns is the column list matching ScanStudent, in insert order.
const StudentColumns = `matricule, nom_complet, ecole, etablissement, moyenne, rang, admis,
	decision_text, section, wilaya, rang_etablissement, lieu_naissance, date_naissance,
	year, exam_type, updated_at`

// StudentColumnCount is the number of columns in StudentColumns.
const StudentColumnCount = 16

type scanner interface {
	Scan(dest ...any) error
}

// StudentArgs returns the values of s in StudentColumns order.
func StudentArgs(s *models.Student) []any {
	return []any{
		s.Matricule, s.NomComplet, s.Ecole, s.Etablissement, s.Moyenne, s.Rang, s.Admis,
		s.DecisionText, s.Section, s.Wilaya, s.RangEtablissement, s.LieuNaissance, s.DateNaissance,
		s.Year, string(s.ExamType), s.UpdatedAt,
	}
}

// ScanStudent reads one row selected with StudentColumns.
func ScanStudent(row scanner) (*models.Student, error) {
	var (
		s        models.Student
		wilaya   sql.NullString
		rangEtab sql.NullInt64
		lieu     sql.NullString
		date     sql.NullString
		examType string
	)
	err := row.Scan(&s.Matricule, &s.NomComplet, &s.Ecole, &s.Etablissement, &s.Moyenne, &s.Rang, &s.Admis,
		&s.DecisionText, &s.Section, &wilaya, &rangEtab, &lieu, &date,
		&s.Year, &examType, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.ExamType = models.ExamType(examType)
	if wilaya.Valid {
		s.Wilaya = &wilaya.String
	}
	if rangEtab.Valid {
		r := int(rangEtab.Int64)
		s.RangEtablissement = &r
	}
	if lieu.Valid {
		s.LieuNaissance = &lieu.String
	}
	if date.Valid {
		s.DateNaissance = &date.String
	}
	return &s, nil
}

// ScanStudents drains rows and closes them.
func ScanStudents(rows *sql.Rows) ([]models.Student, error) {
	defer rows.Close()
	var students []models.Student
	for rows.Next() {
		s, err := ScanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning student: %w", err)
		}
		students = append(students, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating students: %w", err)
	}
	return students, nil
}
