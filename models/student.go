package models

import "time"

// Student represents the students table: one exam result for one candidate.
type Student struct {
	Matricule         string    `db:"matricule" json:"matricule"`
	NomComplet        string    `db:"nom_complet" json:"nom_complet"`
	Ecole             string    `db:"ecole" json:"ecole"`
	Etablissement     string    `db:"etablissement" json:"etablissement"`
	Moyenne           float64   `db:"moyenne" json:"moyenne"`
	Rang              int       `db:"rang" json:"rang"`
	Admis             bool      `db:"admis" json:"admis"`
	DecisionText      string    `db:"decision_text" json:"decision_text"`
	Section           string    `db:"section" json:"section"`
	Wilaya            *string   `db:"wilaya" json:"wilaya,omitempty"`
	RangEtablissement *int      `db:"rang_etablissement" json:"rang_etablissement,omitempty"`
	LieuNaissance     *string   `db:"lieu_naissance" json:"lieu_naissance,omitempty"`
	DateNaissance     *string   `db:"date_naissance" json:"date_naissance,omitempty"`
	Year              int       `db:"year" json:"year"`
	ExamType          ExamType  `db:"exam_type" json:"exam_type"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// WilayaName returns the region or an empty string.
func (s Student) WilayaName() string {
	if s.Wilaya == nil {
		return ""
	}
	return *s.Wilaya
}

// Cohort returns the (year, exam type) the student belongs to.
func (s Student) Cohort() Cohort {
	return Cohort{Year: s.Year, ExamType: s.ExamType}
}
