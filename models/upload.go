package models

import "time"

// Upload represents the uploads table: provenance of the last ingestion of a cohort.
type Upload struct {
	Year         int       `db:"year" json:"year"`
	ExamType     ExamType  `db:"exam_type" json:"exam_type"`
	FileName     string    `db:"file_name" json:"file_name"`
	StudentCount int       `db:"student_count" json:"student_count"`
	UploadedAt   time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// ScoreThreshold is an externally configured passing score for a cohort.
type ScoreThreshold struct {
	Year     int      `yaml:"year" json:"year"`
	ExamType ExamType `yaml:"exam" json:"exam_type"`
	Score    float64  `yaml:"score" json:"score"`
}

// Admitted applies the threshold to a score.
func (t *ScoreThreshold) Admitted(moyenne float64) bool {
	return moyenne >= t.Score
}
