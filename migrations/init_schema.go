package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// The statements below are valid for both PostgreSQL and SQLite.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		matricule          TEXT NOT NULL,
		nom_complet        TEXT NOT NULL,
		ecole              TEXT NOT NULL DEFAULT '',
		etablissement      TEXT NOT NULL DEFAULT '',
		moyenne            DOUBLE PRECISION NOT NULL DEFAULT 0,
		rang               INTEGER NOT NULL DEFAULT 0,
		admis              BOOLEAN NOT NULL DEFAULT FALSE,
		decision_text      TEXT NOT NULL DEFAULT '',
		section            TEXT NOT NULL DEFAULT '',
		wilaya             TEXT,
		rang_etablissement INTEGER,
		lieu_naissance     TEXT,
		date_naissance     TEXT,
		year               INTEGER NOT NULL,
		exam_type          TEXT NOT NULL,
		updated_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (matricule, year, exam_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_students_cohort_moyenne ON students (year, exam_type, moyenne DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_students_cohort_section ON students (year, exam_type, section)`,
	`CREATE INDEX IF NOT EXISTS idx_students_cohort_wilaya ON students (year, exam_type, wilaya)`,
	`CREATE INDEX IF NOT EXISTS idx_students_cohort_etablissement ON students (year, exam_type, etablissement)`,
	`CREATE TABLE IF NOT EXISTS uploads (
		year          INTEGER NOT NULL,
		exam_type     TEXT NOT NULL,
		file_name     TEXT NOT NULL,
		student_count INTEGER NOT NULL DEFAULT 0,
		uploaded_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (year, exam_type)
	)`,
}

// Tables lists the tables InitSchema creates.
var Tables = []string{"students", "uploads"}

// InitSchema creates missing tables and indexes, then verifies that every
// required table is queryable.
func InitSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error applying schema statement %d: %w", i+1, err)
		}
	}
	return VerifySchema(ctx, db)
}

// VerifySchema checks that all required tables exist.
func VerifySchema(ctx context.Context, db *sql.DB) error {
	for _, table := range Tables {
		rows, err := db.QueryContext(ctx, "SELECT 1 FROM "+table+" WHERE 1 = 0")
		if err != nil {
			return fmt.Errorf("required table %s does not exist: %w", table, err)
		}
		rows.Close()
	}
	return nil
}
