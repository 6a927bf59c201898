package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nonsonwune/examresults/models"
)

// Thresholds holds the passing scores configured per cohort.
type Thresholds struct {
	byCohort map[models.Cohort]models.ScoreThreshold
}

type thresholdsFile struct {
	Thresholds []models.ScoreThreshold `yaml:"thresholds"`
}

// NewThresholds indexes a list of thresholds; the last entry of a cohort wins.
func NewThresholds(list ...models.ScoreThreshold) *Thresholds {
	t := &Thresholds{byCohort: make(map[models.Cohort]models.ScoreThreshold, len(list))}
	for _, th := range list {
		t.byCohort[models.Cohort{Year: th.Year, ExamType: th.ExamType}] = th
	}
	return t
}

// LoadThresholds parses a YAML thresholds file. An empty path yields no thresholds.
//
//	thresholds:
//	  - {year: 2024, exam: BAC, score: 10}
func LoadThresholds(path string) (*Thresholds, error) {
	if path == "" {
		return NewThresholds(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading thresholds file: %w", err)
	}
	return ParseThresholds(data)
}

// ParseThresholds decodes the YAML document of LoadThresholds.
func ParseThresholds(data []byte) (*Thresholds, error) {
	var doc thresholdsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing thresholds: %w", err)
	}
	for i, th := range doc.Thresholds {
		exam, err := models.ParseExamType(string(th.ExamType))
		if err != nil {
			return nil, fmt.Errorf("threshold %d: %w", i+1, err)
		}
		if th.Score < 0 || th.Score > 20 {
			return nil, fmt.Errorf("threshold %d: score %.2f outside 0-20", i+1, th.Score)
		}
		doc.Thresholds[i].ExamType = exam
	}
	return NewThresholds(doc.Thresholds...), nil
}

// For returns the threshold of a cohort, or nil when none is configured.
func (t *Thresholds) For(year int, examType models.ExamType) *models.ScoreThreshold {
	if t == nil {
		return nil
	}
	th, ok := t.byCohort[models.Cohort{Year: year, ExamType: examType}]
	if !ok {
		return nil
	}
	return &th
}

// Len is the number of configured cohorts.
func (t *Thresholds) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byCohort)
}
