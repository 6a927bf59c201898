package models

// GroupStats aggregates a group of students (a section, a region, a school).
type GroupStats struct {
	Name          string  `json:"name"`
	Total         int     `json:"total"`
	Admitted      int     `json:"admitted"`
	AdmissionRate float64 `json:"admission_rate"`
	AverageScore  float64 `json:"average_score"`
}

// SectionBoard is the top of one BAC section plus stats over the whole section.
type SectionBoard struct {
	Students []Student  `json:"students"`
	Stats    GroupStats `json:"stats"`
}

// Leaderboard holds either Sections (BAC) or Students (BREVET).
type Leaderboard struct {
	Year     int                     `json:"year"`
	ExamType ExamType                `json:"exam_type"`
	Limit    int                     `json:"limit"`
	Sections map[string]SectionBoard `json:"sections,omitempty"`
	Students []Student               `json:"students,omitempty"`
}

// Statistics summarises a cohort.
type Statistics struct {
	Year             int          `json:"year"`
	ExamType         ExamType     `json:"exam_type"`
	Total            int          `json:"total"`
	Admitted         int          `json:"admitted"`
	AdmissionRate    float64      `json:"admission_rate"`
	Sessionnaires    int          `json:"sessionnaires"`
	SessionnaireRate float64      `json:"sessionnaire_rate"`
	AverageScore     float64      `json:"average_score"`
	MinScore         float64      `json:"min_score"`
	MaxScore         float64      `json:"max_score"`
	BySection        []GroupStats `json:"by_section,omitempty"`
	ByWilaya         []GroupStats `json:"by_wilaya"`
}

// CandidateRanking positions one student inside the populations they belong to.
// BAC fills SectionRank and SchoolRank, BREVET fills GeneralRank.
type CandidateRanking struct {
	Matricule    string   `json:"matricule"`
	ExamType     ExamType `json:"exam_type"`
	Moyenne      float64  `json:"moyenne"`
	SectionRank  int      `json:"section_rank,omitempty"`
	SectionTotal int      `json:"section_total,omitempty"`
	SchoolRank   int      `json:"school_rank,omitempty"`
	SchoolTotal  int      `json:"school_total,omitempty"`
	GeneralRank  int      `json:"general_rank,omitempty"`
	GeneralTotal int      `json:"general_total,omitempty"`
}

// RegionPage is one page of the students of a wilaya.
type RegionPage struct {
	Wilaya        string    `json:"wilaya"`
	Page          int       `json:"page"`
	PageSize      int       `json:"page_size"`
	Students      []Student `json:"students"`
	TotalCount    int       `json:"total_count"`
	TotalPages    int       `json:"total_pages"`
	AdmittedCount int       `json:"admitted_count"`
	AverageScore  float64   `json:"average_score"`
	Sections      []string  `json:"sections"`
}
