package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nonsonwune/examresults/models"
	"github.com/nonsonwune/examresults/query"
)

// cohortParams reads :exam and :year. On failure the error response is
// already written.
func (s *Server) cohortParams(c *gin.Context) (int, models.ExamType, bool) {
	exam, err := models.ParseExamType(c.Param("exam"))
	if err != nil {
		s.fail(c, err)
		return 0, "", false
	}
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year <= 0 {
		s.badRequest(c, "invalid year "+strconv.Quote(c.Param("year")))
		return 0, "", false
	}
	return year, exam, true
}

func intQuery(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (s *Server) findStudent(c *gin.Context) {
	year, exam, ok := s.cohortParams(c)
	if !ok {
		return
	}
	student, err := s.query.FindStudent(c.Request.Context(), c.Param("matricule"), year, exam)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, student)
}

func (s *Server) candidateRanking(c *gin.Context) {
	year, exam, ok := s.cohortParams(c)
	if !ok {
		return
	}
	ranking, err := s.query.CandidateRanking(c.Request.Context(), c.Param("matricule"), year, exam)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ranking)
}

func (s *Server) leaderboard(c *gin.Context) {
	year, exam, ok := s.cohortParams(c)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		s.badRequest(c, "limit must be an integer")
		return
	}
	board, err := s.query.Leaderboard(c.Request.Context(), year, exam, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

func (s *Server) statistics(c *gin.Context) {
	year, exam, ok := s.cohortParams(c)
	if !ok {
		return
	}
	stats, err := s.query.Statistics(c.Request.Context(), year, exam)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) studentsBySchool(c *gin.Context) {
	year, exam, ok := s.cohortParams(c)
	if !ok {
		return
	}
	students, err := s.query.StudentsBySchool(c.Request.Context(), c.Param("etablissement"), year, exam)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"etablissement": c.Param("etablissement"), "students": students, "count": len(students)})
}

func (s *Server) regionIndex(c *gin.Context) {
	year, exam, ok := s.cohortParams(c)
	if !ok {
		return
	}
	index, err := s.query.RegionIndex(c.Request.Context(), year, exam)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, index)
}

func (s *Server) studentsByRegion(c *gin.Context) {
	year, exam, ok := s.cohortParams(c)
	if !ok {
		return
	}
	page, okPage := intQuery(c, "page", 1)
	pageSize, okSize := intQuery(c, "pageSize", 0)
	if !okPage || !okSize {
		s.badRequest(c, "page and pageSize must be integers")
		return
	}
	result, err := s.query.StudentsByRegion(c.Request.Context(), query.RegionQuery{
		Wilaya:   c.Param("wilaya"),
		Year:     year,
		ExamType: exam,
		Section:  c.Query("section"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
