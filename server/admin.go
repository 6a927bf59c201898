package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nonsonwune/examresults/importer"
	"github.com/nonsonwune/examresults/ingest"
	"github.com/nonsonwune/examresults/models"
)

// readUpload returns the bytes and name of the multipart "file" field,
// reading at most one byte past the limit so oversized files are rejected.
func (s *Server) readUpload(c *gin.Context) ([]byte, string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", importer.NewError(importer.ErrFileTooLarge, "request exceeds %d bytes", tooLarge.Limit)
		}
		return nil, "", importer.NewError(importer.ErrInvalidFile, "missing multipart file: %v", err)
	}
	if fh.Size > s.config.MaxUploadBytes {
		return nil, "", importer.NewError(importer.ErrFileTooLarge, "file is %d bytes, limit is %d", fh.Size, s.config.MaxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.config.MaxUploadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	return data, fh.Filename, nil
}

func (s *Server) analyze(c *gin.Context) {
	data, _, err := s.readUpload(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	analysis, err := s.ingest.Analyze(data, models.ExamType(c.PostForm("examType")))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (s *Server) ingestFile(c *gin.Context) {
	data, name, err := s.readUpload(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	year, err := strconv.Atoi(c.PostForm("year"))
	if err != nil {
		s.fail(c, importer.NewError(importer.ErrInvalidYear, "year %q is not a number", c.PostForm("year")))
		return
	}
	var mapping importer.Mapping
	if raw := c.PostForm("mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			s.fail(c, importer.NewError(importer.ErrMissingMapping, "mapping is not valid JSON: %v", err))
			return
		}
	}

	outcome, err := s.ingest.Ingest(c.Request.Context(), ingest.Request{
		Data:     data,
		FileName: name,
		Year:     year,
		ExamType: models.ExamType(c.PostForm("examType")),
		Mapping:  mapping,
	})
	if err != nil {
		if outcome != nil {
			s.logger.Error("ingestion failed", zap.String("file", name), zap.Error(err))
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{
				Error: "ingestion failed, nothing was written", Code: codeIngestFailed, Details: outcome,
			})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) uploads(c *gin.Context) {
	uploads, err := s.ingest.Uploads(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if uploads == nil {
		uploads = []models.Upload{}
	}
	c.JSON(http.StatusOK, uploads)
}

func (s *Server) clear(c *gin.Context) {
	year, exam, ok := s.cohortParams(c)
	if !ok {
		return
	}
	deleted, err := s.ingest.Clear(c.Request.Context(), year, exam)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"year": year, "exam_type": exam, "deleted_count": deleted})
}

func (s *Server) recalculateRanks(c *gin.Context) {
	year, exam, ok := s.cohortParams(c)
	if !ok {
		return
	}
	res, err := s.ingest.RecalculateRanks(c.Request.Context(), year, exam)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) audit(c *gin.Context) {
	year, exam, ok := s.cohortParams(c)
	if !ok {
		return
	}
	found, err := s.ingest.Audit(c.Request.Context(), year, exam)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inconsistent": found, "count": len(found)})
}

func (s *Server) repair(c *gin.Context) {
	year, exam, ok := s.cohortParams(c)
	if !ok {
		return
	}
	dryRun := true
	if raw := c.Query("dryRun"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.badRequest(c, "dryRun must be true or false")
			return
		}
		dryRun = v
	}
	report, err := s.ingest.Repair(c.Request.Context(), year, exam, dryRun)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
