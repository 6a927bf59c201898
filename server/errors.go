package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nonsonwune/examresults/importer"
	"github.com/nonsonwune/examresults/models"
	"github.com/nonsonwune/examresults/query"
)

const (
	codeInvalidQuery    = "INVALID_QUERY"
	codeInvalidExamType = "INVALID_EXAM_TYPE"
	codeNotFound        = "NOT_FOUND"
	codeRateLimited     = "RATE_LIMITED"
	codeInternal        = "INTERNAL"
	codeIngestFailed    = "INGEST_FAILED"
)

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// statusOf maps an error to its HTTP status and code.
func statusOf(err error) (int, string) {
	var importErr *importer.ImportError
	switch {
	case errors.As(err, &importErr):
		return http.StatusBadRequest, importErr.Code
	case errors.Is(err, models.ErrInvalidExamType):
		return http.StatusBadRequest, codeInvalidExamType
	case errors.Is(err, query.ErrInvalidQuery):
		return http.StatusBadRequest, codeInvalidQuery
	case errors.Is(err, query.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	}
	return http.StatusInternalServerError, codeInternal
}

// fail writes the JSON error for err. Internal errors are logged and their
// message is not exposed.
func (s *Server) fail(c *gin.Context, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
		msg = "internal error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorBody{Error: msg, Code: code})
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: msg, Code: codeInvalidQuery})
}
