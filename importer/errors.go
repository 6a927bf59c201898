package importer

import (
	"fmt"
	"time"
)

// ImportError is a coded ingestion error. Two ImportErrors match with
// errors.Is when their codes are equal, so callers compare against the
// sentinel values below.
type ImportError struct {
	Code      string
	Message   string
	Timestamp time.Time
	Context   map[string]string
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ImportError) Is(target error) bool {
	t, ok := target.(*ImportError)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidFile    = &ImportError{Code: "INVALID_FILE", Message: "file is not a readable spreadsheet"}
	ErrEmptyFile      = &ImportError{Code: "EMPTY_FILE", Message: "spreadsheet has no data rows"}
	ErrNoValidColumns = &ImportError{Code: "NO_VALID_COLUMNS", Message: "spreadsheet header row is empty"}
	ErrNoValidRecords = &ImportError{Code: "NO_VALID_RECORDS", Message: "no valid student record found"}
	ErrMissingMapping = &ImportError{Code: "MISSING_MAPPING", Message: "required field is not mapped"}
	ErrUnknownColumn  = &ImportError{Code: "UNKNOWN_COLUMN", Message: "mapping references a column absent from the file"}
	ErrFileTooLarge   = &ImportError{Code: "FILE_TOO_LARGE", Message: "file exceeds the upload limit"}
	ErrInvalidYear    = &ImportError{Code: "INVALID_YEAR", Message: "year is out of range"}
)

// withDetail returns a copy of a sentinel carrying a specific message and context.
func withDetail(base *ImportError, msg string, ctx map[string]string) *ImportError {
	return &ImportError{
		Code:      base.Code,
		Message:   msg,
		Timestamp: time.Now(),
		Context:   ctx,
	}
}

// NewError builds a coded error from a sentinel; used by callers outside the package.
func NewError(base *ImportError, format string, args ...any) *ImportError {
	return withDetail(base, fmt.Sprintf(format, args...), nil)
}
