package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonsonwune/examresults/cache"
	"github.com/nonsonwune/examresults/config"
	"github.com/nonsonwune/examresults/database/dbtest"
	"github.com/nonsonwune/examresults/importer/xlsxtest"
	"github.com/nonsonwune/examresults/ingest"
	"github.com/nonsonwune/examresults/loader"
	"github.com/nonsonwune/examresults/query"
	"github.com/nonsonwune/examresults/ranking"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T, cfg Config) (*Server, *sql.DB) {
	t.Helper()
	db := dbtest.New(t)
	engine := ranking.New(db, ranking.Config{}, nil)
	q := query.New(db, engine, cache.NewTTL(time.Minute, nil), config.NewThresholds(), nil)
	in := ingest.New(loader.New(db, loader.Config{}, nil), engine, q, ingest.Config{}, nil)
	return New(cfg, q, in, db, nil), db
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, httptest.NewRequest(http.MethodGet, path, nil))
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func multipartRequest(t *testing.T, path string, fields map[string]string, fileName string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if data != nil {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func bacWorkbook(t *testing.T) []byte {
	t.Helper()
	rows := [][]any{{"Matricule", "Nom Complet", "Etablissement", "Moyenne", "Decision", "Section", "Wilaya"}}
	data := []struct {
		m, nom, etab string
		moy          float64
		dec, sec, w  string
	}{
		{"1001", "Awa Ba", "Lycee Nord", 15.2, "Admis", "SN", "Nouakchott"},
		{"1002", "Sidi Sow", "Lycee Nord", 9.1, "Sessionnaire", "SN", "Nouakchott"},
		{"1003", "Mariem Diallo", "Lycee Sud", 12.75, "Réussi", "LM", "Trarza"},
		{"1004", "Oumar Kane", "Lycee Sud", 7.5, "Echec", "LM", "Trarza"},
		{"1005", "Fatou Ly", "Lycee Nord", 13.4, "Admise", "SN", "Nouakchott"},
	}
	for _, d := range data {
		rows = append(rows, []any{d.m, d.nom, d.etab, d.moy, d.dec, d.sec, d.w})
	}
	return xlsxtest.Workbook(t, rows)
}

const bacMapping = `{"matricule":"Matricule","nom_complet":"Nom Complet","etablissement":"Etablissement",` +
	`"moyenne":"Moyenne","decision":"Decision","section":"Section","wilaya":"Wilaya"}`

func ingestBac(t *testing.T, h http.Handler) map[string]any {
	t.Helper()
	w := do(t, h, multipartRequest(t, "/api/admin/ingest",
		map[string]string{"year": "2024", "examType": "BAC", "mapping": bacMapping}, "bac.xlsx", bacWorkbook(t)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var outcome map[string]any
	decode(t, w, &outcome)
	return outcome
}

func TestAnalyzeEndpoint(t *testing.T) {
	srv, db := newTestServer(t, Config{})
	w := do(t, srv.Handler(), multipartRequest(t, "/api/admin/analyze", map[string]string{"examType": "bac"}, "bac.xlsx", bacWorkbook(t)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var analysis struct {
		TotalRows        int               `json:"total_rows"`
		SuggestedMapping map[string]string `json:"suggested_mapping"`
		SampleRows       []map[string]any  `json:"sample_rows"`
	}
	decode(t, w, &analysis)
	assert.Equal(t, 5, analysis.TotalRows)
	assert.Equal(t, "Matricule", analysis.SuggestedMapping["matricule"])
	assert.Equal(t, "Nom Complet", analysis.SuggestedMapping["nom_complet"])
	assert.Len(t, analysis.SampleRows, 3)
	assert.Zero(t, dbtest.Count(t, db, `SELECT COUNT(*) FROM students`))
}

func TestResultsFlow(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	h := srv.Handler()

	outcome := ingestBac(t, h)
	assert.Equal(t, "complete", outcome["status"])
	assert.EqualValues(t, 5, outcome["uploaded_count"])
	assert.Equal(t, true, outcome["provenance_saved"])

	w := get(t, h, "/api/results/bac/2024/students/1003")
	require.Equal(t, http.StatusOK, w.Code)
	var student struct {
		NomComplet string  `json:"nom_complet"`
		Admis      bool    `json:"admis"`
		Rang       int     `json:"rang"`
		Wilaya     *string `json:"wilaya"`
	}
	decode(t, w, &student)
	assert.Equal(t, "Mariem Diallo", student.NomComplet)
	assert.True(t, student.Admis)
	assert.Equal(t, 3, student.Rang)
	require.NotNil(t, student.Wilaya)
	assert.Equal(t, "Trarza", *student.Wilaya)

	w = get(t, h, "/api/results/BAC/2024/students/1005/ranking")
	require.Equal(t, http.StatusOK, w.Code)
	var rk struct {
		SectionRank int `json:"section_rank"`
		SchoolRank  int `json:"school_rank"`
	}
	decode(t, w, &rk)
	assert.Equal(t, 2, rk.SectionRank)
	assert.Equal(t, 2, rk.SchoolRank)

	w = get(t, h, "/api/results/BAC/2024/leaderboard?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	var board struct {
		Sections map[string]struct {
			Students []struct {
				Matricule string `json:"matricule"`
			} `json:"students"`
			Stats struct {
				Total    int `json:"total"`
				Admitted int `json:"admitted"`
			} `json:"stats"`
		} `json:"sections"`
	}
	decode(t, w, &board)
	require.Contains(t, board.Sections, "SN")
	assert.Len(t, board.Sections["SN"].Students, 2)
	assert.Equal(t, 3, board.Sections["SN"].Stats.Total)
	assert.Equal(t, 2, board.Sections["SN"].Stats.Admitted)

	w = get(t, h, "/api/results/BAC/2024/statistics")
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Total         int     `json:"total"`
		Admitted      int     `json:"admitted"`
		Sessionnaires int     `json:"sessionnaires"`
		MaxScore      float64 `json:"max_score"`
	}
	decode(t, w, &stats)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 3, stats.Admitted)
	assert.Equal(t, 1, stats.Sessionnaires)
	assert.Equal(t, 15.2, stats.MaxScore)

	w = get(t, h, "/api/results/BAC/2024/schools/Lycee%20Sud")
	require.Equal(t, http.StatusOK, w.Code)
	var school struct {
		Count int `json:"count"`
	}
	decode(t, w, &school)
	assert.Equal(t, 2, school.Count)

	w = get(t, h, "/api/results/BAC/2024/regions")
	require.Equal(t, http.StatusOK, w.Code)
	var index map[string][]string
	decode(t, w, &index)
	assert.Equal(t, map[string][]string{"Nouakchott": {"Lycee Nord"}, "Trarza": {"Lycee Sud"}}, index)

	w = get(t, h, "/api/results/BAC/2024/regions/Nouakchott?page=1&pageSize=2&section=SN")
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		TotalCount int `json:"total_count"`
		TotalPages int `json:"total_pages"`
		Students   []struct {
			Matricule string `json:"matricule"`
		} `json:"students"`
	}
	decode(t, w, &page)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Students, 2)
	assert.Equal(t, "1001", page.Students[0].Matricule)
}

func TestAdminMaintenance(t *testing.T) {
	srv, db := newTestServer(t, Config{})
	h := srv.Handler()
	ingestBac(t, h)

	w := get(t, h, "/api/admin/uploads")
	require.Equal(t, http.StatusOK, w.Code)
	var uploads []map[string]any
	decode(t, w, &uploads)
	require.Len(t, uploads, 1)
	assert.Equal(t, "bac.xlsx", uploads[0]["file_name"])

	w = do(t, h, httptest.NewRequest(http.MethodPost, "/api/admin/BAC/2024/ranks", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var ranks map[string]any
	decode(t, w, &ranks)
	assert.EqualValues(t, 0, ranks["updated_count"])

	_, err := db.Exec(`UPDATE students SET admis = TRUE WHERE matricule = '1004'`)
	require.NoError(t, err)

	w = get(t, h, "/api/admin/BAC/2024/audit")
	require.Equal(t, http.StatusOK, w.Code)
	var audit struct {
		Count int `json:"count"`
	}
	decode(t, w, &audit)
	assert.Equal(t, 1, audit.Count)

	w = do(t, h, httptest.NewRequest(http.MethodPost, "/api/admin/BAC/2024/repair", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var report map[string]any
	decode(t, w, &report)
	assert.Equal(t, true, report["dry_run"])
	assert.EqualValues(t, 0, report["fixed"])

	w = do(t, h, httptest.NewRequest(http.MethodPost, "/api/admin/BAC/2024/repair?dryRun=false", nil))
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &report)
	assert.EqualValues(t, 1, report["fixed"])

	require.Equal(t, http.StatusOK, get(t, h, "/api/results/BAC/2024/students/1001").Code)
	w = do(t, h, httptest.NewRequest(http.MethodDelete, "/api/admin/BAC/2024", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var cleared map[string]any
	decode(t, w, &cleared)
	assert.EqualValues(t, 5, cleared["deleted_count"])
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/results/BAC/2024/students/1001").Code, "cache invalidated by clear")

	w = do(t, h, httptest.NewRequest(http.MethodDelete, "/api/admin/BAC/2024", nil))
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &cleared)
	assert.EqualValues(t, 0, cleared["deleted_count"])
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t, Config{MaxUploadBytes: 32 << 10})
	h := srv.Handler()

	cases := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{"bad exam", httptest.NewRequest(http.MethodGet, "/api/results/CAP/2024/statistics", nil), http.StatusBadRequest, codeInvalidExamType},
		{"bad year", httptest.NewRequest(http.MethodGet, "/api/results/BAC/abc/statistics", nil), http.StatusBadRequest, codeInvalidQuery},
		{"bad limit", httptest.NewRequest(http.MethodGet, "/api/results/BAC/2024/leaderboard?limit=x", nil), http.StatusBadRequest, codeInvalidQuery},
		{"unknown student", httptest.NewRequest(http.MethodGet, "/api/results/BAC/2024/students/404", nil), http.StatusNotFound, codeNotFound},
		{"unknown route", httptest.NewRequest(http.MethodGet, "/nope", nil), http.StatusNotFound, codeNotFound},
		{"ingest without year", multipartRequest(t, "/api/admin/ingest", map[string]string{"examType": "BAC"}, "f.xlsx", bacWorkbook(t)), http.StatusBadRequest, "INVALID_YEAR"},
		{"ingest without file", multipartRequest(t, "/api/admin/ingest", map[string]string{"year": "2024", "examType": "BAC"}, "", nil), http.StatusBadRequest, "INVALID_FILE"},
		{"ingest bad mapping json", multipartRequest(t, "/api/admin/ingest", map[string]string{"year": "2024", "examType": "BAC", "mapping": "{"}, "f.xlsx", bacWorkbook(t)), http.StatusBadRequest, "MISSING_MAPPING"},
		{"ingest unknown column", multipartRequest(t, "/api/admin/ingest", map[string]string{"year": "2024", "examType": "BAC", "mapping": `{"matricule":"ID","nom_complet":"Nom Complet"}`}, "f.xlsx", bacWorkbook(t)), http.StatusBadRequest, "UNKNOWN_COLUMN"},
		{"ingest too large", multipartRequest(t, "/api/admin/ingest", map[string]string{"year": "2024", "examType": "BAC"}, "f.xlsx", make([]byte, 40<<10)), http.StatusBadRequest, "FILE_TOO_LARGE"},
		{"analyze not a workbook", multipartRequest(t, "/api/admin/analyze", map[string]string{"examType": "BAC"}, "f.csv", []byte("a,b\n1,2\n")), http.StatusBadRequest, "INVALID_FILE"},
		{"repair bad flag", httptest.NewRequest(http.MethodPost, "/api/admin/BAC/2024/repair?dryRun=maybe", nil), http.StatusBadRequest, codeInvalidQuery},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, h, tc.req)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			var body errorBody
			decode(t, w, &body)
			assert.Equal(t, tc.code, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := do(t, srv.Handler(), req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))

	w = get(t, srv.Handler(), "/healthz")
	_, err := uuid.Parse(w.Header().Get(requestIDHeader))
	assert.NoError(t, err)
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Config{RateLimitRPS: 0.001, RateLimitBurst: 2})
	h := srv.Handler()

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusNotFound, get(t, h, "/api/results/BAC/2024/students/X").Code)
	}
	w := get(t, h, "/api/results/BAC/2024/students/X")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	other := httptest.NewRequest(http.MethodGet, "/api/results/BAC/2024/students/X", nil)
	other.RemoteAddr = "10.0.0.9:4000"
	assert.Equal(t, http.StatusNotFound, do(t, h, other).Code, "buckets are per client")

	assert.Equal(t, http.StatusOK, get(t, h, "/api/admin/uploads").Code, "admin routes are not limited")
}

func TestClientLimiter_SweepsIdleClients(t *testing.T) {
	l := newClientLimiter(1, 1)
	start := time.Now()
	for i := 0; i < 5; i++ {
		l.allow(fmt.Sprintf("10.0.0.%d", i), start)
	}
	l.allow("10.0.0.99", start.Add(idleTTL+time.Minute))
	assert.Len(t, l.clients, 1)
}

func TestHealth(t *testing.T) {
	srv, db := newTestServer(t, Config{})
	assert.Equal(t, http.StatusOK, get(t, srv.Handler(), "/healthz").Code)

	require.NoError(t, db.Close())
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.Handler(), "/healthz").Code)
}

func TestRecovery(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	srv.router.GET("/boom", func(*gin.Context) { panic("boom") })

	w := get(t, srv.Handler(), "/boom")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body errorBody
	decode(t, w, &body)
	assert.Equal(t, codeInternal, body.Code)
}
