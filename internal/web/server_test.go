package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/carteras/internal/config"
	"github.com/JonMunkholm/carteras/internal/core"
	"github.com/JonMunkholm/carteras/internal/database"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Import: config.ImportConfig{MaxFileSize: 1 << 20},
	}
}

func newTestServer(t *testing.T, store database.Querier) (*Server, *core.Service) {
	t.Helper()
	svc := core.NewService(store, core.ServiceConfig{
		Retry:  core.NoRetry,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return NewServer(svc, testConfig()), svc
}

// portfolioXLSX is a one-sheet workbook with one client row and two payments.
func portfolioXLSX(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	cells := map[string]any{
		"B1": "RUTA: Norte", "F1": "Centro",
		"Q3": "07/10/2024", "R3": "14/10/2024",
		"A4": "F-1", "B4": "Ana Pérez", "H4": 150.0, "K4": 14.0, "Q4": 150.0, "R4": 150.0,
	}
	for ref, v := range cells {
		if err := f.SetCellValue("Sheet1", ref, v); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, field, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, mw.FormDataContentType()
}

func do(t *testing.T, s *Server, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func createImport(t *testing.T, s *Server) core.SessionView {
	t.Helper()
	body, ct := multipartBody(t, "file", "cartera.xlsx", portfolioXLSX(t))
	rec := do(t, s, http.MethodPost, "/api/imports/", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d: %s", rec.Code, rec.Body)
	}
	var view core.SessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	return view
}

func TestImportFlow(t *testing.T) {
	store := database.NewMemory()
	s, svc := newTestServer(t, store)

	view := createImport(t, s)
	if view.FileName != "cartera.xlsx" || len(view.Workbook.Sheets) != 1 {
		t.Fatalf("view = %+v", view)
	}
	base := "/api/imports/" + view.ID.String()

	if rec := do(t, s, http.MethodGet, base+"/", nil, ""); rec.Code != http.StatusOK {
		t.Errorf("get: %d", rec.Code)
	}

	rec := do(t, s, http.MethodPatch, base+"/sheets/0/header",
		strings.NewReader(`{"municipality":"Oaxaca","state":"OAX"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("edit header: %d %s", rec.Code, rec.Body)
	}

	if rec := do(t, s, http.MethodPost, base+"/commit", nil, ""); rec.Code != http.StatusAccepted {
		t.Fatalf("commit: %d %s", rec.Code, rec.Body)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Wait(ctx, view.ID); err != nil {
		t.Fatal(err)
	}

	rec = do(t, s, http.MethodGet, base+"/report", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("report: %d", rec.Code)
	}
	var report struct {
		Running bool `json:"running"`
		Report  struct {
			GlobalOK bool `json:"global_ok"`
			Phases   []struct {
				Phase string `json:"phase"`
				OK    int    `json:"ok"`
			} `json:"phases"`
		} `json:"report"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Running || !report.Report.GlobalOK {
		t.Errorf("report = %s", rec.Body)
	}
	if got := report.Report.Phases[core.PhasePayments].OK; got != 2 {
		t.Errorf("payments ok = %d, want 2", got)
	}
	if n := len(store.Credits()); n != 1 {
		t.Errorf("credits stored = %d", n)
	}

	rec = do(t, s, http.MethodGet, base+"/report?format=text", nil, "")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("text report content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "Result: OK") {
		t.Errorf("text report = %q", rec.Body)
	}

	rec = do(t, s, http.MethodGet, base+"/progress", nil, "")
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("progress content type = %q", ct)
	}
	stream := rec.Body.String()
	if !strings.Contains(stream, "id: 100\nevent: progress\n") || !strings.HasSuffix(stream, "event: complete\ndata: {}\n\n") {
		t.Errorf("progress stream = %q", stream)
	}

	if rec := do(t, s, http.MethodPost, base+"/phases/payments", nil, ""); rec.Code != http.StatusAccepted {
		t.Errorf("phase rerun: %d %s", rec.Code, rec.Body)
	}
	if err := svc.Wait(ctx, view.ID); err != nil {
		t.Fatal(err)
	}
	if n := len(store.Payments()); n != 2 {
		t.Errorf("payments after rerun = %d, want 2", n)
	}

	if rec := do(t, s, http.MethodDelete, base+"/", nil, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete: %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, base+"/", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: %d", rec.Code)
	}
}

func TestRunHistory(t *testing.T) {
	s, svc := newTestServer(t, database.NewMemory())
	view := createImport(t, s)

	if rec := do(t, s, http.MethodPost, "/api/imports/"+view.ID.String()+"/commit", nil, ""); rec.Code != http.StatusAccepted {
		t.Fatalf("commit: %d %s", rec.Code, rec.Body)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Wait(ctx, view.ID); err != nil {
		t.Fatal(err)
	}

	rec := do(t, s, http.MethodGet, "/api/runs?page_size=10", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d %s", rec.Code, rec.Body)
	}
	var page core.HistoryPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.TotalCount != 1 || len(page.Runs) != 1 || page.PageSize != 10 {
		t.Fatalf("history page = %+v", page)
	}
	run := page.Runs[0]
	if run.SessionID != view.ID.String() || run.GlobalOK == nil || !*run.GlobalOK {
		t.Errorf("run = %+v", run)
	}

	rec = do(t, s, http.MethodGet, "/api/runs/"+run.ID.String(), nil, "")
	var detail core.RunDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("run detail: %d %s", rec.Code, rec.Body)
	}
	if !strings.Contains(detail.Report, "Result: OK") {
		t.Errorf("detail report = %q", detail.Report)
	}

	rec = do(t, s, http.MethodGet, "/api/runs/"+run.ID.String()+"?format=text", nil, "")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") || rec.Body.String() != detail.Report {
		t.Errorf("text run = %q (%s)", rec.Body, ct)
	}

	for _, path := range []string{"/api/runs/" + uuid.NewString(), "/api/runs/nope"} {
		rec := do(t, s, http.MethodGet, path, nil, "")
		var resp ErrorResponse
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		if rec.Code != http.StatusNotFound || resp.Code != "IMP009" {
			t.Errorf("%s: %d %q", path, rec.Code, resp.Code)
		}
	}
}

func TestErrorResponses(t *testing.T) {
	s, _ := newTestServer(t, database.NewMemory())
	view := createImport(t, s)
	base := "/api/imports/" + view.ID.String()

	notXLSX, ct := multipartBody(t, "file", "x.xlsx", []byte("plain text"))
	wrongField, ct2 := multipartBody(t, "upload", "x.xlsx", portfolioXLSX(t))

	tests := []struct {
		name        string
		method      string
		path        string
		body        io.Reader
		contentType string
		wantStatus  int
		wantCode    string
	}{
		{"unknown session", http.MethodGet, "/api/imports/" + uuid.NewString() + "/", nil, "", http.StatusNotFound, "IMP001"},
		{"malformed id", http.MethodGet, "/api/imports/nope/report", nil, "", http.StatusNotFound, "IMP001"},
		{"unknown phase", http.MethodPost, base + "/phases/refunds", nil, "", http.StatusBadRequest, "IMP004"},
		{"sheet out of range", http.MethodPatch, base + "/sheets/7/header", strings.NewReader(`{}`), "application/json", http.StatusNotFound, "VAL004"},
		{"bad patch body", http.MethodPatch, base + "/sheets/0/header", strings.NewReader(`{`), "application/json", http.StatusBadRequest, "VAL005"},
		{"not a workbook", http.MethodPost, "/api/imports/", notXLSX, ct, http.StatusBadRequest, "FILE002"},
		{"missing file field", http.MethodPost, "/api/imports/", wrongField, ct2, http.StatusBadRequest, "FILE003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body, tt.contentType)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("body = %q: %v", rec.Body, err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q (%s)", resp.Code, tt.wantCode, resp.Message)
			}
		})
	}
}

func TestCreateImport_TooLarge(t *testing.T) {
	s, _ := newTestServer(t, database.NewMemory())
	s.cfg.Import.MaxFileSize = 512

	body, ct := multipartBody(t, "file", "big.xlsx", bytes.Repeat([]byte("x"), 4096))
	rec := do(t, s, http.MethodPost, "/api/imports/", body, ct)
	if rec.Code != http.StatusRequestEntityTooLarge && rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	store := database.NewMemory()
	s, _ := newTestServer(t, store)

	rec := do(t, s, http.MethodGet, "/api/health", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("healthy: %d %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	store.FailOn = func(op string) error {
		if op == "Ping" {
			return io.ErrUnexpectedEOF
		}
		return nil
	}
	rec = do(t, s, http.MethodGet, "/api/health", nil, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy: %d %s", rec.Code, rec.Body)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrSessionNotFound, http.StatusNotFound},
		{core.ErrRunNotFound, http.StatusNotFound},
		{core.ErrCommitInProgress, http.StatusConflict},
		{core.ErrTooManyCommits, http.StatusServiceUnavailable},
		{core.ErrEmptyWorkbook, http.StatusBadRequest},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
