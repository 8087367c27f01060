package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/logflow/pmlens/pkg/analysis"
	pmerrors "github.com/logflow/pmlens/pkg/errors"
	"github.com/logflow/pmlens/pkg/report"
)

const helpdeskCSV = `case:concept:name,concept:name,time:timestamp,case_duration,trace:customer_satisfaction,event:resolver,trace:issue_type
C1,Submit,2024-03-01T09:00:00Z,2,5,alice,Billing
C1,Resolve,2024-03-01T11:00:00Z,2,5,alice,Billing
C2,Submit,2024-03-02T09:00:00Z,4,4,bob,Billing
C2,Resolve,2024-03-02T13:00:00Z,4,4,bob,Billing
C3,Submit,2024-03-03T09:00:00Z,9,2,carol,Login
C3,Escalate,2024-03-03T12:00:00Z,9,2,dave,Login
C3,Resolve,2024-03-03T18:00:00Z,9,2,dave,Login
`

func newTestServer(t *testing.T, maxUpload int64) *Server {
	t.Helper()
	a := analysis.New(analysis.DefaultOptions(), zap.NewNop())
	return New(a, Config{MaxUploadBytes: maxUpload, Report: report.DefaultOptions()}, zap.NewNop())
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, 0)

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestServer_AnalyzeMultipart(t *testing.T) {
	s := newTestServer(t, 0)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "helpdesk.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(helpdeskCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var rep analysis.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, "helpdesk.csv", rep.Source)
	assert.Equal(t, 3, rep.Cases)
	require.Len(t, rep.Variants, 2)
	assert.Equal(t, "Submit -> Resolve", rep.Variants[0].VariantID)
	assert.Equal(t, 2, rep.Variants[0].Frequency)
}

func TestServer_AnalyzeRawBodyMarkdown(t *testing.T) {
	s := newTestServer(t, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze?name=helpdesk.csv&output=markdown", strings.NewReader(helpdeskCSV))
	req.Header.Set("Content-Type", "text/csv")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, w.Body.String(), "# Variant Analysis: helpdesk.csv")
	assert.Contains(t, w.Body.String(), "Submit -> Escalate -> Resolve")
}

func TestServer_AnalyzeMissingColumn(t *testing.T) {
	s := newTestServer(t, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("case:concept:name,concept:name\nC1,Submit\n"))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "E104", resp["code"])
	assert.Contains(t, resp["error"], "time:timestamp")
}

func TestServer_AnalyzeBadParameters(t *testing.T) {
	s := newTestServer(t, 0)

	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"unknown format", "?format=avro", "E103"},
		{"unknown output", "?output=html", "E403"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/analyze"+tt.query, strings.NewReader(helpdeskCSV))
			w := httptest.NewRecorder()
			s.ServeHTTP(w, req)

			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decode(t, w)["code"])
		})
	}
}

func TestServer_UploadTooLarge(t *testing.T) {
	s := newTestServer(t, 16)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(helpdeskCSV))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, 0)

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analyze", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, 0)

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	w = httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `pmlens_http_requests_total{method="GET",route="/api/health",status="200"}`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"too large", fmt.Errorf("read: %w", &http.MaxBytesError{Limit: 16}), http.StatusRequestEntityTooLarge},
		{"missing column", pmerrors.MissingColumn("time:timestamp", nil), http.StatusUnprocessableEntity},
		{"bad format", pmerrors.New(pmerrors.CodeInvalidFormat, "x"), http.StatusBadRequest},
		{"config", pmerrors.New(pmerrors.CodeConfig, "x"), http.StatusBadRequest},
		{"deadline", pmerrors.ContextCanceled("load", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"narrative", pmerrors.ExternalService("narrative", errors.New("down")), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	s := newTestServer(t, 0)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}
