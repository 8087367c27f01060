// Package server exposes variant analysis over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/logflow/pmlens/pkg/analysis"
	pmerrors "github.com/logflow/pmlens/pkg/errors"
	"github.com/logflow/pmlens/pkg/eventlog"
	"github.com/logflow/pmlens/pkg/report"
)

// multipartMemory is how much of a multipart upload is kept in memory
// before spilling to temporary files.
const multipartMemory = 32 << 20

// Config controls the HTTP server.
type Config struct {
	MaxUploadBytes int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// Report controls Markdown and text rendering of results.
	Report report.Options
}

// Server handles analysis requests.
type Server struct {
	analyzer  *analysis.Analyzer
	cfg       Config
	router    chi.Router
	logger    *zap.Logger
	httpSrv   *http.Server
	startTime time.Time
}

// New creates a server around analyzer.
func New(analyzer *analysis.Analyzer, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 100 << 20
	}

	s := &Server{
		analyzer:  analyzer,
		cfg:       cfg,
		router:    chi.NewRouter(),
		logger:    logger,
		startTime: time.Now(),
	}
	s.setupRoutes()
	s.httpSrv = &http.Server{
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(metricsMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.Get("/api/health", s.handleHealth)
	s.router.Post("/api/analyze", s.handleAnalyze)
	s.router.Handle("/metrics", promhttp.Handler())
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve accepts connections on ln and blocks until the server stops.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server listening", zap.String("addr", ln.Addr().String()))
	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).Seconds(),
	})
}

// handleAnalyze accepts an event log either as the "file" field of a
// multipart form or as the raw request body.
//
// Query parameters: format (csv, xlsx, parquet) overrides detection from the
// file name, name sets the source name of a raw body, and output selects
// json (default), markdown or text.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	output := report.FormatJSON
	if o := q.Get("output"); o != "" {
		f, err := report.ParseFormat(o)
		if err != nil {
			jsonError(w, http.StatusBadRequest, pmerrors.CodeConfig, err.Error())
			return
		}
		output = f
	}

	format := eventlog.FormatUnknown
	if f := q.Get("format"); f != "" {
		format = eventlog.ParseFormat(f)
		if format == eventlog.FormatUnknown {
			jsonError(w, http.StatusBadRequest, pmerrors.CodeInvalidFormat, "unsupported format "+f)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	body, name, err := s.uploadBody(r)
	if err != nil {
		analysesTotal.WithLabelValues("rejected").Inc()
		writeError(w, err)
		return
	}
	defer body.Close()

	counted := &countingReader{r: body}
	rep, err := s.analyzer.AnalyzeReader(r.Context(), counted, name, format)
	uploadSize.Observe(float64(counted.n))
	if err != nil {
		analysesTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("analysis failed", zap.String("source", name), zap.Error(err))
		writeError(w, err)
		return
	}

	outcome := "ok"
	if len(rep.Conditions) > 0 {
		outcome = "degraded"
	}
	analysesTotal.WithLabelValues(outcome).Inc()
	variantsFound.Observe(float64(len(rep.Variants)))

	switch output {
	case report.FormatMarkdown:
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	case report.FormatText:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	if err := report.Write(w, rep, output, s.cfg.Report); err != nil {
		s.logger.Error("write response", zap.Error(err))
	}
}

// uploadBody returns the uploaded log and its name.
func (s *Server) uploadBody(r *http.Request) (io.ReadCloser, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "upload"
		}
		return r.Body, name, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, "", pmerrors.Wrap(err, pmerrors.CodeSourceRead, "parse multipart upload")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", pmerrors.Wrap(err, pmerrors.CodeSourceNotFound, "no file provided")
	}
	return file, header.Filename, nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// statusFor maps an analysis error to an HTTP status. Fatal input errors
// without a dedicated status are the client's fault.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}

	switch pmerrors.GetCode(err) {
	case pmerrors.CodeSourceNotFound, pmerrors.CodeInvalidFormat, pmerrors.CodeSourceRead:
		return http.StatusBadRequest
	case pmerrors.CodeMissingColumn, pmerrors.CodeInvalidTimestamp:
		return http.StatusUnprocessableEntity
	case pmerrors.CodeContextCanceled, pmerrors.CodeTimeout:
		return http.StatusServiceUnavailable
	}
	if pmerrors.IsFatal(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	jsonError(w, statusFor(err), pmerrors.GetCode(err), err.Error())
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, code pmerrors.Code, message string) {
	jsonResponse(w, status, map[string]string{
		"error": message,
		"code":  string(code),
	})
}
