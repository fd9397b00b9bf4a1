package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refcheck/refcheck/internal/history"
	"github.com/refcheck/refcheck/internal/model"
	"github.com/refcheck/refcheck/internal/pdftext"
	"github.com/refcheck/refcheck/internal/pipeline"
	"github.com/refcheck/refcheck/internal/report"
	"github.com/refcheck/refcheck/internal/validate"
)

// maxUploadBytes bounds request bodies; the largest theses run to a few
// hundred megabytes of PDF, far past anything worth checking synchronously.
const maxUploadBytes = 64 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the check pipeline over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initCheckEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(newServerEnv(env)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("server: shutting down")
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()

		zap.L().Info("server: listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server: listen")
		}
		return nil
	},
}

// runHistory is the slice of the history store the API reads and writes.
type runHistory interface {
	SaveRun(ctx context.Context, run *report.Run) error
	ListRuns(ctx context.Context, limit int) ([]history.RunSummary, error)
	GetRun(ctx context.Context, id string) (*report.Run, error)
}

// serverEnv carries the handlers' dependencies.
type serverEnv struct {
	pipeline *pipeline.Pipeline
	history  runHistory // nil when history is not configured
}

func newServerEnv(env *checkEnv) *serverEnv {
	s := &serverEnv{pipeline: env.Pipeline}
	if env.History != nil {
		s.history = env.History
	}
	return s
}

func newRouter(env *serverEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth)
	r.Post("/api/check", env.handleCheck)
	r.Post("/api/check/stream", env.handleCheckStream)
	r.Get("/api/runs", env.handleRunsList)
	r.Get("/api/runs/{id}", env.handleRunsGet)
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *serverEnv) handleCheck(w http.ResponseWriter, r *http.Request) {
	source, text, err := readDocument(w, r)
	if err != nil {
		writeJSONError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}

	run, err := s.pipeline.Run(r.Context(), source, text)
	if err != nil {
		writeJSONError(w, statusFor(err, http.StatusInternalServerError), err)
		return
	}

	s.record(r.Context(), run)
	writeJSON(w, http.StatusOK, run)
}

// handleCheckStream runs a check while streaming progress as server-sent
// events, then emits the full report as the final event. Errors after the
// stream has started arrive as an error event, not a status code.
func (s *serverEnv) handleCheckStream(w http.ResponseWriter, r *http.Request) {
	source, text, err := readDocument(w, r)
	if err != nil {
		writeJSONError(w, statusFor(err, http.StatusBadRequest), err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, eris.New("server: streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Block policy: the client asked for every event, so workers wait for
	// the stream rather than dropping.
	ch := make(chan model.ProgressEvent, 64)
	sink := validate.NewBoundedSink(ch, validate.Block)

	type outcome struct {
		run *report.Run
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		run, err := s.pipeline.WithSink(sink).Run(r.Context(), source, text)
		close(ch)
		done <- outcome{run, err}
	}()

	// The Block policy means workers wait on this loop, so it must drain the
	// channel to the end even after the client goes away; the run still
	// finishes and is recorded.
	streaming := true
	for ev := range ch {
		if !streaming {
			continue
		}
		if writeSSE(w, "progress", ev) != nil {
			streaming = false
			continue
		}
		flusher.Flush()
	}

	res := <-done
	if res.err != nil {
		_ = writeSSE(w, "error", map[string]string{"error": res.err.Error()})
		flusher.Flush()
		return
	}

	s.record(r.Context(), res.run)
	_ = writeSSE(w, "report", res.run)
	flusher.Flush()
}

func (s *serverEnv) handleRunsList(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSONError(w, http.StatusNotImplemented, eris.New("history is not configured"))
		return
	}

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []history.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *serverEnv) handleRunsGet(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSONError(w, http.StatusNotImplemented, eris.New("history is not configured"))
		return
	}

	run, err := s.history.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSONError(w, http.StatusNotFound, eris.New("run not found"))
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// record saves a finished run when history is configured. Failures are
// logged, never surfaced to the client: the check itself succeeded.
func (s *serverEnv) record(ctx context.Context, run *report.Run) {
	if s.history == nil {
		return
	}
	if err := s.history.SaveRun(ctx, run); err != nil {
		zap.L().Warn("server: run not recorded", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// readDocument pulls the document out of the request: either a multipart
// upload under the "file" field (PDF or plain text, by extension) or a JSON
// body {"source": ..., "text": ...}.
func readDocument(w http.ResponseWriter, r *http.Request) (source, text string, err error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return readUpload(w, r)
	}

	var req struct {
		Source string `json:"source"`
		Text   string `json:"text"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err := dec.Decode(&req); err != nil {
		return "", "", eris.Wrap(err, "server: decode request")
	}
	if strings.TrimSpace(req.Text) == "" {
		return "", "", eris.New("server: text is required")
	}
	if req.Source == "" {
		req.Source = "document"
	}
	return req.Source, req.Text, nil
}

func readUpload(w http.ResponseWriter, r *http.Request) (string, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", "", eris.Wrap(err, "server: parse upload")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", eris.New("server: upload needs a file field")
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		return "", "", eris.Wrap(err, "server: read upload")
	}
	if len(data) == 0 {
		return "", "", eris.New("server: empty upload")
	}

	source := filepath.Base(header.Filename)
	if source == "" || source == "." {
		source = "upload"
	}
	if strings.EqualFold(filepath.Ext(source), ".pdf") {
		text, err := pdftext.Extract(data)
		if err != nil {
			return "", "", err
		}
		return source, text, nil
	}
	return source, string(data), nil
}

// statusFor maps document errors to 422 and leaves everything else at the
// caller's fallback.
func statusFor(err error, fallback int) int {
	var exErr *model.ExtractionError
	if errors.Is(err, model.ErrNoReferencesFound) || errors.As(err, &exErr) {
		return http.StatusUnprocessableEntity
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeSSE(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
