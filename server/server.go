// Package server exposes the ingestion, aggregation and liveness endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/lagren/healthguard/api"
	"github.com/lagren/healthguard/persistence"
	"github.com/lagren/healthguard/signature"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxBodySize = 1 << 20

var (
	mIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "healthguard_ingested_runs_total", Help: "Check runs stored by the ingestion endpoint",
	})
	mRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthguard_ingestion_rejected_total", Help: "Ingestion requests that were not stored",
	}, []string{"reason"})
)

type Store interface {
	FindClient(ctx context.Context, identifier uuid.UUID) (*persistence.Client, error)
	CreateRun(ctx context.Context, run *persistence.CheckRun, outcomes []persistence.CheckOutcome) error
	CountOutcomes(ctx context.Context, from, to *time.Time) ([]persistence.OutcomeCount, error)
	RunsByExternalID(ctx context.Context, externalID string) ([]persistence.CheckRun, error)
}

type Server struct {
	store      Store
	signingKey string
}

// New returns a Server backed by store. A non-empty signingKey makes the
// ingestion endpoint require signed requests.
func New(store Store, signingKey string) *Server {
	return &Server{store: store, signingKey: signingKey}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	var create http.Handler = http.HandlerFunc(s.createJob)
	if s.signingKey != "" {
		create = signature.Verify(s.signingKey, maxBodySize)(create)
	}

	r.Handle(api.JobsPath, create).Methods(http.MethodPost)
	r.HandleFunc(api.JobsPath, s.countOutcomes).Methods(http.MethodGet)
	r.HandleFunc(api.JobsPath+"{uuid}/", s.lookupRuns).Methods(http.MethodGet)
	r.HandleFunc(api.PingPath, ping).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

// Handler wraps the router with tracing and access logging.
func (s *Server) Handler() http.Handler {
	return handlers.LoggingHandler(os.Stdout, otelhttp.NewHandler(s.Router(), "healthguard"))
}

// ListenAndServe serves until ctx is done and then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("could not shut down server: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func ping(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		mRejected.WithLabelValues("body").Inc()
		sendJSON(w, http.StatusRequestEntityTooLarge, api.ErrorResponse{Detail: fmt.Sprintf("Request body exceeds %d bytes.", tooLarge.Limit)})
		return
	}
	if err != nil {
		mRejected.WithLabelValues("body").Inc()
		sendJSON(w, http.StatusBadRequest, api.ErrorResponse{Detail: "Could not read request body."})
		return
	}

	j, fieldErrors, err := validateJob(ctx, s.store, body)

	var syntaxErr *syntaxError
	switch {
	case errors.As(err, &syntaxErr):
		mRejected.WithLabelValues("syntax").Inc()
		sendJSON(w, http.StatusBadRequest, api.ErrorResponse{Detail: syntaxErr.Error()})
		return
	case err != nil:
		mRejected.WithLabelValues("storage").Inc()
		logrus.Errorf("Could not validate job: %s", err)
		sendJSON(w, http.StatusInternalServerError, api.ErrorResponse{Detail: "A server error occurred."})
		return
	case fieldErrors != nil:
		mRejected.WithLabelValues("validation").Inc()
		logrus.WithField("errors", fieldErrors).Info("Rejected job")
		sendJSON(w, http.StatusBadRequest, fieldErrors)
		return
	}

	run := &persistence.CheckRun{
		ExternalID: j.uuid,
		Timestamp:  j.timestamp,
		Source:     truncate(absoluteURL(r), 256),
		ClientID:   j.client.ID,
	}

	outcomes := make([]persistence.CheckOutcome, 0, len(j.checks))
	for _, c := range j.checks {
		outcomes = append(outcomes, persistence.CheckOutcome{
			Name:    c.Name,
			Status:  c.Status,
			Message: c.Message,
		})
	}

	if err := s.store.CreateRun(ctx, run, outcomes); err != nil {
		mRejected.WithLabelValues("storage").Inc()
		logrus.Errorf("Could not store job %s: %s", j.uuid, err)
		sendJSON(w, http.StatusInternalServerError, api.ErrorResponse{Detail: "A server error occurred."})
		return
	}

	mIngested.Inc()
	logrus.WithFields(logrus.Fields{
		"uuid":   j.uuid,
		"client": j.client.Name,
		"checks": len(outcomes),
	}).Info("Stored job")

	sendJSON(w, http.StatusCreated, api.JobResponse{
		UUID:      j.uuid,
		Timestamp: j.timestamp.Format(time.RFC3339Nano),
	})
}

func (s *Server) countOutcomes(w http.ResponseWriter, r *http.Request) {
	from, to, ok := dateRange(r)
	if !ok {
		sendJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: api.InvalidDateFormat})
		return
	}

	counts, err := s.store.CountOutcomes(r.Context(), from, to)
	if err != nil {
		logrus.Errorf("Could not count outcomes: %s", err)
		sendJSON(w, http.StatusInternalServerError, api.ErrorResponse{Detail: "A server error occurred."})
		return
	}

	rows := make([]api.CountRow, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, api.CountRow{Name: c.Name, Status: c.Status, Count: c.Count})
	}

	sendJSON(w, http.StatusOK, api.CountResponse{Data: rows})
}

// dateRange parses the optional start_date and end_date parameters into a
// half-open range. The end date includes the whole day.
func dateRange(r *http.Request) (*time.Time, *time.Time, bool) {
	q := r.URL.Query()

	var from, to *time.Time

	if v := q.Get("start_date"); v != "" {
		t, err := time.Parse(api.DateLayout, v)
		if err != nil {
			return nil, nil, false
		}
		from = &t
	}

	if v := q.Get("end_date"); v != "" {
		t, err := time.Parse(api.DateLayout, v)
		if err != nil {
			return nil, nil, false
		}
		t = t.AddDate(0, 0, 1)
		to = &t
	}

	return from, to, true
}

func (s *Server) lookupRuns(w http.ResponseWriter, r *http.Request) {
	externalID := mux.Vars(r)["uuid"]

	runs, err := s.store.RunsByExternalID(r.Context(), externalID)
	if err != nil {
		logrus.Errorf("Could not look up runs for %s: %s", externalID, err)
		sendJSON(w, http.StatusInternalServerError, api.ErrorResponse{Detail: "A server error occurred."})
		return
	}

	if len(runs) == 0 {
		sendJSON(w, http.StatusNotFound, api.ErrorResponse{Detail: "Not found."})
		return
	}

	resp := api.RunsResponse{Data: make([]api.Run, 0, len(runs))}
	for _, run := range runs {
		checks := make([]api.RunOutcome, 0, len(run.Outcomes))
		for _, o := range run.Outcomes {
			checks = append(checks, api.RunOutcome{
				Name:      o.Name,
				Status:    o.Status,
				Message:   o.Message,
				CreatedAt: o.CreatedAt.UTC().Format(time.RFC3339Nano),
			})
		}

		resp.Data = append(resp.Data, api.Run{
			UUID:      run.ExternalID,
			Timestamp: run.Timestamp.UTC().Format(time.RFC3339Nano),
			Source:    run.Source,
			Client:    run.Client.Identifier.String(),
			Checks:    checks,
			CreatedAt: run.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}

	sendJSON(w, http.StatusOK, resp)
}

// absoluteURL rebuilds the URL the request was made to.
func absoluteURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("Could not write response: %s", err)
	}
}
