// Package server exposes the loan scoring pipeline over HTTP. It
// provides REST endpoints for single and batch scoring, per-decision
// explanations, fairness audits, and outcome reporting, plus a
// WebSocket stream of live decision events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"lendguard/internal/decision"
	"lendguard/internal/fairness"
	"lendguard/internal/features"
	"lendguard/internal/metrics"
	"lendguard/internal/ml"
	"lendguard/internal/notify"
	"lendguard/internal/scoring"
	"lendguard/internal/storage"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Config wires the server's collaborators. Store and Notifier are
// optional; without a store the audit and outcome endpoints return 503.
type Config struct {
	Port     int
	Scoring  *scoring.Service
	Auditor  *fairness.Engine
	Store    *storage.Store
	Notifier *notify.Notifier
	Metrics  *metrics.Metrics
}

// Server is the HTTP front end for the scoring service.
type Server struct {
	svc      *scoring.Service
	auditor  *fairness.Engine
	store    *storage.Store
	notifier *notify.Notifier
	mets     *metrics.Metrics

	httpServer *http.Server
	upgrader   websocket.Upgrader
	clients    map[*websocket.Conn]bool
	clientsMu  sync.RWMutex
	broadcast  chan DecisionEvent
	stop       chan struct{}
	running    bool
	mu         sync.Mutex
}

// New builds the server and its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Scoring == nil || cfg.Auditor == nil {
		return nil, fmt.Errorf("server requires scoring service and fairness engine")
	}

	s := &Server{
		svc:       cfg.Scoring,
		auditor:   cfg.Auditor,
		store:     cfg.Store,
		notifier:  cfg.Notifier,
		mets:      cfg.Metrics,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan DecisionEvent, 100),
		stop:      make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleDashboard).Methods("GET")
	r.HandleFunc("/predict", s.handlePredict).Methods("POST")
	r.HandleFunc("/predict/batch", s.handlePredictBatch).Methods("POST")
	r.HandleFunc("/explain", s.handleExplain).Methods("POST")
	r.HandleFunc("/audit", s.handleAudit).Methods("POST")
	r.HandleFunc("/audit/latest", s.handleLatestAudit).Methods("GET")
	r.HandleFunc("/outcome", s.handleOutcome).Methods("POST")
	r.HandleFunc("/feature-importance", s.handleFeatureImportance).Methods("GET")
	r.HandleFunc("/applicants/{id}/decisions", s.handleApplicantHistory).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves HTTP and runs the broadcast loop until Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	go s.clientBroadcaster()

	go func() {
		log.Info().Str("address", s.httpServer.Addr).Msg("Starting scoring server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Scoring server failed")
		}
	}()

	s.running = true
	return nil
}

// Stop drains WebSocket clients and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	close(s.stop)

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown scoring server")
		return err
	}

	s.running = false
	log.Info().Msg("Scoring server stopped")
	return nil
}

type scoreRequest struct {
	ApplicantID string         `json:"applicant_id"`
	Application map[string]any `json:"application"`
}

type scoreResponse struct {
	ApplicantID string  `json:"applicant_id"`
	Probability float64 `json:"probability"`
	Class       int     `json:"class"`
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return
	}
	if req.ApplicantID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("applicant_id is required"))
		return
	}

	app, err := features.ParseApplication(req.Application)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	result, err := s.svc.Score(app)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.recordDecision(req.ApplicantID, app, result)
	s.writeJSON(w, http.StatusOK, toScoreResponse(req.ApplicantID, result))
}

type batchRequest struct {
	Applications []scoreRequest `json:"applications"`
}

func (s *Server) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return
	}
	if len(req.Applications) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("applications list is empty"))
		return
	}

	apps := make([]features.Application, len(req.Applications))
	for i, item := range req.Applications {
		if item.ApplicantID == "" {
			s.writeError(w, http.StatusBadRequest, &scoring.BatchValidationError{
				Index: i, Err: fmt.Errorf("applicant_id is required"),
			})
			return
		}
		app, err := features.ParseApplication(item.Application)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, &scoring.BatchValidationError{Index: i, Err: err})
			return
		}
		apps[i] = app
	}

	results, err := s.svc.ScoreBatch(apps)
	if err != nil {
		if s.mets != nil {
			s.mets.BatchRejections.Inc()
		}
		s.writeError(w, statusFor(err), err)
		return
	}

	responses := make([]scoreResponse, len(results))
	for i, result := range results {
		s.recordDecision(req.Applications[i].ApplicantID, apps[i], result)
		responses[i] = toScoreResponse(req.Applications[i].ApplicantID, result)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": responses})
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return
	}

	app, err := features.ParseApplication(req.Application)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	start := time.Now()
	exp, err := s.svc.Explain(app)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	if s.mets != nil {
		s.mets.Explanations.Inc()
		s.mets.ExplanationLatency.Observe(time.Since(start).Seconds())
	}
	s.writeJSON(w, http.StatusOK, exp)
}

type auditRequest struct {
	Records   []fairness.Record `json:"records,omitempty"`
	Start     *time.Time        `json:"start,omitempty"`
	End       *time.Time        `json:"end,omitempty"`
	Attribute string            `json:"attribute,omitempty"`
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return
	}

	records := req.Records
	if len(records) == 0 {
		var err error
		records, err = s.recordsFromLedger(req)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, errStoreUnavailable) {
				status = http.StatusServiceUnavailable
			}
			s.writeError(w, status, err)
			return
		}
	}

	report, err := s.auditor.Audit(records)
	if err != nil {
		if s.mets != nil {
			s.mets.AuditFailures.Inc()
		}
		s.writeError(w, statusFor(err), err)
		return
	}

	if s.mets != nil {
		s.mets.AuditObserved(report.DisparateImpactRatio, report.Passes80PctRule)
	}
	if !report.Passes80PctRule {
		s.notifier.AuditFailureAlert(report.DisparateImpactRatio, report.ReferenceGroup, report.Narrative)
	}
	s.archiveReport(report)
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) recordsFromLedger(req auditRequest) ([]fairness.Record, error) {
	if s.store == nil {
		return nil, errStoreUnavailable
	}
	if req.Start == nil || req.End == nil || req.Attribute == "" {
		return nil, fmt.Errorf("audit requires either inline records or start, end, and attribute")
	}

	decisions, err := s.store.DecisionsInRange(*req.Start, *req.End)
	if err != nil {
		return nil, fmt.Errorf("read decision ledger: %w", err)
	}

	records := make([]fairness.Record, 0, len(decisions))
	for _, d := range decisions {
		group, ok := d.Groups[req.Attribute]
		if !ok {
			continue // applicant did not disclose this attribute
		}
		records = append(records, fairness.Record{
			Approved:    d.Label == string(decision.Approve),
			Probability: d.Probability,
			Group:       group,
			Outcome:     d.Outcome,
		})
	}
	return records, nil
}

func (s *Server) archiveReport(report *fairness.Report) {
	if s.store == nil {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		log.Warn().Err(err).Msg("failed to serialize audit report for archive")
		return
	}
	if err := s.store.StoreAuditReport(time.Now(), data); err != nil {
		log.Warn().Err(err).Msg("failed to archive audit report")
	}
}

func (s *Server) handleLatestAudit(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, errStoreUnavailable)
		return
	}
	report, err := s.store.LatestAuditReport()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if report == nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no audit has been run yet"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(report)
}

type outcomeRequest struct {
	ApplicantID string `json:"applicant_id"`
	Outcome     *int   `json:"outcome"`
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, errStoreUnavailable)
		return
	}

	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return
	}
	if req.ApplicantID == "" || req.Outcome == nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("applicant_id and outcome are required"))
		return
	}

	if err := s.store.SetOutcome(req.ApplicantID, *req.Outcome); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleFeatureImportance(w http.ResponseWriter, r *http.Request) {
	importances, err := s.svc.FeatureImportances()
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"importances": importances})
}

func (s *Server) handleApplicantHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, errStoreUnavailable)
		return
	}

	id := mux.Vars(r)["id"]
	history, err := s.store.DecisionsForApplicant(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(history) == 0 {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no decisions recorded for applicant %s", id))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"decisions": history})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"features": s.svc.FeatureOrder(),
	})
}

// recordDecision writes the scored application to the ledger, streams
// it to WebSocket subscribers, and alerts on declines. Ledger failures
// are logged but never fail the scoring request.
func (s *Server) recordDecision(applicantID string, app features.Application, result scoring.Result) {
	now := time.Now()

	if s.mets != nil {
		s.mets.DecisionInc(string(result.Decision.Label))
	}

	if s.store != nil {
		rec := storage.DecisionRecord{
			ApplicantID: applicantID,
			Timestamp:   now,
			Probability: result.Prediction.Probability,
			Class:       result.Prediction.Class,
			Label:       string(result.Decision.Label),
			Confidence:  result.Decision.Confidence,
			Reason:      result.Decision.Reason,
			Groups:      protectedGroups(app),
		}
		if err := s.store.StoreDecision(rec); err != nil {
			log.Warn().Err(err).Str("applicant", applicantID).Msg("failed to persist decision")
		}
	}

	if result.Decision.Label == decision.Decline {
		s.notifier.DeclineAlert(applicantID, string(result.Decision.Label),
			result.Prediction.Probability, result.Decision.Reason)
	}

	s.publish(DecisionEvent{
		ApplicantID: applicantID,
		Timestamp:   now,
		Probability: result.Prediction.Probability,
		Label:       string(result.Decision.Label),
		Confidence:  result.Decision.Confidence,
	})
}

// protectedGroups extracts audit group labels from the optional
// protected attributes. Age is bucketed at the 40-year line.
func protectedGroups(app features.Application) map[string]string {
	groups := make(map[string]string)
	if app.Gender != nil {
		groups["gender"] = strconv.Itoa(*app.Gender)
	}
	if app.Race != nil {
		groups["race"] = strconv.Itoa(*app.Race)
	}
	if app.Age != nil {
		if *app.Age < 40 {
			groups["age"] = "under_40"
		} else {
			groups["age"] = "40_and_over"
		}
	}
	if len(groups) == 0 {
		return nil
	}
	return groups
}

func toScoreResponse(applicantID string, result scoring.Result) scoreResponse {
	return scoreResponse{
		ApplicantID: applicantID,
		Probability: result.Prediction.Probability,
		Class:       result.Prediction.Class,
		Label:       string(result.Decision.Label),
		Confidence:  result.Decision.Confidence,
		Reason:      result.Decision.Reason,
	}
}

var errStoreUnavailable = fmt.Errorf("decision ledger is not configured")

// statusFor maps domain errors onto HTTP status codes. Client-side
// input problems map to 400, audit data gaps to 422, and a missing
// model to 503.
func statusFor(err error) int {
	var validationErr *features.ValidationError
	var scoringBatchErr *scoring.BatchValidationError
	var fairnessBatchErr *fairness.BatchValidationError
	var insufficientErr *fairness.InsufficientDataError
	var notLoadedErr *ml.ModelNotLoadedError

	switch {
	case errors.As(err, &validationErr),
		errors.As(err, &scoringBatchErr),
		errors.As(err, &fairnessBatchErr):
		return http.StatusBadRequest
	case errors.As(err, &insufficientErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &notLoadedErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, errStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if s.mets != nil && status >= 500 {
		s.mets.ErrorsTotal.Inc()
	}
	if s.mets != nil && status == http.StatusBadRequest {
		s.mets.ValidationErrors.Inc()
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
