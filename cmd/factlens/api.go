package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/NullMeDev/factlens/internal/apperror"
	"github.com/NullMeDev/factlens/internal/history"
	"github.com/NullMeDev/factlens/internal/logging"
	"github.com/NullMeDev/factlens/internal/metrics"
	"github.com/NullMeDev/factlens/internal/predict"
	"github.com/NullMeDev/factlens/internal/scheduler"
	"github.com/NullMeDev/factlens/internal/verify"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryReader is the part of the history store the API reads.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
	Stats(ctx context.Context) (*history.Stats, error)
	Ping(ctx context.Context) error
}

// APIOptions carries the collaborators of the HTTP API. History, Jobs and
// Errors may be nil.
type APIOptions struct {
	Version      string
	Service      *verify.Service
	History      HistoryReader
	Errors       *apperror.Handler
	Metrics      *metrics.Metrics
	Hub          *Hub
	Jobs         *scheduler.Scheduler
	Log          *logging.Logger
	RateLimit    float64
	RateBurst    int
	MaxBodyBytes int64
}

// API serves the JSON endpoints.
type API struct {
	opts    APIOptions
	limiter *rate.Limiter
	started time.Time
	log     *logging.Logger
}

func NewAPI(opts APIOptions) *API {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 2
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	return &API{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		started: time.Now(),
		log:     opts.Log.With("component", "api"),
	}
}

// Router builds the mux router.
func (a *API) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(a.instrument)

	router.HandleFunc("/healthcheck", a.handleHealthCheck).Methods("GET")
	router.Handle("/metrics", a.opts.Metrics.Handler()).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", a.handleHealth).Methods("GET")
	api.HandleFunc("/links", a.handleLinks).Methods("GET")
	api.HandleFunc("/history", a.handleHistory).Methods("GET")
	api.HandleFunc("/history/stats", a.handleHistoryStats).Methods("GET")
	api.HandleFunc("/errors", a.handleErrors).Methods("GET")
	if a.opts.Hub != nil {
		api.Handle("/ws", a.opts.Hub)
	}

	limited := api.NewRoute().Subrouter()
	limited.Use(a.rateLimit)
	limited.HandleFunc("/predict", a.handlePredict).Methods("POST")
	limited.HandleFunc("/analyze", a.handleAnalyze).Methods("POST")

	return router
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (a *API) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		a.opts.Metrics.ObserveHTTP(route, r.Method, rec.status, time.Since(start))
	})
}

func (a *API) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.Allow() {
			a.opts.Metrics.RateLimitedTotal.Inc()
			respondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded, try again shortly")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type predictRequest struct {
	Text string `json:"text"`
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := a.decode(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondWithError(w, http.StatusBadRequest, "text is required")
		return
	}

	out := a.opts.Service.Predict(req.Text, verify.OriginAPI)
	respondWithJSON(w, outcomeStatus(out), out)
}

func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req verify.Request
	if err := a.decode(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Origin = verify.OriginAPI

	report, err := a.opts.Service.Analyze(r.Context(), req)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, outcomeStatus(report.Prediction), report)
}

func (a *API) handleLinks(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondWithError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	label := predict.LabelReal
	switch strings.ToLower(r.URL.Query().Get("label")) {
	case "", "real":
	case "fake":
		label = predict.LabelFake
	default:
		respondWithError(w, http.StatusBadRequest, "label must be fake or real")
		return
	}

	respondWithJSON(w, http.StatusOK, a.opts.Service.Links(r.Context(), label, query))
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.opts.History == nil {
		respondWithError(w, http.StatusServiceUnavailable, "History is disabled")
		return
	}
	limit, err := parseLimit(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := a.opts.History.Recent(r.Context(), limit)
	if err != nil {
		a.handleError(err, "api")
		respondWithError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	respondWithJSON(w, http.StatusOK, records)
}

func (a *API) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	if a.opts.History == nil {
		respondWithError(w, http.StatusServiceUnavailable, "History is disabled")
		return
	}
	stats, err := a.opts.History.Stats(r.Context())
	if err != nil {
		a.handleError(err, "api")
		respondWithError(w, http.StatusInternalServerError, "Failed to load history stats")
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func (a *API) handleErrors(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 10, maxHistoryLimit)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	events := []*apperror.ErrorEvent{}
	var total int64
	if a.opts.Errors != nil {
		events = a.opts.Errors.Recent(limit)
		total = a.opts.Errors.Total()
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"total":  total,
		"errors": events,
	})
}

// handleHealth reports component status. It answers 503 while the model is
// not loaded, since no prediction can succeed.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	modelLoaded := a.opts.Service.Ready()

	database := "disabled"
	if a.opts.History != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		database = "ok"
		if err := a.opts.History.Ping(ctx); err != nil {
			database = "unavailable"
		}
	}

	status, code := "healthy", http.StatusOK
	switch {
	case !modelLoaded:
		status, code = "unavailable", http.StatusServiceUnavailable
	case database == "unavailable":
		status = "degraded"
	}

	response := map[string]interface{}{
		"status":       status,
		"version":      a.opts.Version,
		"uptime":       time.Since(a.started).Round(time.Second).String(),
		"model_loaded": modelLoaded,
		"database":     database,
	}
	if a.opts.Errors != nil {
		response["error_count"] = a.opts.Errors.Total()
	}
	if a.opts.Hub != nil {
		response["ws_clients"] = a.opts.Hub.Count()
	}
	if a.opts.Jobs != nil {
		response["jobs"] = a.opts.Jobs.Entries()
	}
	respondWithJSON(w, code, response)
}

// handleHealthCheck provides a simple liveness endpoint
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": a.opts.Version,
	})
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, a.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return fmt.Errorf("request body exceeds %d bytes", a.opts.MaxBodyBytes)
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		default:
			return errors.New("invalid JSON body")
		}
	}
	return nil
}

func (a *API) handleError(err error, component string) {
	a.log.Error("%s: %v", component, err)
	if a.opts.Errors != nil {
		a.opts.Errors.Handle(err, component)
	}
}

func parseLimit(r *http.Request, def, ceiling int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > ceiling {
		n = ceiling
	}
	return n, nil
}

// outcomeStatus maps a prediction outcome to an HTTP status.
func outcomeStatus(out predict.Outcome) int {
	switch {
	case !out.IsError():
		return http.StatusOK
	case errors.Is(out.Err(), predict.ErrEmptyInput):
		return http.StatusUnprocessableEntity
	case errors.Is(out.Err(), predict.ErrModelNotLoaded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondWithAppError maps an application error code to an HTTP status.
func respondWithAppError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch apperror.CodeOf(err) {
	case apperror.ErrAPIBadRequest, apperror.ErrExtractInvalidURL:
		code = http.StatusBadRequest
	case apperror.ErrExtractEmpty:
		code = http.StatusUnprocessableEntity
	case apperror.ErrExtractTimeout:
		code = http.StatusGatewayTimeout
	case apperror.ErrExtractFetch, apperror.ErrExtractStatus, apperror.ErrExtractTooLarge:
		code = http.StatusBadGateway
	}

	message := err.Error()
	var ae *apperror.Error
	if errors.As(err, &ae) {
		message = ae.Message
	}
	respondWithJSON(w, code, map[string]string{
		"error": message,
		"code":  apperror.CodeOf(err),
	})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
