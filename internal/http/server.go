package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"keyscan/internal/service"
	"keyscan/pkg/batch"
	"keyscan/pkg/dberrors"
	"keyscan/pkg/metrics"
	"keyscan/pkg/types"
)

const (
	contentTypeJSON        = "application/json"
	defaultHTTPPort        = "8080"
	defaultShutdownTimeout = time.Second * 5
	maxBodyBytes           = 8 << 20
)

type iKeyService interface {
	CountKeys(ctx context.Context, pattern, hashTag string, mode service.CountMode) (service.CountResult, error)
	DeleteKeys(ctx context.Context, pattern, hashTag string) (batch.Result, error)
	SeedGroups(ctx context.Context, layout service.GroupLayout, ids []string, perGroup int) (batch.Result, error)
	CountGroup(ctx context.Context, layout service.GroupLayout, id string) (service.CountResult, error)
	WriteRecords(ctx context.Context, layout service.RecordLayout, records []service.Record) (batch.Result, error)
	ReadRecords(ctx context.Context, layout service.RecordLayout, unit string) (service.DayCounts, error)
	Ping(ctx context.Context) (map[string]time.Duration, error)
	Stats(ctx context.Context, op types.OpClass) (map[types.Partition]types.Counters, error)
	ResetStats(ctx context.Context) error
}

type Options struct {
	Port              string
	ReadHeaderTimeout time.Duration
	Metrics           metrics.Collector
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
}

// Server represents the HTTP server over the key service
type Server struct {
	svc        iKeyService
	metrics    metrics.Collector
	metricsH   http.Handler
	httpServer *http.Server
	readHeader time.Duration
	URL        string
	addr       string
}

// NewServer creates a new server instance
func NewServer(svc iKeyService, opts Options) *Server {
	if opts.Port == "" {
		opts.Port = defaultHTTPPort
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = time.Second
	}
	return &Server{
		svc:        svc,
		metrics:    opts.Metrics,
		metricsH:   opts.MetricsHandler,
		readHeader: opts.ReadHeaderTimeout,
		URL:        "http://localhost:" + opts.Port,
		addr:       ":" + opts.Port,
	}
}

// Start starts the server
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}
	return nil
}

// Handler builds chi router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Get("/ping", s.handlePing)
	if s.metricsH != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsH)
	}

	r.Get("/keys/count", s.handleCountKeys)
	r.Delete("/keys", s.handleDeleteKeys)

	r.Post("/groups", s.handleSeedGroups)
	r.Get("/groups/{id}/count", s.handleCountGroup)

	r.Post("/records/{layout}", s.handleWriteRecords)
	r.Get("/records/{layout}", s.handleReadRecords)

	r.Get("/stats", s.handleStats)
	r.Post("/stats/reset", s.handleResetStats)

	return r
}

func (s *Server) startHTTPServer() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.readHeader,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

// statusFor maps the error taxonomy onto HTTP codes.
func statusFor(err error) int {
	switch {
	case dberrors.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case dberrors.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), NewErrorResponse(err.Error()))
}

func (s *Server) writeMutationError(w http.ResponseWriter, err error, res batch.Result) {
	applied := res.Applied
	if n, ok := dberrors.AppliedCount(err); ok && n > applied {
		applied = n
	}
	s.writeJSON(w, statusFor(err), NewPartialErrorResponse(err.Error(), applied))
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{dberrors.ErrInvalidArgument}, args...)...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	rtt, err := s.svc.Ping(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := NewOKResponse()
	resp.LatencyUSec = make(map[string]int64, len(rtt))
	for addr, d := range rtt {
		resp.LatencyUSec[addr] = d.Microseconds()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCountKeys(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pattern := q.Get("pattern")
	if pattern == "" {
		s.writeError(w, badRequest("missing pattern"))
		return
	}
	mode, err := service.ParseCountMode(q.Get("mode"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.svc.CountKeys(r.Context(), pattern, q.Get("tag"), mode)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewCountResponse(pattern, string(res.Mode), res.Routing.String(), res.Count))
}

func (s *Server) handleDeleteKeys(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pattern := q.Get("pattern")
	if pattern == "" {
		s.writeError(w, badRequest("missing pattern"))
		return
	}

	res, err := s.svc.DeleteKeys(r.Context(), pattern, q.Get("tag"))
	if err != nil {
		s.writeMutationError(w, err, res)
		return
	}
	s.writeJSON(w, http.StatusOK, NewDeletedResponse(pattern, res.Applied))
}

type seedGroupsRequest struct {
	Layout   string   `json:"layout"`
	IDs      []string `json:"ids"`
	Groups   int      `json:"groups"`
	PerGroup int      `json:"per_group"`
}

func (s *Server) handleSeedGroups(w http.ResponseWriter, r *http.Request) {
	var req seedGroupsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	layout, err := service.ParseGroupLayout(req.Layout)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// groups: N - короткая запись для ids 0..N-1
	ids := req.IDs
	if len(ids) == 0 {
		for i := 0; i < req.Groups; i++ {
			ids = append(ids, strconv.Itoa(i))
		}
	}

	res, err := s.svc.SeedGroups(r.Context(), layout, ids, req.PerGroup)
	if err != nil {
		s.writeMutationError(w, err, res)
		return
	}
	s.writeJSON(w, http.StatusOK, NewAppliedResponse(res.Applied, res.Flushes))
}

func (s *Server) handleCountGroup(w http.ResponseWriter, r *http.Request) {
	layout, err := service.ParseGroupLayout(r.URL.Query().Get("layout"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.svc.CountGroup(r.Context(), layout, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewCountResponse(res.Pattern, string(res.Mode), res.Routing.String(), res.Count))
}

// handleWriteRecords принимает [[unit, RFC3339-время], ...]
func (s *Server) handleWriteRecords(w http.ResponseWriter, r *http.Request) {
	layout, err := service.ParseRecordLayout(chi.URLParam(r, "layout"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var raw [][]string
	if err := decodeBody(w, r, &raw); err != nil {
		s.writeError(w, err)
		return
	}
	if len(raw) == 0 {
		s.writeError(w, badRequest("no records"))
		return
	}

	records := make([]service.Record, 0, len(raw))
	for i, rec := range raw {
		if len(rec) != 2 {
			s.writeError(w, badRequest("record %d: want [unit, time]", i))
			return
		}
		at, err := time.Parse(time.RFC3339, rec[1])
		if err != nil {
			s.writeError(w, badRequest("record %d: %v", i, err))
			return
		}
		records = append(records, service.Record{Unit: rec[0], At: at})
	}

	res, err := s.svc.WriteRecords(r.Context(), layout, records)
	if err != nil {
		s.writeMutationError(w, err, res)
		return
	}
	s.writeJSON(w, http.StatusOK, NewAppliedResponse(res.Applied, res.Flushes))
}

func (s *Server) handleReadRecords(w http.ResponseWriter, r *http.Request) {
	layout, err := service.ParseRecordLayout(chi.URLParam(r, "layout"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	days, err := s.svc.ReadRecords(r.Context(), layout, r.URL.Query().Get("unit"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := NewSuccessResponse()
	resp.Records = days
	if resp.Records == nil {
		resp.Records = map[string]map[string]int64{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	op := types.OpClass(strings.ToLower(r.URL.Query().Get("op")))
	if op == "" {
		op = types.OpClassScan
	}

	snap, err := s.svc.Stats(r.Context(), op)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := NewSuccessResponse()
	resp.Partitions = make(map[string]PartitionStats, len(snap))
	for p, c := range snap {
		ps := PartitionStats{Calls: c.Calls, USecTotal: c.TotalTime.Microseconds()}
		if c.Calls > 0 {
			ps.USecPerCall = float64(ps.USecTotal) / float64(c.Calls)
		}
		resp.Partitions[p.Addr] = ps
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResetStats(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ResetStats(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}
