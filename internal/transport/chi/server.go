package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/joelhooks/pdf-brain/internal/domain"
	"github.com/joelhooks/pdf-brain/internal/domain/search/filter"
	"github.com/joelhooks/pdf-brain/internal/domain/search/request"
	clusteringuc "github.com/joelhooks/pdf-brain/internal/usecase/clustering"
	healthuc "github.com/joelhooks/pdf-brain/internal/usecase/health"
)

// DefaultRebuildTimeout bounds a background clustering run.
const DefaultRebuildTimeout = 30 * time.Minute

// Server serves retrieval and clustering over HTTP.
type Server struct {
	search         Searcher
	rebuild        Rebuilder
	runs           RunReader
	health         HealthReporter
	logger         *zap.Logger
	rebuildTimeout time.Duration

	// background rebuilds outlive their request; Close cancels them
	baseCtx    context.Context
	cancelBase context.CancelFunc
	rebuilding atomic.Bool
	wg         sync.WaitGroup
}

// NewServer creates an HTTP API server. rebuildTimeout <= 0 means DefaultRebuildTimeout.
func NewServer(
	search Searcher,
	rebuild Rebuilder,
	runs RunReader,
	health HealthReporter,
	rebuildTimeout time.Duration,
	logger *zap.Logger,
) *Server {
	if rebuildTimeout <= 0 {
		rebuildTimeout = DefaultRebuildTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		search:         search,
		rebuild:        rebuild,
		runs:           runs,
		health:         health,
		logger:         logger,
		rebuildTimeout: rebuildTimeout,
		baseCtx:        ctx,
		cancelBase:     cancel,
	}
}

// Close cancels background rebuilds and waits for them to return.
func (s *Server) Close() {
	s.cancelBase()
	s.wg.Wait()
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	searchReq, err := searchRequestFromDTO(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}

	ctx, usage := domain.WithTokenMeter(r.Context())
	hits, err := s.search.Search(ctx, &searchReq)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	items := make([]SearchHit, len(hits))
	for i := range hits {
		items[i] = hitToResponse(&hits[i])
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, SearchResponse{Items: items, Total: len(items)})
}

// RebuildClusters handles POST /clusters/rebuild. The run happens in the
// background unless the body asks to wait; only one rebuild runs at a time.
func (s *Server) RebuildClusters(w http.ResponseWriter, r *http.Request) {
	var req RebuildRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if !s.rebuilding.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, ErrorCodeConflict, "a rebuild is already running")
		return
	}
	opts := clusteringuc.RunOptions{Tags: req.Tags}

	if req.Wait {
		defer s.rebuilding.Store(false)
		run, err := s.rebuild.Run(r.Context(), opts)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, RebuildResponse{Status: "done", Run: runToResponse(&run)})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.rebuilding.Store(false)

		ctx, cancel := context.WithTimeout(s.baseCtx, s.rebuildTimeout)
		defer cancel()
		if _, err := s.rebuild.Run(ctx, opts); err != nil {
			s.logger.Error("Background cluster rebuild failed", zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, RebuildResponse{Status: "started"})
}

// LatestClusters handles GET /clusters/latest.
func (s *Server) LatestClusters(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.LatestRun(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runToResponse(&run))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func searchRequestFromDTO(req SearchRequest) (request.Request, error) {
	var filters filter.Expression
	if len(req.Tags) > 0 {
		var err error
		if filters, err = filter.AnyTag(req.Tags); err != nil {
			return request.Request{}, err
		}
	}
	return request.New(
		req.Query, filters, req.Limit, req.Threshold,
		req.Hybrid, req.ExpandChars, req.IncludeClusterSummaries,
	)
}

func setEmbeddingHeaders(w http.ResponseWriter, meter *domain.TokenMeter) {
	if meter.Embedded() {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(meter.Tokens()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// maxBodyBytes bounds request bodies; queries and tag lists are small.
const maxBodyBytes = 1 << 20

// decodeBody strictly decodes a JSON body. An empty body is accepted when
// optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
