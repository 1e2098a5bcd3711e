// Package health aggregates readiness probes for the /health endpoint.
package health

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"
)

// DefaultProbeTimeout bounds each probe after the database answered.
const DefaultProbeTimeout = 2 * time.Second

// Status is the overall verdict.
type Status string

const (
	Healthy   Status = "ok"
	Degraded  Status = "degraded"
	Unhealthy Status = "error" // database unreachable
)

// CheckResult is the outcome of one probe.
type CheckResult string

const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
)

// Report is what /health renders.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Failed lists the names of failing checks in sorted order.
func (r Report) Failed() []string {
	var out []string
	for _, name := range slices.Sorted(maps.Keys(r.Checks)) {
		if r.Checks[name] == CheckError {
			out = append(out, name)
		}
	}
	return out
}

// Pinger is the database liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IndexChecker reports whether a search index exists.
type IndexChecker interface {
	IndexExists(ctx context.Context, name string) (bool, error)
}

// ProviderChecker probes the embedding provider.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}

type probe struct {
	name string
	run  func(ctx context.Context) error
}

// Option configures a Service.
type Option func(*Service)

// WithIndex adds a probe named check that fails when index is missing.
func WithIndex(c IndexChecker, check, index string) Option {
	return func(s *Service) {
		s.probes = append(s.probes, probe{name: check, run: func(ctx context.Context) error {
			ok, err := c.IndexExists(ctx, index)
			if err == nil && !ok {
				return errMissing
			}
			return err
		}})
	}
}

// WithProvider adds the "embedding" probe.
func WithProvider(c ProviderChecker) Option {
	return func(s *Service) {
		s.probes = append(s.probes, probe{name: "embedding", run: c.HealthCheck})
	}
}

// WithProbeTimeout overrides DefaultProbeTimeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

var errMissing = errors.New("index missing")

// Service runs the database probe, then every other probe concurrently.
type Service struct {
	db      Pinger
	probes  []probe
	timeout time.Duration
}

// New creates a Service around the database probe.
func New(db Pinger, opts ...Option) *Service {
	s := &Service{db: db, timeout: DefaultProbeTimeout}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Check reports Unhealthy when the database is down and skips the other
// probes; any other failing probe makes the report Degraded.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]CheckResult{"database": CheckOK}
	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
		return Report{Status: Unhealthy, Checks: checks}
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, p := range s.probes {
		wg.Go(func() {
			pctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			res := CheckOK
			if p.run(pctx) != nil {
				res = CheckError
			}
			mu.Lock()
			checks[p.name] = res
			mu.Unlock()
		})
	}
	wg.Wait()

	r := Report{Status: Healthy, Checks: checks}
	if len(r.Failed()) > 0 {
		r.Status = Degraded
	}
	return r
}
