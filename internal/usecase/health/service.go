// Package health aggregates the readiness of the engine's collaborators.
package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded means queries are answered but without some optional part, e.g. semantic recall.
	Degraded Status = "degraded"
	// Unhealthy means the source store is unreachable and no module can be searched.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	CheckOK       CheckResult = "ok"
	CheckError    CheckResult = "error"
	CheckNotReady CheckResult = "not_ready"
)

// checkTimeout bounds each remote check.
const checkTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
	index     IndexChecker
}

// New creates a Service. embedding and index can be nil.
func New(db DBPinger, embedding EmbeddingChecker, index IndexChecker) *Service {
	return &Service{db: db, embedding: embedding, index: index}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, 3)
	status := Healthy

	if err := ping(ctx, s.db.Ping); err != nil {
		checks["database"] = CheckError
		status = Unhealthy
	} else {
		checks["database"] = CheckOK
	}

	if s.embedding != nil {
		if err := ping(ctx, s.embedding.HealthCheck); err != nil {
			checks["embedding"] = CheckError
			status = worst(status, Degraded)
		} else {
			checks["embedding"] = CheckOK
		}
	}

	if s.index != nil {
		if s.index.HasLiveIndex() {
			checks["index"] = CheckOK
		} else {
			checks["index"] = CheckNotReady
			status = worst(status, Degraded)
		}
	}

	return Report{Status: status, Checks: checks}
}

func ping(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return fn(ctx)
}

func worst(a, b Status) Status {
	rank := map[Status]int{Healthy: 0, Degraded: 1, Unhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
