package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates a failing dependency while the index still serves.
	Degraded Status = "degraded"
	// Unhealthy indicates that no index can be served.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names used as Report.Checks keys.
const (
	ComponentIndex     = "index"
	ComponentEmbedding = "embedding"
	ComponentCache     = "cache"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	index     IndexChecker
	embedding EmbeddingChecker
	cache     CachePinger
}

// New creates a Service. embedding and cache can be nil.
func New(index IndexChecker, embedding EmbeddingChecker, cache CachePinger) *Service {
	return &Service{index: index, embedding: embedding, cache: cache}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks[ComponentIndex] = result(s.index.HealthCheck(ctx))
	if s.embedding != nil {
		checks[ComponentEmbedding] = result(s.embedding.HealthCheck(ctx))
	}
	if s.cache != nil {
		checks[ComponentCache] = result(s.cache.Ping(ctx))
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks[ComponentIndex] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
