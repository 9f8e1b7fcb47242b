package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	relationMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "familytree_relation_mutations_total",
		Help: "Relationship mutations by operation and result",
	}, []string{"operation", "result"})

	validationIssues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "familytree_validation_issues_total",
		Help: "Validation issues raised by code and severity",
	}, []string{"code", "severity"})

	reciprocalFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "familytree_reciprocal_failures_total",
		Help: "Best-effort reciprocal maintenance failures by operation",
	}, []string{"operation"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "familytree_relation_operation_duration_seconds",
		Help:    "Duration of relationship engine operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// observe records the outcome of one engine operation.
func observe(operation string, start time.Time, err error) {
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	relationMutations.WithLabelValues(operation, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch err.(type) {
	case nil:
		return "success"
	case *ValidationError:
		return "rejected"
	case *StoreError:
		return "store_error"
	default:
		return "error"
	}
}

func countIssues(result *ValidationResult) {
	for _, group := range [][]Issue{result.Errors, result.Warnings, result.Suggestions} {
		for _, issue := range group {
			validationIssues.WithLabelValues(string(issue.Code), string(issue.Severity)).Inc()
		}
	}
}
