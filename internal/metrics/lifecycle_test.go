package metrics

import (
	"testing"

	"github.com/RallyPointLabs/rallypoint/backend/internal/governance"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLifecycleMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	lifecycleMetrics := NewLifecycleMetrics(registry)

	lifecycleMetrics.RecordTransition(governance.StatusActive)
	lifecycleMetrics.RecordTransition(governance.StatusActive)
	lifecycleMetrics.RecordTransition(governance.StatusPassed)
	lifecycleMetrics.RecordTickFailure("execute")
	lifecycleMetrics.RecordTierBatch(10, 3)

	activated := testutil.ToFloat64(lifecycleMetrics.transitions.WithLabelValues("active"))
	if activated != 2 {
		t.Fatalf("expected 2 activations recorded, got %f", activated)
	}
	passed := testutil.ToFloat64(lifecycleMetrics.transitions.WithLabelValues("passed"))
	if passed != 1 {
		t.Fatalf("expected 1 pass recorded, got %f", passed)
	}
	failures := testutil.ToFloat64(lifecycleMetrics.tickFailures.WithLabelValues("execute"))
	if failures != 1 {
		t.Fatalf("expected 1 failure recorded, got %f", failures)
	}
	if checked := testutil.ToFloat64(lifecycleMetrics.tierChecked); checked != 10 {
		t.Fatalf("expected 10 squads checked, got %f", checked)
	}
	if updated := testutil.ToFloat64(lifecycleMetrics.tierUpdated); updated != 3 {
		t.Fatalf("expected 3 squads updated, got %f", updated)
	}
}

func TestLifecycleMetricsNilReceiverIsSafe(t *testing.T) {
	var lifecycleMetrics *LifecycleMetrics
	lifecycleMetrics.RecordTransition(governance.StatusActive)
	lifecycleMetrics.RecordTickFailure("decide")
	lifecycleMetrics.RecordTierBatch(1, 1)
}
