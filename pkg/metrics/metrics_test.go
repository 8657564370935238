package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAdapterCall(t *testing.T) {
	before := testutil.ToFloat64(AdapterCallsTotal.WithLabelValues("moz", "ok"))
	RecordAdapterCall("moz", "ok", 120*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(AdapterCallsTotal.WithLabelValues("moz", "ok")))

	skipped := testutil.ToFloat64(AdapterCallsTotal.WithLabelValues("ga4", "skipped"))
	RecordAdapterCall("ga4", "skipped", 0)
	assert.Equal(t, skipped+1, testutil.ToFloat64(AdapterCallsTotal.WithLabelValues("ga4", "skipped")))
}

func TestRecordWorkflow(t *testing.T) {
	before := testutil.ToFloat64(WorkflowTransitionsTotal.WithLabelValues("ready"))
	RecordTransition("ready")
	assert.Equal(t, before+1, testutil.ToFloat64(WorkflowTransitionsTotal.WithLabelValues("ready")))

	rejected := testutil.ToFloat64(SnapshotsRejectedTotal)
	RecordRejectedSnapshot()
	assert.Equal(t, rejected+1, testutil.ToFloat64(SnapshotsRejectedTotal))
}
