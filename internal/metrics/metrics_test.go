package metrics

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ftsync/internal/reconcile"
)

// value returns the value of the named metric with the given label pair,
// or -1 if it is absent.
func value(t *testing.T, m *Metrics, name, label, labelValue string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			matches := label == ""
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == labelValue {
					matches = true
				}
			}
			if !matches {
				continue
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				return float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return -1
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Outcome(nil))
	assert.Equal(t, OutcomePartial, Outcome(&reconcile.PassError{
		Failures: []*reconcile.FileError{{Path: "a.md", Op: "read", Err: fs.ErrPermission}},
	}))
	assert.Equal(t, OutcomeCanceled, Outcome(context.Canceled))
	assert.Equal(t, OutcomeFailed, Outcome(errors.New("disk full")))
}

func TestMetrics_Record(t *testing.T) {
	// Given: fresh metrics
	m := New()

	// When: recording a successful pass
	m.Record(&reconcile.Result{
		Scanned:  7,
		Added:    2,
		Updated:  1,
		Deleted:  3,
		Duration: 40 * time.Millisecond,
	}, nil)

	// Then: counters reflect it
	assert.Equal(t, 1.0, value(t, m, "ftsync_pass_total", "outcome", OutcomeSuccess))
	assert.Equal(t, 2.0, value(t, m, "ftsync_files_total", "transition", "added"))
	assert.Equal(t, 1.0, value(t, m, "ftsync_files_total", "transition", "updated"))
	assert.Equal(t, 3.0, value(t, m, "ftsync_files_total", "transition", "deleted"))
	assert.Equal(t, 1.0, value(t, m, "ftsync_pass_duration_seconds", "", ""))
	assert.Equal(t, 7.0, value(t, m, "ftsync_last_pass_scanned_files", "", ""))
	assert.Greater(t, value(t, m, "ftsync_last_pass_timestamp_seconds", "", ""), 0.0)
}

func TestMetrics_RecordFailure(t *testing.T) {
	m := New()

	m.Record(nil, errors.New("no root"))
	m.Record(&reconcile.Result{Scanned: 4}, errors.New("disk full"))

	assert.Equal(t, 2.0, value(t, m, "ftsync_pass_total", "outcome", OutcomeFailed))
	// a failed pass does not move the last-pass gauges
	assert.Equal(t, 0.0, value(t, m, "ftsync_last_pass_scanned_files", "", ""))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Record(&reconcile.Result{Added: 1}, nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `ftsync_pass_total{outcome="success"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
