package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Submission(OutcomeSuccess)
	m.Submission(OutcomeSuccess)
	m.Check(OutcomeInUse)
	m.Upstream("create_attendance", 20*time.Millisecond)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Submissions.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Checks.WithLabelValues(OutcomeInUse)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.UpstreamDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Submission(OutcomeFailed)
		m.Check(OutcomeMissing)
		m.Upstream("check_number_card", time.Second)
		m.SessionOpened()
		m.SessionClosed()
	})
}
