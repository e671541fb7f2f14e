package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ProposalCreated("threshold")
		m.VoteCast("threshold", true, 10)
		m.ProposalFinalized("threshold")
		m.RebalanceExecuted("b1", false, 1, 1)
		m.Rejected("vote", "already_voted")
	})
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()
	m.VoteCast("assets", true, 30)
	m.VoteCast("assets", true, 12)
	m.VoteCast("assets", false, 5)
	m.RebalanceExecuted("b1", true, 50, 1000)
	m.Rejected("execute", "cooldown_active")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.votesCast.WithLabelValues("assets", "true")))
	assert.Equal(t, float64(47), testutil.ToFloat64(m.voteWeight.WithLabelValues("assets")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rebalances.WithLabelValues("slashed")))
	assert.Equal(t, float64(50), testutil.ToFloat64(m.rewardTokens.WithLabelValues("b1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rejections.WithLabelValues("execute", "cooldown_active")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.ProposalCreated("strategy")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `rebal_governance_proposals_created_total{kind="strategy"} 1`)
}
