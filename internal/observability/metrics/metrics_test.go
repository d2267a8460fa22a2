package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewChatMetrics(reg)

	m.ObserveTurn("user")
	m.ObserveTurn("user")
	m.ObserveTurn("bot")
	m.ObserveTransition("collecting_name", "collecting_phone")
	m.ObserveLLM("ok", 300*time.Millisecond)
	m.ObserveLeadSink("webhook", errors.New("502"))
	m.ObserveChatlog(nil)
	m.ObserveOutboxDelivery("lead.captured.v1", nil)
	m.SetActiveSessions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turnsTotal.WithLabelValues("user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.leadSinkTotal.WithLabelValues("webhook", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeSessions))

	families, err := reg.Gather()
	require.NoError(t, err)
	var histogram *dto.Histogram
	for _, fam := range families {
		if fam.GetName() == "atacado_chat_llm_latency_seconds" {
			histogram = fam.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, histogram)
	assert.Equal(t, uint64(1), histogram.GetSampleCount())
}

func TestChatMetricsNilSafe(t *testing.T) {
	var m *ChatMetrics
	m.ObserveTurn("bot")
	m.ObserveTransition("a", "b")
	m.ObserveLLM("fallback", time.Second)
	m.ObserveLeadSink("database", nil)
	m.ObserveChatlog(errors.New("x"))
	m.ObserveOutboxDelivery("t", nil)
	m.SetActiveSessions(1)
}
