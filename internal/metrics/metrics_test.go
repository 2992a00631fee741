package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObservations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveToolCall("ocr", "ok", 120*time.Millisecond)
	m.ObserveToolCall("ocr", "ok", 80*time.Millisecond)
	m.ObserveToolCall("summarizer", "timeout", 8*time.Second)
	m.ObserveJob("done")
	m.ObserveIngest("doc_parse", "ok")
	m.ObserveChat("pass")
	m.CapturesTotal.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ToolCalls.WithLabelValues("ocr", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCalls.WithLabelValues("summarizer", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsProcessed.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Ingests.WithLabelValues("doc_parse", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChatTurns.WithLabelValues("pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CapturesTotal))
}

func TestFreshRegistryIsolation(t *testing.T) {
	a := New(prometheus.NewRegistry())
	b := New(prometheus.NewRegistry())
	a.ObserveJob("done")
	assert.Zero(t, testutil.ToFloat64(b.JobsProcessed.WithLabelValues("done")))
}
