package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserve(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAnswer(time.Now(), 5, nil)
	m.ObserveAnswer(time.Now(), 0, errors.New("boom"))
	m.ObserveIngest(3, 1, 4)
	m.ObserveRequest("/", 200, time.Millisecond)
	m.ObserveRequest("/", 502, time.Millisecond)
	m.ObserveBlank()

	if got := testutil.ToFloat64(m.AnswersTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok answers = %v", got)
	}
	if got := testutil.ToFloat64(m.AnswersTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("failed answers = %v", got)
	}
	if got := testutil.ToFloat64(m.IngestedChunksTotal); got != 4 {
		t.Errorf("chunks = %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/", "5xx")); got != 1 {
		t.Errorf("5xx = %v", got)
	}
	if got := testutil.ToFloat64(m.BlankQuestions); got != 1 {
		t.Errorf("blank = %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveAnswer(time.Now(), 1, nil)
	m.ObserveIngest(1, 0, 1)
	m.ObserveRequest("/", 200, 0)
	m.ObserveBlank()
}
