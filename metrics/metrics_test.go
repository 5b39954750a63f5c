package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg).(*promRecorder)

	m.RecordRequest(KindStatic, OutcomeOK, time.Millisecond)
	m.RecordRequest(KindStatic, OutcomeOK, time.Millisecond)
	m.RecordRequest(KindDynamic, OutcomeError, time.Millisecond)
	m.SetListeners(3)
	m.RecordReconcile(nil)
	m.RecordReconcile(errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues(KindStatic, OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues(KindDynamic, OutcomeError)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.listeners))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcileTotal.WithLabelValues("error")))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tftpboot_listeners 3"))
}

func TestNoop(t *testing.T) {
	m := NewNoop()
	m.RecordRequest(KindStatic, OutcomeOK, 0)
	m.SetListeners(1)
	m.RecordReconcile(nil)
}
