package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordMutation("add_expense", nil)
	m.RecordNoop("delete_expense")
	m.ObserveStorage("save", time.Millisecond, errors.New("boom"))
	m.RecordEvent("expense_added", nil)
	m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	m.RecordLogin(true)
	m.RecordDegradedLoad()
	m.SetMonthsTracked(3)
	m.AddExpensesRecorded(2)
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()

	m.RecordMutation("add_expense", nil)
	m.RecordMutation("add_expense", nil)
	m.RecordMutation("add_expense", errors.New("no balance"))
	m.RecordNoop("delete_expense")
	m.ObserveStorage("save", time.Millisecond, errors.New("disk full"))
	m.RecordDegradedLoad()
	m.SetMonthsTracked(4)
	m.AddExpensesRecorded(3)
	m.AddExpensesRecorded(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.mutationsTotal.WithLabelValues("add_expense", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutationsTotal.WithLabelValues("add_expense", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutationsTotal.WithLabelValues("delete_expense", "noop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageErrors.WithLabelValues("save")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.degradedLoads))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.monthsTracked))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.expensesRecorded))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordLogin(false)
	m.ObserveHTTP("GET", "/", 200, 3*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `household_login_attempts_total{result="failure"} 1`), text)
	assert.True(t, strings.Contains(text, `household_http_requests_total{code="200",method="GET",route="/"} 1`))
	assert.True(t, strings.Contains(text, "go_goroutines"))
}

func TestNewUsesIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordLogin(true)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.loginAttempts.WithLabelValues("success")))
}
