package metrics

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

func TestMetricsRecord(t *testing.T) {
	m := New()

	m.ObserveSweep("deadline", time.Second, nil)
	m.ObserveSweep("deadline", time.Second, errors.New("boom"))
	m.Dispatched(OutcomeSent)
	m.Dispatched(OutcomeSent)
	m.Dispatched(OutcomeFailed)
	m.SendAttempt()
	m.Purged(3)
	m.Purged(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepRuns.WithLabelValues("deadline", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepRuns.WithLabelValues("deadline", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatches.WithLabelValues(OutcomeSent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sendAttempts))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.retentionDeleted))

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestWatchDB(t *testing.T) {
	m := New()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, m.WatchDB(db, "sqlite"))
	assert.Error(t, m.WatchDB(db, "sqlite"))

	n, err := testutil.GatherAndCount(m.Registry, "go_sql_open_connections")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSweep("retention", time.Second, nil)
		m.Dispatched(OutcomeGone)
		m.SendAttempt()
		m.Purged(10)
	})
}
