package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counts(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.WorkspaceOpened()
	m.WorkspaceOpened()
	m.WorkspaceClosed()
	m.SnapshotApplied()
	m.StoreWrite("create", nil)
	m.StoreWrite("create", errors.New("denied"))
	m.StoreWrite("delete", nil)
	m.AuthAttempt("password", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkspacesActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsApplied))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreWrites.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreWrites.WithLabelValues("create", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthAttempts.WithLabelValues("password", "ok")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.WorkspaceOpened()
	m.WorkspaceClosed()
	m.SnapshotApplied()
	m.StoreWrite("create", nil)
	m.AuthAttempt("password", nil)
}
