package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New(WithLabels(map[string]string{"run": "test"}))

	m.Unit("done", time.Now())
	m.Unit("done", time.Now())
	m.Unit("conflict", time.Now())
	m.Extracted(1024, 2)
	m.ExtractFailed()
	m.Lookup("exact")
	m.Fetch(10, nil)
	m.Fetch(0, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.units.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.units.WithLabelValues("conflict")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.bytes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.warnings))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.packages.WithLabelValues("failed")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.fetchBytes))
	assert.Equal(t, 2, testutil.CollectAndCount(m.unitDuration))

	pth := filepath.Join(t.TempDir(), "pisi.prom")
	require.NoError(t, m.WriteToTextfile(pth))
	b, err := os.ReadFile(pth)
	require.NoError(t, err)
	assert.Contains(t, string(b), `pisi_units_total{run="test",state="done"} 2`)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Unit("done", time.Now())
		m.Extracted(1, 1)
		m.ExtractFailed()
		m.Lookup("none")
		m.Fetch(1, nil)
		assert.NoError(t, m.WriteToTextfile("/nonexistent/file"))
	})
	assert.Nil(t, m.Registry())
}
