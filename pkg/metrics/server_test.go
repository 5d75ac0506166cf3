package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	status PartitionStatus
	err    error
}

func (f *fakeSource) Status(context.Context) (PartitionStatus, error) {
	return f.status, f.err
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func health(t *testing.T, s *Server) (int, healthReport) {
	t.Helper()
	code, body := get(t, s.Handler(), "/healthz")
	var report healthReport
	require.NoError(t, json.Unmarshal([]byte(body), &report), body)
	return code, report
}

func TestServerMetricsAndIndex(t *testing.T) {
	InitRegistry()
	require.True(t, IsEnabled())

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dittodir_test_events_total",
		Help: "Events seen by the <server> test",
	}, []string{"kind"})
	require.NoError(t, GetRegistry().Register(counter))
	t.Cleanup(func() { GetRegistry().Unregister(counter) })
	counter.WithLabelValues("a").Inc()
	counter.WithLabelValues("b").Inc()

	s := NewServer(ServerConfig{})
	assert.Equal(t, 9090, s.Port())

	code, body := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `dittodir_test_events_total{kind="a"} 1`)

	code, body = get(t, s.Handler(), "/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "<code>dittodir_test_events_total</code>")
	assert.Contains(t, body, "<td>counter</td><td>2</td>")
	assert.Contains(t, body, "Events seen by the &lt;server&gt; test", "help text is escaped")

	code, _ = get(t, s.Handler(), "/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestFamilies(t *testing.T) {
	InitRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dittodir_test_level", Help: "Level"})
	require.NoError(t, GetRegistry().Register(gauge))
	t.Cleanup(func() { GetRegistry().Unregister(gauge) })

	families, err := Families()
	require.NoError(t, err)

	var found *Family
	for i := range families {
		if families[i].Name == "dittodir_test_level" {
			found = &families[i]
		}
		if i > 0 {
			assert.Less(t, families[i-1].Name, families[i].Name)
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, Family{Name: "dittodir_test_level", Type: "gauge", Help: "Level", Series: 1}, *found)
}

func TestServerHealth(t *testing.T) {
	s := NewServer(ServerConfig{})

	t.Run("no partition", func(t *testing.T) {
		code, report := health(t, s)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unavailable", report.Status)
		assert.Nil(t, report.Partition)
	})

	src := &fakeSource{status: PartitionStatus{ID: "userRoot", Suffix: "dc=example,dc=com"}}
	s.SetStatusSource(src)

	t.Run("not open", func(t *testing.T) {
		code, report := health(t, s)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "partition is not open", report.Error)
		require.NotNil(t, report.Partition)
		assert.Equal(t, "userRoot", report.Partition.ID)
	})

	t.Run("open", func(t *testing.T) {
		src.status.Open = true
		src.status.Entries = 3
		src.status.StoreBytes = 512

		code, report := health(t, s)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", report.Status)
		assert.Empty(t, report.Error)
		assert.Equal(t, src.status, *report.Partition)
	})

	t.Run("status error", func(t *testing.T) {
		src.err = errors.New("disk gone")

		code, report := health(t, s)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "disk gone", report.Error)
	})
}

func TestServerStopIsIdempotent(t *testing.T) {
	s := NewServer(ServerConfig{Port: 19091})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Start(ctx))
	assert.NoError(t, s.Stop(context.Background()))
}
