//go:build linux

package shm

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectGauges(t *testing.T, c prometheus.Collector) map[string]float64 {
	metrics := make(chan prometheus.Metric, 8)
	c.Collect(metrics)
	close(metrics)
	out := make(map[string]float64)
	for m := range metrics {
		var pb dto.Metric
		require.NoError(t, m.Write(&pb))
		out[m.Desc().String()] = pb.GetGauge().GetValue()
		for _, lp := range pb.GetLabel() {
			if lp.GetName() == "path" {
				out["path="+lp.GetValue()]++
			}
		}
	}
	return out
}

func TestCollector(t *testing.T) {
	ch := openTemp(t, 128)
	c := NewCollector(ch, prometheus.Labels{"role": "test"})

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	assert.Equal(t, 4, testutil.CollectAndCount(c))

	require.NoError(t, ch.Write([]byte("hello")))
	values := collectGauges(t, c)
	assert.Equal(t, 4.0, values["path="+ch.Path()])

	byName := func(name string) float64 {
		mfs, err := reg.Gather()
		require.NoError(t, err)
		for _, mf := range mfs {
			if mf.GetName() == name {
				return mf.GetMetric()[0].GetGauge().GetValue()
			}
		}
		t.Fatalf("metric %s not gathered", name)
		return 0
	}
	assert.Equal(t, 128.0, byName("shmchan_capacity_bytes"))
	assert.Equal(t, 9.0, byName("shmchan_used_bytes"))
	assert.Equal(t, 118.0, byName("shmchan_free_bytes"))
	assert.Equal(t, 0.0, byName("shmchan_closed"))

	require.NoError(t, ch.Close())
	assert.Equal(t, 1.0, byName("shmchan_closed"))

	require.NoError(t, ch.Detach())
	assert.Equal(t, 0, testutil.CollectAndCount(c))
}
