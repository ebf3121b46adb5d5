package database

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func describe(c prometheus.Collector) []*prometheus.Desc {
	ch := make(chan *prometheus.Desc, 32)
	c.Describe(ch)
	close(ch)
	var out []*prometheus.Desc
	for d := range ch {
		out = append(out, d)
	}
	return out
}

func TestPoolStatsCollector_Describe(t *testing.T) {
	c := NewPoolStatsCollector(nil, "cart")
	descs := describe(c)
	require.Len(t, descs, 8)

	want := []string{
		"db_pool_acquired_connections",
		"db_pool_idle_connections",
		"db_pool_total_connections",
		"db_pool_max_connections",
		"db_pool_acquire_count_total",
		"db_pool_acquire_duration_seconds_total",
		"db_pool_empty_acquire_count_total",
		"db_pool_new_connections_total",
	}
	for i, name := range want {
		assert.True(t, strings.Contains(descs[i].String(), `"`+name+`"`), "descriptor %d: %s", i, descs[i])
	}
}

func TestPoolStatsCollector_CollectNilPool(t *testing.T) {
	c := NewPoolStatsCollector(nil, "cart")
	ch := make(chan prometheus.Metric, 32)
	c.Collect(ch)
	close(ch)
	assert.Empty(t, ch)
}

func TestRegisterPoolMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterPoolMetrics(reg, nil, "cart"))
	assert.Error(t, RegisterPoolMetrics(reg, nil, "cart"), "duplicate registration must fail")
}
