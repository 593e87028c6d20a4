package database

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolStatsCollector_Describe(t *testing.T) {
	c := NewPoolStatsCollector(nil, "prostore")

	ch := make(chan *prometheus.Desc, 16)
	c.Describe(ch)
	close(ch)

	var names []string
	for d := range ch {
		names = append(names, d.String())
	}

	require.Len(t, names, 8)
	joined := strings.Join(names, "\n")
	assert.Contains(t, joined, "db_pool_acquired_connections")
	assert.Contains(t, joined, "db_pool_acquire_duration_seconds_total")
}

func TestPoolStatsCollector_NilPoolCollectsNothing(t *testing.T) {
	c := NewPoolStatsCollector(nil, "prostore")

	assert.Zero(t, testutil.CollectAndCount(c))
}

func TestRegisterPoolMetrics_DuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()

	require.NoError(t, RegisterPoolMetrics(reg, nil, "prostore"))
	assert.Error(t, RegisterPoolMetrics(reg, nil, "prostore"))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Zero(t, n)
}
