package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cobalt/pkg/cobalterr"
)

func testRegistry() *Registry {
	return New([]Customer{
		{
			ID:   1,
			Name: "acme",
			Projects: []Project{
				{
					ID:   10,
					Name: "widgets",
					Metrics: []Metric{
						{ID: 100, Type: EventOccurred, Reports: []Report{{ID: 1000, Type: SimpleOccurrenceCount}}},
					},
				},
			},
		},
	})
}

func TestRegistryLookupsSucceed(t *testing.T) {
	r := testRegistry()

	c, err := r.GetCustomer(1)
	require.NoError(t, err)
	assert.Equal(t, "acme", c.Name)

	p, err := r.GetProjectByName(1, "widgets")
	require.NoError(t, err)
	assert.Equal(t, uint32(10), p.ID)

	m, err := r.GetMetric(1, 10, 100)
	require.NoError(t, err)
	assert.Equal(t, EventOccurred, m.Type)

	rep, err := r.GetReport(1, 10, 100, 1000)
	require.NoError(t, err)
	assert.Equal(t, SimpleOccurrenceCount, rep.Type)
}

func TestRegistryLookupsNotFound(t *testing.T) {
	r := testRegistry()

	_, err := r.GetCustomer(99)
	assert.True(t, cobalterr.IsNotFound(err))

	_, err = r.GetProject(1, 99)
	assert.True(t, cobalterr.IsNotFound(err))

	_, err = r.GetMetric(1, 10, 99)
	assert.True(t, cobalterr.IsNotFound(err))
}

func TestIterMetricsReturnsCopy(t *testing.T) {
	r := testRegistry()
	metrics, err := r.IterMetrics(1, 10)
	require.NoError(t, err)
	require.Len(t, metrics, 1)

	metrics[0].ID = 999
	m, err := r.GetMetric(1, 10, 100)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), m.ID, "mutating the returned slice must not affect the registry")
}
