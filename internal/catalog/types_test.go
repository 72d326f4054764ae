package catalog

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateValueMetrics(t *testing.T) {
	tests := []struct {
		name        string
		price       float64
		lifespan    float64
		costPerYear float64
		costPerDay  float64
	}{
		{"cast iron skillet", 40, 25, 1.60, 0.00},
		{"chef knife", 150, 15, 10.00, 0.03},
		{"stand mixer", 450, 12, 37.50, 0.10},
		{"sub-year lifespan", 30, 0.5, 60.00, 0.16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := CalculateValueMetrics(tt.price, tt.lifespan)
			require.NoError(t, err)
			assert.InDelta(t, tt.costPerYear, m.CostPerYear, 0.005)
			assert.InDelta(t, tt.costPerDay, m.CostPerDay, 0.005)
		})
	}
}

func TestCalculateValueMetricsDerivation(t *testing.T) {
	// cost_per_year and cost_per_day must stay consistent with the inputs
	m, err := CalculateValueMetrics(199.99, 8)
	require.NoError(t, err)

	assert.InDelta(t, 199.99/8, m.CostPerYear, 0.005)
	assert.InDelta(t, (199.99/8)/365, m.CostPerDay, 0.005)

	// stored values are rounded to cents
	assert.Equal(t, m.CostPerYear, math.Round(m.CostPerYear*100)/100)
	assert.Equal(t, m.CostPerDay, math.Round(m.CostPerDay*100)/100)
}

func TestCalculateValueMetricsRejectsNonPositive(t *testing.T) {
	_, err := CalculateValueMetrics(0, 10)
	assert.Error(t, err)

	_, err = CalculateValueMetrics(-5, 10)
	assert.Error(t, err)

	_, err = CalculateValueMetrics(100, 0)
	assert.Error(t, err)

	_, err = CalculateValueMetrics(100, -1)
	assert.Error(t, err)
}

func TestTierValid(t *testing.T) {
	assert.True(t, TierGood.Valid())
	assert.True(t, TierBetter.Valid())
	assert.True(t, TierBest.Valid())
	assert.False(t, Tier("premium").Valid())
	assert.False(t, Tier("").Valid())
}

func TestTierCatalogAll(t *testing.T) {
	tc := TierCatalog{
		Good:   []Product{{Name: "a"}},
		Better: []Product{{Name: "b"}, {Name: "c"}},
		Best:   []Product{{Name: "d"}},
	}

	all := tc.All()
	require.Len(t, all, 4)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "d", all[3].Name)
	assert.False(t, tc.Empty())
	assert.True(t, (&TierCatalog{}).Empty())
}
