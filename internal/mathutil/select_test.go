package mathutil

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNthElement(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(64)
		orig := make([]float64, n)
		for i := range orig {
			orig[i] = rng.NormFloat64()
		}
		want := append([]float64(nil), orig...)
		sort.Float64s(want)

		k := rng.Intn(n)
		a := append([]float64(nil), orig...)
		NthElement(a, k)

		assert.Equal(t, want[k], a[k])
		for i := 0; i < k; i++ {
			assert.LessOrEqual(t, a[i], a[k])
		}
		for i := k + 1; i < n; i++ {
			assert.GreaterOrEqual(t, a[i], a[k])
		}
	}
}

func TestNthElementSmall(t *testing.T) {
	a := []float64{2, 1}
	NthElement(a, 0)
	assert.Equal(t, 1.0, a[0])

	a = []float64{2, 1}
	NthElement(a, 1)
	assert.Equal(t, 2.0, a[1])

	a = []float64{5}
	NthElement(a, 0)
	assert.Equal(t, 5.0, a[0])

	// out-of-range n is a no-op
	a = []float64{3, 1, 2}
	NthElement(a, 3)
	assert.Equal(t, []float64{3, 1, 2}, a)
}

func TestNthElementDuplicates(t *testing.T) {
	a := []float64{4, 4, 4, 1, 4, 4}
	NthElement(a, 0)
	assert.Equal(t, 1.0, a[0])
}

func TestApproxEqual(t *testing.T) {
	assert.True(t, ApproxEqual(1.0, 1.0+1e-9, 1e-6))
	assert.False(t, ApproxEqual(1.0, 1.01, 1e-6))
	inf := math.Inf(1)
	assert.True(t, ApproxEqual(inf, inf, 1e-6))
	assert.True(t, ApproxEqual(-inf, -inf, 1e-6))
	assert.False(t, ApproxEqual(inf, -inf, 1e-6))
	assert.False(t, ApproxEqual(inf, 1.0, 1e-6))
}
