package entropy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntRangeInclusive(t *testing.T) {
	s := New(3)
	seen := map[int]bool{}
	for i := 0; i < 2000; i++ {
		v := s.IntRange(10, 15)
		assert.GreaterOrEqual(t, v, 10)
		assert.LessOrEqual(t, v, 15)
		seen[v] = true
	}
	assert.Len(t, seen, 6)
	assert.Equal(t, 4, s.IntRange(4, 4))
	assert.Equal(t, 4, s.IntRange(4, 1))
}

func TestUniformBounds(t *testing.T) {
	s := New(8)
	for i := 0; i < 1000; i++ {
		v := s.Uniform(0.5, 1)
		assert.GreaterOrEqual(t, v, 0.5)
		assert.Less(t, v, 1.0)
	}
}

func TestStreamsReproducible(t *testing.T) {
	a, b := New(42), New(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Float(), b.Float())
	}
	assert.Equal(t, int64(42), a.Seed())
}

func TestDerive(t *testing.T) {
	seen := map[int64]bool{}
	for i := 0; i < 100; i++ {
		s := Derive(7, i)
		assert.Positive(t, s)
		assert.False(t, seen[s])
		seen[s] = true
		assert.Equal(t, s, Derive(7, i))
	}
	assert.NotEqual(t, Derive(7, 0), Derive(8, 0))
}

func TestCryptoSeedNonZero(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.Positive(t, CryptoSeed())
	}
}
