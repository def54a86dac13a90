package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStoreInsertFind(t *testing.T) {
	s := newTokenStore()
	toks := make([]*token, 10)
	for i := range toks {
		toks[i] = &token{totCost: float64(i)}
		s.insert(int32(i*7), toks[i])
	}
	for i := range toks {
		e := s.find(int32(i * 7))
		require.NotNil(t, e)
		assert.Same(t, toks[i], e.val)
	}
	assert.Nil(t, s.find(999))
}

func TestTokenStoreClearDetaches(t *testing.T) {
	s := newTokenStore()
	s.insert(1, &token{})
	s.insert(2, &token{})
	s.insert(3, &token{})

	seen := map[int32]bool{}
	for e := s.clear(); e != nil; {
		next := e.tail
		seen[e.key] = true
		s.delete(e)
		e = next
	}
	assert.Equal(t, map[int32]bool{1: true, 2: true, 3: true}, seen)
	assert.Nil(t, s.find(1))
	assert.Nil(t, s.getList())
}

func TestTokenStoreFreelistReuse(t *testing.T) {
	s := newTokenStore()
	s.insert(1, &token{})
	e := s.clear()
	require.Nil(t, e.tail)
	s.delete(e)

	// the recycled entry must come back clean
	s.insert(2, &token{totCost: 5})
	got := s.find(2)
	require.NotNil(t, got)
	assert.Same(t, e, got)
	assert.Equal(t, int32(2), got.key)
}

func TestTokenStoreSetSize(t *testing.T) {
	s := newTokenStore()
	s.setSize(100)
	assert.Equal(t, 128, s.size())
	// shrinking is a no-op
	s.setSize(2)
	assert.Equal(t, 128, s.size())

	for i := int32(0); i < 100; i++ {
		s.insert(i, &token{})
	}
	for i := int32(0); i < 100; i++ {
		require.NotNil(t, s.find(i), "key %d", i)
	}
	assert.Panics(t, func() { s.setSize(256) })
}

func TestTokenStoreCollidingKeys(t *testing.T) {
	s := newTokenStore()
	s.setSize(4)
	// more keys than distinct slots forces linear probing
	keys := []int32{0, 4, 8, 12}
	for _, k := range keys {
		s.insert(k, &token{totCost: float64(k)})
	}
	for _, k := range keys {
		e := s.find(k)
		require.NotNil(t, e)
		assert.Equal(t, float64(k), e.val.totCost)
	}
}
