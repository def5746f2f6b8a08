package csync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	m := NewMap[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)

	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	m.Delete("a")
	m.Delete("missing")
	_, ok = m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())
}

func TestMap_RangeMayMutate(t *testing.T) {
	m := NewMap[int, int]()
	for i := 0; i < 10; i++ {
		m.Set(i, i)
	}

	visited := 0
	m.Range(func(k, _ int) bool {
		m.Delete(k)
		visited++
		return true
	})

	assert.Equal(t, 10, visited)
	assert.Equal(t, 0, m.Len())
}

func TestSlice_ConcurrentAppend(t *testing.T) {
	s := NewSlice[int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Append(i)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, s.Len())
	assert.Len(t, s.ToSlice(), 50)

	_, ok := s.Get(50)
	assert.False(t, ok)
	_, ok = s.Last()
	assert.True(t, ok)
}
