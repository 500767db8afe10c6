package ring_test

import (
	"testing"

	"github.com/ostvolt/coolantctl/internal/ring"
	"github.com/stretchr/testify/assert"
)

func TestPushAndSnapshot(t *testing.T) {
	r := ring.New[int](4)
	assert.Nil(t, r.Snapshot(), "Expected empty snapshot")

	r.Push(1)
	r.Push(2)
	r.Push(3)

	assert.Equal(t, []int{1, 2, 3}, r.Snapshot())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 4, r.Cap())
}

func TestEvictsOldestWhenFull(t *testing.T) {
	r := ring.New[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	assert.Equal(t, []int{3, 4, 5}, r.Snapshot(), "Expected the two oldest entries evicted")
	assert.Equal(t, 3, r.Len())
}

func TestRecent(t *testing.T) {
	r := ring.New[int](5)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	assert.Equal(t, []int{4, 5}, r.Recent(2))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, r.Recent(10), "Expected Recent clamped to length")
	assert.Nil(t, r.Recent(0))
}

func TestRecentAfterWrap(t *testing.T) {
	r := ring.New[int](3)
	for i := 1; i <= 7; i++ {
		r.Push(i)
	}

	assert.Equal(t, []int{6, 7}, r.Recent(2))
	assert.Equal(t, []int{5, 6, 7}, r.Snapshot())
}
