package eventbuilder

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventQueueBounded(t *testing.T) {
	q := NewEventQueue(2)
	first, second, third := &Event{ID: 1}, &Event{ID: 2}, &Event{ID: 3}

	assert.True(t, q.Push(first))
	assert.True(t, q.Push(second))
	assert.False(t, q.Push(third))
	assert.Equal(t, 2, q.Len())

	assert.Same(t, first, q.Pop())
	assert.True(t, q.Push(third))
	assert.Same(t, second, q.Pop())
	assert.Same(t, third, q.Pop())
	assert.Nil(t, q.Pop())
	assert.Equal(t, 2, q.HighWater())
}

func TestEventQueueUnboundedConcurrent(t *testing.T) {
	q := NewEventQueue(0)
	const producers, perProducer = 4, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.True(t, q.Push(NewEvent()))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Len())
	assert.Equal(t, producers*perProducer, q.Drain())
	assert.Equal(t, 0, q.Len())
}

func TestEventClearAndProgress(t *testing.T) {
	e := NewEvent()
	e.ID = 4
	e.AddHit(&Hit{Energy: 12})
	e.SetAnalysisProgress(CategoryEventLoader)
	e.SetAnalysisProgress(CategoryAspect)
	assert.True(t, e.HasAnalysisProgress(CategoryEventLoader|CategoryAspect))

	e.DataRead = true
	assert.False(t, e.Passes())
	e.Trigger = true
	assert.True(t, e.Passes())
	e.Veto = true
	assert.False(t, e.Passes())

	e.Clear()
	assert.Equal(t, Event{}, *e)
}
