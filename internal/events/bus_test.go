package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishInvokesSubscribedHandlers(t *testing.T) {
	b := NewBus()

	var got []interface{}
	b.Subscribe("signal.AAPL", func(topic string, payload interface{}) {
		got = append(got, payload)
	})

	b.Publish("signal.AAPL", "first")
	b.Publish("signal.AAPL", "second")

	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0])
	assert.Equal(t, "second", got[1])
}

func TestPublishIgnoresOtherTopics(t *testing.T) {
	b := NewBus()

	called := false
	b.Subscribe("signal.AAPL", func(topic string, payload interface{}) {
		called = true
	})

	b.Publish("signal.MSFT", "irrelevant")

	assert.False(t, called)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()

	count := 0
	unsubscribe := b.Subscribe("regime.AAPL", func(topic string, payload interface{}) {
		count++
	})

	b.Publish("regime.AAPL", nil)
	unsubscribe()
	b.Publish("regime.AAPL", nil)

	assert.Equal(t, 1, count)
}

func TestBusIsSafeForConcurrentPublish(t *testing.T) {
	b := NewBus()

	var mu sync.Mutex
	var total int
	b.Subscribe("tick", func(topic string, payload interface{}) {
		mu.Lock()
		total++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish("tick", nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, total)
}
