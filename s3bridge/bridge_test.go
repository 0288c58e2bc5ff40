package s3bridge

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBridge_Do_collapsesConcurrentCalls(t *testing.T) {
	b := New()

	var calls int32
	hold := make(chan struct{})

	var wg, entered sync.WaitGroup
	results := make([]any, 4)
	entered.Add(len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entered.Done()
			v, err := b.Do("key", func() (any, error) {
				atomic.AddInt32(&calls, 1)
				<-hold
				return i, nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// release the in-flight call only after every goroutine has started and had time to join it: a caller that
	// arrives after the call completes starts a new one.
	entered.Wait()
	time.Sleep(50 * time.Millisecond)
	close(hold)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, results[0], v)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBridge_Do_distinctKeysDoNotCollapse(t *testing.T) {
	b := New()

	v1, err := b.Do("a", func() (any, error) { return 1, nil })
	assert.NoError(t, err)
	assert.Equal(t, 1, v1)

	v2, err := b.Do("b", func() (any, error) { return 2, nil })
	assert.NoError(t, err)
	assert.Equal(t, 2, v2)
}

func TestBridge_Default_returnsSameInstance(t *testing.T) {
	assert.Same(t, Default(), Default())
}
