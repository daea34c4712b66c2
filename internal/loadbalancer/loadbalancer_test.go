package loadbalancer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAcquireIncrementsLoad(t *testing.T) {
	b := New(2)
	assert.Equal(t, uint32(0), b.GetAgentLoad("a1"))

	release := b.Acquire("a1")
	assert.Equal(t, uint32(1), b.GetAgentLoad("a1"))

	release()
	assert.Equal(t, uint32(0), b.GetAgentLoad("a1"))
}

func TestAtCapacity(t *testing.T) {
	b := New(2)
	r1 := b.Acquire("a1")
	assert.False(t, b.AtCapacity("a1"))
	r2 := b.Acquire("a1")
	assert.True(t, b.AtCapacity("a1"))
	r1()
	assert.False(t, b.AtCapacity("a1"))
	r2()
}

func TestReleaseIsIdempotent(t *testing.T) {
	b := New(1)
	release := b.Acquire("a1")
	release()
	release()
	assert.Equal(t, uint32(0), b.GetAgentLoad("a1"))
}

func TestConcurrentAcquireRelease(t *testing.T) {
	b := New(1000)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := b.Acquire("a1")
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, uint32(0), b.GetAgentLoad("a1"))
}

func TestPerAgentIsolation(t *testing.T) {
	b := New(1)
	r1 := b.Acquire("a1")
	assert.False(t, b.AtCapacity("a2"))
	r1()
}
