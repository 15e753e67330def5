package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockSerializesSameKey(t *testing.T) {
	kl := New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kl.Lock("same")
			counter++
			kl.Unlock("same")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestEntriesReclaimed(t *testing.T) {
	kl := New()
	kl.Lock("a")
	kl.Unlock("a")

	kl.mu.Lock()
	defer kl.mu.Unlock()
	assert.Empty(t, kl.entries)
}

func TestIndependentKeysDoNotBlock(t *testing.T) {
	kl := New()
	kl.Lock("a")
	done := make(chan struct{})
	go func() {
		kl.Lock("b")
		kl.Unlock("b")
		close(done)
	}()
	<-done
	kl.Unlock("a")
}
