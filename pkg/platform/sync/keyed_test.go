package sync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_LockUnlock(t *testing.T) {
	m := NewKeyedMutex()

	m.Lock("tenant-a")
	m.Unlock("tenant-a")

	m.Lock("")
	m.Unlock("")
}

func TestKeyedMutex_TryLock(t *testing.T) {
	m := NewKeyedMutex()

	assert.True(t, m.TryLock("tenant-a"), "first TryLock should acquire")
	assert.False(t, m.TryLock("tenant-a"), "second TryLock on the same key must fail while held")
	m.Unlock("tenant-a")
	assert.True(t, m.TryLock("tenant-a"), "TryLock should succeed after Unlock")
	m.Unlock("tenant-a")
}

func TestKeyedMutex_DistinctKeysNeverCollide(t *testing.T) {
	m := NewKeyedMutex()

	// Hold far more keys than any shard table would have slots for; every
	// acquisition must still succeed because locks are exact per key.
	keys := make([]string, 0, 256)
	for i := 0; i < 256; i++ {
		key := "tenant-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		keys = append(keys, key)
		assert.True(t, m.TryLock(key), "unrelated key %q must not be blocked", key)
	}
	for _, key := range keys {
		m.Unlock(key)
	}
	assert.Empty(t, m.locks, "released keys must not linger in the registry")
}

func TestKeyedMutex_ConcurrentSameKey(t *testing.T) {
	m := NewKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("tenant-a")
			counter++
			m.Unlock("tenant-a")
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter, "same-key locking must serialize increments")
}

func TestKeyedMutex_UnlockUnheldPanics(t *testing.T) {
	m := NewKeyedMutex()
	assert.Panics(t, func() { m.Unlock("never-locked") })
}
