package suspension

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_Nesting(t *testing.T) {
	tests := []struct {
		name     string
		depth    int
		resume   bool
		wantRuns int
	}{
		{name: "single scope with resume", depth: 1, resume: true, wantRuns: 1},
		{name: "nested scopes with resume", depth: 5, resume: true, wantRuns: 1},
		{name: "nested scopes without resume", depth: 3, resume: false, wantRuns: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := 0
			c := NewCounter(func() error {
				runs++
				return nil
			})

			handles := make([]*Handle, 0, tt.depth)
			for i := 0; i < tt.depth; i++ {
				handles = append(handles, c.Enter(tt.resume))
			}
			assert.Equal(t, tt.depth, c.Depth())

			for i := len(handles) - 1; i > 0; i-- {
				require.NoError(t, handles[i].Close())
				assert.True(t, c.Active(), "still suspended after %d releases", len(handles)-i)
			}
			assert.Zero(t, runs)

			require.NoError(t, handles[0].Close())
			assert.False(t, c.Active())
			assert.Equal(t, tt.wantRuns, runs)
		})
	}
}

func TestHandle_ReleaseOnce(t *testing.T) {
	runs := 0
	c := NewCounter(func() error {
		runs++
		return nil
	})

	outer := c.Enter(true)
	inner := c.Enter(true)

	require.NoError(t, inner.Close())
	require.NoError(t, inner.Close())
	assert.True(t, c.Active(), "double release of the inner handle must not drop the outer scope")
	assert.True(t, inner.Released())

	require.NoError(t, outer.Close())
	assert.Equal(t, 1, runs)
	assert.Zero(t, c.Depth())
}

func TestHandle_ReleaseOverridesDefault(t *testing.T) {
	runs := 0
	c := NewCounter(func() error {
		runs++
		return nil
	})

	h := c.Enter(true)
	require.NoError(t, h.Release(false))
	assert.Zero(t, runs)
}

func TestHandle_DeferredReleaseOnPanic(t *testing.T) {
	c := NewCounter(nil)

	func() {
		defer func() { _ = recover() }()
		h := c.Enter(false)
		defer h.Close()
		panic("boom")
	}()

	assert.False(t, c.Active())
}

func TestHandle_ResumeErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	c := NewCounter(func() error { return boom })

	err := c.Enter(true).Close()
	assert.ErrorIs(t, err, boom)
}

func TestCounter_Concurrent(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	c := NewCounter(func() error {
		mu.Lock()
		runs++
		mu.Unlock()
		return nil
	})

	hold := c.Enter(true)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := c.Enter(true)
			_ = h.Close()
		}()
	}
	wg.Wait()

	assert.Zero(t, runs)
	require.NoError(t, hold.Close())
	assert.Equal(t, 1, runs)
}
