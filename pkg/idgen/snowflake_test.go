package idgen

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew_InvalidIDs 测试非法的数据中心与机器ID
func TestNew_InvalidIDs(t *testing.T) {
	tests := []struct {
		name         string
		datacenterID int64
		workerID     int64
		wantErr      error
	}{
		{"datacenter negative", -1, 0, ErrInvalidDatacenterID},
		{"datacenter too large", MaxDatacenterID + 1, 0, ErrInvalidDatacenterID},
		{"worker negative", 0, -1, ErrInvalidWorkerID},
		{"worker too large", 0, MaxWorkerID + 1, ErrInvalidWorkerID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.datacenterID, tt.workerID, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// TestNextID_ParseRoundTrip 测试生成的ID可以解析回各部分
func TestNextID_ParseRoundTrip(t *testing.T) {
	g, err := New(3, 7, nil)
	require.NoError(t, err)
	g.now = func() int64 { return Epoch + 1000 }

	first, err := g.NextID()
	require.NoError(t, err)
	second, err := g.NextID()
	require.NoError(t, err)
	assert.Greater(t, second, first)

	info, err := Parse(second)
	require.NoError(t, err)
	assert.Equal(t, Epoch+1000, info.Timestamp)
	assert.Equal(t, int64(3), info.DatacenterID)
	assert.Equal(t, int64(7), info.WorkerID)
	assert.Equal(t, int64(1), info.Sequence)

	_, err = Parse(0)
	assert.ErrorIs(t, err, ErrInvalidID)
}

// TestNextID_SequenceOverflow 测试序列号耗尽后进入下一毫秒
func TestNextID_SequenceOverflow(t *testing.T) {
	g, err := New(0, 0, nil)
	require.NoError(t, err)

	// 前 MaxSequence+2 次读取停留在同一毫秒，之后时钟前进
	var calls atomic.Int64
	g.now = func() int64 {
		if calls.Add(1) <= MaxSequence+2 {
			return Epoch + 10
		}
		return Epoch + 11
	}

	for i := 0; i <= MaxSequence; i++ {
		_, err := g.NextID()
		require.NoError(t, err)
	}

	id, err := g.NextID()
	require.NoError(t, err)

	info, err := Parse(id)
	require.NoError(t, err)
	assert.Equal(t, Epoch+11, info.Timestamp)
	assert.Equal(t, int64(0), info.Sequence)
}

// TestNextID_ClockBackward 测试超出容忍范围的时钟回拨
func TestNextID_ClockBackward(t *testing.T) {
	g, err := New(0, 0, nil)
	require.NoError(t, err)

	now := Epoch + 5000
	g.now = func() int64 { return now }
	_, err = g.NextID()
	require.NoError(t, err)

	now -= clockBackwardTolerance + 1
	_, err = g.NextID()
	assert.ErrorIs(t, err, ErrClockMovedBackwards)
}

// TestNextID_Concurrent 测试并发生成不重复
func TestNextID_Concurrent(t *testing.T) {
	g, err := New(1, 1, nil)
	require.NoError(t, err)

	const goroutines, perGoroutine = 8, 500
	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{}, goroutines*perGoroutine)
		wg   sync.WaitGroup
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id, err := g.NextID()
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
}
