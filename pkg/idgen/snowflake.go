// Package idgen Snowflake 实例ID生成
//
// 每个被验证对象在创建时分配一个ID，用于日志字段与事件中的 InstanceID。
// ID结构：时间戳(41位) | 数据中心ID(5位) | 工作机器ID(5位) | 序列号(12位)
package idgen

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// Epoch 起始时间戳 (2023-01-01 00:00:00 UTC)
	Epoch int64 = 1672502400000

	WorkerIDBits     = 5
	DatacenterIDBits = 5
	SequenceBits     = 12

	MaxWorkerID     = -1 ^ (-1 << WorkerIDBits)     // 31
	MaxDatacenterID = -1 ^ (-1 << DatacenterIDBits) // 31
	MaxSequence     = -1 ^ (-1 << SequenceBits)     // 4095

	WorkerIDShift     = SequenceBits
	DatacenterIDShift = SequenceBits + WorkerIDBits
	TimestampShift    = SequenceBits + WorkerIDBits + DatacenterIDBits

	// 时钟回拨容忍时间（毫秒），范围内等待追上，超出直接报错
	clockBackwardTolerance = 5

	// 等待下一毫秒时的休眠时间
	sleepDuration = 100 * time.Microsecond
)

var (
	// ErrInvalidWorkerID 工作机器ID超出有效范围
	ErrInvalidWorkerID = errors.New("invalid worker id: must be between 0 and 31")

	// ErrInvalidDatacenterID 数据中心ID超出有效范围
	ErrInvalidDatacenterID = errors.New("invalid datacenter id: must be between 0 and 31")

	// ErrClockMovedBackwards 检测到时钟回拨
	ErrClockMovedBackwards = errors.New("clock moved backwards: refusing to generate id")

	// ErrInvalidID 无效的ID
	ErrInvalidID = errors.New("invalid snowflake id: id must be positive")
)

// Info ID解析结果
type Info struct {
	Timestamp    int64 // 毫秒时间戳
	DatacenterID int64
	WorkerID     int64
	Sequence     int64
}

// Time 生成时间
func (i Info) Time() time.Time {
	return time.UnixMilli(i.Timestamp)
}

// Generator Snowflake ID生成器，线程安全
type Generator struct {
	mu sync.Mutex

	lastTimestamp   int64
	sequence        int64
	precomputedPart int64 // datacenterID 与 workerID 部分，生命周期内不变

	now    func() int64
	logger *zap.Logger
}

// New 创建生成器
func New(datacenterID, workerID int64, logger *zap.Logger) (*Generator, error) {
	if datacenterID < 0 || datacenterID > MaxDatacenterID {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDatacenterID, datacenterID)
	}
	if workerID < 0 || workerID > MaxWorkerID {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkerID, workerID)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		lastTimestamp:   -1,
		sequence:        -1,
		precomputedPart: (datacenterID << DatacenterIDShift) | (workerID << WorkerIDShift),
		now:             func() int64 { return time.Now().UnixMilli() },
		logger:          logger,
	}, nil
}

// NextID 生成下一个唯一ID
func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	timestamp := g.now()

	if timestamp < g.lastTimestamp {
		offset := g.lastTimestamp - timestamp
		if offset > clockBackwardTolerance {
			g.logger.Error("clock moved backwards",
				zap.Int64("last_timestamp", g.lastTimestamp),
				zap.Int64("current_timestamp", timestamp))
			return 0, fmt.Errorf("%w: detected backward drift of %d ms", ErrClockMovedBackwards, offset)
		}
		// 容忍范围内等待时钟追上
		timestamp = g.waitUntil(g.lastTimestamp)
	}

	if timestamp == g.lastTimestamp {
		if g.sequence >= MaxSequence {
			// 序列号耗尽，等待下一毫秒
			timestamp = g.waitUntil(g.lastTimestamp + 1)
			g.sequence = -1
			g.lastTimestamp = timestamp
		}
		g.sequence++
	} else {
		g.sequence = 0
		g.lastTimestamp = timestamp
	}

	return ((timestamp - Epoch) << TimestampShift) | g.precomputedPart | g.sequence, nil
}

// Parse 解析ID
func Parse(id int64) (Info, error) {
	if id <= 0 {
		return Info{}, fmt.Errorf("%w: got %d", ErrInvalidID, id)
	}
	return Info{
		Timestamp:    (id >> TimestampShift) + Epoch,
		DatacenterID: (id >> DatacenterIDShift) & MaxDatacenterID,
		WorkerID:     (id >> WorkerIDShift) & MaxWorkerID,
		Sequence:     id & MaxSequence,
	}, nil
}

// waitUntil 等待直到时间戳不小于 target
func (g *Generator) waitUntil(target int64) int64 {
	timestamp := g.now()
	for timestamp < target {
		time.Sleep(sleepDuration)
		timestamp = g.now()
	}
	return timestamp
}
