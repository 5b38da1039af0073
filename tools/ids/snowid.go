// Package ids 进程内雪花ID：41bit 毫秒时间戳 | 10bit 节点 | 12bit 序列。
// 网关拿它发连接ID，Zone 拿它发消息ID，不依赖外部发号服务。
package ids

import (
	"strconv"
	"sync"
	"time"
)

type snowflake struct {
	mu     sync.Mutex
	epoch  int64 // 起始毫秒，压缩时间戳位宽
	node   int64 // 0~1023
	seq    int64 // 0~4095，同一毫秒内递增
	lastMS int64
}

var (
	defaultGen *snowflake
	once       sync.Once
)

func initDefault() {
	once.Do(func() {
		defaultGen = &snowflake{
			epoch: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
			node:  1,
		}
	})
}

// Generate 取下一个全局递增ID。
func Generate() int64 {
	initDefault()
	return defaultGen.next()
}

func GenerateString() string {
	return strconv.FormatInt(Generate(), 10)
}

// GenerateConnID 连接ID带 c- 前缀，日志里一眼能和用户ID区分开。
func GenerateConnID() string {
	return "c-" + GenerateString()
}

// SetNodeID 多实例部署时每个节点配不同值（0~1023），越界回落到 1。
func SetNodeID(nodeID int64) {
	initDefault()
	if nodeID < 0 || nodeID > 1023 {
		nodeID = 1
	}
	defaultGen.node = nodeID
}

func (g *snowflake) next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		now := time.Now().UnixMilli()
		if now < g.lastMS {
			// 时钟回拨：原地等到追平，不发可能重复的ID
			time.Sleep(time.Duration(g.lastMS-now) * time.Millisecond)
			continue
		}
		if now == g.lastMS {
			g.seq = (g.seq + 1) & 0xFFF
			if g.seq == 0 {
				// 本毫秒序列用尽，自旋到下一毫秒
				for now <= g.lastMS {
					now = time.Now().UnixMilli()
				}
			}
		} else {
			g.seq = 0
		}
		g.lastMS = now

		ts := (now - g.epoch) & ((1 << 41) - 1)
		return (ts << 22) | (g.node << 12) | g.seq
	}
}
