package server

import (
	"sync/atomic"
)

// Metrics 服务端运行期计数器；循环里写，admin HTTP 里读
type Metrics struct {
	TickCount    int64 // 30Hz 状态广播次数
	StepCount    int64 // 60Hz 步进次数
	FramesIn     int64 // 收到的帧
	FramesOut    int64 // 入队成功的帧
	DroppedSends int64 // 发送队列满被丢弃的帧
	Accepted     int64 // 接入的连接
	Timeouts     int64 // 超时断开的连接
	Disconnects  int64 // 所有断开，超时也计入
	Malformed    int64 // 无法解码的帧
	TotalTickNs  int64 // 广播累计耗时（纳秒）
}

func (m *Metrics) IncStep()         { atomic.AddInt64(&m.StepCount, 1) }
func (m *Metrics) IncFramesIn()     { atomic.AddInt64(&m.FramesIn, 1) }
func (m *Metrics) IncFramesOut()    { atomic.AddInt64(&m.FramesOut, 1) }
func (m *Metrics) IncDroppedSends() { atomic.AddInt64(&m.DroppedSends, 1) }
func (m *Metrics) IncAccepted()     { atomic.AddInt64(&m.Accepted, 1) }
func (m *Metrics) IncTimeouts()     { atomic.AddInt64(&m.Timeouts, 1) }
func (m *Metrics) IncDisconnects()  { atomic.AddInt64(&m.Disconnects, 1) }
func (m *Metrics) IncMalformed()    { atomic.AddInt64(&m.Malformed, 1) }
func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":    tick,
		"step_count":    atomic.LoadInt64(&m.StepCount),
		"frames_in":     atomic.LoadInt64(&m.FramesIn),
		"frames_out":    atomic.LoadInt64(&m.FramesOut),
		"dropped_sends": atomic.LoadInt64(&m.DroppedSends),
		"accepted":      atomic.LoadInt64(&m.Accepted),
		"timeouts":      atomic.LoadInt64(&m.Timeouts),
		"disconnects":   atomic.LoadInt64(&m.Disconnects),
		"malformed":     atomic.LoadInt64(&m.Malformed),
		"avg_tick_ms":   avgMs,
	}
}
