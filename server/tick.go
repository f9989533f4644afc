package server

import "time"

// schedule 固定频率累加器：按经过的墙钟时间累加，满一个周期触发一次，余数留到下一轮
type schedule struct {
	interval time.Duration
	acc      time.Duration
}

func newSchedule(hz int) schedule {
	return schedule{interval: time.Second / time.Duration(hz)}
}

// advance 返回本轮应触发的次数
func (sc *schedule) advance(elapsed time.Duration) int {
	sc.acc += elapsed
	n := 0
	for sc.acc >= sc.interval {
		sc.acc -= sc.interval
		n++
	}
	return n
}

// run 循环协程：Stop 之前一直运行，每轮检查一次退出信号
func (s *Server) run() {
	defer s.wg.Done()
	defer s.shutdown()

	s.last = time.Now()
	for {
		select {
		case <-s.quit:
			return
		default:
		}
		if !s.iterate(time.Now()) {
			time.Sleep(s.cfg.LoopSleep)
		}
	}
}

// iterate 单轮：收包 -> 接入 -> 超时与清理 -> 两个固定频率调度 -> 发布状态。
// 返回本轮是否做了事情，没做事时调用方休眠。
func (s *Server) iterate(now time.Time) bool {
	worked := s.drain(now)
	if s.acceptOne(now) {
		worked = true
	}
	s.checkTimeouts(now)
	if s.sweep() {
		worked = true
	}

	elapsed := now.Sub(s.last)
	s.last = now
	for i := s.stepSched.advance(elapsed); i > 0; i-- {
		s.step()
	}
	for i := s.tickSched.advance(elapsed); i > 0; i-- {
		start := time.Now()
		s.tick()
		s.metrics.AddTick(time.Since(start).Nanoseconds())
	}

	s.publishStatus()
	return worked
}

// step 60Hz 固定步进，预留给物理积分
func (s *Server) step() {
	s.metrics.IncStep()
}

// tick 30Hz：全量位置表广播给所有就绪连接
func (s *Server) tick() {
	s.tickSeq++
	s.sendToAll(s.stateMessage())
}
