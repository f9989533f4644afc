package player

import "time"

// Counter 每累计满一秒刷新一次帧率
type Counter struct {
	frames  int
	elapsed time.Duration
	fps     float64
}

func (c *Counter) Tick(delta time.Duration) {
	c.frames++
	c.elapsed += delta
	if c.elapsed >= time.Second {
		c.fps = float64(c.frames) / c.elapsed.Seconds()
		c.frames = 0
		c.elapsed = 0
	}
}

func (c *Counter) FPS() float64 { return c.fps }
