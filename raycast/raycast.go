// Package raycast 基于 DDA 的逐列射线投射：输入位姿和网格，输出每一列的墙体投影。
// Engine 本身无状态，同样的输入总是得到同样的结果。
package raycast

import (
	"image/color"
	"math"

	"multicaster/vec"
)

const (
	// 射线分量为 0 时使用的增量距离，代替 1/0
	farDelta = 1e30
	// 垂直距离小于该值时按满屏高度绘制
	minPerpDist = 1e-6
)

// Side 命中的是哪一类网格线
type Side int

const (
	// SideHorizontal 沿 X 轴步进后命中（竖直的墙面），半亮度
	SideHorizontal Side = iota
	// SideVertical 沿 Y 轴步进后命中，原色
	SideVertical
)

func (s Side) String() string {
	if s == SideHorizontal {
		return "horizontal"
	}
	return "vertical"
}

// Grid 射线只需要按格子查询瓦片编码，越界应返回非 0
type Grid interface {
	At(x, y int) int
}

// Config 分辨率和墙体基础色，构造时传入
type Config struct {
	Width  int
	Height int
	Color  color.RGBA
}

// Pose 位置 + 朝向 + 相机平面
type Pose struct {
	Position  vec.Vec2
	Direction vec.Vec2
	Plane     vec.Vec2
}

// RayHit 单列结果
type RayHit struct {
	Distance  float64
	Side      Side
	DrawStart int
	DrawEnd   int
	Color     color.RGBA
	MapX      int
	MapY      int
	Steps     int
}

type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config { return e.cfg }

// Cast 每列一条射线，返回长度恰为 Width 的结果
func (e *Engine) Cast(pose Pose, grid Grid) []RayHit {
	hits := make([]RayHit, e.cfg.Width)
	for i := range hits {
		cameraX := 2*float64(i)/float64(e.cfg.Width) - 1
		ray := pose.Direction.Add(pose.Plane.Scale(cameraX))
		hits[i] = e.castRay(pose.Position, ray, grid)
	}
	return hits
}

func deltaDist(c float64) float64 {
	if c == 0 {
		return farDelta
	}
	return math.Abs(1 / c)
}

func (e *Engine) castRay(pos, ray vec.Vec2, grid Grid) RayHit {
	mapX, mapY := pos.Cell()
	deltaX, deltaY := deltaDist(ray.X), deltaDist(ray.Y)

	var stepX, stepY int
	var sideX, sideY float64
	if ray.X < 0 {
		stepX = -1
		sideX = (pos.X - float64(mapX)) * deltaX
	} else {
		stepX = 1
		sideX = (float64(mapX) + 1 - pos.X) * deltaX
	}
	if ray.Y < 0 {
		stepY = -1
		sideY = (pos.Y - float64(mapY)) * deltaY
	} else {
		stepY = 1
		sideY = (float64(mapY) + 1 - pos.Y) * deltaY
	}

	hit := RayHit{}
	for {
		if sideX < sideY {
			sideX += deltaX
			mapX += stepX
			hit.Side = SideHorizontal
		} else {
			sideY += deltaY
			mapY += stepY
			hit.Side = SideVertical
		}
		hit.Steps++
		if grid.At(mapX, mapY) > 0 {
			break
		}
	}

	// 到相机平面的垂直距离，避免鱼眼
	if hit.Side == SideHorizontal {
		hit.Distance = sideX - deltaX
	} else {
		hit.Distance = sideY - deltaY
	}
	hit.MapX, hit.MapY = mapX, mapY

	h := e.cfg.Height
	lineHeight := h
	if hit.Distance >= minPerpDist {
		lineHeight = int(math.Floor(float64(h) / hit.Distance))
	}
	hit.DrawStart = -lineHeight/2 + h/2
	if hit.DrawStart < 0 {
		hit.DrawStart = 0
	}
	hit.DrawEnd = lineHeight/2 + h/2
	if hit.DrawEnd >= h {
		hit.DrawEnd = h - 1
	}

	hit.Color = e.cfg.Color
	if hit.Side == SideHorizontal {
		hit.Color = halve(hit.Color)
	}
	return hit
}

func halve(c color.RGBA) color.RGBA {
	return color.RGBA{R: c.R / 2, G: c.G / 2, B: c.B / 2, A: c.A}
}
