// Package vec 二维向量运算，射线与移动共用
package vec

import "math"

// Vec2 二维浮点向量
type Vec2 struct {
	X float64
	Y float64
}

func New(x, y float64) Vec2 { return Vec2{X: x, Y: y} }

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

func (v Vec2) Scale(s float64) Vec2 { return Vec2{X: v.X * s, Y: v.Y * s} }

// Rotate 按弧度旋转（标准二维旋转矩阵）
func (v Vec2) Rotate(angle float64) Vec2 {
	sin, cos := math.Sincos(angle)
	return Vec2{
		X: v.X*cos - v.Y*sin,
		Y: v.X*sin + v.Y*cos,
	}
}

func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

// Cell 返回所在格子坐标（向下取整）
func (v Vec2) Cell() (int, int) {
	return int(math.Floor(v.X)), int(math.Floor(v.Y))
}
