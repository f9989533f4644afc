// Package player 本地玩家模拟：输入 -> 位姿变化 -> 射线投射
package player

import (
	"time"

	"multicaster/raycast"
	"multicaster/vec"
)

type Pose = raycast.Pose

// Grid 移动校验和射线都要用到的网格查询
type Grid interface {
	raycast.Grid
	SolidAt(p vec.Vec2) bool
}

type Config struct {
	MoveSpeed float64 // 格/秒
	TurnSpeed float64 // 弧度/秒
	Start     Pose
}

// Input 一帧的按键状态
type Input struct {
	Forward  bool
	Backward bool
	Left     bool
	Right    bool
	Reset    bool
}

type Simulation struct {
	cfg    Config
	grid   Grid
	engine *raycast.Engine
	pose   Pose
	fps    Counter
}

func New(cfg Config, grid Grid, engine *raycast.Engine) *Simulation {
	return &Simulation{cfg: cfg, grid: grid, engine: engine, pose: cfg.Start}
}

func (s *Simulation) Pose() Pose { return s.pose }

func (s *Simulation) Position() vec.Vec2 { return s.pose.Position }

func (s *Simulation) FPS() float64 { return s.fps.FPS() }

// Update 采样输入 -> 移动/转向 -> 投射 -> 帧计数
func (s *Simulation) Update(delta time.Duration, in Input) []raycast.RayHit {
	dt := delta.Seconds()
	if in.Reset {
		s.Reset()
	}
	if in.Forward {
		s.MoveForward(dt)
	}
	if in.Backward {
		s.MoveBackward(dt)
	}
	if in.Left {
		s.TurnLeft(dt)
	}
	if in.Right {
		s.TurnRight(dt)
	}
	hits := s.engine.Cast(s.pose, s.grid)
	s.fps.Tick(delta)
	return hits
}

func (s *Simulation) MoveForward(dt float64) {
	s.move(s.pose.Direction.Scale(s.cfg.MoveSpeed * dt))
}

func (s *Simulation) MoveBackward(dt float64) {
	s.move(s.pose.Direction.Scale(-s.cfg.MoveSpeed * dt))
}

// move 两个轴分开校验，撞墙时仍可沿另一轴滑动
func (s *Simulation) move(d vec.Vec2) {
	p := s.pose.Position
	if nx := p.X + d.X; !s.grid.SolidAt(vec.New(nx, p.Y)) {
		p.X = nx
	}
	if ny := p.Y + d.Y; !s.grid.SolidAt(vec.New(p.X, ny)) {
		p.Y = ny
	}
	s.pose.Position = p
}

func (s *Simulation) TurnLeft(dt float64) {
	s.rotate(-s.cfg.TurnSpeed * dt)
}

func (s *Simulation) TurnRight(dt float64) {
	s.rotate(s.cfg.TurnSpeed * dt)
}

// rotate direction 和 plane 必须同角度旋转
func (s *Simulation) rotate(angle float64) {
	s.pose.Direction = s.pose.Direction.Rotate(angle)
	s.pose.Plane = s.pose.Plane.Rotate(angle)
}

// Reset 回到初始位姿（卡住时自救）
func (s *Simulation) Reset() {
	s.pose = s.cfg.Start
}
