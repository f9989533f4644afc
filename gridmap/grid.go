// Package gridmap 静态瓦片网格：回答 "(x,y) 是否为墙"，供射线与移动校验共用。
package gridmap

import (
	"errors"
	"fmt"

	"multicaster/vec"
)

var (
	ErrEmptyGrid     = errors.New("gridmap: empty grid")
	ErrRaggedGrid    = errors.New("gridmap: rows have different lengths")
	ErrOpenPerimeter = errors.New("gridmap: perimeter is not fully solid")
	ErrShortLayer    = errors.New("gridmap: tile layer smaller than map")
)

// DefaultSpawn 默认出生点
var DefaultSpawn = vec.New(2, 2)

// Grid 加载后不可变；tiles 按行存储，tiles[y*width+x]
type Grid struct {
	width  int
	height int
	tiles  []int
	spawn  vec.Vec2
}

// New 以行优先的二维数组构造网格（rows[y][x]），拷贝输入
func New(rows [][]int, spawn vec.Vec2) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyGrid
	}
	w := len(rows[0])
	g := &Grid{width: w, height: len(rows), tiles: make([]int, 0, w*len(rows)), spawn: spawn}
	for y, row := range rows {
		if len(row) != w {
			return nil, fmt.Errorf("row %d has %d tiles, want %d: %w", y, len(row), w, ErrRaggedGrid)
		}
		g.tiles = append(g.tiles, row...)
	}
	return g, nil
}

func (g *Grid) Width() int { return g.width }

func (g *Grid) Height() int { return g.height }

func (g *Grid) Spawn() vec.Vec2 { return g.spawn }

func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.width && y < g.height
}

// At 返回瓦片编码；越界视为编码 1 的墙
func (g *Grid) At(x, y int) int {
	if !g.InBounds(x, y) {
		return 1
	}
	return g.tiles[y*g.width+x]
}

// Solid 越界一律当作实心
func (g *Grid) Solid(x, y int) bool { return g.At(x, y) > 0 }

// SolidAt 按浮点位置查询所在格子
func (g *Grid) SolidAt(p vec.Vec2) bool {
	x, y := p.Cell()
	return g.Solid(x, y)
}

// Validate 检查四周封闭以及出生点可站立
func (g *Grid) Validate() error {
	for x := 0; x < g.width; x++ {
		if g.At(x, 0) == 0 || g.At(x, g.height-1) == 0 {
			return fmt.Errorf("column %d: %w", x, ErrOpenPerimeter)
		}
	}
	for y := 0; y < g.height; y++ {
		if g.At(0, y) == 0 || g.At(g.width-1, y) == 0 {
			return fmt.Errorf("row %d: %w", y, ErrOpenPerimeter)
		}
	}
	if g.SolidAt(g.spawn) {
		return fmt.Errorf("gridmap: spawn %.2f,%.2f is inside a wall", g.spawn.X, g.spawn.Y)
	}
	return nil
}

var defaultRows = [][]int{
	{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
	{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 2, 2, 2, 2, 2, 0, 0, 0, 0, 3, 0, 3, 0, 3, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 2, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 2, 0, 0, 0, 2, 0, 0, 0, 0, 3, 0, 0, 0, 3, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 2, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 2, 2, 0, 2, 2, 0, 0, 0, 0, 3, 0, 3, 0, 3, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 4, 4, 4, 4, 4, 4, 4, 4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 4, 0, 4, 0, 0, 0, 0, 4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 4, 0, 0, 0, 0, 5, 0, 4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 4, 0, 4, 0, 0, 0, 0, 4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 4, 0, 4, 4, 4, 4, 4, 4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 4, 4, 4, 4, 4, 4, 4, 4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
}

// Default 内置 24x24 地图，出生点 (2,2)
func Default() *Grid {
	g, err := New(defaultRows, DefaultSpawn)
	if err != nil {
		panic(err)
	}
	return g
}
