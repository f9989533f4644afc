package gridmap

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lafriks/go-tiled"

	"multicaster/vec"
)

const (
	// TMX 中墙体所在图层与出生点对象组的名字
	wallsLayerName  = "walls"
	spawnObjectName = "PlayerSpawn"
)

// Load 根据扩展名选择加载方式：.tmx 走 Tiled，其余按文本网格解析
func Load(path string) (*Grid, error) {
	if strings.EqualFold(filepath.Ext(path), ".tmx") {
		return LoadTMX(os.DirFS(filepath.Dir(path)), filepath.Base(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open map %s: %w", path, err)
	}
	defer f.Close()
	g, err := LoadText(f)
	if err != nil {
		return nil, fmt.Errorf("load map %s: %w", path, err)
	}
	return g, nil
}

// LoadTMX 解析 Tiled 地图：walls 图层非空瓦片为墙（编码 = 瓦片 ID + 1），
// PlayerSpawn 对象组里 spawnIndex 最小的对象作为出生点（像素坐标换算成格子坐标）。
func LoadTMX(fsys fs.FS, tmxPath string) (*Grid, error) {
	levelMap, err := tiled.LoadFile(tmxPath, tiled.WithFileSystem(fsys))
	if err != nil {
		return nil, fmt.Errorf("load TMX %s: %w", tmxPath, err)
	}

	var layer *tiled.Layer
	for _, l := range levelMap.Layers {
		if l.Name == wallsLayerName {
			layer = l
			break
		}
	}
	if layer == nil && len(levelMap.Layers) > 0 {
		layer = levelMap.Layers[0]
	}
	if layer == nil {
		return nil, fmt.Errorf("TMX %s has no tile layer: %w", tmxPath, ErrEmptyGrid)
	}

	rows, err := layerRows(layer, levelMap.Width, levelMap.Height)
	if err != nil {
		return nil, fmt.Errorf("TMX %s: %w", tmxPath, err)
	}

	spawn := DefaultSpawn
	type candidate struct {
		index int
		pos   vec.Vec2
	}
	var spawns []candidate
	for _, og := range levelMap.ObjectGroups {
		if og.Name != spawnObjectName {
			continue
		}
		for _, o := range og.Objects {
			spawns = append(spawns, candidate{
				index: o.Properties.GetInt("spawnIndex"),
				pos:   vec.New(o.X/float64(levelMap.TileWidth), o.Y/float64(levelMap.TileHeight)),
			})
		}
	}
	if len(spawns) > 0 {
		sort.SliceStable(spawns, func(i, j int) bool { return spawns[i].index < spawns[j].index })
		spawn = spawns[0].pos
	}
	return New(rows, spawn)
}

// layerRows 把图层瓦片展开成 h 行 w 列；无限地图（分块存储）的图层瓦片数对不上，直接报错
func layerRows(layer *tiled.Layer, w, h int) ([][]int, error) {
	if w <= 0 || h <= 0 {
		return nil, ErrEmptyGrid
	}
	if len(layer.Tiles) < w*h {
		return nil, fmt.Errorf("layer %q has %d tiles, want %dx%d: %w", layer.Name, len(layer.Tiles), w, h, ErrShortLayer)
	}
	rows := make([][]int, h)
	for y := 0; y < h; y++ {
		rows[y] = make([]int, w)
		for x := 0; x < w; x++ {
			tile := layer.Tiles[y*w+x]
			if tile == nil || tile.IsNil() {
				continue
			}
			rows[y][x] = int(tile.ID) + 1
		}
	}
	return rows, nil
}

// LoadText 解析文本网格：每行一行瓦片，'0' '.' ' ' 为空，'1'-'9' 为墙编码，'#' 等价于 1，
// 'P' 为空地并把出生点放在该格中心。';' 开头的行是注释。
func LoadText(r io.Reader) (*Grid, error) {
	var rows [][]int
	spawn := DefaultSpawn
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		y := len(rows)
		row := make([]int, 0, len(line))
		for x, c := range line {
			switch {
			case c >= '1' && c <= '9':
				row = append(row, int(c-'0'))
			case c == '#':
				row = append(row, 1)
			case c == 'P':
				spawn = vec.New(float64(x)+0.5, float64(y)+0.5)
				row = append(row, 0)
			case c == '0' || c == '.' || c == ' ':
				row = append(row, 0)
			default:
				return nil, fmt.Errorf("line %d col %d: unexpected tile %q", y+1, x+1, c)
			}
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return New(rows, spawn)
}
