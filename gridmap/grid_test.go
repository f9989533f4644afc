package gridmap

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/lafriks/go-tiled"

	"multicaster/vec"
)

func TestDefaultMapIsClosed(t *testing.T) {
	g := Default()
	if g.Width() != 24 || g.Height() != 24 {
		t.Fatalf("expected 24x24, got %dx%d", g.Width(), g.Height())
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("default map invalid: %v", err)
	}
	if g.SolidAt(g.Spawn()) {
		t.Fatalf("spawn %+v is solid", g.Spawn())
	}
}

func TestOutOfBoundsIsSolid(t *testing.T) {
	g := Default()
	for _, c := range [][2]int{{-1, 0}, {0, -1}, {24, 5}, {5, 24}, {1000, -1000}} {
		if !g.Solid(c[0], c[1]) {
			t.Fatalf("cell %v should be solid", c)
		}
	}
}

func TestNewRejectsBadRows(t *testing.T) {
	if _, err := New(nil, DefaultSpawn); !errors.Is(err, ErrEmptyGrid) {
		t.Fatalf("expected ErrEmptyGrid, got %v", err)
	}
	_, err := New([][]int{{1, 1, 1}, {1, 0}}, DefaultSpawn)
	if !errors.Is(err, ErrRaggedGrid) {
		t.Fatalf("expected ErrRaggedGrid, got %v", err)
	}
}

func TestValidateOpenPerimeter(t *testing.T) {
	g, err := New([][]int{
		{1, 1, 1, 1},
		{1, 0, 0, 0},
		{1, 1, 1, 1},
	}, vec.New(1.5, 1.5))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := g.Validate(); !errors.Is(err, ErrOpenPerimeter) {
		t.Fatalf("expected ErrOpenPerimeter, got %v", err)
	}
}

func TestValidateSpawnInWall(t *testing.T) {
	g, err := New([][]int{
		{1, 1, 1},
		{1, 0, 1},
		{1, 1, 1},
	}, vec.New(0.5, 0.5))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := g.Validate(); err == nil {
		t.Fatalf("expected spawn error")
	}
}

func TestLoadText(t *testing.T) {
	g, err := LoadText(strings.NewReader("; c\n####\n#P2#\n####\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if g.Width() != 4 || g.Height() != 3 {
		t.Fatalf("expected 4x3, got %dx%d", g.Width(), g.Height())
	}
	if g.At(2, 1) != 2 {
		t.Fatalf("expected code 2 at (2,1), got %d", g.At(2, 1))
	}
	if g.Spawn() != vec.New(1.5, 1.5) {
		t.Fatalf("unexpected spawn %+v", g.Spawn())
	}
	if _, err := LoadText(strings.NewReader("#x#\n")); err == nil {
		t.Fatalf("expected error for unknown tile")
	}
}

func TestLoadTextFile(t *testing.T) {
	g, err := Load("testdata/room.txt")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if g.At(2, 2) != 2 {
		t.Fatalf("expected code 2 at (2,2), got %d", g.At(2, 2))
	}
}

func TestLoadTMX(t *testing.T) {
	g, err := LoadTMX(os.DirFS("testdata"), "arena.tmx")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if g.Width() != 6 || g.Height() != 5 {
		t.Fatalf("expected 6x5, got %dx%d", g.Width(), g.Height())
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	// gid 3 -> 瓦片 ID 2 -> 编码 3
	if g.At(2, 2) != 3 {
		t.Fatalf("expected code 3 at (2,2), got %d", g.At(2, 2))
	}
	if g.At(1, 1) != 0 {
		t.Fatalf("expected empty at (1,1), got %d", g.At(1, 1))
	}
	// spawnIndex 0 的对象在 (24,24) 像素，16px 瓦片
	if g.Spawn() != vec.New(1.5, 1.5) {
		t.Fatalf("unexpected spawn %+v", g.Spawn())
	}
}

func TestLayerRowsRejectsShortLayer(t *testing.T) {
	// 无限地图的图层瓦片存在分块里，Tiles 可能比 宽x高 短
	layer := &tiled.Layer{Name: "walls", Tiles: make([]*tiled.LayerTile, 4)}
	if _, err := layerRows(layer, 6, 5); !errors.Is(err, ErrShortLayer) {
		t.Fatalf("expected ErrShortLayer, got %v", err)
	}

	layer.Tiles = []*tiled.LayerTile{{ID: 0, Nil: true}, {ID: 4}}
	rows, err := layerRows(layer, 2, 1)
	if err != nil {
		t.Fatalf("layer rows: %v", err)
	}
	if rows[0][0] != 0 || rows[0][1] != 5 {
		t.Fatalf("unexpected rows %v", rows)
	}
}
