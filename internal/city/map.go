package city

import (
	"fmt"
	"strings"
)

// Tile is a single map character from the city legend.
type Tile byte

const (
	TileStreet   Tile = 'C' // Default street surface
	TileBuilding Tile = 'B' // Blocked
	TilePark     Tile = 'P' // Walkable, slower
	TilePlaza    Tile = 'A' // Walkable, fast open pavement
)

// TileInfo describes how a tile behaves for movement.
type TileInfo struct {
	Name          string  `json:"name"`
	Walkable      bool    `json:"walkable"`
	SurfaceWeight float64 `json:"surface_weight"` // Movement cost multiplier
}

// Legend maps tile characters to their movement properties.
type Legend map[Tile]TileInfo

// DefaultLegend returns the standard street/park/plaza/building legend.
func DefaultLegend() Legend {
	return Legend{
		TileStreet:   {Name: "street", Walkable: true, SurfaceWeight: 1.0},
		TileBuilding: {Name: "building", Walkable: false, SurfaceWeight: 1.0},
		TilePark:     {Name: "park", Walkable: true, SurfaceWeight: 1.25},
		TilePlaza:    {Name: "plaza", Walkable: true, SurfaceWeight: 0.9},
	}
}

// Map holds the complete tile grid.
type Map struct {
	Name   string `json:"name"`
	Tiles  [][]Tile
	Legend Legend

	width  int
	height int
}

// NewMap creates a map filled with street tiles.
func NewMap(width, height int) *Map {
	tiles := make([][]Tile, height)
	for y := range tiles {
		row := make([]Tile, width)
		for x := range row {
			row[x] = TileStreet
		}
		tiles[y] = row
	}
	return &Map{
		Tiles:  tiles,
		Legend: DefaultLegend(),
		width:  width,
		height: height,
	}
}

// FromRows builds a map from text rows, one character per tile.
// A nil legend uses DefaultLegend. Rows must all have the same length.
func FromRows(rows []string, legend Legend) (*Map, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("city from rows: no rows")
	}
	width := len(rows[0])
	if legend == nil {
		legend = DefaultLegend()
	}
	m := &Map{
		Tiles:  make([][]Tile, len(rows)),
		Legend: legend,
		width:  width,
		height: len(rows),
	}
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("city from rows: row %d has %d tiles, want %d", y, len(row), width)
		}
		m.Tiles[y] = []Tile(row)
	}
	return m, nil
}

// MustFromRows is FromRows for fixtures known to be rectangular.
func MustFromRows(rows ...string) *Map {
	m, err := FromRows(rows, nil)
	if err != nil {
		panic(err)
	}
	return m
}

// Width returns the number of columns.
func (m *Map) Width() int { return m.width }

// Height returns the number of rows.
func (m *Map) Height() int { return m.height }

// At returns the tile at (x, y), or TileBuilding when out of bounds.
func (m *Map) At(x, y int) Tile {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return TileBuilding
	}
	return m.Tiles[y][x]
}

// Set places a tile. Out-of-bounds writes are ignored.
func (m *Map) Set(x, y int, t Tile) {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return
	}
	m.Tiles[y][x] = t
}

// IsWalkable reports whether a courier may enter (x, y).
// Unknown tile characters are treated as blocked.
func (m *Map) IsWalkable(x, y int) bool {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return false
	}
	info, ok := m.Legend[m.Tiles[y][x]]
	return ok && info.Walkable
}

// SurfaceWeight returns the movement cost multiplier for (x, y).
func (m *Map) SurfaceWeight(x, y int) float64 {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return 1.0
	}
	info, ok := m.Legend[m.Tiles[y][x]]
	if !ok || info.SurfaceWeight < 0 {
		return 1.0
	}
	return info.SurfaceWeight
}

// Rows renders the map back to text rows.
func (m *Map) Rows() []string {
	out := make([]string, m.height)
	for y, row := range m.Tiles {
		out[y] = string(row)
	}
	return out
}

// WalkableCells returns every walkable cell in row-major order.
func (m *Map) WalkableCells() []Cell {
	var cells []Cell
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			if m.IsWalkable(x, y) {
				cells = append(cells, Cell{X: x, Y: y})
			}
		}
	}
	return cells
}

// TileCounts returns how many tiles of each kind the map holds, keyed by legend name.
func TileCounts(m *Map) map[string]int {
	counts := make(map[string]int)
	for _, row := range m.Tiles {
		for _, t := range row {
			name := "unknown"
			if info, ok := m.Legend[t]; ok {
				name = info.Name
			}
			counts[name]++
		}
	}
	return counts
}

// String returns a summary of the map.
func (m *Map) String() string {
	name := m.Name
	if name == "" {
		name = "city"
	}
	return fmt.Sprintf("Map(%s %dx%d)", name, m.width, m.height)
}

// Draw renders the map with markers overlaid, for debugging and test failures.
func (m *Map) Draw(markers map[Cell]byte) string {
	var b strings.Builder
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			if c, ok := markers[Cell{X: x, Y: y}]; ok {
				b.WriteByte(c)
				continue
			}
			b.WriteByte(byte(m.Tiles[y][x]))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
