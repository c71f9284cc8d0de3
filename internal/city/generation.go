// City generation using layered simplex noise.
// A street lattice is laid first, then each block interior becomes buildings,
// a park or a plaza depending on the noise value sampled at the block centre.
package city

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds city generation parameters.
type GenConfig struct {
	Width     int     // Columns
	Height    int     // Rows
	BlockSize int     // Street lattice spacing (block interior is BlockSize-1 wide)
	Seed      int64   // Random seed (0 = random)
	ParkLevel float64 // Noise threshold above which a block becomes a park (0.0–1.0)
	PlazaLvl  float64 // Noise threshold below which a block becomes a plaza (0.0–1.0)
	Alleys    float64 // Chance that a building block gets a walkable alley through it
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:     30,
		Height:    30,
		BlockSize: 4,
		Seed:      0,
		ParkLevel: 0.68,
		PlazaLvl:  0.22,
		Alleys:    0.15,
	}
}

// SmallTestConfig returns a tiny city for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Width:     13,
		Height:    13,
		BlockSize: 4,
		Seed:      42,
		ParkLevel: 0.70,
		PlazaLvl:  0.20,
		Alleys:    0,
	}
}

// Generate creates a complete city map.
// The outer ring and every BlockSize-th row and column are streets, which
// keeps every walkable tile connected to every other.
func Generate(cfg GenConfig) *Map {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	if cfg.BlockSize < 2 {
		cfg.BlockSize = 2
	}

	// Two noise generators: land use and alley placement.
	useNoise := opensimplex.NewNormalized(seed)
	alleyNoise := opensimplex.NewNormalized(seed + 1)

	m := NewMap(cfg.Width, cfg.Height)

	for y := 0; y < cfg.Height; y++ {
		for x := 0; x < cfg.Width; x++ {
			if isStreet(x, y, cfg) {
				continue
			}

			// Block origin: the street cell at the block's top-left corner.
			bx := (x / cfg.BlockSize) * cfg.BlockSize
			by := (y / cfg.BlockSize) * cfg.BlockSize
			cx := float64(bx) + float64(cfg.BlockSize)/2
			cy := float64(by) + float64(cfg.BlockSize)/2

			use := octaveNoise(useNoise, cx, cy, 3, 0.09, 0.5)
			switch {
			case use >= cfg.ParkLevel:
				m.Set(x, y, TilePark)
			case use <= cfg.PlazaLvl:
				m.Set(x, y, TilePlaza)
			default:
				m.Set(x, y, TileBuilding)
			}
		}
	}

	if cfg.Alleys > 0 {
		carveAlleys(m, alleyNoise, cfg)
	}

	return m
}

func isStreet(x, y int, cfg GenConfig) bool {
	if x == 0 || y == 0 || x == cfg.Width-1 || y == cfg.Height-1 {
		return true
	}
	return x%cfg.BlockSize == 0 || y%cfg.BlockSize == 0
}

// carveAlleys cuts a horizontal street through building blocks whose alley
// noise falls under the configured chance.
func carveAlleys(m *Map, noise opensimplex.Noise, cfg GenConfig) {
	for by := 0; by+cfg.BlockSize < cfg.Height; by += cfg.BlockSize {
		for bx := 0; bx+cfg.BlockSize < cfg.Width; bx += cfg.BlockSize {
			if noise.Eval2(float64(bx)*0.37, float64(by)*0.37) >= cfg.Alleys {
				continue
			}
			mid := by + cfg.BlockSize/2
			for x := bx + 1; x < bx+cfg.BlockSize; x++ {
				if m.At(x, mid) == TileBuilding {
					m.Set(x, mid, TileStreet)
				}
			}
		}
	}
}

// octaveNoise sums several noise octaves, normalised back into 0.0–1.0.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxAmp := 0.0
	freq := frequency

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*freq, y*freq) * amplitude
		maxAmp += amplitude
		amplitude *= persistence
		freq *= 2
	}

	return total / maxAmp
}
