// Courier spawning: the player plus AI rivals placed on street cells.
package agents

import (
	"fmt"
	"math/rand"

	"github.com/talgya/courier-sim/internal/city"
)

// CourierSpec describes one courier to spawn.
type CourierSpec struct {
	Name       string     `yaml:"name"`
	Difficulty string     `yaml:"difficulty"` // easy, medium, hard, or player
	Start      *city.Cell `yaml:"start,omitempty"`
}

// SpawnConfig controls courier creation.
type SpawnConfig struct {
	Seed     int64
	Couriers []CourierSpec
	Rules    Rules
}

// Spawner creates couriers for the simulation.
type Spawner struct {
	rng    *rand.Rand
	seed   int64
	nextID CourierID
}

// NewSpawner creates a courier spawner with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{
		rng:    rand.New(rand.NewSource(seed + 300)),
		seed:   seed,
		nextID: 1,
	}
}

// Spawn creates every courier in cfg, in order. The first player spec
// becomes the human courier; an unknown difficulty is an error.
func (s *Spawner) Spawn(g city.Grid, cfg SpawnConfig) ([]*Courier, error) {
	rules := cfg.Rules
	streets := walkableCells(g)
	if len(streets) == 0 {
		return nil, fmt.Errorf("spawn: city has no walkable cells")
	}

	couriers := make([]*Courier, 0, len(cfg.Couriers))
	taken := make(map[city.Cell]bool)
	for _, spec := range cfg.Couriers {
		d, ok := ParseDifficulty(spec.Difficulty)
		if !ok {
			return nil, fmt.Errorf("spawn %q: unknown difficulty %q", spec.Name, spec.Difficulty)
		}
		at, err := s.startCell(g, spec, streets, taken)
		if err != nil {
			return nil, err
		}
		taken[at] = true
		couriers = append(couriers, s.SpawnOne(spec.Name, d, at, &rules))
	}
	return couriers, nil
}

// SpawnOne creates a single courier. Each AI courier draws from its own rng
// so one courier's choices never shift another's.
func (s *Spawner) SpawnOne(name string, d Difficulty, at city.Cell, rules *Rules) *Courier {
	id := s.nextID
	s.nextID++
	if name == "" {
		name = s.generateName()
	}
	c := NewCourier(id, name, at, rules)
	c.Difficulty = d
	c.Strategy = NewStrategy(d, rand.New(rand.NewSource(s.seed+int64(id)*7919)))
	c.DecisionCooldown = s.rng.Float64() * 0.2 // Stagger decisions
	return c
}

func (s *Spawner) startCell(g city.Grid, spec CourierSpec, streets []city.Cell, taken map[city.Cell]bool) (city.Cell, error) {
	if spec.Start != nil {
		at, ok := city.NearestWalkable(g, *spec.Start)
		if !ok {
			return city.Cell{}, fmt.Errorf("spawn %q: no walkable cell near %v", spec.Name, *spec.Start)
		}
		return at, nil
	}
	for tries := 0; tries < 32; tries++ {
		at := streets[s.rng.Intn(len(streets))]
		if !taken[at] {
			return at, nil
		}
	}
	return streets[s.rng.Intn(len(streets))], nil
}

func walkableCells(g city.Grid) []city.Cell {
	var cells []city.Cell
	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			if g.IsWalkable(x, y) {
				cells = append(cells, city.Cell{X: x, Y: y})
			}
		}
	}
	return cells
}

func (s *Spawner) generateName() string {
	first := firstNames[s.rng.Intn(len(firstNames))]
	last := lastNames[s.rng.Intn(len(lastNames))]
	return first + " " + last
}

var firstNames = []string{
	"Ada", "Bruno", "Carmen", "Dario", "Elif", "Femi", "Greta", "Hugo",
	"Ines", "Jonas", "Kira", "Luca", "Mira", "Nico", "Olga", "Pavel",
	"Rosa", "Sami", "Tess", "Umar", "Vera", "Wim", "Yara", "Zeno",
}

var lastNames = []string{
	"Alves", "Brandt", "Costa", "Dietz", "Esposito", "Fischer", "Gallo",
	"Horvat", "Ivanov", "Jansen", "Kowalski", "Lindqvist", "Moreau",
	"Novak", "Okafor", "Petrov", "Quint", "Rossi", "Silva", "Tanaka",
}
