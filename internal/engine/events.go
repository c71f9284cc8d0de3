package engine

// Event categories.
const (
	CategoryOrder    = "order"
	CategoryDelivery = "delivery"
	CategoryWeather  = "weather"
	CategorySession  = "session"
	CategoryPlayer   = "player"
)

// Event is a notable occurrence in the session.
type Event struct {
	Tick        uint64         `json:"tick"`
	Clock       float64        `json:"clock"`
	Category    string         `json:"category"`
	Courier     string         `json:"courier,omitempty"`
	Order       string         `json:"order,omitempty"`
	Description string         `json:"description"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// emit stamps and records an event. Callers hold s.mu.
func (s *Simulation) emit(e Event) {
	e.Tick = s.LastTick
	e.Clock = s.Clock
	s.events = append(s.events, e)
	if limit := s.Config.EventLimit; limit > 0 && len(s.events) > limit {
		s.events = s.events[len(s.events)-limit:]
	}
	s.unflushed = append(s.unflushed, e)
}

// DrainEvents returns the events recorded since the last drain.
func (s *Simulation) DrainEvents() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.unflushed
	s.unflushed = nil
	return out
}

// RecentEvents returns up to n of the newest events, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && len(s.events) > n {
		start = len(s.events) - n
	}
	out := make([]Event, len(s.events)-start)
	copy(out, s.events[start:])
	return out
}

// Outcomes returns every order outcome recorded this session.
func (s *Simulation) Outcomes() []OrderOutcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]OrderOutcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out
}
