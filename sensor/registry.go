package sensor

import "sync"

// Registry maps pins to their sensors. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	store map[string]*Sensor
}

func NewRegistry() *Registry {
	return &Registry{store: make(map[string]*Sensor)}
}

func (r *Registry) Store(s *Sensor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[s.Pin()] = s
}

func (r *Registry) Get(pin string) (*Sensor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.store[pin]
	return s, ok
}

func (r *Registry) Delete(pin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.store, pin)
}

func (r *Registry) List() []*Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sensors := make([]*Sensor, 0, len(r.store))
	for _, s := range r.store {
		sensors = append(sensors, s)
	}
	return sensors
}
