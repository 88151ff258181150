package llm

import "sync"

// ModelFallback tracks primary vs. fallback model selection for one run.
// The switch is one-way: once on the fallback there is no way back to
// the primary within the same run.
type ModelFallback struct {
	mu       sync.Mutex
	primary  string
	fallback string
	switched bool
}

func NewModelFallback(primary, fallback string) *ModelFallback {
	return &ModelFallback{primary: primary, fallback: fallback}
}

// Active returns the identifier the next call should use.
func (m *ModelFallback) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.switched {
		return m.fallback
	}
	return m.primary
}

// Switch engages the fallback model. It returns false when already
// switched or when no distinct fallback is configured.
func (m *ModelFallback) Switch() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.switched || m.fallback == "" || m.fallback == m.primary {
		return false
	}
	m.switched = true
	return true
}

// Reset returns selection to the primary model. Called at the start of
// a run so a switch during one cycle does not leak into the next.
func (m *ModelFallback) Reset() {
	m.mu.Lock()
	m.switched = false
	m.mu.Unlock()
}

// Switched reports whether the fallback is engaged.
func (m *ModelFallback) Switched() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.switched
}
