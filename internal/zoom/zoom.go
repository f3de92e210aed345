// Package zoom classifies continuous map zoom values into discrete detail
// levels and derives the rendering parameters for each level.
package zoom

import (
	"context"
	"sync"

	"github.com/raedjah1/bopmaps-cache/internal/geo"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
)

const (
	// LevelCity through LevelBlock order detail levels coarse to fine.
	LevelCity         = 1
	LevelDistrict     = 2
	LevelNeighborhood = 3
	LevelStreet       = 4
	LevelBlock        = 5

	maxTilt = 0.8
)

// Classify maps a continuous zoom value to a detail level 1..5.
func Classify(zoom float64) int {
	switch {
	case zoom <= 7:
		return LevelCity
	case zoom <= 10:
		return LevelDistrict
	case zoom <= 13:
		return LevelNeighborhood
	case zoom <= 16:
		return LevelStreet
	default:
		return LevelBlock
	}
}

// Parameters are the rendering knobs associated with a detail level.
type Parameters struct {
	DetailLevel     int
	Tilt            float64
	ShowBuildings   bool
	ShowRoads       bool
	ShowWater       bool
	ShowParks       bool
	ShowPOIs        bool
	Render3D        bool
	PreloadNextZoom bool
	LabelDensity    float64
}

var levelTilt = map[int]float64{
	LevelCity:         0,
	LevelDistrict:     0.2,
	LevelNeighborhood: 0.4,
	LevelStreet:       0.7,
	LevelBlock:        maxTilt,
}

// ParametersFor returns the rendering parameters for a detail level. In 2D
// mode tilt is forced to zero and 3D rendering is off.
func ParametersFor(level int, is2D bool) Parameters {
	if level < LevelCity {
		level = LevelCity
	}
	if level > LevelBlock {
		level = LevelBlock
	}

	tilt := levelTilt[level]
	if is2D {
		tilt = 0
	}
	if tilt > maxTilt {
		tilt = maxTilt
	}

	return Parameters{
		DetailLevel:     level,
		Tilt:            tilt,
		ShowBuildings:   level >= LevelStreet,
		ShowRoads:       level >= LevelDistrict,
		ShowWater:       true,
		ShowParks:       level >= LevelNeighborhood,
		ShowPOIs:        level >= LevelNeighborhood,
		Render3D:        !is2D && level >= LevelStreet,
		PreloadNextZoom: level < LevelBlock,
		LabelDensity:    float64(level) / float64(LevelBlock),
	}
}

// Prefetcher warms caches for an upcoming viewport. Satisfied by the
// coordinator; declared here so the manager does not depend on it.
type Prefetcher interface {
	PrefetchViewport(ctx context.Context, b geo.Bounds, zoomVal float64)
}

// Manager tracks the current detail level and fires callbacks only on
// transitions, so repeated zoom updates within a level are free.
type Manager struct {
	mu        sync.Mutex
	level     int
	zoom      float64
	is2D      bool
	tilt      float64
	tiltSet   bool
	callbacks []func(old, new int)

	prefetcher Prefetcher
	logger     logger.Logger
}

func NewManager(prefetcher Prefetcher, l logger.Logger) *Manager {
	return &Manager{
		level:      LevelCity,
		prefetcher: prefetcher,
		logger:     l,
	}
}

// OnChange registers a callback invoked whenever the detail level changes.
// Callbacks run synchronously inside Update, in registration order.
func (m *Manager) OnChange(fn func(old, new int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Update records a new zoom value and returns the level it classifies to.
// Callbacks fire only when the level actually changed.
func (m *Manager) Update(zoom float64) int {
	m.mu.Lock()
	m.zoom = zoom
	newLevel := Classify(zoom)
	old := m.level
	if newLevel == old {
		m.mu.Unlock()
		return newLevel
	}
	m.level = newLevel
	callbacks := make([]func(old, new int), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	m.logger.Debug("detail level changed", "old", old, "new", newLevel, "zoom", zoom)
	for _, fn := range callbacks {
		fn(old, newLevel)
	}
	return newLevel
}

// Level returns the current detail level.
func (m *Manager) Level() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// SetMode switches between 2D and tilted rendering.
func (m *Manager) SetMode(is2D bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.is2D = is2D
}

// SetTilt overrides the per-level default tilt. The value is clamped to
// [0, 0.8] and sticks across level changes until set again; 2D mode still
// flattens it.
func (m *Manager) SetTilt(v float64) {
	if v < 0 {
		v = 0
	}
	if v > maxTilt {
		v = maxTilt
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tilt = v
	m.tiltSet = true
}

// Parameters returns the rendering parameters for the current state.
func (m *Manager) Parameters() Parameters {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := ParametersFor(m.level, m.is2D)
	if m.tiltSet && !m.is2D {
		p.Tilt = m.tilt
	}
	return p
}

// PreloadNextLevel warms the cache for the viewport at the zoom the user is
// heading toward: one level finer when zooming in, one coarser when zooming
// out. No-op at the extremes.
func (m *Manager) PreloadNextLevel(ctx context.Context, b geo.Bounds, zoomingIn bool) {
	if m.prefetcher == nil {
		return
	}

	m.mu.Lock()
	level := m.level
	m.mu.Unlock()

	var target int
	if zoomingIn {
		target = level + 1
	} else {
		target = level - 1
	}
	if target < LevelCity || target > LevelBlock {
		return
	}

	m.prefetcher.PrefetchViewport(ctx, b, RepresentativeZoom(target))
}

// RepresentativeZoom picks a zoom value in the middle of a level's range.
func RepresentativeZoom(level int) float64 {
	switch level {
	case LevelCity:
		return 5
	case LevelDistrict:
		return 9
	case LevelNeighborhood:
		return 12
	case LevelStreet:
		return 15
	default:
		return 17.5
	}
}
