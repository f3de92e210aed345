package zoom

import (
	"context"
	"testing"

	"github.com/raedjah1/bopmaps-cache/internal/geo"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
)

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		zoom float64
		want int
	}{
		{0, LevelCity}, {6.9, LevelCity}, {7, LevelCity},
		{7.1, LevelDistrict}, {10, LevelDistrict},
		{10.1, LevelNeighborhood}, {13, LevelNeighborhood},
		{13.1, LevelStreet}, {16, LevelStreet},
		{16.1, LevelBlock}, {22, LevelBlock},
	}
	for _, c := range cases {
		if got := Classify(c.zoom); got != c.want {
			t.Errorf("Classify(%v) = %d, want %d", c.zoom, got, c.want)
		}
	}
}

func TestParametersFor(t *testing.T) {
	p := ParametersFor(LevelBlock, false)
	if p.Tilt != 0.8 {
		t.Fatalf("block tilt = %v, want 0.8", p.Tilt)
	}
	if !p.ShowBuildings || !p.ShowPOIs || !p.Render3D {
		t.Fatal("block level should show buildings, POIs and 3D")
	}
	if p.PreloadNextZoom {
		t.Fatal("there is no finer level to preload past block")
	}

	p = ParametersFor(LevelCity, false)
	if p.Tilt != 0 || p.ShowBuildings || p.ShowRoads || p.ShowParks {
		t.Fatalf("city parameters wrong: %+v", p)
	}
	if !p.ShowWater {
		t.Fatal("water renders at every level")
	}
	if !p.PreloadNextZoom {
		t.Fatal("coarse levels should preload the next zoom")
	}

	// 2D mode forces tilt flat and disables 3D regardless of level.
	if p := ParametersFor(LevelBlock, true); p.Tilt != 0 || p.Render3D {
		t.Fatalf("2D parameters wrong: %+v", p)
	}

	// Out-of-range levels clamp.
	if p := ParametersFor(99, false); p.DetailLevel != LevelBlock {
		t.Fatalf("level 99 clamped to %d", p.DetailLevel)
	}
	if p := ParametersFor(0, false); p.DetailLevel != LevelCity {
		t.Fatalf("level 0 clamped to %d", p.DetailLevel)
	}
}

func TestManagerEdgeTriggeredCallbacks(t *testing.T) {
	m := NewManager(nil, logger.NewNop())

	var transitions [][2]int
	m.OnChange(func(old, new int) {
		transitions = append(transitions, [2]int{old, new})
	})

	m.Update(5)    // still city, no transition
	m.Update(6.5)  // still city
	m.Update(12)   // city -> neighborhood
	m.Update(12.9) // same level
	m.Update(17)   // neighborhood -> block

	want := [][2]int{{LevelCity, LevelNeighborhood}, {LevelNeighborhood, LevelBlock}}
	if len(transitions) != len(want) {
		t.Fatalf("got %d transitions, want %d: %v", len(transitions), len(want), transitions)
	}
	for i, tr := range want {
		if transitions[i] != tr {
			t.Fatalf("transition %d = %v, want %v", i, transitions[i], tr)
		}
	}
	if m.Level() != LevelBlock {
		t.Fatalf("final level = %d, want %d", m.Level(), LevelBlock)
	}
}

type recordingPrefetcher struct {
	calls []float64
}

func (r *recordingPrefetcher) PrefetchViewport(_ context.Context, _ geo.Bounds, zoom float64) {
	r.calls = append(r.calls, zoom)
}

func TestPreloadNextLevel(t *testing.T) {
	rec := &recordingPrefetcher{}
	m := NewManager(rec, logger.NewNop())
	b := geo.FromCenter(40, -74, 5)

	m.Update(12) // neighborhood

	m.PreloadNextLevel(context.Background(), b, true)
	m.PreloadNextLevel(context.Background(), b, false)

	if len(rec.calls) != 2 {
		t.Fatalf("got %d prefetch calls, want 2", len(rec.calls))
	}
	if Classify(rec.calls[0]) != LevelStreet {
		t.Fatalf("zoom-in preload targeted level %d", Classify(rec.calls[0]))
	}
	if Classify(rec.calls[1]) != LevelDistrict {
		t.Fatalf("zoom-out preload targeted level %d", Classify(rec.calls[1]))
	}

	// At the extremes there is nothing further to preload.
	m.Update(20)
	rec.calls = nil
	m.PreloadNextLevel(context.Background(), b, true)
	if len(rec.calls) != 0 {
		t.Fatal("preload past the finest level should be a no-op")
	}
}

func TestSetTilt(t *testing.T) {
	m := NewManager(nil, logger.NewNop())
	m.Update(17) // block

	if got := m.Parameters().Tilt; got != 0.8 {
		t.Fatalf("default block tilt = %v, want 0.8", got)
	}

	m.SetTilt(0.3)
	if got := m.Parameters().Tilt; got != 0.3 {
		t.Fatalf("tilt after SetTilt(0.3) = %v", got)
	}

	// The override outlives level changes.
	m.Update(12)
	if got := m.Parameters().Tilt; got != 0.3 {
		t.Fatalf("tilt after level change = %v, want the 0.3 override", got)
	}

	// Out-of-range values clamp to [0, 0.8].
	m.SetTilt(5)
	if got := m.Parameters().Tilt; got != 0.8 {
		t.Fatalf("tilt after SetTilt(5) = %v, want 0.8", got)
	}
	m.SetTilt(-1)
	if got := m.Parameters().Tilt; got != 0 {
		t.Fatalf("tilt after SetTilt(-1) = %v, want 0", got)
	}

	// 2D mode flattens even an explicit tilt.
	m.SetTilt(0.5)
	m.SetMode(true)
	if got := m.Parameters().Tilt; got != 0 {
		t.Fatalf("2D tilt = %v, want 0", got)
	}
}
