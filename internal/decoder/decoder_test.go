package decoder

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/raedjah1/bopmaps-cache/pkg/logger"
)

const sampleTile = `{
	"layers": [
		{"name": "water", "features": [
			{"type": "polygon", "points": [[10,10],[200,10],[200,120],[10,120]]}
		]},
		{"name": "roads", "features": [
			{"type": "line", "points": [[0,200],[256,200]]}
		]},
		{"name": "pois", "features": [
			{"type": "point", "points": [[128,128]]}
		]}
	]
}`

func TestRenderProducesTileSizedPNG(t *testing.T) {
	out, err := render([]byte(sampleTile), DefaultStyle())
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if got := img.Bounds().Dx(); got != TileSize {
		t.Fatalf("width = %d, want %d", got, TileSize)
	}
	if got := img.Bounds().Dy(); got != TileSize {
		t.Fatalf("height = %d, want %d", got, TileSize)
	}
}

func TestRenderRejectsGarbage(t *testing.T) {
	if _, err := render([]byte("not json"), DefaultStyle()); err == nil {
		t.Fatal("expected an error for a malformed payload")
	}
}

func TestRenderEmptyDocument(t *testing.T) {
	out, err := render([]byte(`{"layers":[]}`), DefaultStyle())
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(out)); err != nil {
		t.Fatalf("background-only tile is not a PNG: %v", err)
	}
}

func TestParseColor(t *testing.T) {
	c, err := parseColor("#a5bfdd")
	if err != nil {
		t.Fatalf("parseColor failed: %v", err)
	}
	if c.R != 0xa5 || c.G != 0xbf || c.B != 0xdd || c.A != 0xff {
		t.Fatalf("unexpected color %+v", c)
	}

	if _, err := parseColor("blue"); err == nil {
		t.Fatal("expected an error for a named color")
	}
}

func TestPoolRasterize(t *testing.T) {
	p := NewPool(2, logger.NewNop())
	defer p.Close()

	out, err := p.Rasterize(context.Background(), 3, 7, []byte(sampleTile), DefaultStyle())
	if err != nil {
		t.Fatalf("Rasterize failed: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(out)); err != nil {
		t.Fatalf("pool output is not a PNG: %v", err)
	}
}

func TestPoolRasterizeAfterClose(t *testing.T) {
	p := NewPool(1, logger.NewNop())
	p.Close()

	// A closed pool degrades to synchronous rendering rather than hanging.
	out, err := p.Rasterize(context.Background(), 0, 0, []byte(sampleTile), DefaultStyle())
	if err != nil {
		t.Fatalf("Rasterize after Close failed: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected image bytes")
	}
}

func TestPoolConcurrentUse(t *testing.T) {
	p := NewPool(3, logger.NewNop())
	defer p.Close()

	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func(n int) {
			_, err := p.Rasterize(context.Background(), n, n*3, []byte(sampleTile), DefaultStyle())
			errs <- err
		}(i)
	}
	for i := 0; i < 20; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent Rasterize failed: %v", err)
		}
	}
}
