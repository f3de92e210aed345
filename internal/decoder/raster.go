package decoder

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"sort"
)

// render decodes a raw vector payload and rasterizes it onto a TileSize
// canvas following the style's layer order and paint properties.
func render(raw []byte, style Style) ([]byte, error) {
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, TileSize, TileSize))

	if style.Background != "" {
		if bg, err := parseColor(style.Background); err == nil {
			draw.Draw(img, img.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)
		}
	}

	byName := make(map[string]docLayer, len(doc.Layers))
	for _, l := range doc.Layers {
		byName[l.Name] = l
	}

	for _, ls := range style.Layers {
		layer, ok := byName[ls.Layer]
		if !ok {
			continue
		}
		c, err := parseColor(ls.Color)
		if err != nil {
			continue
		}
		for _, f := range layer.Features {
			switch ls.Kind {
			case KindFill:
				fillPolygon(img, f.Points, c)
			case KindLine:
				strokePath(img, f.Points, c, ls.StrokeWidth)
			case KindSymbol:
				for _, p := range f.Points {
					drawSymbol(img, p, c)
				}
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fillPolygon rasterizes a polygon with an even-odd scanline fill.
func fillPolygon(img *image.RGBA, pts [][2]float64, c color.RGBA) {
	if len(pts) < 3 {
		return
	}

	minY, maxY := pts[0][1], pts[0][1]
	for _, p := range pts {
		minY = math.Min(minY, p[1])
		maxY = math.Max(maxY, p[1])
	}

	y0 := clampInt(int(math.Floor(minY)), 0, TileSize-1)
	y1 := clampInt(int(math.Ceil(maxY)), 0, TileSize-1)

	for y := y0; y <= y1; y++ {
		fy := float64(y) + 0.5
		var xs []float64
		for i := range pts {
			a, b := pts[i], pts[(i+1)%len(pts)]
			if (a[1] <= fy) == (b[1] <= fy) {
				continue
			}
			t := (fy - a[1]) / (b[1] - a[1])
			xs = append(xs, a[0]+t*(b[0]-a[0]))
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			x0 := clampInt(int(math.Round(xs[i])), 0, TileSize-1)
			x1 := clampInt(int(math.Round(xs[i+1])), 0, TileSize-1)
			for x := x0; x <= x1; x++ {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// strokePath draws a polyline by stamping width-sized dots along each segment.
func strokePath(img *image.RGBA, pts [][2]float64, c color.RGBA, width float64) {
	if len(pts) < 2 {
		return
	}
	if width < 1 {
		width = 1
	}
	r := width / 2

	for i := 0; i+1 < len(pts); i++ {
		a, b := pts[i], pts[i+1]
		dx, dy := b[0]-a[0], b[1]-a[1]
		steps := int(math.Ceil(math.Hypot(dx, dy)))
		if steps == 0 {
			steps = 1
		}
		for s := 0; s <= steps; s++ {
			t := float64(s) / float64(steps)
			stampDot(img, a[0]+t*dx, a[1]+t*dy, r, c)
		}
	}
}

func stampDot(img *image.RGBA, cx, cy, r float64, c color.RGBA) {
	x0 := clampInt(int(math.Floor(cx-r)), 0, TileSize-1)
	x1 := clampInt(int(math.Ceil(cx+r)), 0, TileSize-1)
	y0 := clampInt(int(math.Floor(cy-r)), 0, TileSize-1)
	y1 := clampInt(int(math.Ceil(cy+r)), 0, TileSize-1)

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if math.Hypot(float64(x)-cx, float64(y)-cy) <= r {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// drawSymbol paints a fixed 5x5 marker centered on the point.
func drawSymbol(img *image.RGBA, p [2]float64, c color.RGBA) {
	cx, cy := int(math.Round(p[0])), int(math.Round(p[1]))
	for dy := -2; dy <= 2; dy++ {
		for dx := -2; dx <= 2; dx++ {
			x, y := cx+dx, cy+dy
			if x >= 0 && x < TileSize && y >= 0 && y < TileSize {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
