// Package decoder turns raw vector tile payloads into rasterized tile images
// using a small pool of parallel workers.
package decoder

import (
	"encoding/json"
	"fmt"
	"image/color"
)

// TileSize is the logical tile canvas edge in pixels.
const TileSize = 256

// FeatureKind is the paint primitive a style rule applies.
type FeatureKind string

const (
	KindFill   FeatureKind = "fill"
	KindLine   FeatureKind = "line"
	KindSymbol FeatureKind = "symbol"
)

// LayerStyle paints one named geometry layer. Layers render in the order the
// style defines them.
type LayerStyle struct {
	Layer       string      `json:"layer"`
	Kind        FeatureKind `json:"kind"`
	Color       string      `json:"color"`
	StrokeWidth float64     `json:"stroke_width,omitempty"`
}

type Style struct {
	Background string       `json:"background,omitempty"`
	Layers     []LayerStyle `json:"layers"`
}

// DefaultStyle renders the standard map layers with neutral colors.
func DefaultStyle() Style {
	return Style{
		Background: "#e8e4dc",
		Layers: []LayerStyle{
			{Layer: "water", Kind: KindFill, Color: "#a5bfdd"},
			{Layer: "parks", Kind: KindFill, Color: "#c8e0b4"},
			{Layer: "buildings", Kind: KindFill, Color: "#d4cfc7"},
			{Layer: "roads", Kind: KindLine, Color: "#ffffff", StrokeWidth: 2},
			{Layer: "pois", Kind: KindSymbol, Color: "#c06050"},
		},
	}
}

// document is the decoded shape of a raw vector tile payload: named layers of
// features with tile-local coordinates (0..256).
type document struct {
	Layers []docLayer `json:"layers"`
}

type docLayer struct {
	Name     string    `json:"name"`
	Features []feature `json:"features"`
}

type feature struct {
	Type   string       `json:"type"` // polygon, line or point
	Points [][2]float64 `json:"points"`
}

func decodeDocument(raw []byte) (document, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return document{}, fmt.Errorf("malformed vector tile payload: %w", err)
	}
	return doc, nil
}

// parseColor reads #RGB, #RRGGBB or #RRGGBBAA hex colors.
func parseColor(s string) (color.RGBA, error) {
	c := color.RGBA{A: 0xff}
	var err error
	switch len(s) {
	case 4:
		_, err = fmt.Sscanf(s, "#%1x%1x%1x", &c.R, &c.G, &c.B)
		c.R *= 17
		c.G *= 17
		c.B *= 17
	case 7:
		_, err = fmt.Sscanf(s, "#%02x%02x%02x", &c.R, &c.G, &c.B)
	case 9:
		_, err = fmt.Sscanf(s, "#%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A)
	default:
		err = fmt.Errorf("invalid color %q", s)
	}
	return c, err
}
