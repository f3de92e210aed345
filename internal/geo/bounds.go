package geo

import (
	"fmt"
	"math"
)

// KmPerDegree is the flat-earth approximation of one degree of latitude.
const KmPerDegree = 111.32

// Bounds is a geographic bounding box in degrees.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

func (b Bounds) Valid() bool {
	return b.MinLat < b.MaxLat && b.MinLon < b.MaxLon &&
		b.MinLat >= -90 && b.MaxLat <= 90 &&
		b.MinLon >= -180 && b.MaxLon <= 180
}

func (b Bounds) Contains(o Bounds) bool {
	return b.MinLat <= o.MinLat && b.MinLon <= o.MinLon &&
		b.MaxLat >= o.MaxLat && b.MaxLon >= o.MaxLon
}

// Area returns the box area in square degrees. Only used to rank overlapping
// cache entries, so the unit does not matter.
func (b Bounds) Area() float64 {
	return (b.MaxLat - b.MinLat) * (b.MaxLon - b.MinLon)
}

func (b Bounds) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Key returns the spatial cache key for the box. Coordinates are rounded to
// three decimal places (~100 m) so near-identical viewports collapse onto the
// same key.
func (b Bounds) Key() string {
	return fmt.Sprintf("%.3f,%.3f,%.3f,%.3f", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// ParseBoundsKey inverts Key.
func ParseBoundsKey(s string) (Bounds, error) {
	var b Bounds
	_, err := fmt.Sscanf(s, "%f,%f,%f,%f", &b.MinLat, &b.MinLon, &b.MaxLat, &b.MaxLon)
	if err != nil {
		return Bounds{}, fmt.Errorf("malformed bounds key %q: %w", s, err)
	}
	return b, nil
}

// Intersects reports whether the two boxes overlap.
func (b Bounds) Intersects(o Bounds) bool {
	return b.MinLat < o.MaxLat && b.MaxLat > o.MinLat &&
		b.MinLon < o.MaxLon && b.MaxLon > o.MinLon
}

// Intersection returns the overlapping box, or a zero Bounds when disjoint.
func (b Bounds) Intersection(o Bounds) Bounds {
	if !b.Intersects(o) {
		return Bounds{}
	}
	return Bounds{
		MinLat: math.Max(b.MinLat, o.MinLat),
		MinLon: math.Max(b.MinLon, o.MinLon),
		MaxLat: math.Min(b.MaxLat, o.MaxLat),
		MaxLon: math.Min(b.MaxLon, o.MaxLon),
	}
}

// FromCenter builds a bounding box around a center point using a flat-earth
// approximation: degreeDelta = radiusKm / 111.32, longitude corrected by
// cos(latitude).
func FromCenter(lat, lon, radiusKm float64) Bounds {
	latDelta := radiusKm / KmPerDegree
	lonDelta := radiusKm / (KmPerDegree * math.Cos(lat*math.Pi/180))

	return Bounds{
		MinLat: lat - latDelta,
		MinLon: lon - lonDelta,
		MaxLat: lat + latDelta,
		MaxLon: lon + lonDelta,
	}
}

// Split partitions the box into sub-boxes no wider than maxSideKm per side.
func (b Bounds) Split(maxSideKm float64) []Bounds {
	if maxSideKm <= 0 {
		return []Bounds{b}
	}

	centerLat, _ := b.Center()
	latStep := maxSideKm / KmPerDegree
	lonStep := maxSideKm / (KmPerDegree * math.Cos(centerLat*math.Pi/180))

	rows := int(math.Ceil((b.MaxLat - b.MinLat) / latStep))
	cols := int(math.Ceil((b.MaxLon - b.MinLon) / lonStep))
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}

	subs := make([]Bounds, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			sub := Bounds{
				MinLat: b.MinLat + float64(r)*latStep,
				MinLon: b.MinLon + float64(c)*lonStep,
				MaxLat: math.Min(b.MinLat+float64(r+1)*latStep, b.MaxLat),
				MaxLon: math.Min(b.MinLon+float64(c+1)*lonStep, b.MaxLon),
			}
			subs = append(subs, sub)
		}
	}

	return subs
}
