package geo

import (
	"fmt"
	"math"
)

// TileID represents tile coordinates in the XYZ scheme (Tiled web map).
type TileID struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

func (t TileID) Valid() bool {
	return t.Z >= 0 && t.Z < 32 &&
		t.X >= 0 && t.X < (1<<t.Z) &&
		t.Y >= 0 && t.Y < (1<<t.Z)
}

func (t TileID) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// TileAt returns the tile containing the given point at zoom z.
func TileAt(lat, lon float64, z int) TileID {
	n := float64(int(1) << z)
	x := int((lon + 180) / 360 * n)

	latRad := lat * math.Pi / 180
	y := int((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n)

	max := (1 << z) - 1
	if x < 0 {
		x = 0
	}
	if x > max {
		x = max
	}
	if y < 0 {
		y = 0
	}
	if y > max {
		y = max
	}

	return TileID{Z: z, X: x, Y: y}
}

// TilesCovering enumerates the tiles covering the box at zoom z, row by row,
// truncated to at most max tiles when max > 0.
func TilesCovering(b Bounds, z int, max int) []TileID {
	topLeft := TileAt(b.MaxLat, b.MinLon, z)
	bottomRight := TileAt(b.MinLat, b.MaxLon, z)

	tiles := make([]TileID, 0, (bottomRight.X-topLeft.X+1)*(bottomRight.Y-topLeft.Y+1))
	for y := topLeft.Y; y <= bottomRight.Y; y++ {
		for x := topLeft.X; x <= bottomRight.X; x++ {
			tiles = append(tiles, TileID{Z: z, X: x, Y: y})
			if max > 0 && len(tiles) >= max {
				return tiles
			}
		}
	}

	return tiles
}

// TileRange returns the inclusive x/y span of tiles covering the box at zoom z.
func TileRange(b Bounds, z int) (minX, minY, maxX, maxY int) {
	topLeft := TileAt(b.MaxLat, b.MinLon, z)
	bottomRight := TileAt(b.MinLat, b.MaxLon, z)
	return topLeft.X, topLeft.Y, bottomRight.X, bottomRight.Y
}
