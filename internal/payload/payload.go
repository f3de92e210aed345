// Package payload defines the typed cacheable payloads exchanged between the
// cache tiers, the region store and the network fetcher.
package payload

import (
	"encoding/json"
	"fmt"
)

// DataType identifies a map data layer.
type DataType string

const (
	TypeTile      DataType = "tile"
	TypeBuildings DataType = "buildings"
	TypeRoads     DataType = "roads"
	TypePOIs      DataType = "pois"
	TypeWater     DataType = "water"
	TypeParks     DataType = "parks"
)

// GeometryTypes lists the non-tile layers fetched per viewport.
var GeometryTypes = []DataType{TypeBuildings, TypeRoads, TypePOIs, TypeWater, TypeParks}

func (t DataType) Valid() bool {
	switch t {
	case TypeTile, TypeBuildings, TypeRoads, TypePOIs, TypeWater, TypeParks:
		return true
	}
	return false
}

// Kind tags the payload variant.
type Kind string

const (
	KindBytes    Kind = "bytes"
	KindGeometry Kind = "geometry"
	KindRaster   Kind = "raster"
)

// Payload is a closed union of the shapes a cache entry can carry: opaque
// bytes, a decoded geometry document, or a rasterized tile image.
type Payload struct {
	Kind     Kind            `json:"kind"`
	Data     []byte          `json:"data,omitempty"`
	Geometry json.RawMessage `json:"geometry,omitempty"`
	Width    int             `json:"width,omitempty"`
	Height   int             `json:"height,omitempty"`
}

func Bytes(b []byte) Payload {
	return Payload{Kind: KindBytes, Data: b}
}

func Geometry(doc json.RawMessage) Payload {
	return Payload{Kind: KindGeometry, Geometry: doc}
}

func Raster(png []byte, width, height int) Payload {
	return Payload{Kind: KindRaster, Data: png, Width: width, Height: height}
}

// Size returns the payload size in raw bytes of serialized content. Envelope
// overhead and metadata are deliberately excluded.
func (p Payload) Size() int64 {
	switch p.Kind {
	case KindBytes, KindRaster:
		return int64(len(p.Data))
	case KindGeometry:
		return int64(len(p.Geometry))
	}
	return 0
}

func (p Payload) IsZero() bool {
	return p.Kind == ""
}

const envelopeVersion = 1

type envelope struct {
	Version int     `json:"version"`
	Payload Payload `json:"payload"`
}

// Encode serializes the payload with a versioned envelope for disk storage.
func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(envelope{Version: envelopeVersion, Payload: p})
}

// Decode parses a payload envelope. A version mismatch or malformed document
// is reported as an error so callers can drop the entry and treat it as a miss.
func Decode(raw []byte) (Payload, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Payload{}, fmt.Errorf("malformed payload envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return Payload{}, fmt.Errorf("unsupported payload envelope version %d", env.Version)
	}

	switch env.Payload.Kind {
	case KindBytes, KindGeometry, KindRaster:
		return env.Payload, nil
	}
	return Payload{}, fmt.Errorf("unknown payload kind %q", env.Payload.Kind)
}
