// Package dto holds the request and response shapes of the v1 HTTP API.
package dto

import (
	"encoding/json"

	"github.com/raedjah1/bopmaps-cache/internal/store"
)

type DataRequest struct {
	Type   string  `form:"type" json:"type" validate:"required"`
	MinLat float64 `form:"min_lat" json:"min_lat" validate:"required,gte=-90,lte=90"`
	MinLon float64 `form:"min_lon" json:"min_lon" validate:"required,gte=-180,lte=180"`
	MaxLat float64 `form:"max_lat" json:"max_lat" validate:"required,gte=-90,lte=90"`
	MaxLon float64 `form:"max_lon" json:"max_lon" validate:"required,gte=-180,lte=180"`
	Zoom   float64 `form:"zoom" json:"zoom" validate:"gte=0,lte=22"`
}

type StoreDataRequest struct {
	DataRequest
	Payload json.RawMessage `json:"payload" validate:"required"`
}

type DataResponse struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Found   bool            `json:"found"`
}

type ExistsResponse struct {
	Exists bool `json:"exists"`
}

type PrefetchRequest struct {
	MinLat    float64  `json:"min_lat" validate:"required,gte=-90,lte=90"`
	MinLon    float64  `json:"min_lon" validate:"required,gte=-180,lte=180"`
	MaxLat    float64  `json:"max_lat" validate:"required,gte=-90,lte=90"`
	MaxLon    float64  `json:"max_lon" validate:"required,gte=-180,lte=180"`
	DataTypes []string `json:"data_types" validate:"omitempty,dive,oneof=tile buildings roads pois water parks"`
	MinZoom   int      `json:"min_zoom" validate:"gte=0,lte=19"`
	MaxZoom   int      `json:"max_zoom" validate:"gte=0,lte=19,gtefield=MinZoom"`
	Priority  string   `json:"priority" validate:"omitempty,oneof=low normal high"`
}

// DownloadRegionRequest accepts either explicit bounds or a center point with
// a radius in kilometers. Zoom levels are slippy tile zooms.
type DownloadRegionRequest struct {
	Name       string   `json:"name" validate:"required"`
	MinLat     *float64 `json:"min_lat,omitempty"`
	MinLon     *float64 `json:"min_lon,omitempty"`
	MaxLat     *float64 `json:"max_lat,omitempty"`
	MaxLon     *float64 `json:"max_lon,omitempty"`
	CenterLat  *float64 `json:"center_lat,omitempty"`
	CenterLon  *float64 `json:"center_lon,omitempty"`
	RadiusKm   *float64 `json:"radius_km,omitempty"`
	ZoomLevels []int    `json:"zoom_levels" validate:"omitempty,dive,gte=1,lte=19"`
}

type RegionResponse struct {
	Region store.Region `json:"region"`
}

type RegionsResponse struct {
	Regions []store.Region `json:"regions"`
}

type ClearCacheRequest struct {
	Type string `json:"type,omitempty"`
}
